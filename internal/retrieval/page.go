package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const (
	defaultMaxPageChars = 50000
	maxBodyBytes        = 5 << 20
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Fetcher loads the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// PageBackend answers queries that contain a URL with the readable text of
// that page. Other queries get ErrNotApplicable.
type PageBackend struct {
	fetcher  Fetcher
	maxChars int
	policy   *bluemonday.Policy
}

func NewPageBackend(fetcher Fetcher, maxChars int) *PageBackend {
	if maxChars <= 0 {
		maxChars = defaultMaxPageChars
	}
	return &PageBackend{
		fetcher:  fetcher,
		maxChars: maxChars,
		policy:   bluemonday.StrictPolicy(),
	}
}

func (p *PageBackend) Name() string {
	return BackendPage
}

func (p *PageBackend) Retrieve(ctx context.Context, query string) (string, error) {
	raw := urlPattern.FindString(query)
	if raw == "" {
		return "", ErrNotApplicable
	}
	raw = strings.TrimRight(raw, ".,;:)")

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	html, err := p.fetcher.Fetch(ctx, raw)
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}

	// strip anything readability left behind
	content := strings.TrimSpace(p.policy.Sanitize(article.TextContent))
	if content == "" {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SOURCE: %s\n", raw)
	fmt.Fprintf(&b, "TITLE: %s\n", article.Title)
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", article.Excerpt)
	}
	b.WriteString("\n-- CONTENT --\n")

	if r := []rune(content); len(r) > p.maxChars {
		content = string(r[:p.maxChars]) + "\n... (content truncated) ..."
	}
	b.WriteString(content)
	return b.String(), nil
}

// HTTPFetcher fetches pages with a plain HTTP GET.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: defaultUserAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.UserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}
