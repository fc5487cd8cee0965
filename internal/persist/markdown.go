package persist

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var contentIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Markdown writes each content to <dir>/<content id>.md with its metadata
// as YAML front matter.
type Markdown struct {
	Root string
}

func NewMarkdown(dir string) (*Markdown, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &Markdown{Root: absRoot}, nil
}

func (m *Markdown) Name() string { return "markdown" }

func (m *Markdown) Store(ctx context.Context, contentID, content string, meta map[string]any) error {
	if !contentIDPattern.MatchString(contentID) {
		return fmt.Errorf("unsafe content id: %q", contentID)
	}
	targetPath := filepath.Join(m.Root, contentID+".md")

	// Safety check: ensure targetPath is within m.Root
	rel, err := filepath.Rel(m.Root, targetPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("unsafe path attempt: %s", contentID)
	}

	front, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	buf.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		buf.WriteString("\n")
	}

	// write then rename so readers never see a partial file
	tmp := targetPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, targetPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ReadMarkdown splits a stored file into its front matter and body.
func ReadMarkdown(path string) (map[string]any, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		return nil, "", fmt.Errorf("%s: missing front matter", path)
	}
	front, body, ok := bytes.Cut(rest, []byte("\n---\n\n"))
	if !ok {
		return nil, "", fmt.Errorf("%s: unterminated front matter", path)
	}

	meta := map[string]any{}
	if err := yaml.Unmarshal(front, &meta); err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return meta, string(body), nil
}
