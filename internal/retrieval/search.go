package retrieval

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
	"github.com/tmc/langchaingo/tools/serpapi"
)

const (
	BackendDuckDuckGo = "duckduckgo"
	BackendSerpAPI    = "serpapi"
	BackendPage       = "page"
)

// SearchBackend exposes a langchaingo search tool as a Backend.
type SearchBackend struct {
	name string
	tool tools.Tool
}

func NewSearchBackend(name string, tool tools.Tool) *SearchBackend {
	return &SearchBackend{name: name, tool: tool}
}

func NewDuckDuckGo(maxResults int) (*SearchBackend, error) {
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, err
	}
	return NewSearchBackend(BackendDuckDuckGo, ddg), nil
}

func NewSerpAPI(apiKey string) (*SearchBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serpapi: api key required")
	}
	s, err := serpapi.New(serpapi.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return NewSearchBackend(BackendSerpAPI, s), nil
}

func (s *SearchBackend) Name() string {
	return s.name
}

func (s *SearchBackend) Retrieve(ctx context.Context, query string) (string, error) {
	res, err := s.tool.Call(ctx, query)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	return res, nil
}
