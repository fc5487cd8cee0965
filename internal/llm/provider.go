package llm

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/quill/pkg/config"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// ErrNoEmbedder is returned for providers without an embedding endpoint.
var ErrNoEmbedder = errors.New("provider has no embedding support")

// NewModel builds the chat model for a configured provider.
func NewModel(name string, cfg config.ProviderConfig) (llms.Model, error) {
	switch name {
	case "openai", "openrouter":
		return newOpenAI(name, cfg)
	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(opts...)
	case "ollama":
		return newOllama(cfg)
	default:
		return nil, fmt.Errorf("provider %s not supported", name)
	}
}

// NewEmbedder builds an embedder for a configured provider. Only the
// OpenAI-compatible and Ollama providers can embed.
func NewEmbedder(name string, cfg config.ProviderConfig) (embeddings.Embedder, error) {
	var client embeddings.EmbedderClient
	var err error
	switch name {
	case "openai", "openrouter":
		client, err = newOpenAI(name, cfg)
	case "ollama":
		client, err = newOllama(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoEmbedder, name)
	}
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(client)
}

func newOpenAI(name string, cfg config.ProviderConfig) (*openai.LLM, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	baseURL := cfg.BaseURL
	if baseURL == "" && name == "openrouter" {
		baseURL = openRouterBaseURL
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if cfg.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
	}
	return openai.New(opts...)
}

func newOllama(cfg config.ProviderConfig) (*ollama.LLM, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	return ollama.New(opts...)
}
