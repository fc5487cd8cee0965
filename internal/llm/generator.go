// Package llm adapts langchaingo models to the workflow's Generation Port.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rahul/quill/internal/observability"
)

const (
	defaultMaxRetries  = 2
	defaultBaseBackoff = time.Second
)

// ErrEmptyResponse is returned when the model answers without any choice.
var ErrEmptyResponse = errors.New("empty response from model")

// Generator calls a langchaingo model with a system and a user message.
type Generator struct {
	model     llms.Model
	modelName string
	limiter   *rate.Limiter
	log       *observability.Logger
	metrics   *observability.Metrics

	maxRetries  int
	baseBackoff time.Duration
}

// Option customises a Generator.
type Option func(*Generator)

// WithRateLimit caps calls per second; zero leaves calls unlimited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(g *Generator) {
		if perSecond > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithLogger(l *observability.Logger) Option {
	return func(g *Generator) { g.log = l }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithRetries sets how often a failed call is retried and the first backoff,
// which doubles per attempt.
func WithRetries(n int, backoff time.Duration) Option {
	return func(g *Generator) {
		g.maxRetries = n
		g.baseBackoff = backoff
	}
}

func NewGenerator(model llms.Model, modelName string, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		modelName:   modelName,
		log:         observability.NewNopLogger(),
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns the model's reply to user under the system prompt.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := g.baseBackoff * time.Duration(1<<(attempt-1))
			g.log.Warn("retrying generation",
				zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := g.call(ctx, messages)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (g *Generator) call(ctx context.Context, messages []llms.MessageContent) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter error: %w", err)
		}
	}

	start := time.Now()
	resp, err := g.model.GenerateContent(ctx, messages)
	g.metrics.ObserveGeneration(time.Since(start))
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	choice := resp.Choices[0]
	runID := observability.RunID(ctx)
	g.log.LogLLM(runID, messages, choice.Content)
	if in, out, ok := tokenUsage(choice.GenerationInfo); ok {
		g.log.LogCost(runID, in, out, g.modelName)
	}
	return choice.Content, nil
}

// tokenUsage reads token counts from provider specific generation info.
func tokenUsage(info map[string]any) (prompt, completion int, ok bool) {
	for _, keys := range [][2]string{
		{"PromptTokens", "CompletionTokens"},
		{"InputTokens", "OutputTokens"},
		{"input_tokens", "output_tokens"},
	} {
		p, pok := asInt(info[keys[0]])
		c, cok := asInt(info[keys[1]])
		if pok || cok {
			return p, c, true
		}
	}
	return 0, 0, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
