// Package retrieval implements the workflow's Retrieval Port as an ordered
// chain of search backends.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rahul/quill/internal/governance"
	"github.com/rahul/quill/internal/observability"
)

// ErrNotApplicable is returned by a backend that cannot answer this kind of
// query. The chain moves on without counting it as an attempt.
var ErrNotApplicable = errors.New("backend does not apply to query")

// Backend is a single source of information.
type Backend interface {
	Name() string
	Retrieve(ctx context.Context, query string) (string, error)
}

// Registry manages the set of available backends.
type Registry struct {
	Backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{
		Backends: make(map[string]Backend),
	}
}

func (r *Registry) Register(b Backend) {
	r.Backends[b.Name()] = b
}

func (r *Registry) Get(name string) Backend {
	return r.Backends[name]
}

// Names lists the registered backends alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Backends))
	for name := range r.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain builds a chain over the registered backends named in order.
// Unregistered names are skipped.
func (r *Registry) Chain(order []string, opts ...ChainOption) *Chain {
	var backends []Backend
	for _, name := range order {
		if b := r.Get(name); b != nil {
			backends = append(backends, b)
		}
	}
	return NewChain(backends, opts...)
}

// Chain tries each backend in turn until one returns a non-empty result.
type Chain struct {
	backends []Backend
	policy   governance.PolicyEngine
	limiter  *rate.Limiter
	log      *observability.Logger
	metrics  *observability.Metrics
}

type ChainOption func(*Chain)

func WithPolicy(p governance.PolicyEngine) ChainOption {
	return func(c *Chain) { c.policy = p }
}

// WithRateLimit gates every backend call on a token bucket. A non-positive
// rate disables limiting.
func WithRateLimit(perSecond float64, burst int) ChainOption {
	return func(c *Chain) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

func WithLogger(l *observability.Logger) ChainOption {
	return func(c *Chain) { c.log = l }
}

func WithMetrics(m *observability.Metrics) ChainOption {
	return func(c *Chain) { c.metrics = m }
}

func NewChain(backends []Backend, opts ...ChainOption) *Chain {
	c := &Chain{backends: backends, log: observability.NewNopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retrieve returns the first non-empty result. When every backend that was
// tried failed, the failures are returned joined; otherwise a miss is an
// empty string.
func (c *Chain) Retrieve(ctx context.Context, query string) (string, error) {
	runID := observability.RunID(ctx)
	var errs []error
	tried := 0

	for _, b := range c.backends {
		name := b.Name()

		if c.policy != nil {
			res, err := c.policy.Evaluate(ctx, governance.Request{Backend: name, Query: query, RunID: runID})
			if err != nil {
				return "", fmt.Errorf("policy evaluation for %s: %w", name, err)
			}
			if !res.Allowed() {
				c.log.Info("retrieval denied by policy",
					zap.String("run_id", runID), zap.String("backend", name), zap.String("reason", res.Reason))
				c.metrics.Retrieval(name, "denied")
				continue
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter error: %w", err)
			}
		}

		out, err := b.Retrieve(ctx, query)
		if errors.Is(err, ErrNotApplicable) {
			continue
		}
		tried++
		switch {
		case err != nil:
			c.log.Warn("retrieval backend failed",
				zap.String("run_id", runID), zap.String("backend", name), zap.Error(err))
			c.metrics.Retrieval(name, "error")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		case IsEmpty(out):
			c.metrics.Retrieval(name, "empty")
		default:
			c.metrics.Retrieval(name, "ok")
			c.log.Log(observability.Event{
				Type:  observability.EventTypeRetrieval,
				RunID: runID,
				Data:  map[string]any{"backend": name, "query": query, "chars": len(out)},
			})
			return out, nil
		}
	}

	if tried > 0 && len(errs) == tried {
		return "", errors.Join(errs...)
	}
	return "", nil
}

// IsEmpty reports whether a backend reply carries no information. Search
// tools answer a miss with a "No good ..." sentence rather than nothing.
func IsEmpty(out string) bool {
	s := strings.TrimSpace(out)
	return s == "" || strings.HasPrefix(s, "No good")
}
