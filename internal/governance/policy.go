package governance

import (
	"context"
	"fmt"
	"regexp"
	"sync"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request describes a retrieval about to be sent to a backend.
type Request struct {
	Backend string
	Query   string
	RunID   string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// Allowed reports whether the request may proceed.
func (r Result) Allowed() bool {
	return r.Effect != EffectDeny
}

// PolicyEngine evaluates retrievals against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies named backends and queries matching any of a
// set of patterns. It is safe for concurrent use.
type DefaultPolicyEngine struct {
	mu             sync.RWMutex
	deniedBackends map[string]bool
	deniedQueries  []*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		deniedBackends: make(map[string]bool),
	}
}

func (e *DefaultPolicyEngine) DenyBackend(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedBackends[name] = true
}

// DenyQuery rejects queries matching pattern on every backend.
func (e *DefaultPolicyEngine) DenyQuery(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid deny pattern %q: %w", pattern, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deniedQueries = append(e.deniedQueries, re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.deniedBackends[req.Backend] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Backend '%s' is restricted by system policy", req.Backend),
		}, nil
	}

	for _, re := range e.deniedQueries {
		if re.MatchString(req.Query) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Query matches restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}

// FromConfig builds an engine from configured backend and query deny lists.
func FromConfig(disabledBackends, denyPatterns []string) (*DefaultPolicyEngine, error) {
	e := NewDefaultPolicyEngine()
	for _, b := range disabledBackends {
		e.DenyBackend(b)
	}
	for _, p := range denyPatterns {
		if err := e.DenyQuery(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}
