package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedGenerator answers each role from its own queue, repeating the last
// reply once the queue is drained.
type scriptedGenerator struct {
	replies map[PromptRole][]string
	errs    map[PromptRole]error
	calls   map[PromptRole]int
	users   map[PromptRole][]string
}

func newScriptedGenerator(replies map[PromptRole][]string) *scriptedGenerator {
	return &scriptedGenerator{
		replies: replies,
		errs:    map[PromptRole]error{},
		calls:   map[PromptRole]int{},
		users:   map[PromptRole][]string{},
	}
}

func (g *scriptedGenerator) Generate(_ context.Context, system, user string) (string, error) {
	role := roleOf(system)
	g.calls[role]++
	g.users[role] = append(g.users[role], user)
	if err := g.errs[role]; err != nil {
		return "", err
	}
	queue := g.replies[role]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted reply for %s", role)
	}
	n := g.calls[role] - 1
	if n >= len(queue) {
		n = len(queue) - 1
	}
	return queue[n], nil
}

func roleOf(system string) PromptRole {
	for role, p := range defaultPrompts {
		if p == system {
			return role
		}
	}
	return ""
}

type fakeRetriever struct {
	mu      sync.Mutex
	queries []string
	fn      func(query string) (string, error)
}

func (r *fakeRetriever) Retrieve(_ context.Context, query string) (string, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(query)
	}
	return "result for " + query, nil
}

type commitCall struct {
	id      string
	content string
	meta    map[string]any
}

type fakeCommitter struct {
	calls  []commitCall
	status CommitStatus
	err    error
}

func (c *fakeCommitter) Commit(_ context.Context, id, content string, meta map[string]any) (CommitStatus, error) {
	c.calls = append(c.calls, commitCall{id: id, content: content, meta: meta})
	if c.err != nil {
		return "", c.err
	}
	if c.status == "" {
		return CommitOK, nil
	}
	return c.status, nil
}

// replyScript answers interrupts of each kind from a queue; an exhausted
// queue answers with an empty reply.
type replyScript struct {
	replies map[InterruptKind][]string
	seen    []Interrupt
}

func (s *replyScript) Suspend(_ context.Context, in Interrupt) (string, error) {
	s.seen = append(s.seen, in)
	queue := s.replies[in.Kind]
	if len(queue) == 0 {
		return "", nil
	}
	s.replies[in.Kind] = queue[1:]
	return queue[0], nil
}

func (s *replyScript) kinds() []InterruptKind {
	out := make([]InterruptKind, len(s.seen))
	for i, in := range s.seen {
		out[i] = in.Kind
	}
	return out
}

func (s *replyScript) ofKind(kind InterruptKind) []Interrupt {
	var out []Interrupt
	for _, in := range s.seen {
		if in.Kind == kind {
			out = append(out, in)
		}
	}
	return out
}

type engineFixture struct {
	gen    *scriptedGenerator
	ret    *fakeRetriever
	commit *fakeCommitter
	engine *Engine
}

func newFixture(t *testing.T, replies map[PromptRole][]string, mutate ...func(*Options)) *engineFixture {
	t.Helper()
	f := &engineFixture{
		gen:    newScriptedGenerator(replies),
		ret:    &fakeRetriever{},
		commit: &fakeCommitter{},
	}

	var seq int
	opts := Options{
		Generator:         f.gen,
		Retriever:         f.ret,
		Committer:         f.commit,
		MaxResearchRounds: 5,
		MaxPlanRounds:     5,
		MaxPolishRounds:   5,
		Now:               func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	}
	for _, m := range mutate {
		m(&opts)
	}

	e, err := NewEngine(opts)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	f.engine = e
	return f
}

// complexReplies scripts a two-step content run with an approving critic.
func complexReplies() map[PromptRole][]string {
	return map[PromptRole][]string{
		PromptRouter:   {"no"},
		PromptResearch: {"1. go generics\n2. \"go iterators\""},
		PromptPlanner:  {"Outline\nSTEP 1: Intro\n- hook the reader\nSTEP 2: Body\n- explain"},
		PromptWriter:   {"intro text", "body text"},
		PromptCritic:   {"Solid. Approve"},
		PromptPolisher: {"polished article"},
	}
}

var errBoom = errors.New("boom")

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
