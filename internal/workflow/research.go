package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rahul/quill/internal/observability"
)

const (
	researchQuestion     = "Review the collected research. Any specific areas to explore?"
	moreResearchQuestion = "Review the additional research. Continue or proceed?"
)

// research asks for search queries, retrieves them concurrently and pauses
// for review of the bundle.
func (e *Engine) research(ctx context.Context, run *Run) error {
	reply, err := e.generate(ctx, run, PromptResearch, run.Request)
	if err != nil {
		return err
	}

	queries := ParseQueries(reply, e.maxQueries)
	results := make([]string, len(queries))

	g, gctx := errgroup.WithContext(observability.WithRunID(ctx, run.ID))
	for i, q := range queries {
		g.Go(func() error {
			res, err := e.ret.Retrieve(gctx, q)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, res := range results {
		if strings.TrimSpace(res) != "" {
			run.Research = append(run.Research, res)
		}
	}

	e.log.Log(observability.Event{
		Type:  observability.EventTypeResearch,
		RunID: run.ID,
		Data:  map[string]any{"queries": queries, "results": len(run.Research)},
	})

	e.suspend(run, PhaseResearchReview, Interrupt{
		Kind:     InterruptResearch,
		Action:   "collect",
		Question: researchQuestion,
		Research: strings.Join(run.Research, "\n\n"),
	})
	return nil
}

// researchMore retrieves the reviewer's follow-up query and pauses again,
// even when nothing new was found. Research holds the new result and Bundle
// everything gathered so far.
func (e *Engine) researchMore(ctx context.Context, run *Run) error {
	query := strings.TrimSpace(run.PendingQuery)
	run.PendingQuery = ""

	res, err := e.ret.Retrieve(observability.WithRunID(ctx, run.ID), query)
	if err != nil {
		return err
	}
	if strings.TrimSpace(res) != "" {
		run.Research = append(run.Research, res)
	}

	e.log.Log(observability.Event{
		Type:  observability.EventTypeResearch,
		RunID: run.ID,
		Data:  map[string]any{"query": query, "round": run.ResearchRounds, "found": res != ""},
	})

	e.suspend(run, PhaseResearchReview, Interrupt{
		Kind:     InterruptResearch,
		Action:   "collect",
		Question: moreResearchQuestion,
		Research: res,
		Bundle:   strings.Join(run.Research, "\n\n"),
	})
	return nil
}

func (e *Engine) onResearchReview(run *Run, reply string) {
	if !WantsMoreResearch(reply) {
		run.Phase = PhasePlan
		return
	}
	if capReached(run.ResearchRounds, e.maxResearch) {
		e.log.Warn("research round limit reached, proceeding to planning",
			zap.String("run_id", run.ID), zap.Int("rounds", run.ResearchRounds))
		run.Phase = PhasePlan
		return
	}
	run.ResearchRounds++
	run.PendingQuery = reply
	run.Phase = PhaseResearchMore
}

// ParseQueries takes up to limit non-empty lines from a query reply, with
// list markers and surrounding quotes removed. Lines ending in a colon are
// headings, not queries.
func ParseQueries(reply string, limit int) []string {
	var queries []string
	for _, line := range strings.Split(reply, "\n") {
		if q := cleanQuery(line); q != "" {
			queries = append(queries, q)
			if len(queries) == limit {
				break
			}
		}
	}
	return queries
}

func cleanQuery(line string) string {
	q := strings.TrimSpace(line)
	q = strings.TrimLeft(q, "-*• ")

	// numbered markers: "1." or "2)"
	i := 0
	for i < len(q) && q[i] >= '0' && q[i] <= '9' {
		i++
	}
	if i > 0 && i < len(q) && (q[i] == '.' || q[i] == ')') {
		q = q[i+1:]
	}

	q = strings.TrimSpace(q)
	if strings.HasSuffix(q, ":") {
		return ""
	}
	return strings.TrimSpace(strings.Trim(q, `"'`))
}
