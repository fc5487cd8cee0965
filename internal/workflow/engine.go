package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
)

const (
	defaultMaxQueries = 3
)

// Options configures an Engine. Generator and Retriever are required.
type Options struct {
	Generator Generator
	Retriever Retriever
	Committer Committer
	Prompts   *PromptManager
	Logger    *observability.Logger
	Metrics   *observability.Metrics

	// Caps on the human review loops; zero means unbounded.
	MaxResearchRounds int
	MaxPlanRounds     int
	MaxPolishRounds   int

	// MaxQueries bounds the research queries taken from the first reply.
	MaxQueries int

	Now   func() time.Time
	NewID func() string
}

// Engine advances runs through the workflow. It holds only shared ports; all
// per-run state lives on the Run, so one Engine serves any number of runs.
type Engine struct {
	gen     Generator
	ret     Retriever
	commit  Committer
	prompts *PromptManager
	log     *observability.Logger
	metrics *observability.Metrics

	maxResearch int
	maxPlan     int
	maxPolish   int
	maxQueries  int

	now   func() time.Time
	newID func() string
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Generator == nil {
		return nil, errors.New("workflow: generator is required")
	}
	if opts.Retriever == nil {
		return nil, errors.New("workflow: retriever is required")
	}

	e := &Engine{
		gen:         opts.Generator,
		ret:         opts.Retriever,
		commit:      opts.Committer,
		prompts:     opts.Prompts,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		maxResearch: opts.MaxResearchRounds,
		maxPlan:     opts.MaxPlanRounds,
		maxPolish:   opts.MaxPolishRounds,
		maxQueries:  opts.MaxQueries,
		now:         opts.Now,
		newID:       opts.NewID,
	}
	if e.commit == nil {
		e.commit = nopCommitter{}
	}
	if e.prompts == nil {
		e.prompts = NewPromptManager("")
	}
	if e.log == nil {
		e.log = observability.NewNopLogger()
	}
	if e.maxQueries <= 0 {
		e.maxQueries = defaultMaxQueries
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// Start creates a run for in and advances it until it suspends or finishes.
// The returned run is valid even when err is non-nil, so callers can record
// the failure.
func (e *Engine) Start(ctx context.Context, in Input) (*Run, error) {
	now := e.now()
	run := &Run{
		ID:        e.newID(),
		Request:   in.Request,
		Messages:  append([]Message(nil), in.PriorMessages...),
		Prior:     len(in.PriorMessages),
		Phase:     PhaseRoute,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return run, e.advance(ctx, run)
}

// Resume answers the pending interrupt of run with reply and advances it
// until the next interrupt or the end. An empty token skips the match
// against the pending interrupt id.
func (e *Engine) Resume(ctx context.Context, run *Run, token, reply string) error {
	if !run.Phase.Suspended() || run.Pending == nil {
		return fmt.Errorf("%w: run %s is %s", ErrNotSuspended, run.ID, run.Phase)
	}
	if token != "" && token != run.Pending.ID {
		return fmt.Errorf("%w: run %s", ErrStaleResume, run.ID)
	}

	kind := run.Pending.Kind
	run.Pending = nil
	e.log.LogDecision(run.ID, string(kind), string(ClassifyReply(reply)))

	switch run.Phase {
	case PhaseResearchReview:
		e.onResearchReview(run, reply)
	case PhasePlanReview:
		e.onPlanReview(run, reply)
	case PhaseAwaitingDecision:
		e.onStepDecision(run, reply)
	case PhasePolishReview:
		e.onPolishReview(run, reply)
	}
	return e.advance(ctx, run)
}

// Drive runs one request to completion, answering every interrupt through
// in. It is the blocking adapter for callers that can wait on a human.
func (e *Engine) Drive(ctx context.Context, input Input, in Interrupter) (*Run, error) {
	run, err := e.Start(ctx, input)
	for err == nil && !run.Done() {
		var reply string
		reply, err = in.Suspend(ctx, *run.Pending)
		if err != nil {
			err = fmt.Errorf("%s: %w", run.Phase, err)
			break
		}
		err = e.Resume(ctx, run, run.Pending.ID, reply)
	}
	return run, err
}

// advance executes handlers until the run suspends or is done. Every handler
// sets the next phase; nothing else decides routing.
func (e *Engine) advance(ctx context.Context, run *Run) error {
	defer e.metrics.TrackActive()()

	for !run.Done() && !run.Phase.Suspended() {
		if err := ctx.Err(); err != nil {
			return err
		}

		phase := run.Phase
		var err error
		switch phase {
		case PhaseRoute:
			err = e.route(ctx, run)
		case PhaseAnswer:
			err = e.answer(ctx, run)
		case PhaseResearch:
			err = e.research(ctx, run)
		case PhaseResearchMore:
			err = e.researchMore(ctx, run)
		case PhasePlan:
			err = e.plan(ctx, run)
		case PhaseDrafting:
			err = e.drafting(ctx, run)
		case PhaseCritiquing:
			err = e.critiquing(ctx, run)
		case PhaseAdvancing:
			err = e.advancing(run)
		case PhaseFinalized:
			err = e.finalize(ctx, run)
		case PhasePolish:
			err = e.polish(ctx, run)
		default:
			err = fmt.Errorf("unknown phase %q", phase)
		}
		run.UpdatedAt = e.now()

		if err != nil {
			e.metrics.RunFinished("failed")
			e.log.Error("run failed", zap.String("run_id", run.ID), zap.String("phase", string(phase)), zap.Error(err))
			return fmt.Errorf("%s: %w", phase, err)
		}
	}

	if run.Done() {
		e.metrics.RunFinished("done")
	}
	return nil
}

// suspend parks the run in phase with a fresh interrupt.
func (e *Engine) suspend(run *Run, phase Phase, in Interrupt) {
	in.ID = e.newID()
	run.Phase = phase
	run.Pending = &in
	e.metrics.Interrupt(string(in.Kind))
	e.log.LogInterrupt(run.ID, string(in.Kind), in.Question)
}

// generate calls the Generation Port with the prompt for role and appends
// the reply to the message log.
func (e *Engine) generate(ctx context.Context, run *Run, role PromptRole, user string) (string, error) {
	system, err := e.prompts.Get(role)
	if err != nil {
		return "", err
	}
	out, err := e.gen.Generate(observability.WithRunID(ctx, run.ID), system, user)
	if err != nil {
		return "", fmt.Errorf("%s generation: %w", role, err)
	}
	run.addMessage(RoleAI, out)
	return out, nil
}

func capReached(rounds, limit int) bool {
	return limit > 0 && rounds >= limit
}

// section renders a labelled block for a user prompt, or nothing when body
// is blank.
func section(b *strings.Builder, label, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n\n", label, body)
}
