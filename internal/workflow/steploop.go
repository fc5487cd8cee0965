package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rahul/quill/internal/observability"
)

// drafting writes the current step. Past the last step it hands over to
// advancing with the joined outputs.
func (e *Engine) drafting(ctx context.Context, run *Run) error {
	if err := run.Progress.Check(); err != nil {
		return err
	}

	i := run.Progress.Current
	if i >= run.Plan.Len() {
		run.Content = run.Progress.Combined()
		run.Phase = PhaseAdvancing
		return nil
	}
	step := run.Plan.Steps[i]

	var b strings.Builder
	section(&b, "User request", run.Request)
	section(&b, "Full content plan", run.Plan.Text)
	section(&b, "Research data", strings.Join(run.Research, "\n\n"))
	completed := run.Progress.Combined()
	if completed == "" {
		completed = "None yet"
	}
	section(&b, "Already completed steps", completed)
	section(&b, "Current step", step.Label+"\n"+step.Intent)
	if run.Feedback != "" {
		section(&b, "Previous draft of this step", run.Draft.Content)
		section(&b, "Reviewer feedback to address", run.Feedback)
	}
	fmt.Fprintf(&b, "NOW WRITE ONLY: %s", step.Label)

	out, err := e.generate(ctx, run, PromptWriter, b.String())
	if err != nil {
		return err
	}

	run.Draft.Content = out
	run.Draft.Iteration++
	e.metrics.StepAttempt()
	e.log.Log(observability.Event{
		Type:  observability.EventTypeStep,
		RunID: run.ID,
		Data:  map[string]any{"step": i + 1, "total": run.Plan.Len(), "iteration": run.Draft.Iteration},
	})

	run.Phase = PhaseCritiquing
	return nil
}

// critiquing reviews the draft. The verdict is advisory; the human decides.
func (e *Engine) critiquing(ctx context.Context, run *Run) error {
	i := run.Progress.Current
	if i >= run.Plan.Len() {
		return fmt.Errorf("%w: critique with cursor %d past %d steps", ErrCorruptProgress, i, run.Plan.Len())
	}
	step := run.Plan.Steps[i]

	var b strings.Builder
	section(&b, "Step draft to review", run.Draft.Content)
	section(&b, "Step context", step.Label+"\n"+step.Intent)

	out, err := e.generate(ctx, run, PromptCritic, strings.TrimSpace(b.String()))
	if err != nil {
		return err
	}

	run.Verdict = Verdict{Approved: CriticApproves(out), Rationale: out}
	e.log.Log(observability.Event{
		Type:  observability.EventTypeCritic,
		RunID: run.ID,
		Data:  map[string]any{"step": i + 1, "approved": run.Verdict.Approved},
	})

	n := run.Plan.Len()
	e.suspend(run, PhaseAwaitingDecision, Interrupt{
		Kind:       InterruptStep,
		Action:     "feedback",
		Question:   fmt.Sprintf("Review STEP %d/%d: %s", i+1, n, step.Label),
		StepIndex:  i + 1,
		TotalSteps: n,
		Draft:      run.Draft.Content,
		Critique:   run.Verdict.Rationale,
		Iteration:  run.Draft.Iteration,
		Progress:   fmt.Sprintf("Completed: %d/%d steps", len(run.Progress.Completed), n),
	})
	return nil
}

// onStepDecision approves the draft into the outputs or keeps the reply as
// feedback for another attempt at the same step.
func (e *Engine) onStepDecision(run *Run, reply string) {
	if Approves(reply) {
		run.Progress.Approve(run.Draft.Content)
		run.Draft = Draft{}
		run.Feedback = ""
		run.Phase = PhaseAdvancing
		return
	}
	run.Feedback = reply
	run.Phase = PhaseDrafting
}

func (e *Engine) advancing(run *Run) error {
	if err := run.Progress.Check(); err != nil {
		return err
	}
	if run.Progress.Current >= run.Plan.Len() {
		run.Content = run.Progress.Combined()
		run.Phase = PhaseFinalized
		return nil
	}
	run.Phase = PhaseDrafting
	return nil
}
