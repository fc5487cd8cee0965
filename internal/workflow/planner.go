package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
)

const planQuestion = "Review the content plan. Approve or provide feedback for revisions?"

func (e *Engine) plan(ctx context.Context, run *Run) error {
	var b strings.Builder
	section(&b, "User request", run.Request)
	section(&b, "Research data", strings.Join(run.Research, "\n\n"))
	if run.Plan != nil && run.Feedback != "" {
		section(&b, "Previous plan", run.Plan.Text)
		section(&b, "Reviewer feedback on the previous plan", run.Feedback)
	}

	out, err := e.generate(ctx, run, PromptPlanner, strings.TrimSpace(b.String()))
	if err != nil {
		return err
	}

	run.Plan = ParsePlan(out)
	run.PlanRounds++

	e.log.Log(observability.Event{
		Type:  observability.EventTypePlan,
		RunID: run.ID,
		Data:  map[string]any{"steps": run.Plan.Len(), "round": run.PlanRounds},
	})

	e.suspend(run, PhasePlanReview, Interrupt{
		Kind:       InterruptPlan,
		Action:     "ask",
		Question:   planQuestion,
		Plan:       run.Plan.Text,
		StepsCount: run.Plan.Len(),
	})
	return nil
}

func (e *Engine) onPlanReview(run *Run, reply string) {
	if !Approves(reply) {
		if !capReached(run.PlanRounds, e.maxPlan) {
			run.Feedback = reply
			run.Phase = PhasePlan
			return
		}
		e.log.Warn("plan round limit reached, accepting current plan",
			zap.String("run_id", run.ID), zap.Int("rounds", run.PlanRounds))
	}

	run.Feedback = ""
	run.Progress = StepProgress{}
	run.Draft = Draft{}
	run.Phase = PhaseDrafting
}
