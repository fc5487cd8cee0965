package workflow

import (
	"context"
	"strings"

	"github.com/rahul/quill/internal/observability"
)

func (e *Engine) route(ctx context.Context, run *Run) error {
	reply, err := e.generate(ctx, run, PromptRouter, run.Request)
	if err != nil {
		return err
	}

	run.General = IsGeneral(reply)
	route := "complex"
	run.Phase = PhaseResearch
	if run.General {
		route = "general"
		run.Phase = PhaseAnswer
	}

	e.metrics.RunStarted(route)
	e.log.Log(observability.Event{
		Type:  observability.EventTypeRoute,
		RunID: run.ID,
		Data:  map[string]any{"route": route},
	})
	return nil
}

// answer replies to a general question directly; the reply is the content.
func (e *Engine) answer(ctx context.Context, run *Run) error {
	var b strings.Builder
	if run.Prior > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range run.Messages[:run.Prior] {
			b.WriteString(string(m.Role))
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(run.Request)

	out, err := e.generate(ctx, run, PromptAnswer, b.String())
	if err != nil {
		return err
	}
	run.Content = out
	run.Phase = PhaseDone
	return nil
}
