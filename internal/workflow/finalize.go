package workflow

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
)

const polishQuestion = "Review the final polished content. Any last changes?"

// ContentID is the stable identity of committed content: the lower-case hex
// MD5 of its text.
func ContentID(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// CommitMetadata describes content for the persistence backends.
func CommitMetadata(run *Run, content string, at time.Time) map[string]any {
	planText := ""
	if run.Plan != nil {
		planText = run.Plan.Text
	}
	return map[string]any{
		"title":           truncateRunes(run.Request, 200),
		"request":         run.Request,
		"content_preview": truncateRunes(content, 1000),
		"content_length":  len([]rune(content)),
		"steps_count":     run.Plan.Len(),
		"plan":            truncateRunes(planText, 500),
		"committed_at":    at.UTC().Format(time.RFC3339),
	}
}

// finalize commits the joined outputs once. A failed commit is recorded on
// the run and never fails it.
func (e *Engine) finalize(ctx context.Context, run *Run) error {
	if run.Commit != nil {
		run.Phase = PhasePolish
		return nil
	}
	if err := run.Progress.Check(); err != nil {
		return err
	}
	if n := run.Plan.Len(); run.Progress.Current < n {
		return fmt.Errorf("%w: finalize at step %d of %d", ErrCorruptProgress, run.Progress.Current, n)
	}

	content := run.Progress.Combined()
	id := ContentID(content)
	record := &CommitRecord{ContentID: id}

	status, err := e.commit.Commit(ctx, id, content, CommitMetadata(run, content, e.now()))
	if err != nil {
		e.log.Error("commit failed", zap.String("run_id", run.ID), zap.String("content_id", id), zap.Error(err))
		record.Status = CommitError
		record.Error = err.Error()
	} else {
		record.Status = status
	}

	run.Commit = record
	run.Content = content
	run.Feedback = ""
	run.addMessage(RoleAI, fmt.Sprintf("Content saved! %d steps completed.", len(run.Progress.Completed)))

	e.metrics.Commit(string(record.Status))
	e.log.Log(observability.Event{
		Type:  observability.EventTypeCommit,
		RunID: run.ID,
		Data:  map[string]any{"content_id": id, "status": record.Status},
	})

	run.Phase = PhasePolish
	return nil
}

func (e *Engine) polish(ctx context.Context, run *Run) error {
	var b strings.Builder
	section(&b, "Draft", run.Content)
	section(&b, "Critic feedback", run.Verdict.Rationale)
	if run.Feedback != "" {
		section(&b, "Previous polish", run.Polished)
		section(&b, "Reviewer feedback to address", run.Feedback)
	}

	out, err := e.generate(ctx, run, PromptPolisher, strings.TrimSpace(b.String()))
	if err != nil {
		return err
	}
	run.Polished = out
	run.PolishRounds++

	e.log.Log(observability.Event{
		Type:  observability.EventTypePolish,
		RunID: run.ID,
		Data:  map[string]any{"round": run.PolishRounds},
	})

	e.suspend(run, PhasePolishReview, Interrupt{
		Kind:     InterruptPolish,
		Action:   "feedback",
		Question: polishQuestion,
		Content:  out,
	})
	return nil
}

func (e *Engine) onPolishReview(run *Run, reply string) {
	if !Approves(reply) {
		if !capReached(run.PolishRounds, e.maxPolish) {
			run.Feedback = reply
			run.Phase = PhasePolish
			return
		}
		e.log.Warn("polish round limit reached, accepting latest polish",
			zap.String("run_id", run.ID), zap.Int("rounds", run.PolishRounds))
	}
	run.Content = run.Polished
	run.Feedback = ""
	run.Phase = PhaseDone
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
