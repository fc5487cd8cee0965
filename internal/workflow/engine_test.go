package workflow

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneralQuestionAnsweredDirectly(t *testing.T) {
	f := newFixture(t, map[PromptRole][]string{
		PromptRouter: {"Yes."},
		PromptAnswer: {"HTTP is a request/response protocol."},
	})
	in := InterrupterFunc(func(context.Context, Interrupt) (string, error) {
		t.Fatal("general questions must not interrupt")
		return "", nil
	})

	run, err := f.engine.Drive(t.Context(), Input{
		PriorMessages: []Message{{Role: RoleHuman, Content: "hi"}},
		Request:       "How does HTTP work?",
	}, in)
	require.NoError(t, err)

	assert.True(t, run.Done())
	assert.True(t, run.General)
	assert.Equal(t, "HTTP is a request/response protocol.", run.Content)
	assert.Equal(t, 1, f.gen.calls[PromptAnswer])
	assert.Contains(t, f.gen.users[PromptAnswer][0], "human: hi")
	assert.Empty(t, f.ret.queries)
	assert.Empty(t, f.commit.calls)

	res := run.Result()
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "hi", res.Messages[0].Content)
	assert.Equal(t, "Yes.", res.Messages[1].Content)
}

func TestTwoStepRunApprovedThroughout(t *testing.T) {
	f := newFixture(t, complexReplies())
	script := &replyScript{replies: map[InterruptKind][]string{}}

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write a post about Go"}, script)
	require.NoError(t, err)

	assert.Equal(t, []InterruptKind{
		InterruptResearch, InterruptPlan, InterruptStep, InterruptStep, InterruptPolish,
	}, script.kinds())

	assert.ElementsMatch(t, []string{"go generics", "go iterators"}, f.ret.queries)
	assert.Equal(t, []string{"result for go generics", "result for go iterators"}, run.Research)

	require.Len(t, f.commit.calls, 1)
	commit := f.commit.calls[0]
	assert.Equal(t, "intro text\n\nbody text", commit.content)
	assert.Equal(t, ContentID("intro text\n\nbody text"), commit.id)
	assert.Equal(t, 2, commit.meta["steps_count"])
	assert.Equal(t, "2026-01-02T03:04:05Z", commit.meta["committed_at"])

	assert.Equal(t, 1, f.gen.calls[PromptPolisher])
	assert.Equal(t, "polished article", run.Content)
	assert.Equal(t, []string{"intro text", "body text"}, run.Progress.Completed)
	assert.Equal(t, CommitOK, run.Commit.Status)
	assert.Contains(t, messageContents(run), "Content saved! 2 steps completed.")

	steps := script.ofKind(InterruptStep)
	assert.Equal(t, "Review STEP 1/2: STEP 1: Intro", steps[0].Question)
	assert.Equal(t, "Completed: 0/2 steps", steps[0].Progress)
	assert.Equal(t, "Completed: 1/2 steps", steps[1].Progress)
	assert.Equal(t, "Solid. Approve", steps[1].Critique)
}

func TestReviseThenApproveKeepsSecondDraft(t *testing.T) {
	replies := complexReplies()
	replies[PromptPlanner] = []string{"STEP 1: Only step"}
	replies[PromptWriter] = []string{"first draft", "second draft"}
	replies[PromptCritic] = []string{"Needs revision"}
	f := newFixture(t, replies)
	script := &replyScript{replies: map[InterruptKind][]string{
		InterruptStep: {"make it punchier", "approve"},
	}}

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write a tagline"}, script)
	require.NoError(t, err)

	steps := script.ofKind(InterruptStep)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Iteration)
	assert.Equal(t, 2, steps[1].Iteration)
	assert.Equal(t, "Completed: 0/1 steps", steps[1].Progress, "revise must not move outputs")
	assert.Equal(t, "second draft", steps[1].Draft)

	assert.Contains(t, f.gen.users[PromptWriter][1], "make it punchier")
	assert.Contains(t, f.gen.users[PromptWriter][1], "first draft")

	require.Len(t, f.commit.calls, 1)
	assert.Equal(t, "second draft", f.commit.calls[0].content)
	assert.Equal(t, []string{"second draft"}, run.Progress.Completed)
}

func TestReviseLeavesProgressUntouched(t *testing.T) {
	replies := complexReplies()
	f := newFixture(t, replies)

	run, err := f.engine.Start(t.Context(), Input{Request: "Write a post"})
	require.NoError(t, err)
	require.NoError(t, f.engine.Resume(t.Context(), run, "", ""))
	require.NoError(t, f.engine.Resume(t.Context(), run, "", "approve"))

	// approve step 1, now at step 2
	require.NoError(t, f.engine.Resume(t.Context(), run, "", ""))
	require.Equal(t, PhaseAwaitingDecision, run.Phase)
	before := append([]string(nil), run.Progress.Completed...)
	cursor := run.Progress.Current

	for want := 2; want <= 4; want++ {
		require.NoError(t, f.engine.Resume(t.Context(), run, run.Pending.ID, "rewrite please"))
		assert.Equal(t, cursor, run.Progress.Current)
		assert.Equal(t, before, run.Progress.Completed)
		assert.Equal(t, want, run.Draft.Iteration)
	}
	assert.Empty(t, f.commit.calls)
}

func TestCriticVerdictIsAdvisory(t *testing.T) {
	replies := complexReplies()
	replies[PromptPlanner] = []string{"STEP 1: Only"}
	replies[PromptCritic] = []string{"I would approve but it needs revision"}
	f := newFixture(t, replies)

	run, err := f.engine.Start(t.Context(), Input{Request: "Write"})
	require.NoError(t, err)
	require.NoError(t, f.engine.Resume(t.Context(), run, "", ""))
	require.NoError(t, f.engine.Resume(t.Context(), run, "", ""))

	require.Equal(t, PhaseAwaitingDecision, run.Phase)
	assert.False(t, run.Verdict.Approved)

	require.NoError(t, f.engine.Resume(t.Context(), run, "", ""))
	assert.Equal(t, 1, run.Progress.Current)
	assert.Len(t, f.commit.calls, 1)
}

func TestResearchMoreLoop(t *testing.T) {
	f := newFixture(t, complexReplies())
	script := &replyScript{replies: map[InterruptKind][]string{
		InterruptResearch: {"more on go 1.23 range funcs", "   "},
	}}

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write"}, script)
	require.NoError(t, err)

	research := script.ofKind(InterruptResearch)
	require.Len(t, research, 2)
	assert.Equal(t, moreResearchQuestion, research[1].Question)
	assert.Equal(t, "result for more on go 1.23 range funcs", research[1].Research)
	assert.Empty(t, research[0].Bundle)
	assert.Equal(t, strings.Join(run.Research, "\n\n"), research[1].Bundle)
	assert.Contains(t, research[1].Bundle, "result for go generics")
	assert.Len(t, run.Research, 3)
	assert.Equal(t, 1, run.ResearchRounds)
}

func TestResearchMoreWithEmptyResultStillAsks(t *testing.T) {
	f := newFixture(t, complexReplies())
	f.ret.fn = func(q string) (string, error) {
		if q == "more nothing" {
			return "", nil
		}
		return "found " + q, nil
	}
	script := &replyScript{replies: map[InterruptKind][]string{
		InterruptResearch: {"more nothing"},
	}}

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write"}, script)
	require.NoError(t, err)
	assert.Len(t, script.ofKind(InterruptResearch), 2)
	assert.Len(t, run.Research, 2)
}

func TestResearchRoundCap(t *testing.T) {
	f := newFixture(t, complexReplies(), func(o *Options) { o.MaxResearchRounds = 1 })
	script := &replyScript{replies: map[InterruptKind][]string{
		InterruptResearch: {"more a", "more b", "more c"},
	}}

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write"}, script)
	require.NoError(t, err)
	assert.Len(t, script.ofKind(InterruptResearch), 2)
	assert.Len(t, f.ret.queries, 3)
	assert.True(t, run.Done())
}

func TestPlanRejectionFeedbackIsThreaded(t *testing.T) {
	replies := complexReplies()
	replies[PromptPlanner] = []string{"STEP 1: Intro", "STEP 1: Intro\nSTEP 2: Conclusion"}
	f := newFixture(t, replies)
	script := &replyScript{replies: map[InterruptKind][]string{
		InterruptPlan: {"add a conclusion"},
	}}

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write"}, script)
	require.NoError(t, err)

	require.Len(t, f.gen.users[PromptPlanner], 2)
	assert.NotContains(t, f.gen.users[PromptPlanner][0], "add a conclusion")
	assert.True(t, containsAll(f.gen.users[PromptPlanner][1], "add a conclusion", "STEP 1: Intro"))
	assert.Equal(t, 2, run.Plan.Len())
	assert.Equal(t, 2, script.ofKind(InterruptPlan)[1].StepsCount)
}

func TestPlanRoundCapAcceptsCurrentPlan(t *testing.T) {
	replies := complexReplies()
	replies[PromptPlanner] = []string{"STEP 1: A", "STEP 1: B"}
	f := newFixture(t, replies, func(o *Options) { o.MaxPlanRounds = 2 })
	script := &replyScript{replies: map[InterruptKind][]string{
		InterruptPlan: {"no", "still no", "never"},
	}}

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write"}, script)
	require.NoError(t, err)
	assert.Equal(t, 2, f.gen.calls[PromptPlanner])
	assert.Equal(t, "STEP 1: B", run.Plan.Steps[0].Label)
}

func TestPolishRevisionAndCap(t *testing.T) {
	replies := complexReplies()
	replies[PromptPolisher] = []string{"p1", "p2", "p3"}
	f := newFixture(t, replies, func(o *Options) { o.MaxPolishRounds = 2 })
	script := &replyScript{replies: map[InterruptKind][]string{
		InterruptPolish: {"tighten", "again", "more"},
	}}

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write"}, script)
	require.NoError(t, err)
	assert.Equal(t, 2, f.gen.calls[PromptPolisher])
	assert.Contains(t, f.gen.users[PromptPolisher][1], "tighten")
	assert.Equal(t, "p2", run.Content)
	assert.Len(t, f.commit.calls, 1)
}

func TestCommitFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t, complexReplies())
	f.commit.err = errBoom

	run, err := f.engine.Drive(t.Context(), Input{Request: "Write"}, &replyScript{replies: map[InterruptKind][]string{}})
	require.NoError(t, err)
	assert.True(t, run.Done())
	require.NotNil(t, run.Commit)
	assert.Equal(t, CommitError, run.Commit.Status)
	assert.Equal(t, "boom", run.Commit.Error)
}

func TestCommitHappensOnce(t *testing.T) {
	f := newFixture(t, complexReplies())
	run, err := f.engine.Drive(t.Context(), Input{Request: "Write"}, &replyScript{replies: map[InterruptKind][]string{}})
	require.NoError(t, err)
	require.Len(t, f.commit.calls, 1)

	// a run replayed into finalized must not commit again
	run.Phase = PhaseFinalized
	require.NoError(t, f.engine.advance(t.Context(), run))
	assert.Len(t, f.commit.calls, 1)
}

func TestResumeRejectsRunsThatAreNotWaiting(t *testing.T) {
	f := newFixture(t, map[PromptRole][]string{PromptRouter: {"yes"}, PromptAnswer: {"ok"}})
	run, err := f.engine.Start(t.Context(), Input{Request: "hi"})
	require.NoError(t, err)

	err = f.engine.Resume(t.Context(), run, "", "approve")
	assert.ErrorIs(t, err, ErrNotSuspended)
}

func TestResumeRejectsStaleToken(t *testing.T) {
	f := newFixture(t, complexReplies())
	run, err := f.engine.Start(t.Context(), Input{Request: "Write"})
	require.NoError(t, err)
	require.Equal(t, PhaseResearchReview, run.Phase)
	token := run.Pending.ID

	require.NoError(t, f.engine.Resume(t.Context(), run, token, ""))
	require.Equal(t, PhasePlanReview, run.Phase)

	err = f.engine.Resume(t.Context(), run, token, "approve")
	assert.ErrorIs(t, err, ErrStaleResume)
	assert.Equal(t, PhasePlanReview, run.Phase)
	assert.NotNil(t, run.Pending)
}

func TestRunSurvivesSerialisationBetweenInterrupts(t *testing.T) {
	f := newFixture(t, complexReplies())
	run, err := f.engine.Start(t.Context(), Input{Request: "Write"})
	require.NoError(t, err)

	for !run.Done() {
		data, err := json.Marshal(run)
		require.NoError(t, err)

		var restored Run
		require.NoError(t, json.Unmarshal(data, &restored))
		run = &restored
		require.NoError(t, f.engine.Resume(t.Context(), run, run.Pending.ID, ""))
	}

	assert.Equal(t, "polished article", run.Content)
	assert.Len(t, f.commit.calls, 1)
}

func TestGenerationFailureCarriesPhase(t *testing.T) {
	f := newFixture(t, complexReplies())
	f.gen.errs[PromptRouter] = errBoom

	_, err := f.engine.Start(t.Context(), Input{Request: "Write"})
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "route:")
}

func TestRetrievalFailureFailsRun(t *testing.T) {
	f := newFixture(t, complexReplies())
	f.ret.fn = func(string) (string, error) { return "", errBoom }

	_, err := f.engine.Start(t.Context(), Input{Request: "Write"})
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "research:")
}

func TestCorruptProgressIsAnError(t *testing.T) {
	f := newFixture(t, complexReplies())
	run := &Run{
		ID:       "r",
		Phase:    PhaseDrafting,
		Plan:     ParsePlan("STEP 1: a\nSTEP 2: b"),
		Progress: StepProgress{Current: 1},
	}

	err := f.engine.advance(t.Context(), run)
	assert.ErrorIs(t, err, ErrCorruptProgress)
}

func TestEmptyPlanFinalizesWithEmptyContent(t *testing.T) {
	f := newFixture(t, complexReplies())
	run := &Run{ID: "r", Phase: PhaseDrafting, Plan: &Plan{}}

	require.NoError(t, f.engine.advance(t.Context(), run))
	require.Len(t, f.commit.calls, 1)
	assert.Equal(t, "", f.commit.calls[0].content)
	assert.Equal(t, PhasePolishReview, run.Phase)
}

func TestNewEngineRequiresPorts(t *testing.T) {
	_, err := NewEngine(Options{Retriever: &fakeRetriever{}})
	assert.Error(t, err)
	_, err = NewEngine(Options{Generator: newScriptedGenerator(nil)})
	assert.Error(t, err)
}

func messageContents(run *Run) []string {
	out := make([]string, len(run.Messages))
	for i, m := range run.Messages {
		out[i] = m.Content
	}
	return out
}
