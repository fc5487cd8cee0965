package workflow

import (
	"errors"
	"time"
)

var (
	// ErrNotSuspended is returned when resuming a run that is not waiting
	// on an interrupt.
	ErrNotSuspended = errors.New("run is not suspended")

	// ErrStaleResume is returned when a resume token does not match the
	// pending interrupt.
	ErrStaleResume = errors.New("resume token does not match pending interrupt")

	// ErrCorruptProgress is returned when the step cursor and the approved
	// outputs disagree.
	ErrCorruptProgress = errors.New("step progress is inconsistent")
)

// Phase is the state of a run. Each phase has exactly one handler in the
// engine; suspended phases wait for Resume.
type Phase string

const (
	PhaseRoute            Phase = "route"
	PhaseAnswer           Phase = "answer"
	PhaseResearch         Phase = "research"
	PhaseResearchMore     Phase = "research_more"
	PhaseResearchReview   Phase = "research_review"
	PhasePlan             Phase = "plan"
	PhasePlanReview       Phase = "plan_review"
	PhaseDrafting         Phase = "drafting"
	PhaseCritiquing       Phase = "critiquing"
	PhaseAwaitingDecision Phase = "awaiting_decision"
	PhaseAdvancing        Phase = "advancing"
	PhaseFinalized        Phase = "finalized"
	PhasePolish           Phase = "polish"
	PhasePolishReview     Phase = "polish_review"
	PhaseDone             Phase = "done"
)

// Suspended reports whether the phase waits on a human reply.
func (p Phase) Suspended() bool {
	switch p {
	case PhaseResearchReview, PhasePlanReview, PhaseAwaitingDecision, PhasePolishReview:
		return true
	}
	return false
}

// Role of a message in the run log.
type Role string

const (
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleSystem Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Input is the run boundary input.
type Input struct {
	PriorMessages []Message `json:"prior_messages,omitempty"`
	Request       string    `json:"request"`
}

// Result is the run boundary output.
type Result struct {
	Messages []Message `json:"messages"`
	Content  string    `json:"content"`
}

// InterruptKind identifies the checkpoint that raised an interrupt.
type InterruptKind string

const (
	InterruptResearch InterruptKind = "research_review"
	InterruptPlan     InterruptKind = "plan_review"
	InterruptStep     InterruptKind = "step_review"
	InterruptPolish   InterruptKind = "polish_review"
)

// Interrupt is the question put to the human. ID doubles as the resume token.
type Interrupt struct {
	ID         string        `json:"id" yaml:"id"`
	Kind       InterruptKind `json:"kind" yaml:"kind"`
	Action     string        `json:"action" yaml:"action"`
	Question   string        `json:"question" yaml:"question"`
	Research   string        `json:"research,omitempty" yaml:"research,omitempty"`
	Bundle     string        `json:"research_bundle,omitempty" yaml:"research_bundle,omitempty"`
	Plan       string        `json:"plan,omitempty" yaml:"plan,omitempty"`
	StepsCount int           `json:"steps_count,omitempty" yaml:"steps_count,omitempty"`
	StepIndex  int           `json:"step_index,omitempty" yaml:"step_index,omitempty"`
	TotalSteps int           `json:"total_steps,omitempty" yaml:"total_steps,omitempty"`
	Draft      string        `json:"step_draft,omitempty" yaml:"step_draft,omitempty"`
	Critique   string        `json:"critic_feedback,omitempty" yaml:"critic_feedback,omitempty"`
	Iteration  int           `json:"iteration,omitempty" yaml:"iteration,omitempty"`
	Progress   string        `json:"progress,omitempty" yaml:"progress,omitempty"`
	Content    string        `json:"final_content,omitempty" yaml:"final_content,omitempty"`
}

// Draft is the latest attempt at the current step.
type Draft struct {
	Content   string `json:"content"`
	Iteration int    `json:"iteration"`
}

// Verdict is the critic's advisory judgment of a draft.
type Verdict struct {
	Approved  bool   `json:"approved"`
	Rationale string `json:"rationale"`
}

// CommitRecord remembers the one persistence commit of a run.
type CommitRecord struct {
	ContentID string       `json:"content_id"`
	Status    CommitStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
}

// Run is the complete, serialisable state of one workflow execution. It is
// owned by exactly one caller; the engine never retains it.
type Run struct {
	ID       string    `json:"id"`
	Request  string    `json:"request"`
	Messages []Message `json:"messages"`
	// Prior is the number of leading Messages that came from Input.
	Prior   int   `json:"prior"`
	Phase   Phase `json:"phase"`
	General bool  `json:"general"`

	Research       []string `json:"research,omitempty"`
	ResearchRounds int      `json:"research_rounds,omitempty"`
	PendingQuery   string   `json:"pending_query,omitempty"`

	Plan       *Plan `json:"plan,omitempty"`
	PlanRounds int   `json:"plan_rounds,omitempty"`

	Progress StepProgress `json:"progress"`
	Draft    Draft        `json:"draft"`
	Verdict  Verdict      `json:"verdict"`

	// Feedback is the latest non-approving human reply, threaded into the
	// next regeneration of the same artefact.
	Feedback string `json:"feedback,omitempty"`

	Content      string        `json:"content,omitempty"`
	Commit       *CommitRecord `json:"commit,omitempty"`
	Polished     string        `json:"polished,omitempty"`
	PolishRounds int           `json:"polish_rounds,omitempty"`

	Pending *Interrupt `json:"pending,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Done reports whether the run has produced its final content.
func (r *Run) Done() bool {
	return r.Phase == PhaseDone
}

// Result returns the run boundary output. It is only meaningful once Done.
func (r *Run) Result() Result {
	msgs := make([]Message, len(r.Messages))
	copy(msgs, r.Messages)
	return Result{Messages: msgs, Content: r.Content}
}

func (r *Run) addMessage(role Role, content string) {
	r.Messages = append(r.Messages, Message{Role: role, Content: content})
}
