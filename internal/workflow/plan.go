package workflow

import (
	"fmt"
	"strings"
	"unicode"
)

// FallbackStepLabel names the single step used when a plan has no
// recognisable step headers.
const FallbackStepLabel = "STEP 1: Complete content"

// Step represents a single unit of the content plan.
type Step struct {
	Label  string `json:"label"`
	Intent string `json:"intent,omitempty"`
}

// Plan represents the ordered steps that make up the content.
type Plan struct {
	Text  string `json:"text"`
	Steps []Step `json:"steps"`
}

// ParsePlan extracts step headers from a generated plan. Lines following a
// header, up to the next header, form that step's intent. A plan without any
// header becomes one step covering the whole content.
func ParsePlan(text string) *Plan {
	plan := &Plan{Text: text}

	var current *Step
	var intent []string
	flush := func() {
		if current == nil {
			return
		}
		current.Intent = strings.TrimSpace(strings.Join(intent, "\n"))
		plan.Steps = append(plan.Steps, *current)
		intent = intent[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if isStepHeader(line) {
			flush()
			current = &Step{Label: strings.TrimSpace(line)}
			continue
		}
		if current != nil {
			intent = append(intent, line)
		}
	}
	flush()

	if len(plan.Steps) == 0 {
		plan.Steps = []Step{{Label: FallbackStepLabel, Intent: strings.TrimSpace(text)}}
	}
	return plan
}

func isStepHeader(line string) bool {
	s := strings.TrimLeft(strings.TrimSpace(line), "#*_ \t")
	if len(s) < 5 || !strings.EqualFold(s[:4], "step") {
		return false
	}
	rest := strings.TrimLeft(s[4:], " ")
	if rest == "" {
		return false
	}
	next := rune(rest[0])
	return next == ':' || unicode.IsDigit(next)
}

// Len returns the number of steps; a nil plan has none.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// StepProgress tracks the cursor into the plan and the approved output of
// every step before it.
type StepProgress struct {
	Current   int      `json:"current"`
	Completed []string `json:"completed"`
}

// Check verifies that exactly one output exists per step before the cursor.
func (sp StepProgress) Check() error {
	if sp.Current < 0 || len(sp.Completed) != sp.Current {
		return fmt.Errorf("%w: cursor %d with %d approved outputs", ErrCorruptProgress, sp.Current, len(sp.Completed))
	}
	return nil
}

// Approve records output for the current step and moves the cursor on.
func (sp *StepProgress) Approve(output string) {
	sp.Completed = append(sp.Completed, output)
	sp.Current++
}

// Combined joins the approved outputs in step order.
func (sp StepProgress) Combined() string {
	return strings.Join(sp.Completed, "\n\n")
}
