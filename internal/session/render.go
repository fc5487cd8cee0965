package session

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rahul/quill/internal/workflow"
)

// Reply is the text sent back to a chat for run: the final content once
// done, otherwise the pending interrupt.
func Reply(run *workflow.Run) string {
	switch {
	case run == nil:
		return ""
	case run.Done():
		return run.Content
	case run.Pending != nil:
		return RenderInterrupt(*run.Pending)
	default:
		return fmt.Sprintf("Run %s is %s.", run.ID, run.Phase)
	}
}

// RenderInterrupt formats an interrupt as YAML followed by the question, so
// the question is the last thing a reader sees in a chat.
func RenderInterrupt(in workflow.Interrupt) string {
	out, err := yaml.Marshal(in)
	if err != nil {
		return in.Question
	}
	var b strings.Builder
	b.Write(out)
	b.WriteString("\n")
	b.WriteString(in.Question)
	b.WriteString("\n(reply \"approve\" or send feedback)")
	return b.String()
}
