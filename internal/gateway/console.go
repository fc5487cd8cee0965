package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/internal/session"
	"github.com/rahul/quill/internal/workflow"
)

// Console answers interrupts from a line-oriented terminal. It implements
// workflow.Interrupter for Engine.Drive.
type Console struct {
	in    *bufio.Reader
	out   io.Writer
	width int
	color bool
}

func NewConsole(in io.Reader, out io.Writer, width int, color bool) *Console {
	return &Console{in: bufio.NewReader(in), out: out, width: width, color: color}
}

// Suspend shows the interrupt and reads one reply line. End of input is an
// empty reply, which takes the default decision.
func (c *Console) Suspend(ctx context.Context, in workflow.Interrupt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	observability.Rule(c.out, c.width, string(in.Kind), c.color)
	fmt.Fprintln(c.out, session.RenderInterrupt(in))
	fmt.Fprint(c.out, "> ")

	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Show prints the outcome of a finished run.
func (c *Console) Show(run *workflow.Run) {
	observability.Rule(c.out, c.width, "result", c.color)
	fmt.Fprintln(c.out, run.Content)
	if run.Commit != nil {
		fmt.Fprintf(c.out, "\ncontent id %s (%s)\n", run.Commit.ContentID, run.Commit.Status)
	}
}
