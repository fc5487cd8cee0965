package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rahul/quill/internal/gateway"
	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/internal/store"
	"github.com/rahul/quill/internal/workflow"
)

var runVerbose bool

var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Drive one request interactively from the console",
	Long: `Drive one request through the workflow, answering each checkpoint from
the console. An empty line accepts the default decision.

Examples:
  quill run "Write a blog post about Go iterators"
  quill run --verbose`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "log at the configured level instead of warnings only")
}

func runRun(cmd *cobra.Command, args []string) error {
	level := "warn"
	if runVerbose {
		level = ""
	}
	a, err := newApp(configPath, level)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())
	tty := isTerminal(os.Stdout)
	if tty {
		printBanner(out)
	}

	input, err := requestFrom(args, in, out)
	if err != nil {
		return err
	}

	console := gateway.NewConsole(in, out, termWidth(os.Stdout), tty)
	run, runErr := a.engine.Drive(ctx, input, console)

	rec := store.Record{Run: run, ChatID: "console", Status: store.StatusOf(run)}
	if runErr != nil {
		rec.Status = store.StatusFailed
		rec.Error = runErr.Error()
	}
	if err := store.NewRunStore(a.db).Save(context.WithoutCancel(ctx), rec); err != nil {
		a.log.Warn("failed to save run", zap.String("run_id", run.ID), zap.Error(err))
	}
	if runErr != nil {
		return runErr
	}

	console.Show(run)
	return nil
}

func requestFrom(args []string, in *bufio.Reader, out io.Writer) (workflow.Input, error) {
	if len(args) > 0 {
		return workflow.Input{Request: strings.Join(args, " ")}, nil
	}
	fmt.Fprint(out, "What should we write? ")
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return workflow.Input{}, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return workflow.Input{}, errors.New("a request is required")
	}
	return workflow.Input{Request: line}, nil
}

func isTerminal(f *os.File) bool { return observability.IsTerminal(f) }

func termWidth(f *os.File) int { return observability.TermWidth(f) }

func printBanner(w io.Writer) {
	observability.PrintBanner(w, termWidth(os.Stdout), true)
}
