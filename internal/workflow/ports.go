package workflow

import "context"

// Generator produces text from a system and a user prompt. Retries, if any,
// belong to the implementation.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Retriever fetches information for a query. An empty string with a nil
// error means nothing was found.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// CommitStatus is the outcome of a persistence commit.
type CommitStatus string

const (
	CommitOK      CommitStatus = "ok"
	CommitSkipped CommitStatus = "skipped"
	CommitError   CommitStatus = "error"
)

// Committer writes final content keyed by its content id. It is write-only
// from the workflow's point of view.
type Committer interface {
	Commit(ctx context.Context, contentID, content string, meta map[string]any) (CommitStatus, error)
}

// Interrupter blocks until an external actor answers the interrupt. An empty
// reply means the actor gave no input.
type Interrupter interface {
	Suspend(ctx context.Context, in Interrupt) (string, error)
}

// InterrupterFunc adapts a function to Interrupter.
type InterrupterFunc func(ctx context.Context, in Interrupt) (string, error)

func (f InterrupterFunc) Suspend(ctx context.Context, in Interrupt) (string, error) {
	return f(ctx, in)
}

type nopCommitter struct{}

func (nopCommitter) Commit(context.Context, string, string, map[string]any) (CommitStatus, error) {
	return CommitSkipped, nil
}
