package observability

import "context"

type ctxKey int

const (
	runIDKey ctxKey = iota
	chatIDKey
)

// WithRunID tags ctx so ports deep in a call can attribute their logs.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID returns the run tagged on ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

func ChatID(ctx context.Context) string {
	id, _ := ctx.Value(chatIDKey).(string)
	return id
}
