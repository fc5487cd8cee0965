// Package persist writes committed content to the configured backends. It
// implements the workflow's Committer.
package persist

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/internal/workflow"
)

// Backend stores content under its content id. Storing the same id twice
// replaces the earlier version.
type Backend interface {
	Name() string
	Store(ctx context.Context, contentID, content string, meta map[string]any) error
}

// Fanout commits to every backend. The commit is ok when at least one
// backend stored the content and skipped when there is no backend.
type Fanout struct {
	backends []Backend
	log      *observability.Logger
}

func NewFanout(log *observability.Logger, backends ...Backend) *Fanout {
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Fanout{backends: backends, log: log}
}

func (f *Fanout) Commit(ctx context.Context, contentID, content string, meta map[string]any) (workflow.CommitStatus, error) {
	if len(f.backends) == 0 {
		return workflow.CommitSkipped, nil
	}

	var errs []error
	for _, b := range f.backends {
		if err := b.Store(ctx, contentID, content, meta); err != nil {
			f.log.Warn("persistence backend failed",
				zap.String("backend", b.Name()), zap.String("content_id", contentID), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		f.log.Debug("content stored", zap.String("backend", b.Name()), zap.String("content_id", contentID))
	}

	if len(errs) == len(f.backends) {
		return workflow.CommitError, errors.Join(errs...)
	}
	return workflow.CommitOK, nil
}

// Names lists the backends in commit order.
func (f *Fanout) Names() []string {
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.Name()
	}
	return names
}
