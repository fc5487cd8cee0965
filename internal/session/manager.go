// Package session maps chats onto workflow runs. It starts a run for a new
// request, resumes the chat's suspended run with the next message, and
// checkpoints every run in the run store between interrupts.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rahul/quill/internal/observability"
	"github.com/rahul/quill/internal/store"
	"github.com/rahul/quill/internal/workflow"
)

const defaultHistoryLimit = 10

type Options struct {
	Engine       *workflow.Engine
	Runs         *store.RunStore
	History      *store.HistoryStore
	HistoryLimit int
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	Now          func() time.Time
}

type Manager struct {
	engine       *workflow.Engine
	runs         *store.RunStore
	history      *store.HistoryStore
	historyLimit int
	log          *observability.Logger
	metrics      *observability.Metrics
	now          func() time.Time

	chats keyedMutex
	locks keyedMutex
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Engine == nil || opts.Runs == nil || opts.History == nil {
		return nil, errors.New("session: engine, run store and history store are required")
	}
	m := &Manager{
		engine:       opts.Engine,
		runs:         opts.Runs,
		history:      opts.History,
		historyLimit: opts.HistoryLimit,
		log:          opts.Logger,
		metrics:      opts.Metrics,
		now:          opts.Now,
	}
	if m.historyLimit <= 0 {
		m.historyLimit = defaultHistoryLimit
	}
	if m.log == nil {
		m.log = observability.NewNopLogger()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Handle processes one chat message: it resumes the chat's suspended run
// with text, or starts a new run for it. It returns the reply for the chat.
func (m *Manager) Handle(ctx context.Context, chatID, text string) (string, error) {
	unlock := m.chats.Lock(chatID)
	defer unlock()
	ctx = observability.WithChatID(ctx, chatID)

	active, err := m.runs.Active(ctx, chatID)
	switch {
	case err == nil:
		rec, err := m.resume(ctx, active.Run.ID, "", text)
		if err != nil {
			return "", err
		}
		return Reply(rec.Run), nil
	case !errors.Is(err, store.ErrRunNotFound):
		return "", fmt.Errorf("looking up active run: %w", err)
	}

	rec, err := m.start(ctx, chatID, workflow.Input{Request: text}, true)
	if err != nil {
		return "", err
	}
	return Reply(rec.Run), nil
}

// StartRun starts a run on behalf of chatID. When in carries no prior
// messages and chatID is set, the chat history is used.
func (m *Manager) StartRun(ctx context.Context, chatID string, in workflow.Input) (*store.Record, error) {
	if chatID != "" {
		unlock := m.chats.Lock(chatID)
		defer unlock()
		ctx = observability.WithChatID(ctx, chatID)
	}
	return m.start(ctx, chatID, in, chatID != "" && len(in.PriorMessages) == 0)
}

// ResumeRun answers the pending interrupt of run id. A failed run is
// returned together with its error.
func (m *Manager) ResumeRun(ctx context.Context, id, token, reply string) (*store.Record, error) {
	return m.resume(ctx, id, token, reply)
}

func (m *Manager) Get(ctx context.Context, id string) (*store.Record, error) {
	return m.runs.Load(ctx, id)
}

// Discard abandons a suspended run and returns its final record. It returns
// nil when the run was no longer suspended or was updated after notAfter
// (zero means any time).
func (m *Manager) Discard(ctx context.Context, id string, notAfter time.Time) (*store.Record, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	rec, err := m.runs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != store.StatusSuspended {
		return nil, nil
	}
	if !notAfter.IsZero() && rec.Run.UpdatedAt.After(notAfter) {
		return nil, nil
	}
	if err := m.runs.MarkStatus(ctx, id, store.StatusDiscarded, ""); err != nil {
		return nil, err
	}
	rec.Status = store.StatusDiscarded
	m.metrics.RunFinished(string(store.StatusDiscarded))
	m.log.Info("run discarded", zap.String("run_id", id), zap.String("phase", string(rec.Run.Phase)))
	return rec, nil
}

func (m *Manager) start(ctx context.Context, chatID string, in workflow.Input, withHistory bool) (*store.Record, error) {
	if withHistory {
		prior, err := m.history.GetHistory(ctx, chatID, m.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("loading chat history: %w", err)
		}
		in.PriorMessages = prior
	}

	run, runErr := m.engine.Start(ctx, in)
	unlock := m.locks.Lock(run.ID)
	defer unlock()
	return m.settle(ctx, chatID, run, runErr)
}

func (m *Manager) resume(ctx context.Context, id, token, reply string) (*store.Record, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	rec, err := m.runs.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != store.StatusSuspended {
		return rec, fmt.Errorf("%w: run %s is %s", workflow.ErrNotSuspended, id, rec.Status)
	}

	runErr := m.engine.Resume(observability.WithRunID(ctx, id), rec.Run, token, reply)
	if errors.Is(runErr, workflow.ErrNotSuspended) || errors.Is(runErr, workflow.ErrStaleResume) {
		// rejected before the run changed
		return rec, runErr
	}
	return m.settle(ctx, rec.ChatID, rec.Run, runErr)
}

// settle checkpoints run after the engine returned. Finished runs are
// recorded into the chat history.
func (m *Manager) settle(ctx context.Context, chatID string, run *workflow.Run, runErr error) (*store.Record, error) {
	rec := &store.Record{Run: run, ChatID: chatID, Status: store.StatusOf(run)}
	if runErr != nil {
		rec.Status = store.StatusFailed
		rec.Error = runErr.Error()
	}
	if err := m.runs.Save(ctx, *rec); err != nil {
		return rec, errors.Join(runErr, fmt.Errorf("saving run %s: %w", run.ID, err))
	}
	if runErr != nil {
		return rec, runErr
	}

	if run.Done() && chatID != "" {
		if err := m.history.AddMessage(ctx, chatID, workflow.RoleHuman, run.Request); err != nil {
			m.log.Warn("failed to record request", zap.String("run_id", run.ID), zap.Error(err))
		}
		if err := m.history.AddMessage(ctx, chatID, workflow.RoleAI, run.Content); err != nil {
			m.log.Warn("failed to record content", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	m.log.Debug("run checkpointed",
		zap.String("run_id", run.ID), zap.String("chat_id", chatID),
		zap.String("phase", string(run.Phase)), zap.String("status", string(rec.Status)))
	return rec, nil
}
