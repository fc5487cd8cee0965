package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rahul/quill/internal/workflow"
)

// ErrRunNotFound is returned when no stored run matches.
var ErrRunNotFound = errors.New("run not found")

// Status is the lifecycle of a stored run.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusDiscarded Status = "discarded"
)

// StatusOf derives the stored status of a run that did not fail.
func StatusOf(run *workflow.Run) Status {
	switch {
	case run.Done():
		return StatusDone
	case run.Phase.Suspended():
		return StatusSuspended
	default:
		return StatusActive
	}
}

// Record is a stored run with its bookkeeping.
type Record struct {
	Run    *workflow.Run
	ChatID string
	Status Status
	Error  string
}

// RunStore checkpoints runs between interrupts.
type RunStore struct {
	DB *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{DB: db}
}

// Save inserts or replaces the checkpoint of rec.Run.
func (s *RunStore) Save(ctx context.Context, rec Record) error {
	state, err := json.Marshal(rec.Run)
	if err != nil {
		return fmt.Errorf("failed to encode run %s: %w", rec.Run.ID, err)
	}

	updated := rec.Run.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	query := `INSERT INTO runs (id, chat_id, phase, status, state, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = excluded.chat_id,
			phase = excluded.phase,
			status = excluded.status,
			state = excluded.state,
			error = excluded.error,
			updated_at = excluded.updated_at`
	_, err = s.DB.ExecContext(ctx, query,
		rec.Run.ID, rec.ChatID, string(rec.Run.Phase), string(rec.Status), string(state), rec.Error,
		formatTime(rec.Run.CreatedAt), formatTime(updated))
	return err
}

func (s *RunStore) Load(ctx context.Context, id string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT chat_id, status, state, error FROM runs WHERE id = ?`, id)
	return scanRecord(row)
}

// Active returns the most recently updated suspended run of a chat.
func (s *RunStore) Active(ctx context.Context, chatID string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT chat_id, status, state, error FROM runs
		WHERE chat_id = ? AND status = ?
		ORDER BY updated_at DESC LIMIT 1`, chatID, string(StatusSuspended))
	return scanRecord(row)
}

// ListStale returns the ids of suspended runs not updated since before.
func (s *RunStore) ListStale(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM runs WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		string(StatusSuspended), formatTime(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *RunStore) MarkStatus(ctx context.Context, id string, status Status, errMsg string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *RunStore) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var status, state string
	if err := row.Scan(&rec.ChatID, &status, &state, &rec.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	rec.Status = Status(status)

	var run workflow.Run
	if err := json.Unmarshal([]byte(state), &run); err != nil {
		return nil, fmt.Errorf("failed to decode stored run: %w", err)
	}
	rec.Run = &run
	return &rec, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
