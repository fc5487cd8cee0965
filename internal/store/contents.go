package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrContentNotFound is returned by Get for an unknown content id.
var ErrContentNotFound = errors.New("content not found")

// Content is committed final content.
type Content struct {
	ID        string
	Content   string
	Metadata  map[string]any
	UpdatedAt time.Time
}

// ContentStore keeps committed content keyed by content id.
type ContentStore struct {
	DB *sql.DB
}

func NewContentStore(db *sql.DB) *ContentStore {
	return &ContentStore{DB: db}
}

// Upsert stores content under id, replacing any previous version.
func (s *ContentStore) Upsert(ctx context.Context, id, content string, meta map[string]any) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO contents (id, content, metadata, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		id, content, string(data), formatTime(time.Now()))
	return err
}

func (s *ContentStore) Get(ctx context.Context, id string) (*Content, error) {
	var c Content
	var meta, updated string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, content, metadata, updated_at FROM contents WHERE id = ?`, id).
		Scan(&c.ID, &c.Content, &meta, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrContentNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

func (s *ContentStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM contents`).Scan(&n)
	return n, err
}
