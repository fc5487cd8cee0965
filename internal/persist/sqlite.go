package persist

import (
	"context"

	"github.com/rahul/quill/internal/store"
)

// SQLite upserts content into the contents table.
type SQLite struct {
	contents *store.ContentStore
}

func NewSQLite(contents *store.ContentStore) *SQLite {
	return &SQLite{contents: contents}
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Store(ctx context.Context, contentID, content string, meta map[string]any) error {
	return s.contents.Upsert(ctx, contentID, content, meta)
}
