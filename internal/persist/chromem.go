package persist

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
)

// Chromem stores content as documents of an embedded chromem-go collection.
type Chromem struct {
	collection *chromem.Collection
}

// EmbeddingFunc adapts a langchaingo embedder to chromem.
func EmbeddingFunc(e embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedQuery(ctx, text)
	}
}

// NewChromem opens the collection in db, creating it if needed.
func NewChromem(db *chromem.DB, collection string, embed chromem.EmbeddingFunc) (*Chromem, error) {
	c, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}
	return &Chromem{collection: c}, nil
}

// OpenChromemDB opens a persistent database at path, or an in-memory one
// when path is empty.
func OpenChromemDB(path string, compress bool) (*chromem.DB, error) {
	if path == "" {
		return chromem.NewDB(), nil
	}
	return chromem.NewPersistentDB(path, compress)
}

func (c *Chromem) Name() string { return "chromem" }

func (c *Chromem) Store(ctx context.Context, contentID, content string, meta map[string]any) error {
	doc := chromem.Document{
		ID:       contentID,
		Content:  content,
		Metadata: stringMetadata(meta),
	}
	if err := c.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("adding document: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (c *Chromem) Count() int {
	return c.collection.Count()
}

func stringMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}
