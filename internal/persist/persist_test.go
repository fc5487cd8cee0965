package persist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/philippgille/chromem-go"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahul/quill/internal/store"
	"github.com/rahul/quill/internal/workflow"
	"github.com/rahul/quill/pkg/config"
)

const helloID = "5d41402abc4b2a76b9719d911017c592" // md5("hello")

type recordingBackend struct {
	name string
	err  error
	ids  []string
}

func (r *recordingBackend) Name() string { return r.name }

func (r *recordingBackend) Store(_ context.Context, id, _ string, _ map[string]any) error {
	r.ids = append(r.ids, id)
	return r.err
}

func TestFanoutNoBackendsIsSkipped(t *testing.T) {
	status, err := NewFanout(nil).Commit(t.Context(), helloID, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.CommitSkipped, status)
}

func TestFanoutOkIfAnyBackendStored(t *testing.T) {
	bad := &recordingBackend{name: "bad", err: errors.New("disk full")}
	good := &recordingBackend{name: "good"}

	status, err := NewFanout(nil, bad, good).Commit(t.Context(), helloID, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.CommitOK, status)
	assert.Equal(t, []string{helloID}, bad.ids)
	assert.Equal(t, []string{helloID}, good.ids)
}

func TestFanoutAllFailed(t *testing.T) {
	a := &recordingBackend{name: "a", err: errors.New("down")}
	b := &recordingBackend{name: "b", err: errors.New("gone")}

	status, err := NewFanout(nil, a, b).Commit(t.Context(), helloID, "hello", nil)
	require.Error(t, err)
	assert.Equal(t, workflow.CommitError, status)
	assert.Contains(t, err.Error(), "a: down")
	assert.Contains(t, err.Error(), "b: gone")
}

func TestSQLiteBackendUpserts(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	defer db.Close()
	contents := store.NewContentStore(db)

	b := NewSQLite(contents)
	require.NoError(t, b.Store(t.Context(), helloID, "hello", map[string]any{"title": "greeting"}))
	require.NoError(t, b.Store(t.Context(), helloID, "hello", map[string]any{"title": "greeting"}))

	n, err := contents.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMarkdownWritesFrontMatter(t *testing.T) {
	md, err := NewMarkdown(filepath.Join(t.TempDir(), "content"))
	require.NoError(t, err)

	meta := map[string]any{"title": "Go iterators", "steps_count": 2}
	require.NoError(t, md.Store(t.Context(), helloID, "# Heading\n\nBody", meta))

	gotMeta, body, err := ReadMarkdown(filepath.Join(md.Root, helloID+".md"))
	require.NoError(t, err)
	assert.Equal(t, "Go iterators", gotMeta["title"])
	assert.Equal(t, 2, gotMeta["steps_count"])
	assert.Equal(t, "# Heading\n\nBody\n", body)

	_, err = os.Stat(filepath.Join(md.Root, helloID+".md.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestMarkdownRejectsUnsafeIDs(t *testing.T) {
	md, err := NewMarkdown(t.TempDir())
	require.NoError(t, err)

	for _, id := range []string{"../escape", "ABC", "", helloID + "/x"} {
		assert.Error(t, md.Store(t.Context(), id, "x", nil), id)
	}
}

func fixedEmbedding(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("empty text")
	}
	return []float32{1, 0, 0}, nil
}

func TestChromemStoresDocument(t *testing.T) {
	c, err := NewChromem(chromem.NewDB(), "quill-content", fixedEmbedding)
	require.NoError(t, err)

	meta := map[string]any{"title": "t", "steps_count": 3}
	require.NoError(t, c.Store(t.Context(), helloID, "hello", meta))
	require.NoError(t, c.Store(t.Context(), helloID, "hello", meta))
	assert.Equal(t, 1, c.Count())

	res, err := c.collection.Query(t.Context(), "hello", 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, helloID, res[0].ID)
	assert.Equal(t, "3", res[0].Metadata["steps_count"])
}

type fakeQdrant struct {
	exists  bool
	created []*qdrant.CreateCollection
	upserts []*qdrant.UpsertPoints
}

func (f *fakeQdrant) CollectionExists(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.created = append(f.created, req)
	f.exists = true
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func TestQdrantUpsertsPointOnce(t *testing.T) {
	client := &fakeQdrant{}
	q := NewQdrant(client, fakeEmbedder{}, "quill-content", 3)

	meta := map[string]any{"title": "t", "steps_count": 2}
	require.NoError(t, q.Store(t.Context(), helloID, "hello", meta))
	require.NoError(t, q.Store(t.Context(), helloID, "hello", meta))

	require.Len(t, client.created, 1)
	assert.Equal(t, uint64(3), client.created[0].GetVectorsConfig().GetParams().GetSize())

	require.Len(t, client.upserts, 2)
	point := client.upserts[0].Points[0]
	assert.Equal(t, "5d41402a-bc4b-2a76-b971-9d911017c592", point.GetId().GetUuid())
	assert.Equal(t, client.upserts[0].Points[0].GetId().GetUuid(), client.upserts[1].Points[0].GetId().GetUuid())
	assert.Equal(t, int64(2), point.GetPayload()["steps_count"].GetIntegerValue())
	assert.Equal(t, "hello", point.GetPayload()["content"].GetStringValue())
}

func TestPointIDRejectsBadIDs(t *testing.T) {
	_, err := PointID("not-hex")
	assert.Error(t, err)
	_, err = PointID("abcd")
	assert.Error(t, err)
}

func TestBuildSkipsUnavailableBackends(t *testing.T) {
	dir := t.TempDir()
	f, closer := Build(config.PersistenceConfig{
		Backends: []string{"sqlite", "markdown", "chromem", "qdrant", "pinecone", "none"},
		Markdown: config.MarkdownConfig{Dir: filepath.Join(dir, "md")},
	}, Deps{})
	defer closer()

	// no database and no embedder: only markdown survives
	assert.Equal(t, []string{"markdown"}, f.Names())
}
