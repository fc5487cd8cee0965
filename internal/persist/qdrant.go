package persist

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/rahul/quill/pkg/config"
)

// QdrantPoints is the part of the qdrant client used here.
type QdrantPoints interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
}

// Qdrant upserts content as a point whose id is derived from the content id.
type Qdrant struct {
	client     QdrantPoints
	embedder   embeddings.Embedder
	collection string
	vectorSize int

	mu    sync.Mutex
	ready bool
}

func NewQdrant(client QdrantPoints, embedder embeddings.Embedder, collection string, vectorSize int) *Qdrant {
	return &Qdrant{
		client:     client,
		embedder:   embedder,
		collection: collection,
		vectorSize: vectorSize,
	}
}

// DialQdrant connects to the configured Qdrant gRPC endpoint.
func DialQdrant(cfg config.QdrantConfig) (*qdrant.Client, error) {
	return qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
}

func (q *Qdrant) Name() string { return "qdrant" }

func (q *Qdrant) Store(ctx context.Context, contentID, content string, meta map[string]any) error {
	pointID, err := PointID(contentID)
	if err != nil {
		return err
	}
	if err := q.ensureCollection(ctx); err != nil {
		return err
	}

	vector, err := q.embedder.EmbedQuery(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding content: %w", err)
	}

	payload := make(map[string]*qdrant.Value, len(meta)+2)
	payload["content"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: content}}
	payload["content_id"] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: contentID}}
	for k, v := range meta {
		payload[k] = payloadValue(v)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("upserting point to collection %s: %w", q.collection, err)
	}
	return nil
}

func (q *Qdrant) ensureCollection(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", q.collection, err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(q.vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", q.collection, err)
		}
	}
	q.ready = true
	return nil
}

// PointID maps a hex MD5 content id onto the UUID with the same bytes.
func PointID(contentID string) (string, error) {
	raw, err := hex.DecodeString(contentID)
	if err != nil {
		return "", fmt.Errorf("invalid content id %q: %w", contentID, err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return "", fmt.Errorf("invalid content id %q: %w", contentID, err)
	}
	return id.String(), nil
}

func payloadValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprint(val)}}
	}
}
