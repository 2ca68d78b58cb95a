// Package qdrant adapts a Qdrant collection as the vector store for indexing
// and retrieval.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"askdocs/internal/indexing"
	"askdocs/internal/retrieval"
)

type Store struct {
	client     *qdrant.Client
	collection string
}

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

func NewStore(cfg Config) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return &Store{client: client, collection: cfg.Collection}, nil
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist yet. Existing collections are left untouched.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	slog.InfoContext(ctx, "created vector collection", "collection", s.collection, "dimension", dimension)
	return nil
}

// pointID maps the deterministic chunk id onto a UUID, which is what Qdrant
// accepts as a point id. Same chunk id, same UUID, so upserts overwrite.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

func (s *Store) Upsert(ctx context.Context, records []indexing.VectorRecord) error {
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"chunk_id":    r.ID,
				"document_id": r.Payload.DocumentID,
				"source":      r.Payload.Source,
				"url":         r.Payload.URL,
				"text":        r.Payload.Text,
				"chunk_index": int64(r.Payload.ChunkIndex),
				"indexed_at":  r.Payload.IndexedAt,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

// Search runs a cosine similarity query. The threshold is applied server-side
// before the top-k cut; results come back deterministically ordered.
func (s *Store) Search(ctx context.Context, vector []float32, opts retrieval.SearchOptions) ([]retrieval.RetrievedResult, error) {
	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(opts.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if opts.Threshold > 0 {
		query.ScoreThreshold = qdrant.PtrOf(opts.Threshold)
	}
	if opts.Source != "" {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("source", opts.Source),
			},
		}
	}

	points, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	results := make([]retrieval.RetrievedResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, retrieval.RetrievedResult{
			Text:       payload["text"].GetStringValue(),
			Source:     payload["source"].GetStringValue(),
			URL:        payload["url"].GetStringValue(),
			DocumentID: payload["document_id"].GetStringValue(),
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
			Score:      p.GetScore(),
		})
	}
	retrieval.SortResults(results)
	return results, nil
}

// Count returns the exact number of stored chunk vectors.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return count, nil
}

func (s *Store) Close() error { return s.client.Close() }
