// Package weaviate adapts a Weaviate class as the vector store. It is the
// alternate backend behind the same ports the qdrant adapter implements.
package weaviate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"askdocs/internal/indexing"
	"askdocs/internal/retrieval"
)

// ClassName is the Weaviate class holding chunk records.
const ClassName = "DocumentChunk"

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// EnsureSchema creates the chunk class if missing and backfills any missing
// properties on an existing class.
func (s *Store) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("check class: %w", err)
	}

	properties := []*models.Property{
		{Name: "chunkId", DataType: []string{"string"}},
		{Name: "documentId", DataType: []string{"string"}},
		{Name: "source", DataType: []string{"string"}},
		{Name: "url", DataType: []string{"string"}},
		{Name: "text", DataType: []string{"text"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "indexedAt", DataType: []string{"string"}},
	}

	if !exists {
		class := &models.Class{
			Class:       ClassName,
			Description: "A chunk of an indexed document",
			Vectorizer:  "none",
			Properties:  properties,
		}
		if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("create class: %w", err)
		}
		return nil
	}

	class, err := s.client.Schema().ClassGetter().WithClassName(ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("get class: %w", err)
	}
	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range properties {
		if !existing[p.Name] {
			err := s.client.Schema().PropertyCreator().
				WithClassName(ClassName).WithProperty(p).Do(ctx)
			if err != nil {
				return fmt.Errorf("add property %s: %w", p.Name, err)
			}
		}
	}
	return nil
}

// certaintyToScore maps Weaviate certainty, (1+cosine)/2, back to the raw
// cosine similarity the rest of the pipeline thresholds on.
func certaintyToScore(certainty float64) float32 {
	return float32(2*certainty - 1)
}

// objectID maps the deterministic chunk id onto a UUID so re-upserting the
// same chunk overwrites instead of duplicating.
func objectID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunkID)).String()
}

// Upsert writes each record with a PUT, which creates or fully replaces the
// object. A create-only POST would 422 on the second write of the same chunk
// id, and re-indexing after a partial outcome re-sends ids that are already
// stored.
func (s *Store) Upsert(ctx context.Context, records []indexing.VectorRecord) error {
	for _, r := range records {
		err := s.client.Data().Updater().
			WithClassName(ClassName).
			WithID(objectID(r.ID)).
			WithProperties(map[string]interface{}{
				"chunkId":    r.ID,
				"documentId": r.Payload.DocumentID,
				"source":     r.Payload.Source,
				"url":        r.Payload.URL,
				"text":       r.Payload.Text,
				"chunkIndex": r.Payload.ChunkIndex,
				"indexedAt":  r.Payload.IndexedAt,
			}).
			WithVector(r.Vector).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("store chunk %s: %w", r.ID, err)
		}
	}
	return nil
}

func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(ClassName).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Search runs a nearVector query. Weaviate reports certainty ((1+cosine)/2),
// which is mapped back to a cosine score so the configured threshold means the
// same cutoff here as on the qdrant backend; the threshold is applied
// client-side before the top-k results are returned.
func (s *Store) Search(ctx context.Context, vector []float32, opts retrieval.SearchOptions) ([]retrieval.RetrievedResult, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "source"},
		{Name: "url"},
		{Name: "documentId"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(ClassName).
		WithNearVector(nearVector).
		WithLimit(opts.TopK).
		WithFields(fields...)

	if opts.Source != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"source"}).
			WithOperator(filters.Equal).
			WithValueString(opts.Source))
	}

	res, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("near vector query: %w", err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var results []retrieval.RetrievedResult
	data, ok := res.Data["Get"].(map[string]interface{})
	if !ok {
		return results, nil
	}
	chunks, ok := data[ClassName].([]interface{})
	if !ok {
		return results, nil
	}

	for _, c := range chunks {
		props, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		result := retrieval.RetrievedResult{}
		if text, ok := props["text"].(string); ok {
			result.Text = text
		}
		if source, ok := props["source"].(string); ok {
			result.Source = source
		}
		if url, ok := props["url"].(string); ok {
			result.URL = url
		}
		if docID, ok := props["documentId"].(string); ok {
			result.DocumentID = docID
		}
		if idx, ok := props["chunkIndex"].(float64); ok {
			result.ChunkIndex = int(idx)
		}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			switch certainty := additional["certainty"].(type) {
			case float64:
				result.Score = certaintyToScore(certainty)
			case string:
				if f, err := strconv.ParseFloat(certainty, 32); err == nil {
					result.Score = certaintyToScore(f)
				}
			}
		}
		if result.Score < opts.Threshold {
			continue
		}
		results = append(results, result)
	}

	retrieval.SortResults(results)
	return results, nil
}

// Count returns the number of stored chunk objects via an aggregate query.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(ClassName).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregate query: %w", err)
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if classes, ok := data[ClassName].([]interface{}); ok && len(classes) > 0 {
			if entry, ok := classes[0].(map[string]interface{}); ok {
				if meta, ok := entry["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return uint64(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}
