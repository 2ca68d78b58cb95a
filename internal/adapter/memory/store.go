// Package memory is an in-process vector store used in tests and local runs
// without a vector database. Cosine scoring over a map, guarded by a mutex.
package memory

import (
	"context"
	"math"
	"sync"

	"askdocs/internal/indexing"
	"askdocs/internal/retrieval"
)

type Store struct {
	mu      sync.RWMutex
	records map[string]indexing.VectorRecord
}

func NewStore() *Store {
	return &Store{records: make(map[string]indexing.VectorRecord)}
}

func (s *Store) Upsert(_ context.Context, records []indexing.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}
	return nil
}

func (s *Store) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.Payload.DocumentID == documentID {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *Store) Search(_ context.Context, vector []float32, opts retrieval.SearchOptions) ([]retrieval.RetrievedResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []retrieval.RetrievedResult
	for _, r := range s.records {
		if opts.Source != "" && r.Payload.Source != opts.Source {
			continue
		}
		score := cosine(vector, r.Vector)
		if score < opts.Threshold {
			continue
		}
		results = append(results, retrieval.RetrievedResult{
			Text:       r.Payload.Text,
			Source:     r.Payload.Source,
			URL:        r.Payload.URL,
			DocumentID: r.Payload.DocumentID,
			ChunkIndex: r.Payload.ChunkIndex,
			Score:      score,
		})
	}

	retrieval.SortResults(results)
	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

func (s *Store) Count(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records)), nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
