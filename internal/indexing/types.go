package indexing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"askdocs/internal/embedding"
)

// Document is the unit of indexing. ID is derived from source and content, so
// re-submitting identical content maps to the same document and changed
// content produces a new version that supersedes the old chunks.
type Document struct {
	ID            string            `json:"document_id"`
	Source        string            `json:"source"`
	Content       string            `json:"content,omitempty"`
	URL           string            `json:"url,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ContentLength int               `json:"content_length"`
	ChunkCount    int               `json:"chunk_count"`
	IndexedAt     time.Time         `json:"indexed_at"`
}

// VectorRecord is what gets upserted into the vector store: a deterministic
// chunk id, its embedding, and the payload needed to build citations without
// a second lookup.
type VectorRecord struct {
	ID      string
	Vector  []float32
	Payload RecordPayload
}

type RecordPayload struct {
	DocumentID string
	Source     string
	URL        string
	Text       string
	ChunkIndex int
	IndexedAt  string
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// ChunkError records why one chunk was not indexed.
type ChunkError struct {
	ChunkIndex int    `json:"chunk_index"`
	Reason     string `json:"reason"`
}

// Outcome is the per-document indexing result. Failures are accumulated, not
// thrown: a partially indexed document reports every failed chunk alongside
// the count that made it in.
type Outcome struct {
	DocumentID    string       `json:"document_id,omitempty"`
	Source        string       `json:"source"`
	Status        Status       `json:"status"`
	ChunksIndexed int          `json:"chunks_indexed"`
	Errors        []ChunkError `json:"errors,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// BatchOutcome aggregates independent per-document outcomes. A document
// counts as successful only when every one of its chunks was indexed.
type BatchOutcome struct {
	Total       int       `json:"total"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	TotalChunks int       `json:"total_chunks"`
	Details     []Outcome `json:"details"`
}

// ErrDocumentNotFound is returned by document stores for unknown ids.
var ErrDocumentNotFound = errors.New("document not found")

// VectorStore is the vector database port used at index time. Upsert must be
// idempotent on record id; DeleteByDocument must remove every record of the
// document atomically so no stale citation survives.
type VectorStore interface {
	Upsert(ctx context.Context, records []VectorRecord) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// DocumentStore is the metadata registry port.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*Document, error)
	Save(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id string) error
}

// Embedder is the batching embedding client. Batch failures surface per
// BatchResult; only non-retryable failures surface as the error.
type Embedder interface {
	EmbedBatches(ctx context.Context, texts []string) ([]embedding.BatchResult, error)
}

// Recorder receives per-stage timing for observability. Implementations must
// never block or fail the pipeline.
type Recorder interface {
	RecordStage(runID, stage string, startedAt, endedAt time.Time, status string, attrs map[string]any)
}

// DocumentID derives the deterministic document id from source and content.
// Hashing the full content means any change, however deep in the document,
// yields a new id.
func DocumentID(source, content string) string {
	sum := sha256.Sum256([]byte(source + ":" + content))
	return hex.EncodeToString(sum[:])
}

// ChunkID derives the deterministic chunk id for a document chunk.
func ChunkID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, chunkIndex)
}
