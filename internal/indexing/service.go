package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"askdocs/internal/text"
)

// Config carries the chunking and content limits the orchestrator applies to
// every document. Validation happens at startup; the orchestrator still
// surfaces chunker config errors as failed outcomes rather than panicking.
type Config struct {
	ChunkSize        int
	ChunkOverlap     int
	MaxContentLength int
}

// Service composes chunking, embedding, vector upsert, and metadata
// persistence into one transaction-like unit per document, with partial
// failure accounting along the way.
type Service struct {
	cfg     Config
	embed   Embedder
	vectors VectorStore
	docs    DocumentStore
	trace   Recorder
}

func NewService(cfg Config, embed Embedder, vectors VectorStore, docs DocumentStore, trace Recorder) *Service {
	return &Service{cfg: cfg, embed: embed, vectors: vectors, docs: docs, trace: trace}
}

// IndexDocument runs the full pipeline for one document:
// received → chunked → embedding → upserting → {complete|partial|failed}.
// Re-indexing unchanged content is a no-op reported as success with zero new
// chunks. Embedding failures are batch-scoped; a metadata write failure after
// vectors landed degrades the outcome to partial rather than rolling back.
func (s *Service) IndexDocument(ctx context.Context, doc Document) Outcome {
	runID := uuid.NewString()

	content := text.Normalize(doc.Content)
	if content == "" {
		return Outcome{Source: doc.Source, Status: StatusFailed, Message: "empty document content"}
	}
	if s.cfg.MaxContentLength > 0 && len([]rune(content)) > s.cfg.MaxContentLength {
		slog.WarnContext(ctx, "document content truncated",
			"source", doc.Source, "length", len([]rune(content)), "max", s.cfg.MaxContentLength)
		content = text.Truncate(content, s.cfg.MaxContentLength)
	}

	documentID := DocumentID(doc.Source, content)
	out := Outcome{DocumentID: documentID, Source: doc.Source}

	// Idempotence: the id hashes the full content, so a registry hit means
	// this exact content is already indexed.
	if existing, err := s.docs.Get(ctx, documentID); err == nil && existing != nil {
		out.Status = StatusSuccess
		out.Message = "document unchanged, already indexed"
		return out
	} else if err != nil && !errors.Is(err, ErrDocumentNotFound) {
		slog.WarnContext(ctx, "document lookup failed, indexing anyway",
			"document_id", documentID, "error", err)
	}

	chunkStart := time.Now()
	chunks, err := text.Split(content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	s.record(runID, "chunk", chunkStart, err, map[string]any{"chunks": len(chunks)})
	if err != nil {
		out.Status = StatusFailed
		out.Message = err.Error()
		return out
	}
	if len(chunks) == 0 {
		out.Status = StatusFailed
		out.Message = "no chunks generated"
		return out
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embedStart := time.Now()
	batches, embedErr := s.embed.EmbedBatches(ctx, texts)
	s.record(runID, "embed", embedStart, embedErr, map[string]any{"batches": len(batches)})

	indexedAt := time.Now().UTC()
	upsertStart := time.Now()
	var upsertErr error
	for _, batch := range batches {
		if batch.Err != nil {
			for i := batch.Start; i < batch.End; i++ {
				out.Errors = append(out.Errors, ChunkError{ChunkIndex: i, Reason: batch.Err.Error()})
			}
			continue
		}
		if batch.Vectors == nil {
			// Batch never ran because a non-retryable error aborted the fan-out.
			for i := batch.Start; i < batch.End; i++ {
				out.Errors = append(out.Errors, ChunkError{ChunkIndex: i, Reason: "aborted"})
			}
			continue
		}

		records := make([]VectorRecord, 0, batch.End-batch.Start)
		for i := batch.Start; i < batch.End; i++ {
			records = append(records, VectorRecord{
				ID:     ChunkID(documentID, i),
				Vector: batch.Vectors[i-batch.Start],
				Payload: RecordPayload{
					DocumentID: documentID,
					Source:     doc.Source,
					URL:        doc.URL,
					Text:       chunks[i].Text,
					ChunkIndex: i,
					IndexedAt:  indexedAt.Format(time.RFC3339),
				},
			})
		}

		if err := s.vectors.Upsert(ctx, records); err != nil {
			upsertErr = err
			slog.ErrorContext(ctx, "vector upsert failed",
				"document_id", documentID, "start", batch.Start, "end", batch.End, "error", err)
			for i := batch.Start; i < batch.End; i++ {
				out.Errors = append(out.Errors, ChunkError{ChunkIndex: i, Reason: fmt.Sprintf("vector store: %v", err)})
			}
			continue
		}
		out.ChunksIndexed += batch.End - batch.Start
	}
	s.record(runID, "upsert", upsertStart, upsertErr, map[string]any{"chunks_indexed": out.ChunksIndexed})

	if embedErr != nil {
		out.Status = StatusFailed
		out.Message = embedErr.Error()
		return out
	}
	if out.ChunksIndexed == 0 {
		out.Status = StatusFailed
		out.Message = "no chunks indexed"
		return out
	}

	persistStart := time.Now()
	saveErr := s.docs.Save(ctx, &Document{
		ID:            documentID,
		Source:        doc.Source,
		URL:           doc.URL,
		Metadata:      doc.Metadata,
		ContentLength: len([]rune(content)),
		ChunkCount:    len(chunks),
		IndexedAt:     indexedAt,
	})
	s.record(runID, "persist", persistStart, saveErr, nil)

	switch {
	case saveErr != nil:
		// Vectors landed but the registry write failed. Not rolled back: a
		// future re-index of the same content reconciles the registry.
		slog.ErrorContext(ctx, "metadata write failed after vector upsert",
			"document_id", documentID, "error", saveErr)
		out.Status = StatusPartial
		out.Message = fmt.Sprintf("indexed %d chunks, metadata write failed: %v", out.ChunksIndexed, saveErr)
	case len(out.Errors) > 0:
		out.Status = StatusPartial
		out.Message = fmt.Sprintf("indexed %d of %d chunks", out.ChunksIndexed, len(chunks))
	default:
		out.Status = StatusSuccess
		out.Message = fmt.Sprintf("successfully indexed %d chunks", out.ChunksIndexed)
	}
	return out
}

// IndexDocuments processes each document independently and aggregates the
// outcomes; one document's failure never blocks the others.
func (s *Service) IndexDocuments(ctx context.Context, docs []Document) BatchOutcome {
	batch := BatchOutcome{Total: len(docs), Details: make([]Outcome, 0, len(docs))}

	for _, doc := range docs {
		out := s.IndexDocument(ctx, doc)
		batch.Details = append(batch.Details, out)
		batch.TotalChunks += out.ChunksIndexed
		if out.Status == StatusSuccess {
			batch.Successful++
		} else {
			batch.Failed++
		}
	}

	slog.InfoContext(ctx, "batch indexing complete",
		"total", batch.Total, "successful", batch.Successful,
		"failed", batch.Failed, "total_chunks", batch.TotalChunks)
	return batch
}

// DeleteDocument removes the document's vector records first, then its
// registry entry, so a half-applied delete can never leave citations pointing
// at a document the registry still claims to have.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.vectors.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete vector records: %w", err)
	}
	if err := s.docs.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	return nil
}

func (s *Service) record(runID, stage string, startedAt time.Time, err error, attrs map[string]any) {
	if s.trace == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		if attrs == nil {
			attrs = map[string]any{}
		}
		attrs["error"] = err.Error()
	}
	s.trace.RecordStage(runID, stage, startedAt, time.Now(), status, attrs)
}
