// Package worker consumes async indexing tasks from NSQ.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"askdocs/internal/indexing"
	"askdocs/internal/middleware"
)

const indexTimeout = 10 * time.Minute

// Indexer is the indexing pipeline the consumer drives.
type Indexer interface {
	IndexDocuments(ctx context.Context, docs []indexing.Document) indexing.BatchOutcome
}

type IndexConsumer struct {
	indexer Indexer
}

func NewIndexConsumer(indexer Indexer) *IndexConsumer {
	return &IndexConsumer{indexer: indexer}
}

// HandleMessage processes one queued indexing batch. Malformed payloads are
// poison pills: they are logged and dropped, never retried. Outcomes are not
// errors — a failed document is reported in the batch outcome, and requeueing
// would re-run documents that already succeeded past the idempotence check
// only, so the message is always acked once the pipeline ran.
func (c *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IndexTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if len(payload.Documents) == 0 {
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	batch := c.indexer.IndexDocuments(ctx, payload.Documents)

	if batch.Failed > 0 {
		slog.WarnContext(ctx, "async indexing finished with failures",
			"total", batch.Total, "successful", batch.Successful, "failed", batch.Failed)
	} else {
		slog.InfoContext(ctx, "async indexing finished",
			"total", batch.Total, "total_chunks", batch.TotalChunks)
	}
	return nil
}
