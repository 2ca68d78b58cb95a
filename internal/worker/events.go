package worker

import "askdocs/internal/indexing"

// IndexTaskPayload is the NSQ message body for async indexing. The documents
// carry their full content, so the worker needs no callback to the API.
type IndexTaskPayload struct {
	Documents     []indexing.Document `json:"documents"`
	CorrelationID string              `json:"correlation_id,omitempty"`
}
