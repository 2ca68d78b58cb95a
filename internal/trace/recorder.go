// Package trace records per-stage pipeline timing as JSON lines. Records are
// observability output only: a recorder never fails or blocks the pipeline
// that feeds it.
package trace

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StageRecord is one timed pipeline stage within a run. RunID groups the
// stages of a single indexing or retrieval operation.
type StageRecord struct {
	RunID      string         `json:"run_id"`
	Stage      string         `json:"stage"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	DurationMs int64          `json:"duration_ms"`
	Status     string         `json:"status"`
	Attrs      map[string]any `json:"attrs,omitempty"`
}

type Recorder struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{writer: w}
}

// NewFileRecorder appends records to path, mirroring them to stdout.
func NewFileRecorder(path string) (*Recorder, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	cleanPath := filepath.Clean(path)
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	return NewRecorder(io.MultiWriter(os.Stdout, f)), nil
}

// RecordStage writes one stage record. A nil recorder or encode failure is
// logged and swallowed.
func (r *Recorder) RecordStage(runID, stage string, startedAt, endedAt time.Time, status string, attrs map[string]any) {
	if r == nil || r.writer == nil {
		return
	}

	record := StageRecord{
		RunID:      runID,
		Stage:      stage,
		StartedAt:  startedAt.UTC(),
		EndedAt:    endedAt.UTC(),
		DurationMs: endedAt.Sub(startedAt).Milliseconds(),
		Status:     status,
		Attrs:      attrs,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := json.NewEncoder(r.writer).Encode(record); err != nil {
		slog.Error("failed to write trace record", "error", err)
	}
}
