// Package ledger persists per-stage pipeline progress. The ledger entry is
// the crash-safety primitive: every stage checkpoints its cursor and
// counters here after each committed batch.
package ledger

import (
	"context"
	"time"
)

// Status is the lifecycle state of a ledger entry.
type Status string

const (
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// MaxErrorLog bounds the per-entry error log; oldest messages drop first.
const MaxErrorLog = 100

// Entry is the persisted state of one (pipeline, stage) pair. Cursor is nil
// iff the stage has never started or has completed and been recycled.
type Entry struct {
	ID             int64      `json:"id"`
	Pipeline       string     `json:"pipeline"`
	Stage          string     `json:"stage"`
	Status         Status     `json:"status"`
	Cursor         *string    `json:"cursor,omitempty"`
	BatchSize      int        `json:"batch_size"`
	TotalProcessed int64      `json:"total_processed"`
	TotalErrors    int64      `json:"total_errors"`
	ErrorLog       []string   `json:"error_log,omitempty"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Progress is one batch's worth of forward movement.
type Progress struct {
	Cursor    *string
	Processed int64
	Errors    int64
	Messages  []string
}

// Store persists ledger entries.
type Store interface {
	// GetOrCreate loads the entry for (pipeline, stage), creating it in
	// running status on first visit.
	GetOrCreate(ctx context.Context, pipeline, stage string, batchSize int) (*Entry, error)

	// SaveProgress applies a batch's progress to the entry and persists it.
	// Must be called only after the batch's side effects are durable.
	SaveProgress(ctx context.Context, e *Entry, p Progress) error

	// MarkComplete transitions the entry to complete, clears the cursor and
	// stamps LastSyncedAt for incremental re-runs.
	MarkComplete(ctx context.Context, e *Entry) error

	// MarkError transitions the entry to error, recording the message. The
	// saved cursor is untouched so the next run resumes where it stopped.
	MarkError(ctx context.Context, e *Entry, msg string) error

	// Recycle resets every complete entry of the pipeline back to running
	// with a nil cursor, preserving LastSyncedAt, so the pipeline re-runs
	// incrementally from its last completion.
	Recycle(ctx context.Context, pipeline string) error

	// List returns entries, optionally filtered by pipeline.
	List(ctx context.Context, pipeline string) ([]Entry, error)
}

// appendCapped appends messages to the log, keeping only the newest
// MaxErrorLog entries.
func appendCapped(log []string, msgs []string) []string {
	log = append(log, msgs...)
	if len(log) > MaxErrorLog {
		log = log[len(log)-MaxErrorLog:]
	}
	return log
}

// apply folds a progress update into the in-memory entry.
func (e *Entry) apply(p Progress) {
	e.Cursor = p.Cursor
	e.TotalProcessed += p.Processed
	e.TotalErrors += p.Errors
	e.ErrorLog = appendCapped(e.ErrorLog, p.Messages)
	e.Status = StatusRunning
	e.UpdatedAt = time.Now()
}
