package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/db"
)

// PostgresStore persists ledger entries in the pipeline_jobs table.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a ledger store backed by Postgres.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const entryColumns = `id, pipeline, stage, status, cursor, batch_size,
	total_processed, total_errors, error_log, last_synced_at, created_at, updated_at`

// GetOrCreate implements Store. The no-op DO UPDATE makes RETURNING yield
// the existing row on conflict, keeping this a single race-free round trip.
func (s *PostgresStore) GetOrCreate(ctx context.Context, pipeline, stage string, batchSize int) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO pipeline_jobs (pipeline, stage, status, batch_size, error_log)
		VALUES ($1, $2, $3, $4, '[]'::jsonb)
		ON CONFLICT (pipeline, stage) DO UPDATE SET pipeline = EXCLUDED.pipeline
		RETURNING `+entryColumns,
		pipeline, stage, string(StatusRunning), batchSize)

	e, err := scanEntry(row)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: get or create %s/%s", pipeline, stage)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var errorLog []byte
	if err := row.Scan(&e.ID, &e.Pipeline, &e.Stage, &e.Status, &e.Cursor,
		&e.BatchSize, &e.TotalProcessed, &e.TotalErrors, &errorLog,
		&e.LastSyncedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if len(errorLog) > 0 {
		if err := json.Unmarshal(errorLog, &e.ErrorLog); err != nil {
			return nil, eris.Wrap(err, "decode error log")
		}
	}
	return &e, nil
}

// SaveProgress implements Store.
func (s *PostgresStore) SaveProgress(ctx context.Context, e *Entry, p Progress) error {
	e.apply(p)
	logJSON, err := json.Marshal(e.ErrorLog)
	if err != nil {
		return eris.Wrap(err, "ledger: encode error log")
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, cursor = $2, total_processed = $3, total_errors = $4,
		    error_log = $5, updated_at = now()
		WHERE id = $6`,
		string(e.Status), e.Cursor, e.TotalProcessed, e.TotalErrors, logJSON, e.ID)
	if err != nil {
		return eris.Wrapf(err, "ledger: save progress %s/%s", e.Pipeline, e.Stage)
	}
	return nil
}

// MarkComplete implements Store.
func (s *PostgresStore) MarkComplete(ctx context.Context, e *Entry) error {
	now := time.Now()
	e.Status = StatusComplete
	e.Cursor = nil
	e.LastSyncedAt = &now
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, cursor = NULL, last_synced_at = $2, updated_at = now()
		WHERE id = $3`,
		string(StatusComplete), now, e.ID)
	if err != nil {
		return eris.Wrapf(err, "ledger: mark complete %s/%s", e.Pipeline, e.Stage)
	}
	return nil
}

// MarkError implements Store.
func (s *PostgresStore) MarkError(ctx context.Context, e *Entry, msg string) error {
	e.Status = StatusError
	e.ErrorLog = appendCapped(e.ErrorLog, []string{msg})
	logJSON, err := json.Marshal(e.ErrorLog)
	if err != nil {
		return eris.Wrap(err, "ledger: encode error log")
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, error_log = $2, updated_at = now()
		WHERE id = $3`,
		string(StatusError), logJSON, e.ID)
	if err != nil {
		return eris.Wrapf(err, "ledger: mark error %s/%s", e.Pipeline, e.Stage)
	}
	return nil
}

// Recycle implements Store.
func (s *PostgresStore) Recycle(ctx context.Context, pipeline string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pipeline_jobs
		SET status = $1, cursor = NULL, updated_at = now()
		WHERE pipeline = $2 AND status = $3`,
		string(StatusRunning), pipeline, string(StatusComplete))
	if err != nil {
		return eris.Wrapf(err, "ledger: recycle %s", pipeline)
	}
	return nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, pipeline string) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM pipeline_jobs`
	var args []any
	if pipeline != "" {
		query += ` WHERE pipeline = $1`
		args = append(args, pipeline)
	}
	query += ` ORDER BY pipeline, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "ledger: scan entry")
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "ledger: iterate entries")
	}
	return entries, nil
}
