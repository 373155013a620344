package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a file-backed ledger for local and dev runs, where standing
// up Postgres for a handful of job rows is overkill.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pipeline_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline TEXT NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	cursor TEXT,
	batch_size INTEGER NOT NULL DEFAULT 0,
	total_processed INTEGER NOT NULL DEFAULT 0,
	total_errors INTEGER NOT NULL DEFAULT 0,
	error_log TEXT NOT NULL DEFAULT '[]',
	last_synced_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (pipeline, stage)
);`

// NewSQLiteStore opens (creating if needed) a SQLite ledger at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open sqlite")
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "ledger: init sqlite schema")
	}
	return &SQLiteStore{db: conn}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteEntryColumns = `id, pipeline, stage, status, cursor, batch_size,
	total_processed, total_errors, error_log, last_synced_at, created_at, updated_at`

func scanSQLiteEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var cursor sql.NullString
	var errorLog string
	var lastSynced sql.NullTime
	if err := row.Scan(&e.ID, &e.Pipeline, &e.Stage, &e.Status, &cursor,
		&e.BatchSize, &e.TotalProcessed, &e.TotalErrors, &errorLog,
		&lastSynced, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if cursor.Valid {
		e.Cursor = &cursor.String
	}
	if lastSynced.Valid {
		e.LastSyncedAt = &lastSynced.Time
	}
	if errorLog != "" {
		if err := json.Unmarshal([]byte(errorLog), &e.ErrorLog); err != nil {
			return nil, eris.Wrap(err, "decode error log")
		}
	}
	return &e, nil
}

// GetOrCreate implements Store.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, pipeline, stage string, batchSize int) (*Entry, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_jobs (pipeline, stage, status, batch_size)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (pipeline, stage) DO NOTHING`,
		pipeline, stage, string(StatusRunning), batchSize)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: create %s/%s", pipeline, stage)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteEntryColumns+` FROM pipeline_jobs
		WHERE pipeline = ? AND stage = ?`,
		pipeline, stage)
	e, err := scanSQLiteEntry(row)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: get %s/%s", pipeline, stage)
	}
	return e, nil
}

// SaveProgress implements Store.
func (s *SQLiteStore) SaveProgress(ctx context.Context, e *Entry, p Progress) error {
	e.apply(p)
	logJSON, err := json.Marshal(e.ErrorLog)
	if err != nil {
		return eris.Wrap(err, "ledger: encode error log")
	}
	var cursor any
	if e.Cursor != nil {
		cursor = *e.Cursor
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = ?, cursor = ?, total_processed = ?, total_errors = ?,
		    error_log = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(e.Status), cursor, e.TotalProcessed, e.TotalErrors, string(logJSON), e.ID)
	if err != nil {
		return eris.Wrapf(err, "ledger: save progress %s/%s", e.Pipeline, e.Stage)
	}
	return nil
}

// MarkComplete implements Store.
func (s *SQLiteStore) MarkComplete(ctx context.Context, e *Entry) error {
	now := time.Now()
	e.Status = StatusComplete
	e.Cursor = nil
	e.LastSyncedAt = &now
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = ?, cursor = NULL, last_synced_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(StatusComplete), now, e.ID)
	if err != nil {
		return eris.Wrapf(err, "ledger: mark complete %s/%s", e.Pipeline, e.Stage)
	}
	return nil
}

// MarkError implements Store.
func (s *SQLiteStore) MarkError(ctx context.Context, e *Entry, msg string) error {
	e.Status = StatusError
	e.ErrorLog = appendCapped(e.ErrorLog, []string{msg})
	logJSON, err := json.Marshal(e.ErrorLog)
	if err != nil {
		return eris.Wrap(err, "ledger: encode error log")
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = ?, error_log = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(StatusError), string(logJSON), e.ID)
	if err != nil {
		return eris.Wrapf(err, "ledger: mark error %s/%s", e.Pipeline, e.Stage)
	}
	return nil
}

// Recycle implements Store.
func (s *SQLiteStore) Recycle(ctx context.Context, pipeline string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_jobs
		SET status = ?, cursor = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE pipeline = ? AND status = ?`,
		string(StatusRunning), pipeline, string(StatusComplete))
	if err != nil {
		return eris.Wrapf(err, "ledger: recycle %s", pipeline)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, pipeline string) ([]Entry, error) {
	query := `SELECT ` + sqliteEntryColumns + ` FROM pipeline_jobs`
	var args []any
	if pipeline != "" {
		query += ` WHERE pipeline = ?`
		args = append(args, pipeline)
	}
	query += ` ORDER BY pipeline, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: list")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
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
