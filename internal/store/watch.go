package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/model"
)

// CreateWatchEntry adds a supplier to a user's watchlist. Duplicate
// (user, supplier) pairs are a no-op.
func (s *PostgresStore) CreateWatchEntry(ctx context.Context, e *model.WatchEntry) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO watch_entries (user_id, supplier_name, normalized_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, supplier_name) DO UPDATE SET normalized_name = EXCLUDED.normalized_name
		RETURNING id, created_at`,
		e.UserID, e.SupplierName, e.NormalizedName).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return eris.Wrapf(err, "postgres: create watch entry for %s", e.SupplierName)
	}
	return nil
}

// ListWatchEntries returns every watch entry. The matcher builds its index
// from the full set, so there is no per-user filter here.
func (s *PostgresStore) ListWatchEntries(ctx context.Context) ([]model.WatchEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, supplier_name, normalized_name, snapshot, created_at
		FROM watch_entries ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list watch entries")
	}
	return collectRows(rows, "watch entry", func(rows pgx.Rows) (model.WatchEntry, error) {
		var e model.WatchEntry
		var snapshot []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.SupplierName, &e.NormalizedName, &snapshot, &e.CreatedAt); err != nil {
			return e, err
		}
		if len(snapshot) > 0 {
			e.Snapshot = &model.WatchSnapshot{}
			if err := json.Unmarshal(snapshot, e.Snapshot); err != nil {
				return e, err
			}
		}
		return e, nil
	})
}

// UpdateWatchSnapshot replaces an entry's footprint snapshot.
func (s *PostgresStore) UpdateWatchSnapshot(ctx context.Context, entryID int64, snapshot *model.WatchSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal snapshot for watch entry %d", entryID)
	}
	if _, err := s.pool.Exec(ctx,
		"UPDATE watch_entries SET snapshot = $1 WHERE id = $2", data, entryID); err != nil {
		return eris.Wrapf(err, "postgres: update watch entry %d snapshot", entryID)
	}
	return nil
}

// InsertNotification appends a watchlist alert.
func (s *PostgresStore) InsertNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, body, supplier_name, contract_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, string(n.Type), n.Title, nilIfEmpty(n.Body), n.SupplierName, n.ContractID)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert notification %s", n.ID)
	}
	return nil
}

// RecentNotificationExists reports whether the same (user, supplier, title)
// alert was already raised since the given time.
func (s *PostgresStore) RecentNotificationExists(ctx context.Context, userID, supplierName, title string, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications
			WHERE user_id = $1 AND supplier_name = $2 AND title = $3 AND created_at >= $4
		)`, userID, supplierName, title, since).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: check recent notification")
	}
	return exists, nil
}

// ListNotifications returns a user's newest notifications.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, type, title, body, supplier_name, contract_id, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list notifications")
	}
	return collectRows(rows, "notification", func(rows pgx.Rows) (model.Notification, error) {
		var n model.Notification
		var body *string
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &body, &n.SupplierName,
			&n.ContractID, &n.Read, &n.CreatedAt)
		n.Body = deref(body)
		return n, err
	})
}
