package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/model"
)

// RecentUnprocessedDocuments returns the newest extracted-but-unscanned
// governance documents for a buyer, capped at limit.
func (s *PostgresStore) RecentUnprocessedDocuments(ctx context.Context, buyerID int64, limit int) ([]model.BoardDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, buyer_id, title, committee, meeting_date, source_url,
			text_content, extraction_status, signal_status, created_at, updated_at
		FROM board_documents
		WHERE buyer_id = $1 AND extraction_status = 'extracted' AND signal_status = 'pending'
		ORDER BY meeting_date DESC NULLS LAST, id DESC
		LIMIT $2`, buyerID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list documents for buyer %d", buyerID)
	}
	return collectRows(rows, "board document", func(rows pgx.Rows) (model.BoardDocument, error) {
		var d model.BoardDocument
		var committee, textContent *string
		err := rows.Scan(&d.ID, &d.BuyerID, &d.Title, &committee, &d.MeetingDate,
			&d.SourceURL, &textContent, &d.ExtractionStatus, &d.SignalStatus,
			&d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return d, err
		}
		d.Committee = deref(committee)
		d.TextContent = deref(textContent)
		return d, nil
	})
}

// ListBuyersWithPendingDocuments returns buyer ids that have extracted
// documents awaiting signal scanning, in id order for a stable walk.
func (s *PostgresStore) ListBuyersWithPendingDocuments(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT buyer_id FROM board_documents
		WHERE extraction_status = 'extracted' AND signal_status = 'pending'
		ORDER BY buyer_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buyers with pending documents")
	}
	return collectRows(rows, "pending buyer id", func(rows pgx.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	})
}

// SetDocumentSignalStatus flips a document's signal scanning status.
func (s *PostgresStore) SetDocumentSignalStatus(ctx context.Context, docID int64, status model.ExtractionStatus) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE board_documents SET signal_status = $1, updated_at = now() WHERE id = $2",
		string(status), docID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set document %d signal status", docID)
	}
	return nil
}
