package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/db"
	"github.com/tenderscope/intel-cli/internal/model"
)

// UpsertSignals writes extracted signals keyed on
// (buyer_id, board_document_id, signal_type, title). Re-extracting a
// document refreshes its signals in place.
func (s *PostgresStore) UpsertSignals(ctx context.Context, signals []model.Signal) (int64, error) {
	rows := make([][]any, 0, len(signals))
	for i := range signals {
		sig := &signals[i]
		entities, err := json.Marshal(sig.Entities)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal signal %q entities", sig.Title)
		}
		rows = append(rows, []any{
			sig.BuyerID, sig.BoardDocumentID, string(sig.SignalType), sig.Title,
			sig.Insight, sig.Confidence, nilIfEmpty(sig.Quote), entities,
			nilIfEmpty(sig.SourceURL), sig.SourceDate,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "signals",
		Columns: []string{"buyer_id", "board_document_id", "signal_type", "title",
			"insight", "confidence", "quote", "entities", "source_url", "source_date"},
		ConflictKeys: []string{"buyer_id", "board_document_id", "signal_type", "title"},
		UpdateCols:   []string{"insight", "confidence", "quote", "entities", "source_url", "source_date", "updated_at"},
		UpdateExprs:  map[string]string{"updated_at": "now()"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert signals")
	}
	return n, nil
}

// ListSignalBuyers returns buyer ids with at least one stored signal, in id
// order, starting after afterID. The (afterID, limit) pair is the dedup
// stage's resume cursor.
func (s *PostgresStore) ListSignalBuyers(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT buyer_id FROM signals WHERE buyer_id > $1 ORDER BY buyer_id LIMIT $2",
		afterID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list signal buyers")
	}
	return collectRows(rows, "signal buyer id", func(rows pgx.Rows) (int64, error) {
		var id int64
		err := rows.Scan(&id)
		return id, err
	})
}

// ListSignalsByType returns one buyer's signals of a type, newest source
// date first, for windowed dedup.
func (s *PostgresStore) ListSignalsByType(ctx context.Context, buyerID int64, signalType model.SignalType) ([]model.Signal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, buyer_id, board_document_id, signal_type, title, insight,
			confidence, quote, entities, source_url, source_date, created_at, updated_at
		FROM signals
		WHERE buyer_id = $1 AND signal_type = $2
		ORDER BY source_date DESC NULLS LAST, id DESC`,
		buyerID, string(signalType))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s signals for buyer %d", signalType, buyerID)
	}
	return collectRows(rows, "signal", scanSignal)
}

func scanSignal(rows pgx.Rows) (model.Signal, error) {
	var sig model.Signal
	var quote, sourceURL *string
	var entities []byte
	err := rows.Scan(&sig.ID, &sig.BuyerID, &sig.BoardDocumentID, &sig.SignalType,
		&sig.Title, &sig.Insight, &sig.Confidence, &quote, &entities,
		&sourceURL, &sig.SourceDate, &sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		return sig, err
	}
	sig.Quote = deref(quote)
	sig.SourceURL = deref(sourceURL)
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &sig.Entities); err != nil {
			return sig, err
		}
	}
	return sig, nil
}

// DeleteSignals removes duplicate signals by id.
func (s *PostgresStore) DeleteSignals(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, "DELETE FROM signals WHERE id = ANY($1)", ids)
	if err != nil {
		return eris.Wrap(err, "postgres: delete signals")
	}
	return nil
}
