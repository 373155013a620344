package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/db"
	"github.com/tenderscope/intel-cli/internal/model"
)

// UpsertDataSources imports registry entries keyed on name. Re-import
// refreshes the governance fields.
func (s *PostgresStore) UpsertDataSources(ctx context.Context, sources []model.DataSource) (int64, error) {
	rows := make([][]any, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, []any{
			src.Name, src.OrgType,
			nilIfEmpty(src.GovernanceURL), nilIfEmpty(src.Platform),
			nilIfEmpty(src.BoardPapersURL), nilIfEmpty(src.Website),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "data_sources",
		Columns:      []string{"name", "org_type", "governance_url", "platform", "board_papers_url", "website"},
		ConflictKeys: []string{"name"},
		UpdateCols:   []string{"org_type", "governance_url", "platform", "board_papers_url", "website", "updated_at"},
		UpdateExprs:  map[string]string{"updated_at": "now()"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert data sources")
	}
	return n, nil
}

// ListDataSources returns the full registry for in-memory fuzzy matching.
func (s *PostgresStore) ListDataSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, org_type, governance_url, platform, board_papers_url, website
		FROM data_sources ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list data sources")
	}
	return collectRows(rows, "data source", func(rows pgx.Rows) (model.DataSource, error) {
		var d model.DataSource
		var governanceURL, platform, boardPapersURL, website *string
		err := rows.Scan(&d.ID, &d.Name, &d.OrgType, &governanceURL, &platform, &boardPapersURL, &website)
		if err != nil {
			return d, err
		}
		d.GovernanceURL = deref(governanceURL)
		d.Platform = deref(platform)
		d.BoardPapersURL = deref(boardPapersURL)
		d.Website = deref(website)
		return d, nil
	})
}
