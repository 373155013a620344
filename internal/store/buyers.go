package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/db"
	"github.com/tenderscope/intel-cli/internal/model"
)

const buyerColumns = `id, name, name_lower, org_ref, sector, region, contract_count,
	org_type, data_source_id, website, logo_url, linkedin_url, description,
	governance_url, governance_platform, board_papers_url, staff_count, annual_budget,
	enrichment_score, enrichment_version, enrichment_sources, enrichment_priority,
	last_enriched_at, created_at, updated_at`

// UpsertBuyerCounts inserts buyers discovered on a page of contracts, adding
// to contract_count on conflict. Descriptive fields only fill gaps: a value
// already present on the row wins over the incoming one. Returns ids keyed by
// name_lower, resolved by re-query because ON CONFLICT upserts through a temp
// table do not report per-row ids.
func (s *PostgresStore) UpsertBuyerCounts(ctx context.Context, buyers []model.Buyer) (map[string]int64, error) {
	if len(buyers) == 0 {
		return map[string]int64{}, nil
	}

	rows := make([][]any, 0, len(buyers))
	names := make([]string, 0, len(buyers))
	for i := range buyers {
		b := &buyers[i]
		rows = append(rows, []any{
			b.Name, b.NameLower, nilIfEmpty(b.OrgRef),
			nilIfEmpty(b.Sector), nilIfEmpty(b.Region), b.ContractCount,
		})
		names = append(names, b.NameLower)
	}

	keepExisting := func(col string) string {
		return "COALESCE(NULLIF(buyers." + col + ", ''), EXCLUDED." + col + ")"
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "buyers",
		Columns:      []string{"name", "name_lower", "org_ref", "sector", "region", "contract_count"},
		ConflictKeys: []string{"name_lower"},
		UpdateCols:   []string{"contract_count", "org_ref", "sector", "region", "updated_at"},
		UpdateExprs: map[string]string{
			"contract_count": "buyers.contract_count + EXCLUDED.contract_count",
			"org_ref":        keepExisting("org_ref"),
			"sector":         keepExisting("sector"),
			"region":         keepExisting("region"),
			"updated_at":     "now()",
		},
	}, rows)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert buyers")
	}

	idRows, err := s.pool.Query(ctx,
		"SELECT name_lower, id FROM buyers WHERE name_lower = ANY($1)", names)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query buyer ids")
	}
	defer idRows.Close()

	out := make(map[string]int64, len(names))
	for idRows.Next() {
		var nameLower string
		var id int64
		if err := idRows.Scan(&nameLower, &id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan buyer id")
		}
		out[nameLower] = id
	}
	return out, idRows.Err()
}

func scanBuyer(rows pgx.Rows) (model.Buyer, error) {
	var b model.Buyer
	var orgRef, sector, region, orgType, website, logoURL, linkedInURL *string
	var description, governanceURL, governancePlatform, boardPapersURL *string
	err := rows.Scan(
		&b.ID, &b.Name, &b.NameLower, &orgRef, &sector, &region, &b.ContractCount,
		&orgType, &b.DataSourceID, &website, &logoURL, &linkedInURL, &description,
		&governanceURL, &governancePlatform, &boardPapersURL, &b.StaffCount, &b.AnnualBudget,
		&b.EnrichmentScore, &b.EnrichmentVersion, &b.EnrichmentSources, &b.EnrichmentPriority,
		&b.LastEnrichedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return b, err
	}
	b.OrgRef = deref(orgRef)
	b.Sector = deref(sector)
	b.Region = deref(region)
	b.OrgType = deref(orgType)
	b.Website = deref(website)
	b.LogoURL = deref(logoURL)
	b.LinkedInURL = deref(linkedInURL)
	b.Description = deref(description)
	b.GovernanceURL = deref(governanceURL)
	b.GovernancePlatform = deref(governancePlatform)
	b.BoardPapersURL = deref(boardPapersURL)
	return b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetBuyer loads a single buyer by id.
func (s *PostgresStore) GetBuyer(ctx context.Context, id int64) (*model.Buyer, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+buyerColumns+" FROM buyers WHERE id = $1", id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get buyer")
	}
	buyers, err := collectRows(rows, "buyer", scanBuyer)
	if err != nil {
		return nil, err
	}
	if len(buyers) == 0 {
		return nil, eris.Errorf("postgres: buyer %d not found", id)
	}
	return &buyers[0], nil
}

// ListUnclassifiedBuyers returns buyers with no org_type yet, highest
// priority and contract volume first.
func (s *PostgresStore) ListUnclassifiedBuyers(ctx context.Context, limit int) ([]model.Buyer, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+buyerColumns+` FROM buyers
		WHERE org_type IS NULL OR org_type = ''
		ORDER BY enrichment_priority DESC, contract_count DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list unclassified buyers")
	}
	return collectRows(rows, "unclassified buyer", scanBuyer)
}

// ListBuyersForProfile returns classified buyers that have never been
// profile-enriched.
func (s *PostgresStore) ListBuyersForProfile(ctx context.Context, limit int) ([]model.Buyer, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+buyerColumns+` FROM buyers
		WHERE org_type IS NOT NULL AND org_type <> '' AND last_enriched_at IS NULL
		ORDER BY enrichment_priority DESC, contract_count DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buyers for profile")
	}
	return collectRows(rows, "profile buyer", scanBuyer)
}

// ListBuyersForScoring returns buyers whose completeness score is stale
// relative to the given scoring version.
func (s *PostgresStore) ListBuyersForScoring(ctx context.Context, version, limit int) ([]model.Buyer, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+buyerColumns+` FROM buyers
		WHERE enrichment_version < $1
		ORDER BY enrichment_priority DESC, contract_count DESC, id
		LIMIT $2`, version, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list buyers for scoring")
	}
	return collectRows(rows, "scoring buyer", scanBuyer)
}

// UpdateBuyerClassification records the fuzzy-match outcome: org type,
// matched registry entry, and any governance fields it carried.
func (s *PostgresStore) UpdateBuyerClassification(ctx context.Context, b *model.Buyer) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE buyers SET
			org_type = $1,
			data_source_id = $2,
			governance_url = COALESCE(NULLIF(governance_url, ''), $3),
			governance_platform = COALESCE(NULLIF(governance_platform, ''), $4),
			board_papers_url = COALESCE(NULLIF(board_papers_url, ''), $5),
			website = COALESCE(NULLIF(website, ''), $6),
			updated_at = now()
		WHERE id = $7`,
		b.OrgType, b.DataSourceID,
		nilIfEmpty(b.GovernanceURL), nilIfEmpty(b.GovernancePlatform),
		nilIfEmpty(b.BoardPapersURL), nilIfEmpty(b.Website), b.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: classify buyer %d", b.ID)
	}
	return nil
}

// UpdateBuyerProfile writes profile lookup results. Conditional per column:
// an existing non-empty value is never overwritten, so repeated enrichment
// passes are additive.
func (s *PostgresStore) UpdateBuyerProfile(ctx context.Context, b *model.Buyer) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE buyers SET
			website = COALESCE(NULLIF(website, ''), $1),
			logo_url = COALESCE(NULLIF(logo_url, ''), $2),
			linkedin_url = COALESCE(NULLIF(linkedin_url, ''), $3),
			description = COALESCE(NULLIF(description, ''), $4),
			staff_count = COALESCE(staff_count, $5),
			annual_budget = COALESCE(annual_budget, $6),
			enrichment_sources = $7,
			last_enriched_at = now(),
			updated_at = now()
		WHERE id = $8`,
		nilIfEmpty(b.Website), nilIfEmpty(b.LogoURL), nilIfEmpty(b.LinkedInURL),
		nilIfEmpty(b.Description), b.StaffCount, b.AnnualBudget,
		b.EnrichmentSources, b.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update buyer %d profile", b.ID)
	}
	return nil
}

// UpdateBuyerScore stamps the completeness score and scoring version.
func (s *PostgresStore) UpdateBuyerScore(ctx context.Context, id int64, score, version int) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE buyers SET enrichment_score = $1, enrichment_version = $2, updated_at = now() WHERE id = $3",
		score, version, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: score buyer %d", id)
	}
	return nil
}

// PropagateGovernance fills missing buyer governance fields from their
// linked registry entries. Set-based: one statement covers the whole table,
// and existing values are never overwritten.
func (s *PostgresStore) PropagateGovernance(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE buyers b SET
			governance_url = COALESCE(NULLIF(b.governance_url, ''), ds.governance_url),
			governance_platform = COALESCE(NULLIF(b.governance_platform, ''), ds.platform),
			board_papers_url = COALESCE(NULLIF(b.board_papers_url, ''), ds.board_papers_url),
			website = COALESCE(NULLIF(b.website, ''), ds.website),
			updated_at = now()
		FROM data_sources ds
		WHERE b.data_source_id = ds.id
		  AND (
			(COALESCE(b.governance_url, '') = '' AND COALESCE(ds.governance_url, '') <> '') OR
			(COALESCE(b.governance_platform, '') = '' AND COALESCE(ds.platform, '') <> '') OR
			(COALESCE(b.board_papers_url, '') = '' AND COALESCE(ds.board_papers_url, '') <> '')
		  )`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: propagate governance")
	}
	return tag.RowsAffected(), nil
}

// BoostBuyerPriority moves a buyer to the front of every enrichment queue.
func (s *PostgresStore) BoostBuyerPriority(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE buyers SET enrichment_priority = 1000, updated_at = now() WHERE id = $1", id)
	if err != nil {
		return eris.Wrapf(err, "postgres: boost buyer %d", id)
	}
	return nil
}

// RestoreBuyerPriority returns a boosted buyer to normal queue order.
func (s *PostgresStore) RestoreBuyerPriority(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE buyers SET enrichment_priority = 0, updated_at = now() WHERE id = $1", id)
	if err != nil {
		return eris.Wrapf(err, "postgres: restore buyer %d priority", id)
	}
	return nil
}

// BuyerAggregates returns the counts feeding the graduated part of the
// completeness score: known personnel and stored board documents. For single
// on-demand enrichment; batch scoring goes through BuyerStats.
func (s *PostgresStore) BuyerAggregates(ctx context.Context, id int64) (int, int, error) {
	var personnel, documents int
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM buyer_personnel WHERE buyer_id = $1),
			(SELECT count(*) FROM board_documents WHERE buyer_id = $1)`,
		id).Scan(&personnel, &documents)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "postgres: buyer %d aggregates", id)
	}
	return personnel, documents, nil
}

// BuyerStats returns personnel and document counts for a whole scoring batch
// in two grouped queries. Buyers with no rows in either table are absent from
// the map; the zero value is the correct count for them.
func (s *PostgresStore) BuyerStats(ctx context.Context, ids []int64) (map[int64]model.BuyerStats, error) {
	out := make(map[int64]model.BuyerStats, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	err := s.countByBuyer(ctx, "buyer_personnel", ids, func(id int64, n int) {
		st := out[id]
		st.Personnel = n
		out[id] = st
	})
	if err != nil {
		return nil, err
	}
	err = s.countByBuyer(ctx, "board_documents", ids, func(id int64, n int) {
		st := out[id]
		st.Documents = n
		out[id] = st
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) countByBuyer(ctx context.Context, table string, ids []int64, set func(int64, int)) error {
	rows, err := s.pool.Query(ctx,
		"SELECT buyer_id, count(*) FROM "+table+" WHERE buyer_id = ANY($1) GROUP BY buyer_id", ids)
	if err != nil {
		return eris.Wrapf(err, "postgres: count %s", table)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return eris.Wrapf(err, "postgres: scan %s count", table)
		}
		set(id, n)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "postgres: iterate %s counts", table)
	}
	return nil
}
