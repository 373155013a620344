package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderscope/intel-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestUpsertBuyerCounts_IncrementsAndResolvesIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_buyers"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_buyers"},
		[]string{"name", "name_lower", "org_ref", "sector", "region", "contract_count"}).
		WillReturnResult(2)
	mock.ExpectExec(`"contract_count" = buyers\.contract_count \+ EXCLUDED\.contract_count`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	mock.ExpectQuery(`SELECT name_lower, id FROM buyers WHERE name_lower`).
		WithArgs([]string{"westminster city council", "nhs england"}).
		WillReturnRows(pgxmock.NewRows([]string{"name_lower", "id"}).
			AddRow("westminster city council", int64(11)).
			AddRow("nhs england", int64(12)))

	ids, err := store.UpsertBuyerCounts(context.Background(), []model.Buyer{
		{Name: "Westminster City Council", NameLower: "westminster city council", ContractCount: 3},
		{Name: "NHS England", NameLower: "nhs england", ContractCount: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"westminster city council": 11, "nhs england": 12}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBuyerCounts_Empty(t *testing.T) {
	store, mock := newMockStore(t)
	ids, err := store.UpsertBuyerCounts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContractIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT notice_id, id FROM contracts WHERE source`).
		WithArgs("FIND_A_TENDER", []string{"n-1", "n-2"}).
		WillReturnRows(pgxmock.NewRows([]string{"notice_id", "id"}).
			AddRow("n-1", int64(100)).
			AddRow("n-2", int64(101)))

	ids, err := store.ContractIDs(context.Background(), model.SourceFindATender, []string{"n-1", "n-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), ids["n-1"])
	assert.Equal(t, int64(101), ids["n-2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnclassifiedBuyers(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	sector := "Construction"

	mock.ExpectQuery(`FROM buyers\s+WHERE org_type IS NULL OR org_type = ''`).
		WithArgs(200).
		WillReturnRows(buyerRows().
			AddRow(int64(5), "Leeds City Council", "leeds city council", nil, &sector, nil, int64(12),
				nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
				0, 0, nil, 0, nil, now, now))

	buyers, err := store.ListUnclassifiedBuyers(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, buyers, 1)
	assert.Equal(t, "Leeds City Council", buyers[0].Name)
	assert.Equal(t, "Construction", buyers[0].Sector)
	assert.Empty(t, buyers[0].OrgType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func buyerRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "name_lower", "org_ref", "sector", "region", "contract_count",
		"org_type", "data_source_id", "website", "logo_url", "linkedin_url", "description",
		"governance_url", "governance_platform", "board_papers_url", "staff_count", "annual_budget",
		"enrichment_score", "enrichment_version", "enrichment_sources", "enrichment_priority",
		"last_enriched_at", "created_at", "updated_at",
	})
}

func TestUpdateBuyerProfile_ConditionalColumns(t *testing.T) {
	store, mock := newMockStore(t)

	staff := 340
	mock.ExpectExec(`UPDATE buyers SET\s+website = COALESCE\(NULLIF\(website, ''\), \$1\)`).
		WithArgs("https://example.nhs.uk", nil, nil, "Integrated care board", &staff, (*float64)(nil),
			[]string{"thecompaniesapi"}, int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateBuyerProfile(context.Background(), &model.Buyer{
		ID:                9,
		Website:           "https://example.nhs.uk",
		Description:       "Integrated care board",
		StaffCount:        &staff,
		EnrichmentSources: []string{"thecompaniesapi"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateBuyerScore(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE buyers SET enrichment_score`).
		WithArgs(72, 3, int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.UpdateBuyerScore(context.Background(), 9, 72, 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPropagateGovernance(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE buyers b SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))

	n, err := store.PropagateGovernance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertContracts_RepeatedNoticeInPageLastWins(t *testing.T) {
	contracts := []model.Contract{
		{Source: model.SourceFindATender, NoticeID: "n-1", Title: "Original notice"},
		{Source: model.SourceContractsFinder, NoticeID: "n-1", Title: "Same id, other source"},
		{Source: model.SourceFindATender, NoticeID: "n-1", Title: "Amended notice"},
	}

	out := dedupeByNotice(contracts)
	require.Len(t, out, 2)
	assert.Equal(t, "Amended notice", out[0].Title)
	assert.Equal(t, "Same id, other source", out[1].Title)
}

func TestBuyerStats_GroupedOverBatch(t *testing.T) {
	store, mock := newMockStore(t)
	ids := []int64{1, 2, 3}

	mock.ExpectQuery(`SELECT buyer_id, count\(\*\) FROM buyer_personnel WHERE buyer_id = ANY\(\$1\) GROUP BY buyer_id`).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"buyer_id", "count"}).
			AddRow(int64(1), 4))
	mock.ExpectQuery(`SELECT buyer_id, count\(\*\) FROM board_documents WHERE buyer_id = ANY\(\$1\) GROUP BY buyer_id`).
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"buyer_id", "count"}).
			AddRow(int64(1), 9).
			AddRow(int64(2), 2))

	stats, err := store.BuyerStats(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, model.BuyerStats{Personnel: 4, Documents: 9}, stats[1])
	assert.Equal(t, model.BuyerStats{Documents: 2}, stats[2])
	// No rows in either table: zero value.
	assert.Zero(t, stats[3])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSignalBuyers_PagesAfterCursor(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT DISTINCT buyer_id FROM signals WHERE buyer_id > \$1 ORDER BY buyer_id LIMIT \$2`).
		WithArgs(int64(7), 2).
		WillReturnRows(pgxmock.NewRows([]string{"buyer_id"}).
			AddRow(int64(9)).
			AddRow(int64(12)))

	buyers, err := store.ListSignalBuyers(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 12}, buyers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentNotificationExists(t *testing.T) {
	store, mock := newMockStore(t)

	since := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u-1", "Acme Ltd", "New contract won", since).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.RecentNotificationExists(context.Background(), "u-1", "Acme Ltd", "New contract won", since)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDocumentSignalStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE board_documents SET signal_status`).
		WithArgs("processed", int64(44)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetDocumentSignalStatus(context.Background(), 44, model.ExtractionStatus("processed")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteSignals_EmptyIsNoOp(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.DeleteSignals(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuyerAggregates(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT`).
		WithArgs(int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"personnel", "documents"}).AddRow(4, 9))

	personnel, documents, err := store.BuyerAggregates(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 4, personnel)
	assert.Equal(t, 9, documents)
	assert.NoError(t, mock.ExpectationsWereMet())
}
