package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/tenderscope/intel-cli/internal/db"
	"github.com/tenderscope/intel-cli/internal/model"
)

var contractColumns = []string{
	"ocid", "notice_id", "source", "source_url", "title", "description",
	"status", "stage", "buyer_name", "buyer_org_ref", "buyer_region",
	"cpv_codes", "sector", "value_min", "value_max", "currency",
	"published_date", "deadline_date", "contract_start_date", "contract_end_date",
	"mechanism", "method", "method_details", "contract_type",
	"suitable_for_sme", "suitable_for_vcse", "has_eu_funding",
	"can_renew", "renewal_details", "buyer_contact",
	"tender_period_start", "enquiry_period_end",
	"documents", "lots", "awarded_suppliers", "award_date", "award_value", "raw",
}

// UpsertContracts bulk-upserts a page of mapped contracts keyed on
// (source, notice_id). Re-ingested notices overwrite previous values.
func (s *PostgresStore) UpsertContracts(ctx context.Context, contracts []model.Contract) (int64, error) {
	contracts = dedupeByNotice(contracts)
	rows := make([][]any, 0, len(contracts))
	for i := range contracts {
		row, err := contractRow(&contracts[i])
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "contracts",
		Columns:      contractColumns,
		ConflictKeys: []string{"source", "notice_id"},
		UpdateExprs:  map[string]string{"updated_at": "now()"},
		UpdateCols:   append(nonConflictCols(contractColumns, "source", "notice_id"), "updated_at"),
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert contracts")
	}
	return n, nil
}

// dedupeByNotice collapses repeated (source, notice_id) pairs within one
// page, keeping the last occurrence. ON CONFLICT rejects a statement that
// touches the same row twice, and sources do emit a notice more than once in
// a page when it was amended mid-sync.
func dedupeByNotice(contracts []model.Contract) []model.Contract {
	idx := make(map[string]int, len(contracts))
	out := make([]model.Contract, 0, len(contracts))
	for i := range contracts {
		key := string(contracts[i].Source) + "\x00" + contracts[i].NoticeID
		if j, ok := idx[key]; ok {
			out[j] = contracts[i]
			continue
		}
		idx[key] = len(out)
		out = append(out, contracts[i])
	}
	return out
}

func contractRow(c *model.Contract) ([]any, error) {
	buyerContact, err := marshalOrNil(c.BuyerContact)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: marshal contract %s buyer contact", c.NoticeID)
	}
	documents, err := marshalSliceOrNil(c.Documents)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: marshal contract %s documents", c.NoticeID)
	}
	lots, err := marshalSliceOrNil(c.Lots)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: marshal contract %s lots", c.NoticeID)
	}
	suppliers, err := marshalSliceOrNil(c.AwardedSuppliers)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: marshal contract %s suppliers", c.NoticeID)
	}

	var raw any
	if len(c.Raw) > 0 {
		raw = c.Raw
	}

	return []any{
		nilIfEmpty(c.OCID), c.NoticeID, string(c.Source), nilIfEmpty(c.SourceURL),
		c.Title, nilIfEmpty(c.Description),
		string(c.Status), string(c.Stage),
		c.BuyerName, nilIfEmpty(c.BuyerOrgRef), nilIfEmpty(c.BuyerRegion),
		c.CPVCodes, nilIfEmpty(c.Sector), c.ValueMin, c.ValueMax, c.Currency,
		c.PublishedDate, c.DeadlineDate, c.ContractStartDate, c.ContractEndDate,
		string(c.Mechanism), nilIfEmpty(c.Method), nilIfEmpty(c.MethodDetails),
		nilIfEmpty(c.ContractType),
		c.SuitableForSME, c.SuitableForVCSE, c.HasEUFunding,
		c.CanRenew, nilIfEmpty(c.RenewalDetails), buyerContact,
		c.TenderPeriodStart, c.EnquiryPeriodEnd,
		documents, lots, suppliers, c.AwardDate, c.AwardValue, raw,
	}, nil
}

// ContractIDs resolves notice IDs to database IDs for one source. Used after
// an upsert to attach notifications to their contract rows.
func (s *PostgresStore) ContractIDs(ctx context.Context, source model.Source, noticeIDs []string) (map[string]int64, error) {
	if len(noticeIDs) == 0 {
		return map[string]int64{}, nil
	}
	rows, err := s.pool.Query(ctx,
		"SELECT notice_id, id FROM contracts WHERE source = $1 AND notice_id = ANY($2)",
		string(source), noticeIDs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query contract ids")
	}
	defer rows.Close()

	out := make(map[string]int64, len(noticeIDs))
	for rows.Next() {
		var noticeID string
		var id int64
		if err := rows.Scan(&noticeID, &id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract id")
		}
		out[noticeID] = id
	}
	return out, rows.Err()
}

// CountContracts returns the total catalog size.
func (s *PostgresStore) CountContracts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM contracts").Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count contracts")
	}
	return n, nil
}

func nonConflictCols(cols []string, conflict ...string) []string {
	skip := make(map[string]bool, len(conflict))
	for _, c := range conflict {
		skip[c] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalOrNil(c *model.BuyerContact) (any, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func marshalSliceOrNil[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
