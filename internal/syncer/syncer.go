// Package syncer ingests OCDS notices from a source into the contract
// catalog, one resumable page at a time.
package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/ocds"
	"github.com/tenderscope/intel-cli/internal/pipeline"
	"github.com/tenderscope/intel-cli/internal/source"
)

// Catalog is the slice of the store the syncer writes to.
type Catalog interface {
	UpsertContracts(ctx context.Context, contracts []model.Contract) (int64, error)
	UpsertBuyerCounts(ctx context.Context, buyers []model.Buyer) (map[string]int64, error)
	ContractIDs(ctx context.Context, source model.Source, noticeIDs []string) (map[string]int64, error)
}

// AwardSink receives newly upserted award notices for watchlist fan-out.
// Sink failures never fail the sync: notifications are best-effort.
type AwardSink interface {
	OnAwards(ctx context.Context, contracts []model.Contract, contractIDs map[string]int64) error
}

// Syncer runs one source's ingest stage.
type Syncer struct {
	src          source.Source
	catalog      Catalog
	ledgerStore  ledger.Store
	awards       AwardSink
	backfillFrom string
	log          *zap.Logger
}

// New creates a Syncer. awards may be nil when watchlist fan-out is off.
func New(src source.Source, catalog Catalog, ledgerStore ledger.Store, backfillFrom string, awards AwardSink) *Syncer {
	return &Syncer{
		src:          src,
		catalog:      catalog,
		ledgerStore:  ledgerStore,
		awards:       awards,
		backfillFrom: backfillFrom,
		log:          zap.L().With(zap.String("source", string(src.Name()))),
	}
}

// Stage exposes the syncer as a pipeline stage named after its source.
func (s *Syncer) Stage() pipeline.Stage {
	return pipeline.Stage{
		Name: strings.ToLower(string(s.src.Name())),
		Fn:   s.run,
	}
}

// run fetches pages until the source is exhausted or the budget is spent.
// Progress is checkpointed after every page, strictly after the page's rows
// are durable, so a crash resumes without losing or skipping a page.
func (s *Syncer) run(ctx context.Context, entry *ledger.Entry, budget int) (pipeline.Result, error) {
	dateFrom := s.backfillFrom
	if entry.LastSyncedAt != nil {
		dateFrom = entry.LastSyncedAt.UTC().Format("2006-01-02")
	}

	cursor := entry.Cursor
	var res pipeline.Result

	for {
		page, err := s.src.FetchPage(ctx, source.PageRequest{Cursor: cursor, DateFrom: dateFrom})
		if err != nil {
			return res, eris.Wrapf(err, "syncer: fetch %s page", s.src.Name())
		}

		contracts, messages := s.mapReleases(page.Releases)

		if _, err := s.catalog.UpsertContracts(ctx, contracts); err != nil {
			return res, eris.Wrapf(err, "syncer: store %s page", s.src.Name())
		}
		if err := s.upsertBuyers(ctx, contracts); err != nil {
			return res, err
		}
		s.fanOutAwards(ctx, contracts)

		cursor = page.NextCursor
		res.Processed += int64(len(contracts))
		res.Errors += int64(len(messages))

		if err := s.ledgerStore.SaveProgress(ctx, entry, ledger.Progress{
			Cursor:    cursor,
			Processed: int64(len(contracts)),
			Errors:    int64(len(messages)),
			Messages:  messages,
		}); err != nil {
			return res, eris.Wrapf(err, "syncer: checkpoint %s", s.src.Name())
		}

		s.log.Info("page ingested",
			zap.Int("releases", len(page.Releases)),
			zap.Int("mapped", len(contracts)),
			zap.Int("skipped", len(messages)),
			zap.Bool("more", cursor != nil),
		)

		if cursor == nil {
			res.Done = true
			return res, nil
		}
		if budget > 0 && res.Processed >= int64(budget) {
			return res, nil
		}
	}
}

// mapReleases converts a page of releases, skipping unusable ones. A bad
// release costs one error message, never the page.
func (s *Syncer) mapReleases(releases []ocds.Release) ([]model.Contract, []string) {
	contracts := make([]model.Contract, 0, len(releases))
	var messages []string
	for i := range releases {
		r := &releases[i]
		if r.ID == "" && r.OCID == "" {
			messages = append(messages, fmt.Sprintf("skipped release %d: no id or ocid", i))
			continue
		}
		contracts = append(contracts, ocds.MapRelease(r, s.src.Name()))
	}
	return contracts, messages
}

// upsertBuyers aggregates the page's buyers and adds their contract counts.
func (s *Syncer) upsertBuyers(ctx context.Context, contracts []model.Contract) error {
	byName := make(map[string]*model.Buyer)
	var order []string
	for i := range contracts {
		c := &contracts[i]
		key := model.NormalizeBuyerName(c.BuyerName)
		if key == "" {
			continue
		}
		b, ok := byName[key]
		if !ok {
			b = &model.Buyer{
				Name:      c.BuyerName,
				NameLower: key,
				OrgRef:    c.BuyerOrgRef,
				Sector:    c.Sector,
				Region:    c.BuyerRegion,
			}
			byName[key] = b
			order = append(order, key)
		}
		b.ContractCount++
	}
	if len(order) == 0 {
		return nil
	}

	buyers := make([]model.Buyer, 0, len(order))
	for _, key := range order {
		buyers = append(buyers, *byName[key])
	}
	if _, err := s.catalog.UpsertBuyerCounts(ctx, buyers); err != nil {
		return eris.Wrapf(err, "syncer: upsert %s buyers", s.src.Name())
	}
	return nil
}

// fanOutAwards feeds the page's award notices to the watchlist. Failures are
// logged and swallowed: a notification hiccup must not stall ingest.
func (s *Syncer) fanOutAwards(ctx context.Context, contracts []model.Contract) {
	if s.awards == nil {
		return
	}
	var awarded []model.Contract
	var noticeIDs []string
	for i := range contracts {
		if contracts[i].Awarded() && len(contracts[i].AwardedSuppliers) > 0 {
			awarded = append(awarded, contracts[i])
			noticeIDs = append(noticeIDs, contracts[i].NoticeID)
		}
	}
	if len(awarded) == 0 {
		return
	}

	ids, err := s.catalog.ContractIDs(ctx, s.src.Name(), noticeIDs)
	if err != nil {
		s.log.Warn("award fan-out: resolving contract ids failed", zap.Error(err))
		ids = map[string]int64{}
	}
	if err := s.awards.OnAwards(ctx, awarded, ids); err != nil {
		s.log.Warn("award fan-out failed", zap.Error(err))
	}
}
