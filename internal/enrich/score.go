package enrich

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/pipeline"
)

// ScoringVersion is bumped whenever the rubric changes; buyers scored under
// an older version are rescored on the next pass.
const ScoringVersion = 1

// binaryWeights award fixed points for each populated profile field.
var binaryWeights = []struct {
	points int
	filled func(*model.Buyer) bool
}{
	{12, func(b *model.Buyer) bool { return b.OrgType != "" && b.OrgType != OrgTypeUnknown }},
	{8, func(b *model.Buyer) bool { return b.Website != "" }},
	{5, func(b *model.Buyer) bool { return b.LogoURL != "" }},
	{5, func(b *model.Buyer) bool { return b.LinkedInURL != "" }},
	{8, func(b *model.Buyer) bool { return b.GovernanceURL != "" }},
	{8, func(b *model.Buyer) bool { return b.BoardPapersURL != "" }},
	{5, func(b *model.Buyer) bool { return b.Description != "" }},
	{8, func(b *model.Buyer) bool { return b.StaffCount != nil }},
	{8, func(b *model.Buyer) bool { return b.AnnualBudget != nil }},
}

// ComputeScore returns the 0-100 profile completeness score: 67 points of
// binary field checks plus a graduated 33 from personnel and document
// coverage (capped at 5 personnel and 10 documents).
func ComputeScore(b *model.Buyer, personnel, documents int) int {
	score := 0.0
	for _, w := range binaryWeights {
		if w.filled(b) {
			score += float64(w.points)
		}
	}
	score += math.Min(float64(personnel), 5) / 5 * 18
	score += math.Min(float64(documents), 10) / 10 * 15
	return int(math.Round(score))
}

// ScoreReader is the slice of the store the scoring stage uses.
type ScoreReader interface {
	ListBuyersForScoring(ctx context.Context, version, limit int) ([]model.Buyer, error)
	BuyerStats(ctx context.Context, ids []int64) (map[int64]model.BuyerStats, error)
	UpdateBuyerScore(ctx context.Context, id int64, score, version int) error
}

// Scorer recomputes profile completeness scores.
type Scorer struct {
	reader      ScoreReader
	ledgerStore ledger.Store
	batch       int
	log         *zap.Logger
}

// NewScorer creates the scoring stage.
func NewScorer(reader ScoreReader, ledgerStore ledger.Store, batch int) *Scorer {
	return &Scorer{
		reader:      reader,
		ledgerStore: ledgerStore,
		batch:       batch,
		log:         zap.L().With(zap.String("stage", "score")),
	}
}

// Stage exposes the scorer as a pipeline stage.
func (s *Scorer) Stage() pipeline.Stage {
	return pipeline.Stage{Name: "score", Fn: s.run}
}

// run scores one batch. Personnel and document counts come from a single
// grouped query over the whole batch, not per-buyer round trips.
func (s *Scorer) run(ctx context.Context, entry *ledger.Entry, budget int) (pipeline.Result, error) {
	limit := s.batch
	if budget > 0 && budget < limit {
		limit = budget
	}

	buyers, err := s.reader.ListBuyersForScoring(ctx, ScoringVersion, limit)
	if err != nil {
		return pipeline.Result{}, eris.Wrap(err, "enrich: list buyers for scoring")
	}

	var res pipeline.Result
	if len(buyers) > 0 {
		ids := make([]int64, len(buyers))
		for i := range buyers {
			ids[i] = buyers[i].ID
		}
		stats, err := s.reader.BuyerStats(ctx, ids)
		if err != nil {
			return res, eris.Wrap(err, "enrich: batch aggregates")
		}

		for i := range buyers {
			b := &buyers[i]
			st := stats[b.ID]
			score := ComputeScore(b, st.Personnel, st.Documents)
			if err := s.reader.UpdateBuyerScore(ctx, b.ID, score, ScoringVersion); err != nil {
				return res, eris.Wrapf(err, "enrich: score buyer %d", b.ID)
			}
			res.Processed++
		}

		if err := s.ledgerStore.SaveProgress(ctx, entry, ledger.Progress{Processed: res.Processed}); err != nil {
			return res, eris.Wrap(err, "enrich: checkpoint score")
		}
	}

	res.Done = len(buyers) < limit
	return res, nil
}
