package enrich

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
)

func TestComputeScore_EmptyProfile(t *testing.T) {
	assert.Zero(t, ComputeScore(&model.Buyer{}, 0, 0))
}

func TestComputeScore_UnknownOrgTypeScoresNothing(t *testing.T) {
	assert.Zero(t, ComputeScore(&model.Buyer{OrgType: OrgTypeUnknown}, 0, 0))
}

func TestComputeScore_FullProfile(t *testing.T) {
	staff := 500
	budget := 1.2e9
	b := &model.Buyer{
		OrgType:        "LOCAL_AUTHORITY",
		Website:        "https://leeds.gov.uk",
		LogoURL:        "https://cdn/logo.png",
		LinkedInURL:    "https://linkedin.com/company/leeds",
		GovernanceURL:  "https://democracy.leeds.gov.uk",
		BoardPapersURL: "https://democracy.leeds.gov.uk/papers",
		Description:    "Local authority",
		StaffCount:     &staff,
		AnnualBudget:   &budget,
	}
	// 67 binary + 18 personnel + 15 documents.
	assert.Equal(t, 100, ComputeScore(b, 5, 10))
}

func TestComputeScore_GraduatedCaps(t *testing.T) {
	b := &model.Buyer{}
	// Counts beyond the caps add nothing.
	assert.Equal(t, ComputeScore(b, 5, 10), ComputeScore(b, 50, 100))
}

func TestComputeScore_PartialGraduated(t *testing.T) {
	b := &model.Buyer{}
	// 2 of 5 personnel: 7.2 rounds to 7. 5 of 10 documents: 7.5 rounds to 8.
	assert.Equal(t, 7, ComputeScore(b, 2, 0))
	assert.Equal(t, 8, ComputeScore(b, 0, 5))
}

type fakeScoreStore struct {
	buyers     []model.Buyer
	stats      map[int64]model.BuyerStats
	statsCalls int
	scores     map[int64]int
	versions   map[int64]int
}

func (f *fakeScoreStore) ListBuyersForScoring(_ context.Context, version, limit int) ([]model.Buyer, error) {
	if limit > len(f.buyers) {
		limit = len(f.buyers)
	}
	out := f.buyers[:limit]
	f.buyers = f.buyers[limit:]
	return out, nil
}

func (f *fakeScoreStore) BuyerStats(_ context.Context, ids []int64) (map[int64]model.BuyerStats, error) {
	f.statsCalls++
	out := make(map[int64]model.BuyerStats, len(ids))
	for _, id := range ids {
		if st, ok := f.stats[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (f *fakeScoreStore) UpdateBuyerScore(_ context.Context, id int64, score, version int) error {
	if f.scores == nil {
		f.scores = map[int64]int{}
		f.versions = map[int64]int{}
	}
	f.scores[id] = score
	f.versions[id] = version
	return nil
}

func TestScorer_ScoresBatch(t *testing.T) {
	st := &fakeScoreStore{
		buyers: []model.Buyer{
			{ID: 1, OrgType: "NHS_TRUST", Website: "https://gstt.nhs.uk"},
			{ID: 2},
		},
		stats: map[int64]model.BuyerStats{1: {Personnel: 5, Documents: 10}},
	}
	led := &fakeLedger{}
	s := NewScorer(st, led, 100)

	entry := &ledger.Entry{}
	res, err := s.Stage().Fn(context.Background(), entry, 0)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, int64(2), res.Processed)

	// One grouped aggregate call for the whole batch, checkpointed once.
	assert.Equal(t, 1, st.statsCalls)
	assert.Equal(t, int64(2), entry.TotalProcessed)

	// 12 (org type) + 8 (website) + 18 + 15.
	assert.Equal(t, 53, st.scores[1])
	assert.Zero(t, st.scores[2])
	assert.Equal(t, ScoringVersion, st.versions[1])
}
