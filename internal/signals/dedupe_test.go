package signals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
)

// fakeLedger records checkpoints and folds counters into the entry the way
// the real backends do.
type fakeLedger struct {
	saves []ledger.Progress
}

func (f *fakeLedger) GetOrCreate(_ context.Context, pipeline, stage string, batchSize int) (*ledger.Entry, error) {
	return &ledger.Entry{Pipeline: pipeline, Stage: stage, Status: ledger.StatusRunning, BatchSize: batchSize}, nil
}

func (f *fakeLedger) SaveProgress(_ context.Context, e *ledger.Entry, p ledger.Progress) error {
	f.saves = append(f.saves, p)
	e.Cursor = p.Cursor
	e.TotalProcessed += p.Processed
	e.TotalErrors += p.Errors
	e.ErrorLog = append(e.ErrorLog, p.Messages...)
	return nil
}

func (f *fakeLedger) MarkComplete(_ context.Context, _ *ledger.Entry) error { return nil }

func (f *fakeLedger) MarkError(_ context.Context, _ *ledger.Entry, _ string) error { return nil }

func (f *fakeLedger) Recycle(_ context.Context, _ string) error { return nil }

func (f *fakeLedger) List(_ context.Context, _ string) ([]ledger.Entry, error) { return nil, nil }

func TestContentKey_RewordedTextCollides(t *testing.T) {
	a := ContentKey("Approval of the Housing Framework Procurement Plan")
	b := ContentKey("Housing framework procurement plan approval")
	assert.Equal(t, a, b)
}

func TestContentKey_ShortWordsIgnored(t *testing.T) {
	assert.Equal(t, ContentKey("Plan for the IT move"), ContentKey("plan move"))
}

func TestContentKey_CapsAtFiveWords(t *testing.T) {
	// Only the five longest words participate: alpha and bravo drop out.
	key := ContentKey("alpha bravo charlie deltaaa echoooo foxtrot golfing hotelier")
	assert.Equal(t, "charlie deltaaa echoooo foxtrot hotelier", key)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestFindDuplicates_WithinWindowKeepsHigherConfidence(t *testing.T) {
	sigs := []model.Signal{
		{ID: 1, Title: "Housing framework procurement approved", Confidence: 0.6, SourceDate: datePtr(2026, 8, 10)},
		{ID: 2, Title: "Approved housing framework procurement", Confidence: 0.9, SourceDate: datePtr(2026, 7, 25)},
	}
	dups := FindDuplicates(sigs, 30*24*time.Hour)
	// The lower-confidence newer copy loses.
	assert.Equal(t, []int64{1}, dups)
}

func TestFindDuplicates_NewerWinsOnEqualConfidence(t *testing.T) {
	sigs := []model.Signal{
		{ID: 1, Title: "Budget approved for next year", Confidence: 0.8, SourceDate: datePtr(2026, 8, 10)},
		{ID: 2, Title: "Budget approved for next year", Confidence: 0.8, SourceDate: datePtr(2026, 8, 1)},
	}
	dups := FindDuplicates(sigs, 30*24*time.Hour)
	assert.Equal(t, []int64{2}, dups)
}

func TestFindDuplicates_NarrativeCatchesRewordedTitles(t *testing.T) {
	// Short-word titles contribute nothing to the key; the near-identical
	// narratives nine days apart still collide.
	insight := "Procurement of a replacement finance system was approved by the committee."
	sigs := []model.Signal{
		{ID: 1, Title: "New ERP bid", Insight: insight, Confidence: 0.9, SourceDate: datePtr(2026, 8, 10)},
		{ID: 2, Title: "Go for buy", Insight: insight, Confidence: 0.6, SourceDate: datePtr(2026, 8, 1)},
	}
	assert.Equal(t, []int64{2}, FindDuplicates(sigs, 30*24*time.Hour))
}

func TestFindDuplicates_OutsideWindowBothSurvive(t *testing.T) {
	sigs := []model.Signal{
		{ID: 1, Title: "Annual budget approved", Confidence: 0.8, SourceDate: datePtr(2026, 8, 10)},
		{ID: 2, Title: "Annual budget approved", Confidence: 0.9, SourceDate: datePtr(2025, 8, 10)},
	}
	assert.Empty(t, FindDuplicates(sigs, 30*24*time.Hour))
}

func TestFindDuplicates_DifferentContentSurvives(t *testing.T) {
	sigs := []model.Signal{
		{ID: 1, Title: "Housing framework procurement", Confidence: 0.8, SourceDate: datePtr(2026, 8, 10)},
		{ID: 2, Title: "Transformation director recruitment", Confidence: 0.8, SourceDate: datePtr(2026, 8, 10)},
	}
	assert.Empty(t, FindDuplicates(sigs, 30*24*time.Hour))
}

func TestFindDuplicates_UndatedTreatedAsWithinWindow(t *testing.T) {
	sigs := []model.Signal{
		{ID: 1, Title: "Annual budget approved", Confidence: 0.8, SourceDate: datePtr(2026, 8, 10)},
		{ID: 2, Title: "Annual budget approved", Confidence: 0.5},
	}
	assert.Equal(t, []int64{2}, FindDuplicates(sigs, 30*24*time.Hour))
}

type fakeDedupStore struct {
	buyers  []int64 // ascending
	signals map[int64]map[model.SignalType][]model.Signal
	scanned []int64
	deleted []int64
}

func (f *fakeDedupStore) ListSignalBuyers(_ context.Context, afterID int64, limit int) ([]int64, error) {
	var out []int64
	for _, id := range f.buyers {
		if id <= afterID {
			continue
		}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDedupStore) ListSignalsByType(_ context.Context, buyerID int64, t model.SignalType) ([]model.Signal, error) {
	if len(f.scanned) == 0 || f.scanned[len(f.scanned)-1] != buyerID {
		f.scanned = append(f.scanned, buyerID)
	}
	return f.signals[buyerID][t], nil
}

func (f *fakeDedupStore) DeleteSignals(_ context.Context, ids []int64) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func TestDeduper_RemovesPerBuyerPerType(t *testing.T) {
	st := &fakeDedupStore{
		buyers: []int64{7},
		signals: map[int64]map[model.SignalType][]model.Signal{
			7: {
				model.SignalFinancial: {
					{ID: 1, Title: "Annual budget approved", Confidence: 0.9, SourceDate: datePtr(2026, 8, 10)},
					{ID: 2, Title: "Approved annual budget", Confidence: 0.6, SourceDate: datePtr(2026, 8, 1)},
				},
				model.SignalProcurement: {
					{ID: 3, Title: "Highways framework tendered", Confidence: 0.8, SourceDate: datePtr(2026, 8, 10)},
				},
			},
		},
	}
	led := &fakeLedger{}
	d := NewDeduper(st, led, 30)

	entry := &ledger.Entry{}
	res, err := d.Stage().Fn(context.Background(), entry, 0)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, int64(1), res.Processed)
	assert.Equal(t, []int64{2}, st.deleted)

	// The batch is checkpointed with the last buyer id as the cursor.
	require.Len(t, led.saves, 1)
	require.NotNil(t, led.saves[0].Cursor)
	assert.Equal(t, "7", *led.saves[0].Cursor)
	assert.Equal(t, int64(1), entry.TotalProcessed)
}

func TestDeduper_BudgetPausesAndCursorResumes(t *testing.T) {
	st := &fakeDedupStore{buyers: []int64{3, 7, 9}}
	led := &fakeLedger{}
	d := NewDeduper(st, led, 30)

	entry := &ledger.Entry{}
	res, err := d.Stage().Fn(context.Background(), entry, 2)
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.Equal(t, int64(2), res.Processed)
	assert.Equal(t, []int64{3, 7}, st.scanned)
	require.NotNil(t, entry.Cursor)
	assert.Equal(t, "7", *entry.Cursor)

	// Second invocation picks up after the checkpointed buyer.
	res, err = d.Stage().Fn(context.Background(), entry, 2)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, int64(1), res.Processed)
	assert.Equal(t, []int64{3, 7, 9}, st.scanned)
	assert.Equal(t, int64(3), entry.TotalProcessed)
}

func TestDeduper_BadCursorFails(t *testing.T) {
	d := NewDeduper(&fakeDedupStore{}, &fakeLedger{}, 30)

	bad := "not-a-number"
	_, err := d.Stage().Fn(context.Background(), &ledger.Entry{Cursor: &bad}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cursor")
}
