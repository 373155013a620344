package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/pkg/orglookup"
)

type fakeProfileWriter struct {
	mu      sync.Mutex
	buyers  []model.Buyer
	updated []model.Buyer
}

func (f *fakeProfileWriter) ListBuyersForProfile(_ context.Context, limit int) ([]model.Buyer, error) {
	if limit > len(f.buyers) {
		limit = len(f.buyers)
	}
	out := f.buyers[:limit]
	f.buyers = f.buyers[limit:]
	return out, nil
}

func (f *fakeProfileWriter) UpdateBuyerProfile(_ context.Context, b *model.Buyer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, *b)
	return nil
}

type fakeLookup struct {
	mu      sync.Mutex
	results map[string]*orglookup.Organization
	errFor  map[string]error
	calls   []string
}

func (f *fakeLookup) SearchByName(_ context.Context, name string) (*orglookup.Organization, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if err := f.errFor[name]; err != nil {
		return nil, err
	}
	return f.results[name], nil
}

func TestProfiler_FillsProfileFields(t *testing.T) {
	staff := 12000
	writer := &fakeProfileWriter{buyers: []model.Buyer{{ID: 1, Name: "Leeds City Council"}}}
	lookup := &fakeLookup{results: map[string]*orglookup.Organization{
		"Leeds City Council": {
			Name:          "Leeds City Council",
			Website:       "https://leeds.gov.uk",
			LogoURL:       "https://cdn/leeds.png",
			EmployeeCount: &staff,
		},
	}}
	p := NewProfiler(writer, lookup, &fakeLedger{}, 2, 100)

	res, err := p.Stage().Fn(context.Background(), &ledger.Entry{}, 0)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, int64(1), res.Processed)

	require.Len(t, writer.updated, 1)
	got := writer.updated[0]
	assert.Equal(t, "https://leeds.gov.uk", got.Website)
	assert.Equal(t, "https://cdn/leeds.png", got.LogoURL)
	require.NotNil(t, got.StaffCount)
	assert.Equal(t, 12000, *got.StaffCount)
	assert.Contains(t, got.EnrichmentSources, "orglookup")
}

func TestProfiler_NoMatchStillStampsBuyer(t *testing.T) {
	writer := &fakeProfileWriter{buyers: []model.Buyer{{ID: 1, Name: "Obscure Parish"}}}
	p := NewProfiler(writer, &fakeLookup{}, &fakeLedger{}, 1, 100)

	res, err := p.Stage().Fn(context.Background(), &ledger.Entry{}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Processed)
	// The buyer is written (stamping last_enriched_at) even with no profile,
	// so it does not stay in the queue forever.
	require.Len(t, writer.updated, 1)
	assert.Empty(t, writer.updated[0].Website)
}

func TestProfiler_LookupFailureIsIsolated(t *testing.T) {
	writer := &fakeProfileWriter{buyers: []model.Buyer{
		{ID: 1, Name: "Failing Org"},
		{ID: 2, Name: "Working Org"},
	}}
	lookup := &fakeLookup{
		errFor:  map[string]error{"Failing Org": errors.New("rate limited")},
		results: map[string]*orglookup.Organization{"Working Org": {Website: "https://works.example"}},
	}
	p := NewProfiler(writer, lookup, &fakeLedger{}, 2, 100)

	res, err := p.Stage().Fn(context.Background(), &ledger.Entry{}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Processed)
	assert.Equal(t, int64(1), res.Errors)
	require.Len(t, writer.updated, 1)
	assert.Equal(t, "https://works.example", writer.updated[0].Website)
}

func TestProfiler_CheckpointsBatchWithFailures(t *testing.T) {
	writer := &fakeProfileWriter{buyers: []model.Buyer{
		{ID: 1, Name: "Failing Org"},
		{ID: 2, Name: "Working Org"},
	}}
	lookup := &fakeLookup{
		errFor:  map[string]error{"Failing Org": errors.New("rate limited")},
		results: map[string]*orglookup.Organization{"Working Org": {Website: "https://works.example"}},
	}
	led := &fakeLedger{}
	p := NewProfiler(writer, lookup, led, 1, 100)

	entry := &ledger.Entry{}
	_, err := p.Stage().Fn(context.Background(), entry, 0)
	require.NoError(t, err)

	// Counters and the failure message land in the ledger entry.
	require.Len(t, led.saves, 1)
	assert.Equal(t, int64(1), entry.TotalProcessed)
	assert.Equal(t, int64(1), entry.TotalErrors)
	require.Len(t, entry.ErrorLog, 1)
	assert.Contains(t, entry.ErrorLog[0], "Failing Org")
}

func TestProfiler_BudgetCapsBatch(t *testing.T) {
	writer := &fakeProfileWriter{buyers: []model.Buyer{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}}
	lookup := &fakeLookup{}
	p := NewProfiler(writer, lookup, &fakeLedger{}, 1, 100)

	res, err := p.Stage().Fn(context.Background(), &ledger.Entry{}, 1)
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.Len(t, lookup.calls, 1)
}
