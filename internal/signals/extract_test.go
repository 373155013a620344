package signals

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/pkg/anthropic"
)

type fakeDocStore struct {
	buyers   []int64
	docs     map[int64][]model.BoardDocument
	signals  []model.Signal
	statuses map[int64]model.ExtractionStatus
}

func (f *fakeDocStore) ListBuyersWithPendingDocuments(_ context.Context, _ int) ([]int64, error) {
	return f.buyers, nil
}

func (f *fakeDocStore) RecentUnprocessedDocuments(_ context.Context, buyerID int64, limit int) ([]model.BoardDocument, error) {
	docs := f.docs[buyerID]
	if limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

func (f *fakeDocStore) SetDocumentSignalStatus(_ context.Context, docID int64, status model.ExtractionStatus) error {
	if f.statuses == nil {
		f.statuses = map[int64]model.ExtractionStatus{}
	}
	f.statuses[docID] = status
	return nil
}

func (f *fakeDocStore) UpsertSignals(_ context.Context, signals []model.Signal) (int64, error) {
	f.signals = append(f.signals, signals...)
	return int64(len(signals)), nil
}

type fakeLLM struct {
	responses []string
	errOn     int // 1-based call index that fails; 0 = never
	calls     int
	prompts   []string
}

func (f *fakeLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	f.prompts = append(f.prompts, req.Messages[0].Content)
	if f.errOn > 0 && f.calls == f.errOn {
		return nil, errors.New("overloaded")
	}
	text := "[]"
	if len(f.responses) > 0 {
		text = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

func testDoc(id, buyerID int64, text string) model.BoardDocument {
	meeting := time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC)
	return model.BoardDocument{
		ID:          id,
		BuyerID:     buyerID,
		Title:       "Finance Committee Papers",
		Committee:   "Finance",
		MeetingDate: &meeting,
		SourceURL:   "https://democracy.example.org/doc",
		TextContent: text,
	}
}

func newTestExtractor(store DocumentStore, llm anthropic.Client, led ledger.Store, opts ExtractorOptions) *Extractor {
	e := NewExtractor(store, llm, led, opts)
	e.sleep = func(context.Context, time.Duration) {}
	return e
}

func TestExtractor_StoresValidSignals(t *testing.T) {
	store := &fakeDocStore{
		buyers: []int64{7},
		docs: map[int64][]model.BoardDocument{
			7: {testDoc(100, 7, "The committee approved procurement of a new housing framework.")},
		},
	}
	llm := &fakeLLM{responses: []string{
		`[
			{"type": "PROCUREMENT", "title": "Housing framework approved", "insight": "A new housing framework was approved for tender.", "confidence": 0.9, "companies": ["Wates"]},
			{"type": "GOSSIP", "title": "Ignored", "insight": "Unrecognized type gets dropped.", "confidence": 0.9},
			{"type": "FINANCIAL", "title": "Too short", "insight": "tiny", "confidence": 0.5}
		]`,
	}}
	e := newTestExtractor(store, llm, &fakeLedger{}, ExtractorOptions{Model: "m", MaxTokens: 1024})

	res, err := e.Stage().Fn(context.Background(), &ledger.Entry{}, 0)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, int64(1), res.Processed)

	// Only the well-formed entry survives validation.
	require.Len(t, store.signals, 1)
	sig := store.signals[0]
	assert.Equal(t, model.SignalProcurement, sig.SignalType)
	assert.Equal(t, int64(7), sig.BuyerID)
	assert.Equal(t, int64(100), sig.BoardDocumentID)
	assert.Equal(t, "https://democracy.example.org/doc", sig.SourceURL)
	assert.Equal(t, []string{"Wates"}, sig.Entities.Companies)

	assert.Equal(t, model.ExtractionProcessed, store.statuses[100])

	// The prompt carries document context ahead of the chunk text.
	assert.Contains(t, llm.prompts[0], "Finance Committee Papers")
	assert.Contains(t, llm.prompts[0], "2026-07-14")
}

func TestExtractor_FailedDocumentIsIsolated(t *testing.T) {
	store := &fakeDocStore{
		buyers: []int64{7},
		docs: map[int64][]model.BoardDocument{
			7: {
				testDoc(100, 7, "first document"),
				testDoc(101, 7, "second document"),
			},
		},
	}
	llm := &fakeLLM{errOn: 1}
	led := &fakeLedger{}
	e := newTestExtractor(store, llm, led, ExtractorOptions{Model: "m"})

	entry := &ledger.Entry{}
	res, err := e.Stage().Fn(context.Background(), entry, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Errors)
	assert.Equal(t, int64(1), res.Processed)
	assert.Equal(t, model.ExtractionFailed, store.statuses[100])
	assert.Equal(t, model.ExtractionProcessed, store.statuses[101])

	// The failure reaches the ledger entry's counters and error log.
	assert.Equal(t, int64(1), entry.TotalProcessed)
	assert.Equal(t, int64(1), entry.TotalErrors)
	require.Len(t, entry.ErrorLog, 1)
	assert.Contains(t, entry.ErrorLog[0], "document 100")
}

func TestExtractor_CallBudgetStopsEarly(t *testing.T) {
	store := &fakeDocStore{
		buyers: []int64{7},
		docs: map[int64][]model.BoardDocument{
			7: {
				testDoc(100, 7, "doc one"),
				testDoc(101, 7, "doc two"),
				testDoc(102, 7, "doc three"),
			},
		},
	}
	llm := &fakeLLM{}
	e := newTestExtractor(store, llm, &fakeLedger{}, ExtractorOptions{Model: "m", CallBudget: 2})

	res, err := e.Stage().Fn(context.Background(), &ledger.Entry{}, 0)
	require.NoError(t, err)
	// Budget spent before the third document: stage is not done.
	assert.False(t, res.Done)
	assert.Equal(t, 2, llm.calls)
	_, touched := store.statuses[102]
	assert.False(t, touched)
}

func TestExtractor_ChunkedDocumentCombinesSignals(t *testing.T) {
	longText := strings.Repeat("Board business. ", 90) // forces two chunks at size 800
	store := &fakeDocStore{
		buyers: []int64{7},
		docs:   map[int64][]model.BoardDocument{7: {testDoc(100, 7, longText)}},
	}
	llm := &fakeLLM{responses: []string{
		`[{"type": "STRATEGY", "title": "Digital strategy refresh", "insight": "A refreshed digital strategy was presented.", "confidence": 0.8}]`,
		`[{"type": "STAFFING", "title": "New transformation director", "insight": "Recruitment of a transformation director was agreed.", "confidence": 0.7}]`,
	}}
	e := newTestExtractor(store, llm, &fakeLedger{}, ExtractorOptions{Model: "m", ChunkSize: 800, ChunkOverlap: 100})

	res, err := e.Stage().Fn(context.Background(), &ledger.Entry{}, 0)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, 2, llm.calls)
	require.Len(t, store.signals, 2)
	assert.Equal(t, model.SignalStrategy, store.signals[0].SignalType)
	assert.Equal(t, model.SignalStaffing, store.signals[1].SignalType)
}

func TestExtractor_MaxDocsPerBuyerCap(t *testing.T) {
	docs := make([]model.BoardDocument, 8)
	for i := range docs {
		docs[i] = testDoc(int64(200+i), 7, "text")
	}
	store := &fakeDocStore{buyers: []int64{7}, docs: map[int64][]model.BoardDocument{7: docs}}
	llm := &fakeLLM{}
	e := newTestExtractor(store, llm, &fakeLedger{}, ExtractorOptions{Model: "m", MaxDocsPerBuyer: 5})

	_, err := e.Stage().Fn(context.Background(), &ledger.Entry{}, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, llm.calls)
}
