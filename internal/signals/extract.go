package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/pipeline"
	"github.com/tenderscope/intel-cli/pkg/anthropic"
)

const systemPrompt = `You are an analyst reading UK public-sector governance documents
(board papers, committee minutes, meeting agendas) to find buying-intelligence signals.

Report only concrete, decision-relevant items. For each signal emit a JSON object with:
- "type": one of PROCUREMENT, STAFFING, STRATEGY, FINANCIAL, PROJECTS, REGULATORY
- "title": a short headline (under 15 words)
- "insight": 1-3 sentences on what happened and why a supplier would care
- "confidence": 0.0-1.0, how clearly the document supports the signal
- "quote": the exact supporting passage from the document
- "companies", "amounts", "dates", "people": arrays of named entities, empty if none

Respond with a JSON array only. If the text contains no signals, respond with [].`

// DocumentStore is the slice of the store the extraction stage uses.
type DocumentStore interface {
	ListBuyersWithPendingDocuments(ctx context.Context, limit int) ([]int64, error)
	RecentUnprocessedDocuments(ctx context.Context, buyerID int64, limit int) ([]model.BoardDocument, error)
	SetDocumentSignalStatus(ctx context.Context, docID int64, status model.ExtractionStatus) error
	UpsertSignals(ctx context.Context, signals []model.Signal) (int64, error)
}

// ExtractorOptions tunes the extraction stage.
type ExtractorOptions struct {
	Model           string
	MaxTokens       int64
	MaxDocsPerBuyer int
	ChunkSize       int
	ChunkOverlap    int
	CallBudget      int           // max LLM calls per invocation; <= 0 means unbounded
	ChunkDelay      time.Duration // pause between LLM calls
}

// Extractor scans pending governance documents for signals.
type Extractor struct {
	store       DocumentStore
	llm         anthropic.Client
	ledgerStore ledger.Store
	opts        ExtractorOptions
	sleep       func(context.Context, time.Duration)
	log         *zap.Logger
}

// NewExtractor creates the extraction stage.
func NewExtractor(store DocumentStore, llm anthropic.Client, ledgerStore ledger.Store, opts ExtractorOptions) *Extractor {
	if opts.MaxDocsPerBuyer <= 0 {
		opts.MaxDocsPerBuyer = 5
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 4000
	}
	return &Extractor{
		store:       store,
		llm:         llm,
		ledgerStore: ledgerStore,
		opts:        opts,
		sleep:       sleepCtx,
		log:         zap.L().With(zap.String("stage", "extract")),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Stage exposes the extractor as a pipeline stage.
func (e *Extractor) Stage() pipeline.Stage {
	return pipeline.Stage{Name: "extract", Fn: e.run}
}

// run walks buyers with pending documents until the call budget is spent.
// A document that fails to extract is marked failed and costs one error;
// the walk continues. Progress is checkpointed per buyer, after that buyer's
// signals and document statuses are durable.
func (e *Extractor) run(ctx context.Context, entry *ledger.Entry, budget int) (pipeline.Result, error) {
	callBudget := e.opts.CallBudget
	if budget > 0 && (callBudget <= 0 || budget < callBudget) {
		callBudget = budget
	}

	buyers, err := e.store.ListBuyersWithPendingDocuments(ctx, 1000)
	if err != nil {
		return pipeline.Result{}, eris.Wrap(err, "signals: list pending buyers")
	}

	var res pipeline.Result
	calls := 0
	for _, buyerID := range buyers {
		docs, err := e.store.RecentUnprocessedDocuments(ctx, buyerID, e.opts.MaxDocsPerBuyer)
		if err != nil {
			return res, eris.Wrapf(err, "signals: list documents for buyer %d", buyerID)
		}

		var progress ledger.Progress
		budgetSpent := false
		for i := range docs {
			if callBudget > 0 && calls >= callBudget {
				budgetSpent = true
				break
			}

			doc := &docs[i]
			used, err := e.extractDocument(ctx, doc)
			calls += used
			if err != nil {
				e.log.Warn("document extraction failed",
					zap.Int64("document_id", doc.ID), zap.Error(err))
				if markErr := e.store.SetDocumentSignalStatus(ctx, doc.ID, model.ExtractionFailed); markErr != nil {
					return res, markErr
				}
				progress.Errors++
				progress.Messages = append(progress.Messages,
					fmt.Sprintf("document %d failed: %v", doc.ID, err))
				continue
			}
			progress.Processed++
		}

		if progress.Processed+progress.Errors > 0 {
			if err := e.ledgerStore.SaveProgress(ctx, entry, progress); err != nil {
				return res, eris.Wrapf(err, "signals: checkpoint buyer %d", buyerID)
			}
			res.Processed += progress.Processed
			res.Errors += progress.Errors
		}
		if budgetSpent {
			return res, nil
		}
	}

	res.Done = true
	return res, nil
}

// extractDocument runs every chunk of one document through the model and
// stores the combined signals. Returns the number of LLM calls consumed.
func (e *Extractor) extractDocument(ctx context.Context, doc *model.BoardDocument) (int, error) {
	chunks := Chunk(doc.TextContent, e.opts.ChunkSize, e.opts.ChunkOverlap)

	var collected []model.Signal
	calls := 0
	for i, chunk := range chunks {
		if i > 0 {
			e.sleep(ctx, e.opts.ChunkDelay)
		}

		resp, err := e.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.opts.Model,
			MaxTokens: e.opts.MaxTokens,
			System: []anthropic.SystemBlock{
				{Text: systemPrompt, CacheControl: &anthropic.CacheControl{}},
			},
			Messages: []anthropic.Message{
				{Role: "user", Content: chunkPrompt(doc, chunk)},
			},
		})
		calls++
		if err != nil {
			return calls, eris.Wrapf(err, "signals: chunk %d of document %d", i, doc.ID)
		}
		resp.Usage.LogCost(e.opts.Model, "signals")

		raw, err := ParseCompletion(resp.Text())
		if err != nil {
			return calls, eris.Wrapf(err, "signals: parse chunk %d of document %d", i, doc.ID)
		}
		collected = append(collected, e.keepValid(raw, doc)...)
	}

	if len(collected) > 0 {
		if _, err := e.store.UpsertSignals(ctx, collected); err != nil {
			return calls, err
		}
	}
	if err := e.store.SetDocumentSignalStatus(ctx, doc.ID, model.ExtractionProcessed); err != nil {
		return calls, err
	}

	e.log.Info("document extracted",
		zap.Int64("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
		zap.Int("signals", len(collected)),
	)
	return calls, nil
}

func chunkPrompt(doc *model.BoardDocument, chunk string) string {
	header := fmt.Sprintf("Document: %s", doc.Title)
	if doc.Committee != "" {
		header += fmt.Sprintf("\nCommittee: %s", doc.Committee)
	}
	if doc.MeetingDate != nil {
		header += fmt.Sprintf("\nMeeting date: %s", doc.MeetingDate.Format("2006-01-02"))
	}
	return header + "\n\n" + chunk
}

// keepValid converts raw model entries to signals, dropping entries with an
// unrecognized type, an empty title, or an insight too short to be useful.
func (e *Extractor) keepValid(raw []rawSignal, doc *model.BoardDocument) []model.Signal {
	var out []model.Signal
	for _, r := range raw {
		sigType, ok := normalizeType(r.Type)
		if !ok || r.Title == "" || len(r.Insight) <= 10 {
			continue
		}
		confidence := r.Confidence
		if confidence < 0 {
			confidence = 0
		} else if confidence > 1 {
			confidence = 1
		}
		out = append(out, model.Signal{
			BuyerID:         doc.BuyerID,
			BoardDocumentID: doc.ID,
			SignalType:      sigType,
			Title:           r.Title,
			Insight:         r.Insight,
			Confidence:      confidence,
			Quote:           r.Quote,
			Entities: model.SignalEntities{
				Companies: r.Companies,
				Amounts:   r.Amounts,
				Dates:     r.Dates,
				People:    r.People,
			},
			SourceURL:  doc.SourceURL,
			SourceDate: doc.MeetingDate,
		})
	}
	return out
}
