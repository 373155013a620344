package signals

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/pipeline"
)

// DedupStore is the slice of the store the dedup stage uses.
type DedupStore interface {
	ListSignalBuyers(ctx context.Context, afterID int64, limit int) ([]int64, error)
	ListSignalsByType(ctx context.Context, buyerID int64, signalType model.SignalType) ([]model.Signal, error)
	DeleteSignals(ctx context.Context, ids []int64) error
}

var allSignalTypes = []model.SignalType{
	model.SignalProcurement, model.SignalStaffing, model.SignalStrategy,
	model.SignalFinancial, model.SignalProjects, model.SignalRegulatory,
}

const defaultDedupBatch = 100

// Deduper removes cross-document duplicates of the same signal per buyer.
type Deduper struct {
	store       DedupStore
	ledgerStore ledger.Store
	window      time.Duration
	log         *zap.Logger
}

// NewDeduper creates the dedup stage; windowDays bounds how far apart two
// signals can be and still count as the same item.
func NewDeduper(store DedupStore, ledgerStore ledger.Store, windowDays int) *Deduper {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Deduper{
		store:       store,
		ledgerStore: ledgerStore,
		window:      time.Duration(windowDays) * 24 * time.Hour,
		log:         zap.L().With(zap.String("stage", "dedupe")),
	}
}

// Stage exposes the deduper as a pipeline stage.
func (d *Deduper) Stage() pipeline.Stage {
	return pipeline.Stage{Name: "dedupe", Fn: d.run}
}

// run walks buyers with signals in id order, one batch at a time. The last
// buyer id of each batch is checkpointed as the cursor after its deletions
// are durable, so an interrupted pass resumes mid-walk; budget bounds the
// buyers scanned per invocation.
func (d *Deduper) run(ctx context.Context, entry *ledger.Entry, budget int) (pipeline.Result, error) {
	batch := entry.BatchSize
	if batch <= 0 {
		batch = defaultDedupBatch
	}

	afterID := int64(0)
	if entry.Cursor != nil {
		id, err := strconv.ParseInt(*entry.Cursor, 10, 64)
		if err != nil {
			return pipeline.Result{}, eris.Wrapf(err, "signals: bad dedup cursor %q", *entry.Cursor)
		}
		afterID = id
	}

	var res pipeline.Result
	for {
		limit := batch
		if budget > 0 {
			remaining := budget - int(res.Processed)
			if remaining <= 0 {
				return res, nil
			}
			if remaining < limit {
				limit = remaining
			}
		}

		buyers, err := d.store.ListSignalBuyers(ctx, afterID, limit)
		if err != nil {
			return res, eris.Wrap(err, "signals: list buyers for dedup")
		}
		if len(buyers) == 0 {
			res.Done = true
			return res, nil
		}

		for _, buyerID := range buyers {
			if err := d.dedupeBuyer(ctx, buyerID); err != nil {
				return res, err
			}
		}

		afterID = buyers[len(buyers)-1]
		cursor := strconv.FormatInt(afterID, 10)
		if err := d.ledgerStore.SaveProgress(ctx, entry, ledger.Progress{
			Cursor:    &cursor,
			Processed: int64(len(buyers)),
		}); err != nil {
			return res, eris.Wrap(err, "signals: checkpoint dedup")
		}
		res.Processed += int64(len(buyers))

		if len(buyers) < limit {
			res.Done = true
			return res, nil
		}
	}
}

func (d *Deduper) dedupeBuyer(ctx context.Context, buyerID int64) error {
	for _, sigType := range allSignalTypes {
		sigs, err := d.store.ListSignalsByType(ctx, buyerID, sigType)
		if err != nil {
			return eris.Wrapf(err, "signals: load %s signals for buyer %d", sigType, buyerID)
		}
		duplicates := FindDuplicates(sigs, d.window)
		if len(duplicates) == 0 {
			continue
		}
		if err := d.store.DeleteSignals(ctx, duplicates); err != nil {
			return eris.Wrapf(err, "signals: delete duplicates for buyer %d", buyerID)
		}
		d.log.Info("duplicates removed",
			zap.Int64("buyer_id", buyerID),
			zap.String("type", string(sigType)),
			zap.Int("count", len(duplicates)),
		)
	}
	return nil
}

// FindDuplicates returns ids of signals that duplicate another in the list.
// Input must be sorted newest first. Two signals duplicate when their content
// keys match and their source dates fall within the window; the higher
// confidence copy survives.
func FindDuplicates(sigs []model.Signal, window time.Duration) []int64 {
	kept := make(map[string]*model.Signal)
	var duplicates []int64

	for i := range sigs {
		s := &sigs[i]
		key := ContentKey(s.Title + " " + s.Insight)
		prev, ok := kept[key]
		if !ok {
			kept[key] = s
			continue
		}
		if !withinWindow(prev.SourceDate, s.SourceDate, window) {
			// Too far apart: a genuine recurrence, both stay. The older one
			// becomes the comparator for anything older still.
			kept[key] = s
			continue
		}
		if s.Confidence > prev.Confidence {
			duplicates = append(duplicates, prev.ID)
			kept[key] = s
		} else {
			duplicates = append(duplicates, s.ID)
		}
	}
	return duplicates
}

// ContentKey reduces a signal's title and narrative to the five longest
// significant words, lowered and sorted, so reworded duplicates still
// collide.
func ContentKey(text string) string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()[]'\"")
		if len(w) > 3 {
			words = append(words, w)
		}
	}
	// Longest first; ties break alphabetically for determinism.
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	if len(words) > 5 {
		words = words[:5]
	}
	sort.Strings(words)
	return strings.Join(words, " ")
}

func withinWindow(a, b *time.Time, window time.Duration) bool {
	// Undated signals cannot prove they are distinct: treat as within.
	if a == nil || b == nil {
		return true
	}
	diff := a.Sub(*b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}
