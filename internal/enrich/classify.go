// Package enrich progressively fills in buyer organisation profiles:
// registry classification, external profile lookup, and completeness
// scoring. Every stage is additive and safe to re-run.
package enrich

import (
	"context"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/pipeline"
)

// OrgTypeUnknown marks buyers no registry entry matched, so they are not
// rescanned every pass.
const OrgTypeUnknown = "UNKNOWN"

// Directory is the slice of the store the classification stage uses.
type Directory interface {
	ListDataSources(ctx context.Context) ([]model.DataSource, error)
	ListUnclassifiedBuyers(ctx context.Context, limit int) ([]model.Buyer, error)
	UpdateBuyerClassification(ctx context.Context, b *model.Buyer) error
}

// stripTokens are generic public-sector words removed before fuzzy
// comparison, so "Leeds City Council" and "Leeds Council" normalize alike.
var stripTokens = map[string]bool{
	"the": true, "of": true, "and": true, "for": true,
	"council": true, "borough": true, "city": true, "county": true,
	"district": true, "metropolitan": true, "royal": true,
	"nhs": true, "foundation": true, "trust": true, "hospitals": true,
	"integrated": true, "care": true, "board": true,
	"clinical": true, "commissioning": true, "group": true,
	"ltd": true, "limited": true,
}

// NormalizeOrgName lowers, strips punctuation, and drops generic tokens.
// Falls back to the bare lowered name when stripping would leave nothing.
func NormalizeOrgName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	var kept []string
	for _, tok := range strings.Fields(b.String()) {
		if !stripTokens[tok] {
			kept = append(kept, tok)
		}
	}
	if len(kept) == 0 {
		return strings.Join(strings.Fields(b.String()), " ")
	}
	return strings.Join(kept, " ")
}

// Index is an in-memory fuzzy-matchable view of the data source registry.
type Index struct {
	exact   map[string]int
	entries []indexEntry
	sources []model.DataSource
}

type indexEntry struct {
	normalized string
	idx        int
}

// NewIndex builds an index over the registry.
func NewIndex(sources []model.DataSource) *Index {
	ix := &Index{
		exact:   make(map[string]int, len(sources)),
		sources: sources,
	}
	for i := range sources {
		norm := NormalizeOrgName(sources[i].Name)
		if norm == "" {
			continue
		}
		if _, dup := ix.exact[norm]; !dup {
			ix.exact[norm] = i
		}
		ix.entries = append(ix.entries, indexEntry{normalized: norm, idx: i})
	}
	return ix
}

// Match finds the registry entry closest to name. The second return is the
// edit distance as a fraction of the longer normalized string; matches above
// threshold are rejected with a nil entry, but the nearest candidate's
// distance is still returned so callers can report near misses. Exact
// normalized hits short-circuit at 0.
func (ix *Index) Match(name string, threshold float64) (*model.DataSource, float64) {
	norm := NormalizeOrgName(name)
	if norm == "" {
		return nil, 1
	}
	if i, ok := ix.exact[norm]; ok {
		return &ix.sources[i], 0
	}

	best := -1
	bestRatio := 1.0
	for _, e := range ix.entries {
		maxLen := max(len(norm), len(e.normalized))
		if maxLen == 0 {
			continue
		}
		dist := levenshtein.ComputeDistance(norm, e.normalized)
		ratio := float64(dist) / float64(maxLen)
		if best < 0 || ratio < bestRatio {
			best = e.idx
			bestRatio = ratio
		}
	}
	if best < 0 || bestRatio > threshold {
		return nil, bestRatio
	}
	return &ix.sources[best], bestRatio
}

// Classifier matches unclassified buyers against the registry.
type Classifier struct {
	dir         Directory
	ledgerStore ledger.Store
	threshold   float64
	batch       int
	log         *zap.Logger
}

// NewClassifier creates the classification stage. threshold is the maximum
// accepted edit-distance ratio; batch is buyers per invocation.
func NewClassifier(dir Directory, ledgerStore ledger.Store, threshold float64, batch int) *Classifier {
	return &Classifier{
		dir:         dir,
		ledgerStore: ledgerStore,
		threshold:   threshold,
		batch:       batch,
		log:         zap.L().With(zap.String("stage", "classify")),
	}
}

// Stage exposes the classifier as a pipeline stage.
func (c *Classifier) Stage() pipeline.Stage {
	return pipeline.Stage{Name: "classify", Fn: c.run}
}

func (c *Classifier) run(ctx context.Context, entry *ledger.Entry, budget int) (pipeline.Result, error) {
	limit := c.batch
	if budget > 0 && budget < limit {
		limit = budget
	}

	sources, err := c.dir.ListDataSources(ctx)
	if err != nil {
		return pipeline.Result{}, eris.Wrap(err, "enrich: load registry")
	}
	index := NewIndex(sources)

	buyers, err := c.dir.ListUnclassifiedBuyers(ctx, limit)
	if err != nil {
		return pipeline.Result{}, eris.Wrap(err, "enrich: list unclassified buyers")
	}

	var res pipeline.Result
	for i := range buyers {
		b := &buyers[i]
		ds, ratio := index.Match(b.Name, c.threshold)
		if ds != nil {
			b.OrgType = ds.OrgType
			b.DataSourceID = &ds.ID
			b.GovernanceURL = ds.GovernanceURL
			b.GovernancePlatform = ds.Platform
			b.BoardPapersURL = ds.BoardPapersURL
			b.Website = ds.Website
			c.log.Debug("buyer classified",
				zap.String("buyer", b.Name),
				zap.String("matched", ds.Name),
				zap.Float64("distance", ratio),
			)
		} else {
			b.OrgType = OrgTypeUnknown
			c.log.Info("buyer unmatched, needs manual review",
				zap.String("buyer", b.Name),
				zap.Float64("nearest_distance", ratio),
			)
		}

		if err := c.dir.UpdateBuyerClassification(ctx, b); err != nil {
			return res, eris.Wrapf(err, "enrich: classify buyer %d", b.ID)
		}
		res.Processed++
	}

	if res.Processed > 0 {
		if err := c.ledgerStore.SaveProgress(ctx, entry, ledger.Progress{Processed: res.Processed}); err != nil {
			return res, eris.Wrap(err, "enrich: checkpoint classify")
		}
	}

	res.Done = len(buyers) < limit
	return res, nil
}
