package enrich

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/pipeline"
	"github.com/tenderscope/intel-cli/pkg/orglookup"
)

// ProfileWriter is the slice of the store the profile stage uses.
type ProfileWriter interface {
	ListBuyersForProfile(ctx context.Context, limit int) ([]model.Buyer, error)
	UpdateBuyerProfile(ctx context.Context, b *model.Buyer) error
}

// Profiler fills buyer profiles from the external organisation lookup.
type Profiler struct {
	writer        ProfileWriter
	lookup        orglookup.Client
	ledgerStore   ledger.Store
	maxConcurrent int
	batch         int
	log           *zap.Logger
}

// NewProfiler creates the profile lookup stage.
func NewProfiler(writer ProfileWriter, lookup orglookup.Client, ledgerStore ledger.Store, maxConcurrent, batch int) *Profiler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Profiler{
		writer:        writer,
		lookup:        lookup,
		ledgerStore:   ledgerStore,
		maxConcurrent: maxConcurrent,
		batch:         batch,
		log:           zap.L().With(zap.String("stage", "profile")),
	}
}

// Stage exposes the profiler as a pipeline stage.
func (p *Profiler) Stage() pipeline.Stage {
	return pipeline.Stage{Name: "profile", Fn: p.run}
}

// run looks up one batch of buyers with bounded concurrency. A failed lookup
// costs one error and leaves that buyer eligible for the next pass; a missing
// profile still stamps the buyer so it is not retried forever.
func (p *Profiler) run(ctx context.Context, entry *ledger.Entry, budget int) (pipeline.Result, error) {
	limit := p.batch
	if budget > 0 && budget < limit {
		limit = budget
	}

	buyers, err := p.writer.ListBuyersForProfile(ctx, limit)
	if err != nil {
		return pipeline.Result{}, eris.Wrap(err, "enrich: list buyers for profile")
	}

	var mu sync.Mutex
	var res pipeline.Result
	var messages []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)
	for i := range buyers {
		b := buyers[i]
		g.Go(func() error {
			err := p.profileOne(gctx, &b)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.log.Warn("profile lookup failed", zap.String("buyer", b.Name), zap.Error(err))
				messages = append(messages, fmt.Sprintf("profile lookup failed for %q: %v", b.Name, err))
				res.Errors++
				return nil
			}
			res.Processed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, eris.Wrap(err, "enrich: profile batch")
	}

	if len(buyers) > 0 {
		if err := p.ledgerStore.SaveProgress(ctx, entry, ledger.Progress{
			Processed: res.Processed,
			Errors:    res.Errors,
			Messages:  messages,
		}); err != nil {
			return res, eris.Wrap(err, "enrich: checkpoint profile")
		}
	}

	res.Done = len(buyers) < limit
	return res, nil
}

func (p *Profiler) profileOne(ctx context.Context, b *model.Buyer) error {
	org, err := p.lookup.SearchByName(ctx, b.Name)
	if err != nil {
		return err
	}

	if org != nil {
		b.Website = org.Website
		b.LogoURL = org.LogoURL
		b.LinkedInURL = org.LinkedInURL
		b.Description = org.Description
		b.StaffCount = org.EmployeeCount
		b.EnrichmentSources = append(b.EnrichmentSources, "orglookup")
	}
	return p.writer.UpdateBuyerProfile(ctx, b)
}
