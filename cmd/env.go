package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/enrich"
	"github.com/tenderscope/intel-cli/internal/fetcher"
	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/migrate"
	"github.com/tenderscope/intel-cli/internal/pipeline"
	"github.com/tenderscope/intel-cli/internal/signals"
	"github.com/tenderscope/intel-cli/internal/source"
	"github.com/tenderscope/intel-cli/internal/store"
	"github.com/tenderscope/intel-cli/internal/syncer"
	"github.com/tenderscope/intel-cli/internal/watch"
	"github.com/tenderscope/intel-cli/pkg/anthropic"
	"github.com/tenderscope/intel-cli/pkg/orglookup"
)

var errMissingDatabaseURL = eris.New("store.database_url is required")

// env bundles the shared infrastructure a command needs: the catalog store
// and the job ledger, with migrations applied.
type env struct {
	Store  *store.PostgresStore
	Ledger ledger.Store

	closers []func()
}

// initEnv validates config for the given mode, connects the store, applies
// migrations, and opens the ledger backend.
func initEnv(ctx context.Context, mode string) (*env, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	if err != nil {
		return nil, err
	}
	e := &env{Store: st}
	e.closers = append(e.closers, st.Close)

	if err := migrate.Run(ctx, st.Pool()); err != nil {
		e.Close()
		return nil, err
	}

	switch cfg.Ledger.Driver {
	case "sqlite":
		led, err := ledger.NewSQLiteStore(cfg.Ledger.Path)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.Ledger = led
		e.closers = append(e.closers, func() { _ = led.Close() })
	default:
		e.Ledger = ledger.NewPostgresStore(st.Pool())
	}

	return e, nil
}

// Close releases everything initEnv opened, in reverse order.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// syncStages builds the per-source sync stages sharing one paced fetcher,
// with the watchlist matcher wired in as the award sink.
func (e *env) syncStages() []pipeline.Stage {
	f := fetcher.NewDelayedFetcher(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			MaxRetries:   cfg.Sync.MaxRetries,
			RateLimiters: fetcher.DefaultRateLimiters(),
		}),
		time.Duration(cfg.Sync.PageDelaySecs)*time.Second,
	)
	watcher := watch.New(e.Store)

	fat := source.NewFindATender(f, cfg.Sync.FindATenderBaseURL, cfg.Sync.BackfillFrom)
	cf := source.NewContractsFinder(f, cfg.Sync.ContractsFinderBaseURL, cfg.Sync.BackfillFrom)

	return []pipeline.Stage{
		syncer.New(fat, e.Store, e.Ledger, cfg.Sync.BackfillFrom, watcher).Stage(),
		syncer.New(cf, e.Store, e.Ledger, cfg.Sync.BackfillFrom, watcher).Stage(),
	}
}

// enrichStages builds the buyer enrichment stages. The profile stage is
// skipped when profile lookups are disabled.
func (e *env) enrichStages(lookup orglookup.Client) []pipeline.Stage {
	stages := []pipeline.Stage{
		enrich.NewClassifier(e.Store, e.Ledger, cfg.Enrich.FuzzyThreshold, cfg.Enrich.BatchSize).Stage(),
		enrich.NewGovernance(e.Store, e.Ledger).Stage(),
	}
	if lookup != nil {
		stages = append(stages,
			enrich.NewProfiler(e.Store, lookup, e.Ledger, cfg.Enrich.MaxConcurrent, cfg.Enrich.BatchSize).Stage())
	}
	return append(stages,
		enrich.NewScorer(e.Store, e.Ledger, cfg.Enrich.ScoreBatchSize).Stage())
}

// signalsStages builds the signal extraction and dedup stages.
func (e *env) signalsStages() []pipeline.Stage {
	llm := anthropic.NewClient(cfg.Anthropic.Key)
	extractor := signals.NewExtractor(e.Store, llm, e.Ledger, signals.ExtractorOptions{
		Model:           cfg.Anthropic.Model,
		MaxTokens:       int64(cfg.Anthropic.MaxTokens),
		MaxDocsPerBuyer: cfg.Signals.MaxDocsPerBuyer,
		ChunkSize:       cfg.Signals.ChunkSize,
		ChunkOverlap:    cfg.Signals.ChunkOverlap,
		CallBudget:      cfg.Signals.CallBudget,
		ChunkDelay:      time.Duration(cfg.Signals.ChunkDelaySecs) * time.Second,
	})
	deduper := signals.NewDeduper(e.Store, e.Ledger, cfg.Signals.DedupWindowDays)
	return []pipeline.Stage{extractor.Stage(), deduper.Stage()}
}

// runNamedPipeline runs one full pass of a pipeline by name. Used by the
// trigger API.
func (e *env) runNamedPipeline(ctx context.Context, name string) error {
	switch name {
	case "sync":
		return runPipeline(ctx, name, e.syncStages(), e.Ledger, pipeline.Options{
			Budget:  cfg.Sync.PageBudget,
			Recycle: true,
		})
	case "enrich":
		return runPipeline(ctx, name, e.enrichStages(orgLookupClient()), e.Ledger, pipeline.Options{
			BatchSize: cfg.Enrich.BatchSize,
			Recycle:   true,
		})
	case "signals":
		return runPipeline(ctx, name, e.signalsStages(), e.Ledger, pipeline.Options{
			BatchSize: cfg.Signals.MaxDocsPerBuyer,
			Recycle:   true,
		})
	default:
		return eris.Errorf("unknown pipeline %q", name)
	}
}

// runPipeline drives the runner until every stage has completed once in this
// process, or a stage pauses on its budget. A paused pipeline resumes from
// the ledger on the next invocation.
func runPipeline(ctx context.Context, name string, stages []pipeline.Stage, led ledger.Store, opts pipeline.Options) error {
	runner := pipeline.NewRunner(name, stages, led, opts)

	for completed := 0; completed < len(stages); completed++ {
		res, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		if !res.Done {
			zap.L().Info("pipeline paused",
				zap.String("pipeline", name),
				zap.Int64("processed", res.Processed),
			)
			return nil
		}
	}
	return nil
}
