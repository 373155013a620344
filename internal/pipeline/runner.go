// Package pipeline orchestrates ordered stages over the job ledger. One
// Runner invocation advances a single pipeline: it finds the first
// incomplete stage, runs it under an item budget, and checkpoints progress.
package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/ledger"
)

// Result is what a stage function reports for one invocation. Done means
// the stage has no remaining input and should be marked complete.
type Result struct {
	Processed int64
	Errors    int64
	Done      bool
}

// StageFunc advances one stage. It must checkpoint its own batch progress
// through the ledger store (cursor strictly after durable side effects) and
// respect the item budget; budget <= 0 means unbounded.
type StageFunc func(ctx context.Context, entry *ledger.Entry, budget int) (Result, error)

// Stage is one named unit of pipeline work.
type Stage struct {
	Name string
	Fn   StageFunc
}

// Options tunes a Runner.
type Options struct {
	// Budget bounds items processed per invocation; <= 0 means unbounded.
	Budget int
	// BatchSize is recorded on new ledger entries as the per-fetch unit.
	BatchSize int
	// Recycle resets all stages and re-runs the first one when every stage
	// is complete, turning a finished backfill into an incremental pass.
	Recycle bool
}

// Runner drives one pipeline's stages against the ledger.
type Runner struct {
	pipeline string
	stages   []Stage
	store    ledger.Store
	opts     Options
	log      *zap.Logger
}

// NewRunner creates a Runner for the named pipeline.
func NewRunner(pipeline string, stages []Stage, store ledger.Store, opts Options) *Runner {
	return &Runner{
		pipeline: pipeline,
		stages:   stages,
		store:    store,
		opts:     opts,
		log:      zap.L().With(zap.String("pipeline", pipeline)),
	}
}

// current returns the first stage whose ledger entry is not complete, lazily
// creating entries in stage order. Error entries are current too: they
// resume from their saved cursor.
func (r *Runner) current(ctx context.Context) (*Stage, *ledger.Entry, error) {
	for i := range r.stages {
		entry, err := r.store.GetOrCreate(ctx, r.pipeline, r.stages[i].Name, r.opts.BatchSize)
		if err != nil {
			return nil, nil, err
		}
		if entry.Status != ledger.StatusComplete {
			return &r.stages[i], entry, nil
		}
	}
	return nil, nil, nil
}

// Run advances the pipeline by one invocation. It returns the stage result;
// a zero Result with no error means every stage was already complete and
// recycling is off.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	stage, entry, err := r.current(ctx)
	if err != nil {
		return Result{}, eris.Wrapf(err, "pipeline: load %s stages", r.pipeline)
	}

	if stage == nil {
		if !r.opts.Recycle {
			r.log.Info("all stages complete")
			return Result{}, nil
		}
		if err := r.store.Recycle(ctx, r.pipeline); err != nil {
			return Result{}, eris.Wrapf(err, "pipeline: recycle %s", r.pipeline)
		}
		r.log.Info("all stages complete, recycled for incremental pass")
		stage, entry, err = r.current(ctx)
		if err != nil {
			return Result{}, eris.Wrapf(err, "pipeline: load %s stages", r.pipeline)
		}
		if stage == nil {
			return Result{}, eris.Errorf("pipeline: %s has no stages after recycle", r.pipeline)
		}
	}

	log := r.log.With(zap.String("stage", stage.Name))
	log.Info("running stage",
		zap.String("status", string(entry.Status)),
		zap.Bool("resuming", entry.Cursor != nil),
	)

	res, err := stage.Fn(ctx, entry, r.opts.Budget)
	if err != nil {
		if markErr := r.store.MarkError(ctx, entry, err.Error()); markErr != nil {
			log.Error("failed to record stage error", zap.Error(markErr))
		}
		return res, eris.Wrapf(err, "pipeline: %s stage %s", r.pipeline, stage.Name)
	}

	if res.Done {
		if err := r.store.MarkComplete(ctx, entry); err != nil {
			return res, eris.Wrapf(err, "pipeline: complete %s stage %s", r.pipeline, stage.Name)
		}
	}

	log.Info("stage finished",
		zap.Int64("processed", res.Processed),
		zap.Int64("errors", res.Errors),
		zap.Bool("done", res.Done),
	)
	return res, nil
}
