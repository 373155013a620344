package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tenderscope/intel-cli/internal/ledger"
	"github.com/tenderscope/intel-cli/internal/pipeline"
)

// GovernanceWriter propagates registry governance fields onto buyers.
type GovernanceWriter interface {
	PropagateGovernance(ctx context.Context) (int64, error)
}

// Governance fills governance portal URLs for classified buyers that are
// missing them. Catches buyers classified before their registry entry
// gained governance data, and registry re-imports.
type Governance struct {
	writer      GovernanceWriter
	ledgerStore ledger.Store
	log         *zap.Logger
}

// NewGovernance creates the governance propagation stage.
func NewGovernance(writer GovernanceWriter, ledgerStore ledger.Store) *Governance {
	return &Governance{
		writer:      writer,
		ledgerStore: ledgerStore,
		log:         zap.L().With(zap.String("stage", "governance")),
	}
}

// Stage exposes governance propagation as a pipeline stage.
func (g *Governance) Stage() pipeline.Stage {
	return pipeline.Stage{Name: "governance", Fn: g.run}
}

// run is set-based: one pass covers every eligible buyer, so the stage is
// always done after a single invocation.
func (g *Governance) run(ctx context.Context, entry *ledger.Entry, _ int) (pipeline.Result, error) {
	n, err := g.writer.PropagateGovernance(ctx)
	if err != nil {
		return pipeline.Result{}, eris.Wrap(err, "enrich: propagate governance")
	}
	if n > 0 {
		g.log.Info("governance fields propagated", zap.Int64("buyers", n))
		if err := g.ledgerStore.SaveProgress(ctx, entry, ledger.Progress{Processed: n}); err != nil {
			return pipeline.Result{Processed: n}, eris.Wrap(err, "enrich: checkpoint governance")
		}
	}
	return pipeline.Result{Processed: n, Done: true}, nil
}
