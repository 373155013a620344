package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tenderscope/intel-cli/internal/pipeline"
)

var (
	syncBudget  int
	syncRecycle bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync contract notices from the UK procurement APIs",
	Long:  "Pages OCDS releases from Find a Tender and Contracts Finder into the catalog, resuming from the job ledger. A completed pipeline recycles into an incremental pass on the next run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, "sync")
		if err != nil {
			return err
		}
		defer e.Close()

		budget := syncBudget
		if budget == 0 {
			budget = cfg.Sync.PageBudget
		}

		return runPipeline(ctx, "sync", e.syncStages(), e.Ledger, pipeline.Options{
			Budget:  budget,
			Recycle: syncRecycle,
		})
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncBudget, "budget", 0, "max pages per source this run; 0 uses config, unbounded by default")
	syncCmd.Flags().BoolVar(&syncRecycle, "recycle", true, "re-run a completed pipeline incrementally from its last sync date")
	rootCmd.AddCommand(syncCmd)
}
