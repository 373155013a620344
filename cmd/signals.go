package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tenderscope/intel-cli/internal/pipeline"
)

var signalsBudget int

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Extract buying signals from governance documents",
	Long:  "Runs extracted board papers through Claude to pull procurement, staffing, and budget signals, then dedupes near-identical signals within the rolling window.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, "signals")
		if err != nil {
			return err
		}
		defer e.Close()

		return runPipeline(ctx, "signals", e.signalsStages(), e.Ledger, pipeline.Options{
			Budget:    signalsBudget,
			BatchSize: cfg.Signals.MaxDocsPerBuyer,
			Recycle:   true,
		})
	},
}

func init() {
	signalsCmd.Flags().IntVar(&signalsBudget, "budget", 0, "max documents this run; 0 means unbounded")
	rootCmd.AddCommand(signalsCmd)
}
