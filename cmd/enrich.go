package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tenderscope/intel-cli/internal/enrich"
	"github.com/tenderscope/intel-cli/internal/pipeline"
	"github.com/tenderscope/intel-cli/pkg/orglookup"
)

var (
	enrichBudget  int
	enrichBuyerID int64
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Classify, profile, and score buyers",
	Long:  "Matches buyers against the organisation registry, fills profiles from the company lookup API, and computes completeness scores. --buyer enriches a single buyer end to end instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer e.Close()

		lookup := orgLookupClient()

		if enrichBuyerID > 0 {
			return enrich.RunSingle(ctx, e.Store, lookup, enrichBuyerID, cfg.Enrich.FuzzyThreshold)
		}

		return runPipeline(ctx, "enrich", e.enrichStages(lookup), e.Ledger, pipeline.Options{
			Budget:    enrichBudget,
			BatchSize: cfg.Enrich.BatchSize,
			Recycle:   true,
		})
	},
}

// orgLookupClient returns the profile lookup client, or nil when profile
// lookups are disabled in config.
func orgLookupClient() orglookup.Client {
	if !cfg.Enrich.ProfileLookups || cfg.OrgLookup.Key == "" {
		return nil
	}
	return orglookup.NewClient(cfg.OrgLookup.Key, orglookup.WithBaseURL(cfg.OrgLookup.BaseURL))
}

func init() {
	enrichCmd.Flags().IntVar(&enrichBudget, "budget", 0, "max buyers per stage this run; 0 means unbounded")
	enrichCmd.Flags().Int64Var(&enrichBuyerID, "buyer", 0, "enrich a single buyer by id and exit")
	rootCmd.AddCommand(enrichCmd)
}
