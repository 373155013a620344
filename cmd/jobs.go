package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tenderscope/intel-cli/internal/ledger"
)

var (
	jobsPipeline string
	jobsJSON     bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect pipeline job ledger entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.Ledger.List(ctx, jobsPipeline)
		if err != nil {
			return err
		}

		if jobsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No jobs found.")
			return nil
		}
		formatJobs(os.Stdout, entries)
		return nil
	},
}

func formatJobs(w io.Writer, entries []ledger.Entry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PIPELINE\tSTAGE\tSTATUS\tPROCESSED\tERRORS\tLAST SYNCED\tUPDATED")
	for _, e := range entries {
		lastSynced := "-"
		if e.LastSyncedAt != nil {
			lastSynced = e.LastSyncedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			e.Pipeline, e.Stage, e.Status,
			e.TotalProcessed, e.TotalErrors,
			lastSynced, e.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush()
}

func init() {
	jobsCmd.Flags().StringVar(&jobsPipeline, "pipeline", "", "filter by pipeline name")
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(jobsCmd)
}
