package main

import (
	"github.com/spf13/cobra"

	"github.com/tenderscope/intel-cli/internal/migrate"
	"github.com/tenderscope/intel-cli/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Store.DatabaseURL == "" {
			return errMissingDatabaseURL
		}
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return err
		}
		defer st.Close()

		return migrate.Run(ctx, st.Pool())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
