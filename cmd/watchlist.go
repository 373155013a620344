package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/tenderscope/intel-cli/internal/model"
	"github.com/tenderscope/intel-cli/internal/watch"
)

var watchUserID string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage supplier watchlists",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <supplier name>",
	Short: "Watch a supplier for new contract awards",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if watchUserID == "" {
			return eris.New("watch: --user is required")
		}
		name := strings.TrimSpace(strings.Join(args, " "))
		if name == "" {
			return eris.New("watch: supplier name is empty")
		}

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		entry := &model.WatchEntry{
			UserID:         watchUserID,
			SupplierName:   name,
			NormalizedName: watch.NormalizeSupplierName(name),
		}
		if err := e.Store.CreateWatchEntry(ctx, entry); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Watching %q for user %s (entry %d).\n", name, watchUserID, entry.ID)
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched suppliers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.Store.ListWatchEntries(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No watch entries.")
			return nil
		}
		formatWatchEntries(os.Stdout, entries)
		return nil
	},
}

var notificationsLimit int

var watchNotificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List recent watchlist notifications for a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if watchUserID == "" {
			return eris.New("watch: --user is required")
		}

		e, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer e.Close()

		notifications, err := e.Store.ListNotifications(ctx, watchUserID, notificationsLimit)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(notifications)
	},
}

func formatWatchEntries(w io.Writer, entries []model.WatchEntry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tSUPPLIER\tCONTRACTS\tREGIONS\tSECTORS")
	for _, e := range entries {
		var contracts int64
		var regions, sectors int
		if e.Snapshot != nil {
			contracts = e.Snapshot.ContractCount
			regions = len(e.Snapshot.Regions)
			sectors = len(e.Snapshot.Sectors)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n",
			e.ID, e.UserID, e.SupplierName, contracts, regions, sectors)
	}
	tw.Flush()
}

func init() {
	watchCmd.PersistentFlags().StringVar(&watchUserID, "user", "", "user the watch entry belongs to")
	watchNotificationsCmd.Flags().IntVar(&notificationsLimit, "limit", 50, "max notifications to return")
	watchCmd.AddCommand(watchAddCmd, watchListCmd, watchNotificationsCmd)
	rootCmd.AddCommand(watchCmd)
}
