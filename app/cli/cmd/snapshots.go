package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"replyBandit/internal/repository/sqlite"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List arm-state snapshot versions",
	Long: `Lists the snapshot versions stored in a SQLite snapshot database,
newest first. The active version is marked with '*'.`,
	RunE: runSnapshots,
}

var activateCmd = &cobra.Command{
	Use:   "activate <version-id>",
	Short: "Make a stored version the one restored on next start",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivate,
}

func init() {
	snapshotsCmd.PersistentFlags().String("db", "bandit_snapshots.db", "SQLite snapshot database")
	snapshotsCmd.Flags().Int("last", 20, "number of versions to show (0 for all)")
	snapshotsCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

func openSnapshots(cmd *cobra.Command) (*sqlite.SnapshotStore, error) {
	path, _ := cmd.Flags().GetString("db")
	store, err := sqlite.NewSnapshotStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	return store, nil
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	last, _ := cmd.Flags().GetInt("last")

	store, err := openSnapshots(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	versions, err := store.ListVersions(ctx, last)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintln(out, "No snapshots stored.")
		return nil
	}

	active, ok, err := store.LatestSnapshot(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tVERSION\tPARENT\tARMS\tUPDATES\tCREATED")
	for _, v := range versions {
		mark := ""
		if ok && v.VersionID == active.VersionID {
			mark = "*"
		}
		parent := v.ParentID
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			mark, v.VersionID, parent, len(v.Arms), v.Updates, v.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runActivate(cmd *cobra.Command, args []string) error {
	store, err := openSnapshots(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Activate(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Activated %s\n", args[0])
	return nil
}
