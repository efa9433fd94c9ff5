package cli

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tOgg1/msgindex/internal/snapshot"
)

func newSnapshotsCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"snapshot"},
		Short:   "Manage snapshot history",
		Long:    "Snapshot history is kept in SQLite when snapshot.backend is sqlite.",
	}
	cmd.AddCommand(
		newSnapshotsListCmd(rt),
		newSnapshotsPruneCmd(rt),
		newSnapshotsRestoreCmd(rt),
	)
	return cmd
}

func newSnapshotsListCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored snapshots, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")
			jsonOutput, _ := cmd.Flags().GetBool("json")

			history, err := openHistory(ctx, rt.config())
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			defer history.Close()

			records, err := history.List(ctx, limit)
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, records)
			}
			if len(records) == 0 {
				_, err := fmt.Fprintln(out, "No snapshots found.")
				return err
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.ID,
					rec.SavedAt.Local().Format("2006-01-02 15:04:05"),
					humanize.Time(rec.SavedAt),
					humanize.Bytes(uint64(rec.Size)),
				})
			}
			return writeTable(out, []string{"ID", "SAVED", "AGE", "SIZE"}, rows)
		},
	}
	cmd.Flags().Int("limit", 20, "maximum rows (0 for all)")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func newSnapshotsPruneCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rt.config()
			keep := cfg.Snapshot.Keep
			if cmd.Flags().Changed("keep") {
				keep, _ = cmd.Flags().GetInt("keep")
			}
			if keep < 0 {
				return Exitf(ExitCodeUsage, "--keep must not be negative")
			}

			history, err := openHistory(ctx, cfg)
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			defer history.Close()

			removed, err := history.Prune(ctx, keep)
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s snapshot(s), kept at most %d\n", humanize.Comma(int64(removed)), keep)
			return nil
		},
	}
	cmd.Flags().Int("keep", 0, "number of snapshots to keep (default: snapshot.keep)")
	return cmd
}

func newSnapshotsRestoreCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Write a stored snapshot back as the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rt.config()

			history, err := openHistory(ctx, cfg)
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			defer history.Close()

			rec, err := history.Get(ctx, args[0])
			if errors.Is(err, snapshot.ErrSnapshotNotFound) {
				return Exitf(ExitCodeFailure, "snapshot %s not found", args[0])
			}
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}

			state, err := snapshot.Decode(rec.Payload)
			if err != nil {
				return Exitf(ExitCodeFailure, "snapshot %s: %v", rec.ID, err)
			}

			// Restoring must not add a history row of its own.
			manager := snapshot.NewManager(cfg.SnapshotPath())
			if err := manager.Write(state); err != nil {
				return Exitf(ExitCodeFailure, "restore snapshot: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s from %s\n", manager.Path(), humanize.Time(rec.SavedAt))
			return nil
		},
	}
}
