package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/msgindex/internal/cache"
)

func newResetCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Replace the snapshot with an empty index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rt.config()
			stores, err := openSnapshotStores(cmd.Context(), cfg)
			if err != nil {
				return Exitf(ExitCodeFailure, "open snapshot: %v", err)
			}
			defer stores.Close()

			if err := stores.manager.Write(cache.Empty()); err != nil {
				return Exitf(ExitCodeFailure, "reset snapshot: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", stores.manager.Path())
			return nil
		},
	}
}
