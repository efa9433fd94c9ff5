package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tOgg1/msgindex/internal/actions"
	"github.com/tOgg1/msgindex/internal/cache"
	"github.com/tOgg1/msgindex/internal/config"
	"github.com/tOgg1/msgindex/internal/logging"
)

func newAccountCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show or change the account the index belongs to",
		Long: `The index belongs to one account. Switching accounts or logging out
clears everything cached for the previous one.`,
	}
	cmd.AddCommand(
		newAccountShowCmd(rt),
		newAccountUseCmd(rt),
		newAccountLogoutCmd(rt),
	)
	return cmd
}

func newAccountShowCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := contextStore(rt.config()).Load()
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return writeJSON(cmd.OutOrStdout(), account)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), account.String())
			return err
		},
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func newAccountUseCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "use <server> <user-id>",
		Short: "Make an account active, clearing the index if it changed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || userID <= 0 {
				return Exitf(ExitCodeUsage, "invalid user id %q", args[1])
			}

			cfg := rt.config()
			store := contextStore(cfg)
			current, err := store.Load()
			if err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}

			next := &config.Context{}
			next.SetAccount(args[0], userID)
			out := cmd.OutOrStdout()
			if current.SameAccount(next) {
				_, err := fmt.Fprintf(out, "Already using %s\n", next)
				return err
			}

			if !current.IsEmpty() {
				if err := applyToSnapshot(cmd, cfg, actions.AccountSwitch{}); err != nil {
					return err
				}
			}
			if err := store.Save(next); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			log := logging.WithAccount(next.Server, next.UserID)
			log.Info().Msg("account switched")
			_, err = fmt.Fprintf(out, "Using %s\n", next)
			return err
		},
	}
}

func newAccountLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the active account and clear the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rt.config()
			if err := applyToSnapshot(cmd, cfg, actions.Logout{}); err != nil {
				return err
			}
			if err := contextStore(cfg).Clear(); err != nil {
				return Exitf(ExitCodeFailure, "%v", err)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return err
		},
	}
}

// applyToSnapshot loads the stored state, applies a and writes the result.
func applyToSnapshot(cmd *cobra.Command, cfg *config.Config, a actions.Action) error {
	stores, err := openSnapshotStores(cmd.Context(), cfg)
	if err != nil {
		return Exitf(ExitCodeFailure, "open snapshot: %v", err)
	}
	defer stores.Close()

	state, err := stores.manager.Load()
	if err != nil {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	if err := stores.manager.Write(cache.Apply(state, a)); err != nil {
		return Exitf(ExitCodeFailure, "write snapshot: %v", err)
	}
	return nil
}
