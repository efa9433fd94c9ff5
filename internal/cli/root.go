// Package cli implements the msgindex command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tOgg1/msgindex/internal/config"
	"github.com/tOgg1/msgindex/internal/logging"
)

// Exit codes.
const (
	ExitCodeOK      = 0
	ExitCodeFailure = 1
	ExitCodeUsage   = 2
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Exitf builds an ExitError with a formatted message.
func Exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}

// Execute runs the root command with os.Args.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

// runtime holds what every subcommand needs after flags are parsed.
type runtime struct {
	configFile string
	loader     *config.Loader
	cfg        *config.Config
	logFile    io.Closer
}

func (r *runtime) config() *config.Config {
	if r.cfg == nil {
		return config.DefaultConfig()
	}
	return r.cfg
}

func (r *runtime) init() error {
	if r.configFile != "" {
		r.loader.SetConfigFile(r.configFile)
	}
	cfg, err := r.loader.Load()
	if err != nil {
		return Exitf(ExitCodeUsage, "%v", err)
	}
	r.cfg = cfg

	logCfg := logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       os.Stderr,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cfg.Logging.File != "" {
		f, err := logging.OpenFile(cfg.Logging.File)
		if err != nil {
			return err
		}
		r.logFile = f
		logCfg.Output = f
		logCfg.Format = "json"
	}
	logging.Init(logCfg)
	return nil
}

func (r *runtime) close() {
	if r.logFile != nil {
		_ = r.logFile.Close()
		r.logFile = nil
	}
}

func newRootCmd(version string) *cobra.Command {
	rt := &runtime{loader: config.NewLoader()}

	cmd := &cobra.Command{
		Use:           "msgindex",
		Short:         "Local message index for a chat client",
		Long:          "msgindex replays chat client actions into a local index of narrows, flags and outbox entries and persists it as snapshots.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			rt.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&rt.configFile, "config", "", "config file (default: ~/.config/msgindex/config.yaml)")
	flags.String("data-dir", "", "data directory")
	flags.String("snapshot", "", "snapshot file path")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.Int64("self-user-id", 0, "logged-in user id")

	v := rt.loader.Viper()
	_ = v.BindPFlag("global.data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("snapshot.path", flags.Lookup("snapshot"))
	_ = v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("global.self_user_id", flags.Lookup("self-user-id"))

	cmd.AddCommand(
		newReplayCmd(rt),
		newInspectCmd(rt),
		newResetCmd(rt),
		newSnapshotsCmd(rt),
		newAccountCmd(rt),
	)

	return cmd
}
