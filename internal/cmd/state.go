package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/engineshift/internal/observability"
	"github.com/3leaps/engineshift/pkg/migrate"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the migration state",
	Long: `Inspect or reset the state recorded by migrate.

The state file lists completed and failed engines and the time the migration
first started. Its location follows --state-file or migrate.state_file.

Example:
  engineshift state show
  engineshift state show --json
  engineshift state reset --state-file state.db`,
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show completed and failed engines",
	Args:  cobra.NoArgs,
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the recorded state",
	Args:  cobra.NoArgs,
	RunE:  runStateReset,
}

var (
	stateFile string
	stateJSON bool
)

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateResetCmd)

	stateCmd.PersistentFlags().StringVar(&stateFile, "state-file", "", "State file (default migrate.state_file)")
	stateShowCmd.Flags().BoolVar(&stateJSON, "json", false, "Print the raw state as JSON")
}

func openStateForCommand(cmd *cobra.Command, extra ...migrate.StoreOption) (migrate.Store, error) {
	ctx := cmd.Context()
	path := stateFile
	if path == "" {
		cfg, err := currentConfig(ctx)
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
		}
		path = cfg.Migrate.StateFile
	}
	opts := append([]migrate.StoreOption{migrate.WithWarnf(func(format string, args ...any) {
		observability.CLILogger.Warn(fmt.Sprintf(format, args...))
	})}, extra...)
	store, err := migrate.OpenStore(ctx, path, opts...)
	if err != nil {
		return nil, exitError(foundry.ExitFileReadError, "Failed to open state store", err)
	}
	return store, nil
}

func runStateShow(cmd *cobra.Command, _ []string) error {
	store, err := openStateForCommand(cmd, migrate.WithReadOnly())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	st, err := store.Load(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to load state", err)
	}
	if stateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	return renderState(cmd.OutOrStdout(), store.Location(), st, time.Now())
}

func renderState(w io.Writer, location string, st *migrate.State, now time.Time) error {
	started := st.Started()
	header := uitable.New()
	header.AddRow("State:", location)
	header.AddRow("Started:", fmt.Sprintf("%s (%s)", started.Format(time.RFC3339), humanize.RelTime(started, now, "ago", "from now")))
	header.AddRow("Completed:", humanize.Comma(int64(len(st.Completed))))
	header.AddRow("Failed:", humanize.Comma(int64(len(st.Failed))))
	if len(st.Skipped) > 0 {
		header.AddRow("Skipped:", humanize.Comma(int64(len(st.Skipped))))
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if len(st.Failed) == 0 {
		return nil
	}

	failures := uitable.New()
	failures.MaxColWidth = 100
	failures.Wrap = true
	failures.AddRow("ENGINE", "ERROR")
	for _, f := range st.Failed {
		failures.AddRow(f.Engine, f.Error)
	}
	_, err := fmt.Fprintf(w, "\n%s\n\n%s\n", failures, migrate.RetryHint)
	return err
}

func runStateReset(cmd *cobra.Command, _ []string) error {
	store, err := openStateForCommand(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Reset(cmd.Context()); err != nil {
		observability.CLILogger.Error("Failed to reset state", zap.String("state", store.Location()), zap.Error(err))
		return exitError(foundry.ExitFileWriteError, "Failed to reset state", err)
	}
	observability.CLILogger.Info("State reset", zap.String("state", store.Location()))
	return nil
}
