package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/engineshift/internal/observability"
	"github.com/3leaps/engineshift/pkg/match"
	"github.com/3leaps/engineshift/pkg/migrate"
)

var enginesCmd = &cobra.Command{
	Use:   "engines [filter]",
	Short: "List engines on a cluster",
	Long: `List the engines of the source or target cluster.

An optional filter argument keeps engines whose name contains it. Include
and exclude globs narrow the list further, exactly as migrate selects
candidates.

Example:
  engineshift engines
  engineshift engines --cluster target
  engineshift engines parks --exclude '*-staging'
  engineshift engines --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEngines,
}

var (
	enginesCluster  string
	enginesIncludes []string
	enginesExcludes []string
	enginesJSON     bool
)

func init() {
	rootCmd.AddCommand(enginesCmd)

	enginesCmd.Flags().StringVar(&enginesCluster, "cluster", clusterSource, "Cluster to list (source|target)")
	enginesCmd.Flags().StringSliceVar(&enginesIncludes, "include", nil, "Glob of engine names to include (repeatable)")
	enginesCmd.Flags().StringSliceVar(&enginesExcludes, "exclude", nil, "Glob of engine names to exclude (repeatable)")
	enginesCmd.Flags().BoolVar(&enginesJSON, "json", false, "Print engines as JSON")
}

func runEngines(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	mcfg := match.Config{Includes: enginesIncludes, Excludes: enginesExcludes}
	if len(args) == 1 {
		mcfg.Filter = args[0]
	}
	matcher, err := match.New(mcfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid match patterns", err)
	}

	client, err := newClient(cfg, enginesCluster)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid cluster configuration", err)
	}

	all, err := migrate.ListAll(ctx, migrate.ClientLister{Client: client}, enginesCluster, cfg.HTTP.PageSize)
	if err != nil {
		observability.CLILogger.Error("Failed to list engines",
			zap.String("cluster", enginesCluster),
			zap.String("endpoint", client.Endpoint()),
			zap.Error(err))
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to list engines", err)
	}

	var engines []migrate.EngineRef
	for _, e := range all {
		if matcher.Match(e.Name) {
			engines = append(engines, e)
		}
	}

	out := cmd.OutOrStdout()
	if enginesJSON {
		return writeEnginesJSON(out, engines)
	}
	return renderEngines(out, engines, len(all))
}

func writeEnginesJSON(w io.Writer, engines []migrate.EngineRef) error {
	if engines == nil {
		engines = []migrate.EngineRef{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(engines)
}

func renderEngines(w io.Writer, engines []migrate.EngineRef, listed int) error {
	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("NAME", "TYPE", "LANGUAGE")
	for _, e := range engines {
		table.AddRow(e.Name, dash(e.Type), dash(e.Language))
	}
	if _, err := fmt.Fprintln(w, table); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s of %s engines\n", humanize.Comma(int64(len(engines))), humanize.Comma(int64(listed)))
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
