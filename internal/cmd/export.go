package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/engineshift/internal/observability"
	"github.com/3leaps/engineshift/pkg/appsearch"
	"github.com/3leaps/engineshift/pkg/bundle"
	"github.com/3leaps/engineshift/pkg/exporter"
)

var exportCmd = &cobra.Command{
	Use:   "export <engine>",
	Short: "Export one engine to a bundle file",
	Long: `Export the configuration of one source engine to a bundle file.

The bundle holds the schema, synonyms, curations, search settings and crawler
configuration. Its format follows the file extension (.json, .yaml, .yml).

Example:
  engineshift export parks
  engineshift export parks --out parks.yaml
  engineshift export parks --cluster target --out backup/parks.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var (
	exportOut     string
	exportFormat  string
	exportCluster string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Bundle path (default <output-dir>/<engine>.<format>)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "Bundle format when --out is not given (json|yaml)")
	exportCmd.Flags().StringVar(&exportCluster, "cluster", clusterSource, "Cluster to export from (source|target)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine := args[0]

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	path := exportOut
	if path == "" {
		format := cfg.Migrate.Format
		if exportFormat != "" {
			format = exportFormat
		}
		f, err := parseFormat(format)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --format value", err)
		}
		path = bundle.Path(cfg.Migrate.OutputDir, engine, f)
	}

	client, err := newClient(cfg, exportCluster)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid cluster configuration", err)
	}

	b, err := exporter.Export(ctx, client, engine, path)
	if err != nil {
		observability.CLILogger.Error("Export failed",
			zap.String("engine", engine),
			zap.String("path", path),
			zap.Error(err))
		if appsearch.IsNotFound(err) {
			return exitError(foundry.ExitInvalidArgument, fmt.Sprintf("Engine %q not found", engine), err)
		}
		var ee *exporter.ExportError
		if errors.As(err, &ee) && ee.Stage == exporter.StageWrite {
			return exitError(foundry.ExitFileWriteError, "Failed to write bundle", err)
		}
		return exitError(foundry.ExitExternalServiceUnavailable, "Export failed", err)
	}

	crawlerDomains := 0
	if b.Crawler != nil {
		crawlerDomains = len(b.Crawler.Domains)
	}
	observability.CLILogger.Info("Exported engine",
		zap.String("engine", engine),
		zap.String("path", filepath.Clean(path)),
		zap.Int("schema_fields", len(b.Schema)),
		zap.Int("synonym_sets", len(b.Synonyms)),
		zap.Int("curations", len(b.Curations)),
		zap.Int("crawler_domains", crawlerDomains))
	_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
	return err
}

func parseFormat(s string) (bundle.Format, error) {
	switch s {
	case "", "json":
		return bundle.FormatJSON, nil
	case "yaml", "yml":
		return bundle.FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported bundle format %q (want json or yaml)", s)
	}
}
