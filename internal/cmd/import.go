package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/engineshift/internal/observability"
	"github.com/3leaps/engineshift/pkg/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <bundle>",
	Short: "Create an engine on the target from a bundle file",
	Long: `Create an engine on the target cluster from a bundle written by export.

The engine is created, then its schema, synonyms, curations, search settings
and crawler configuration are applied. With --force an existing engine of
the same name is deleted first.

Example:
  engineshift import exports/parks.json
  engineshift import exports/parks.json --name import-parks
  engineshift import exports/parks.yaml --force`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	importName  string
	importForce bool
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importName, "name", "", "Destination engine name (default: the bundle's engine name)")
	importCmd.Flags().BoolVar(&importForce, "force", false, "Replace the destination engine if it exists")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	if err := requireWritable("import into the target cluster"); err != nil {
		return err
	}

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	client, err := newClient(cfg, clusterTarget)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid cluster configuration", err)
	}

	opts := importOptions(cfg)
	opts.Name = importName
	opts.Force = importForce

	res, err := importer.ImportFile(ctx, client, path, opts)
	if err != nil {
		observability.CLILogger.Error("Import failed", zap.String("bundle", path), zap.Error(err))
		return importExitError(err)
	}

	observability.CLILogger.Info("Imported engine",
		zap.String("engine", res.Engine),
		zap.Bool("replaced", res.Replaced),
		zap.Int("schema_fields", res.SchemaFields),
		zap.Int("synonym_sets", res.Synonyms),
		zap.Int("curations", res.Curations),
		zap.Int("crawler_domains", res.CrawlerDomains),
		zap.Int("warnings", len(res.Warnings)))
	_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Engine)
	return err
}

func importExitError(err error) error {
	var ie *importer.ImportError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return exitError(foundry.ExitFileNotFound, "Bundle file not found", err)
	case errors.As(err, &ie) && ie.Stage == "read":
		return exitError(foundry.ExitFileReadError, "Failed to read bundle", err)
	case importer.IsAlreadyExists(err):
		return exitError(foundry.ExitInvalidArgument, "Destination engine exists (use --force to replace it)", err)
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, "Import failed", err)
	}
}
