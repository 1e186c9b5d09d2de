package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/engineshift/internal/config"
	"github.com/3leaps/engineshift/internal/observability"
	"github.com/3leaps/engineshift/pkg/appsearch"
	"github.com/3leaps/engineshift/pkg/archive"
	"github.com/3leaps/engineshift/pkg/bundle"
	"github.com/3leaps/engineshift/pkg/manifest"
	"github.com/3leaps/engineshift/pkg/match"
	"github.com/3leaps/engineshift/pkg/migrate"
	"github.com/3leaps/engineshift/pkg/output"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [filter]",
	Short: "Migrate engines from the source cluster to the target cluster",
	Long: `Export every selected source engine and import it on the target.

Engines are processed in sequential batches of --concurrency engines. After
each batch the state file records which engines completed and which failed,
so an interrupted or partly failed run can be resumed. The command exits
non-zero when any engine is recorded as failed.

The optional filter argument keeps engines whose name contains it. A job
manifest (--job) can describe the whole run; flags given explicitly
override it.

Example:
  engineshift migrate --dry-run
  engineshift migrate parks --prefix import- --concurrency 10
  engineshift migrate --skip-existing --include 'prod-*'
  engineshift migrate --resume
  engineshift migrate --resume --retry-failed-only
  engineshift migrate --job migration.yaml --jsonl file:events.jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

var (
	migrateJobPath         string
	migrateResume          bool
	migrateRetryFailedOnly bool
	migrateSkipExisting    bool
	migrateForce           bool
	migrateCleanup         bool
	migrateDryRun          bool
	migrateIncludes        []string
	migrateExcludes        []string
	migrateRegex           string
	migrateJSONL           string
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	f := migrateCmd.Flags()
	f.StringVarP(&migrateJobPath, "job", "j", "", "Path to a migration manifest")
	f.BoolVar(&migrateResume, "resume", false, "Continue from the state file instead of starting fresh")
	f.BoolVar(&migrateRetryFailedOnly, "retry-failed-only", false, "Only process engines recorded as failed (requires --resume)")
	f.BoolVar(&migrateSkipExisting, "skip-existing", false, "Skip engines whose destination already exists on the target")
	f.BoolVar(&migrateForce, "force", false, "Replace destination engines that already exist")
	f.BoolVar(&migrateCleanup, "cleanup", false, "Remove each bundle after a successful import")
	f.BoolVar(&migrateDryRun, "dry-run", false, "Show what would be migrated without changing anything")
	f.StringSliceVar(&migrateIncludes, "include", nil, "Glob of engine names to include (repeatable)")
	f.StringSliceVar(&migrateExcludes, "exclude", nil, "Glob of engine names to exclude (repeatable)")
	f.StringVar(&migrateRegex, "regex", "", "Regular expression engine names must match")
	f.StringVar(&migrateJSONL, "jsonl", "", "Write JSONL events to stdout or file:<path>")

	f.Int("concurrency", 5, "Engines processed at once per batch")
	f.String("output-dir", "./exports", "Directory for exported bundles")
	f.String("state-file", "./migration-state.json", "State file (.db/.sqlite/.sqlite3 selects SQLite)")
	f.String("prefix", "", "Prefix added to destination engine names")
	f.String("format", "json", "Bundle format (json|yaml)")
	f.Float64("seconds-per-engine", 10, "Per-engine time used for the dry-run estimate")
	f.Int("failure-cap", 20, "Maximum failed engines listed in the summary")
	f.String("archive-bucket", "", "S3 bucket receiving a copy of every bundle")
	f.String("archive-prefix", "", "Key prefix inside the archive bucket")
	f.String("archive-region", "", "Archive bucket region")
	f.String("archive-endpoint", "", "S3-compatible endpoint for the archive")
	f.String("archive-profile", "", "AWS profile for the archive")

	bindFlag("migrate.concurrency", f.Lookup("concurrency"))
	bindFlag("migrate.output_dir", f.Lookup("output-dir"))
	bindFlag("migrate.state_file", f.Lookup("state-file"))
	bindFlag("migrate.prefix", f.Lookup("prefix"))
	bindFlag("migrate.format", f.Lookup("format"))
	bindFlag("migrate.seconds_per_engine", f.Lookup("seconds-per-engine"))
	bindFlag("migrate.failure_display_cap", f.Lookup("failure-cap"))
	bindFlag("archive.bucket", f.Lookup("archive-bucket"))
	bindFlag("archive.prefix", f.Lookup("archive-prefix"))
	bindFlag("archive.region", f.Lookup("archive-region"))
	bindFlag("archive.endpoint", f.Lookup("archive-endpoint"))
	bindFlag("archive.profile", f.Lookup("archive-profile"))
}

// migrateSettings is the resolved description of one run.
type migrateSettings struct {
	opts       migrate.Options
	match      match.Config
	source     config.ClusterConfig
	target     config.ClusterConfig
	outputDir  string
	stateFile  string
	format     bundle.Format
	cleanup    bool
	archive    *archive.Config
	events     string
	failureCap int
}

// resolveMigrate merges configuration, the optional manifest and explicit
// flags, in increasing order of precedence.
func resolveMigrate(cmd *cobra.Command, cfg *config.Config, m *manifest.Manifest, args []string) (*migrateSettings, error) {
	changed := cmd.Flags().Changed
	s := &migrateSettings{
		opts: migrate.Options{
			Resume:           migrateResume,
			RetryFailedOnly:  migrateRetryFailedOnly,
			SkipExisting:     migrateSkipExisting,
			Force:            migrateForce,
			DryRun:           migrateDryRun,
			Concurrency:      cfg.Migrate.Concurrency,
			TargetPrefix:     cfg.Migrate.Prefix,
			PageSize:         cfg.HTTP.PageSize,
			SecondsPerEngine: cfg.Migrate.SecondsPerEngine,
		},
		match:      match.Config{Includes: migrateIncludes, Excludes: migrateExcludes, Regex: migrateRegex},
		source:     cfg.Source,
		target:     cfg.Target,
		outputDir:  cfg.Migrate.OutputDir,
		stateFile:  cfg.Migrate.StateFile,
		cleanup:    migrateCleanup,
		events:     migrateJSONL,
		failureCap: cfg.Migrate.FailureDisplayCap,
	}
	formatName := cfg.Migrate.Format
	if cfg.Archive.Bucket != "" {
		s.archive = &archive.Config{
			Bucket:   cfg.Archive.Bucket,
			Prefix:   cfg.Archive.Prefix,
			Region:   cfg.Archive.Region,
			Endpoint: cfg.Archive.Endpoint,
			Profile:  cfg.Archive.Profile,
		}
	}

	if m != nil {
		if !changed("source-endpoint") && m.Source.Endpoint != "" {
			s.source.Endpoint = m.Source.Endpoint
		}
		if !changed("source-key") && m.Source.KeyEnv != "" {
			s.source.Key = m.Source.APIKey()
		}
		if !changed("target-endpoint") && m.Target.Endpoint != "" {
			s.target.Endpoint = m.Target.Endpoint
		}
		if !changed("target-key") && m.Target.KeyEnv != "" {
			s.target.Key = m.Target.APIKey()
		}

		mm := m.Migrate
		s.opts.Resume = s.opts.Resume || (!changed("resume") && mm.Resume)
		s.opts.RetryFailedOnly = s.opts.RetryFailedOnly || (!changed("retry-failed-only") && mm.RetryFailedOnly)
		s.opts.SkipExisting = s.opts.SkipExisting || (!changed("skip-existing") && mm.SkipExisting)
		s.opts.Force = s.opts.Force || (!changed("force") && mm.Force)
		s.cleanup = s.cleanup || (!changed("cleanup") && mm.Cleanup)
		if !changed("concurrency") && mm.Concurrency != 0 {
			s.opts.Concurrency = mm.Concurrency
		}
		if !changed("prefix") && mm.Prefix != "" {
			s.opts.TargetPrefix = mm.Prefix
		}
		if !changed("seconds-per-engine") && mm.SecondsPerEngine != 0 {
			s.opts.SecondsPerEngine = mm.SecondsPerEngine
		}
		if !changed("output-dir") && mm.OutputDir != "" {
			s.outputDir = mm.OutputDir
		}
		if !changed("state-file") && mm.StateFile != "" {
			s.stateFile = mm.StateFile
		}
		if !changed("format") && mm.Format != "" {
			formatName = mm.Format
		}

		mc := m.Match.MatcherConfig()
		s.match.Filter = mc.Filter
		if !changed("include") {
			s.match.Includes = mc.Includes
		}
		if !changed("exclude") {
			s.match.Excludes = mc.Excludes
		}
		if !changed("regex") {
			s.match.Regex = mc.Regex
		}

		if m.Archive != nil && !changed("archive-bucket") {
			s.archive = &archive.Config{
				Bucket:   m.Archive.Bucket,
				Prefix:   m.Archive.Prefix,
				Region:   m.Archive.Region,
				Endpoint: m.Archive.Endpoint,
				Profile:  m.Archive.Profile,
			}
		}
		if !changed("jsonl") && m.Output.Destination != "" {
			s.events = m.Output.Destination
		}
	}

	if len(args) == 1 {
		s.match.Filter = args[0]
	}

	format, err := parseFormat(formatName)
	if err != nil {
		return nil, err
	}
	s.format = format
	return s, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := observability.CLILogger

	cfg, err := currentConfig(ctx)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	var m *manifest.Manifest
	if migrateJobPath != "" {
		m, err = manifest.Load(migrateJobPath)
		if err != nil {
			logger.Error("Failed to load manifest", zap.String("path", migrateJobPath), zap.Error(err))
			if errors.Is(err, fs.ErrNotExist) {
				return exitError(foundry.ExitFileNotFound, "Manifest not found", err)
			}
			return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
		logger.Debug("Loaded manifest",
			zap.String("path", migrateJobPath),
			zap.String("source", m.Source.Endpoint),
			zap.String("target", m.Target.Endpoint))
	}

	s, err := resolveMigrate(cmd, cfg, m, args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid migration options", err)
	}
	if err := s.opts.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid migration options", err)
	}
	if !s.opts.DryRun {
		if err := requireWritable("migrate into the target cluster"); err != nil {
			return err
		}
	}

	matcher, err := match.New(s.match)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid match patterns", err)
	}
	s.opts.Filter = matcher

	runID := uuid.New().String()
	orch, closeAll, err := buildOrchestrator(ctx, cfg, s, runID)
	if err != nil {
		return err
	}
	defer closeAll()

	human := cmd.OutOrStdout()
	var events output.Writer
	if s.events != "" {
		w, cleanup, err := createEventWriter(s.events, runID, s.source.Endpoint, cmd.OutOrStdout())
		if err != nil {
			logger.Error("Failed to create event writer", zap.Error(err))
			return exitError(foundry.ExitFileWriteError, "Failed to create output", err)
		}
		defer cleanup()
		events = w
		if isStdout(s.events) {
			human = cmd.ErrOrStderr()
		}
		orch.Observer = migrate.MultiObserver{
			orch.Observer,
			eventObserver{ctx: context.WithoutCancel(ctx), w: w, opts: s.opts, logger: logger},
		}
	}

	logger.Info("Starting migration",
		zap.String("run_id", runID),
		zap.String("source", s.source.Endpoint),
		zap.String("target", s.target.Endpoint),
		zap.Int("concurrency", s.opts.Concurrency),
		zap.Bool("dry_run", s.opts.DryRun))

	report, runErr := orch.Run(ctx, s.opts)
	if runErr != nil {
		if report != nil && !s.opts.DryRun {
			_ = migrate.RenderReport(human, report, s.failureCap)
		}
		return migrateRunError(ctx, runErr, events)
	}

	if s.opts.DryRun {
		return migrate.RenderDryRun(human, report.DryRun)
	}
	if err := migrate.RenderReport(human, report, s.failureCap); err != nil {
		return err
	}
	if report.ExitFailure() {
		return exitError(foundry.ExitExternalServiceUnavailable,
			fmt.Sprintf("Migration finished with %d failed engines", len(report.FailedEngines)),
			errors.New(migrate.RetryHint))
	}
	return nil
}

// buildOrchestrator wires clients, the state store, the archive and the
// unit processor. The returned func releases the store.
func buildOrchestrator(ctx context.Context, cfg *config.Config, s *migrateSettings, runID string) (*migrate.Orchestrator, func(), error) {
	logger := observability.CLILogger
	noop := func() {}

	cfg = withClusters(cfg, s)
	src, err := newClient(cfg, clusterSource)
	if err != nil {
		return nil, noop, exitError(foundry.ExitInvalidArgument, "Invalid source configuration", err)
	}
	orch := &migrate.Orchestrator{
		Source:   migrate.ClientLister{Client: src},
		Observer: logObserver{logger: logger},
		RunID:    runID,
	}

	needTarget := !s.opts.DryRun || s.opts.SkipExisting || s.opts.Force
	var dst *appsearch.Client
	if needTarget {
		dst, err = newClient(cfg, clusterTarget)
		if err != nil {
			return nil, noop, exitError(foundry.ExitInvalidArgument, "Invalid target configuration", err)
		}
		orch.Target = migrate.ClientLister{Client: dst}
	}

	store, err := openStateStore(ctx, s)
	if err != nil {
		return nil, noop, exitError(foundry.ExitFileWriteError, "Failed to open state store", err)
	}
	closeStore := noop
	if store != nil {
		orch.Store = store
		closeStore = func() { _ = store.Close() }
	}

	if s.opts.DryRun {
		return orch, closeStore, nil
	}

	var archiver migrate.Archiver
	if s.archive != nil && s.archive.Bucket != "" {
		a, err := archive.New(ctx, *s.archive)
		if err != nil {
			closeStore()
			return nil, noop, exitError(foundry.ExitInvalidArgument, "Invalid archive configuration", err)
		}
		if err := a.Check(ctx); err != nil {
			closeStore()
			logger.Error("Archive bucket unavailable", zap.String("bucket", a.Bucket()), zap.Error(err))
			return nil, noop, exitError(foundry.ExitExternalServiceUnavailable, "Archive bucket unavailable", err)
		}
		archiver = a
	}

	orch.Processor = &migrate.UnitProcessor{
		Exporter:  migrate.ClusterExporter{Source: src},
		Importer:  migrate.ClusterImporter{Target: dst, Options: importOptions(cfg)},
		Archive:   archiver,
		OutputDir: s.outputDir,
		Format:    s.format,
		Force:     s.opts.Force,
		Cleanup:   s.cleanup,
	}
	return orch, closeStore, nil
}

// openStateStore opens the state store. A dry run never creates one: it
// reads an existing file when resuming and otherwise needs none.
func openStateStore(ctx context.Context, s *migrateSettings) (migrate.Store, error) {
	warnf := migrate.WithWarnf(func(format string, args ...any) {
		observability.CLILogger.Warn(fmt.Sprintf(format, args...))
	})
	if !s.opts.DryRun {
		return migrate.OpenStore(ctx, s.stateFile, warnf)
	}
	if !s.opts.Resume {
		return nil, nil
	}
	return migrate.OpenStore(ctx, s.stateFile, warnf, migrate.WithReadOnly())
}

func withClusters(cfg *config.Config, s *migrateSettings) *config.Config {
	c := *cfg
	c.Source = s.source
	c.Target = s.target
	return &c
}

func migrateRunError(ctx context.Context, err error, events output.Writer) error {
	code, msg, recCode := foundry.ExitExternalServiceUnavailable, "Migration failed", output.ErrCodeInternal
	switch {
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		code, msg, recCode = foundry.ExitSignalInt, "Migration interrupted", output.ErrCodeCancelled
	case migrate.IsConfigError(err):
		code, msg, recCode = foundry.ExitInvalidArgument, "Invalid migration options", output.ErrCodeConfig
	case migrate.IsListingError(err):
		code, msg, recCode = foundry.ExitExternalServiceUnavailable, "Failed to list engines", output.ErrCodeListing
	case migrate.IsPersistenceError(err):
		code, msg, recCode = foundry.ExitFileWriteError, "Failed to save migration state", output.ErrCodePersistence
	}
	observability.CLILogger.Error(msg, zap.Error(err))
	if events != nil {
		_ = events.WriteError(context.WithoutCancel(ctx), &output.ErrorRecord{Code: recCode, Message: err.Error()})
	}
	return exitError(code, msg, err)
}

func isStdout(dest string) bool {
	return dest == "stdout" || dest == "-"
}

// createEventWriter opens the JSONL destination. Returns the writer, a
// cleanup function, and any error.
func createEventWriter(dest, runID, source string, stdout io.Writer) (output.Writer, func(), error) {
	if isStdout(dest) {
		w := output.NewJSONLWriter(stdout, runID, source)
		return w, func() { _ = w.Close() }, nil
	}

	path := strings.TrimPrefix(dest, "file:")
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	w := output.NewJSONLWriter(f, runID, source)
	cleanup := func() {
		_ = w.Close()
		_ = f.Close()
	}
	return w, cleanup, nil
}
