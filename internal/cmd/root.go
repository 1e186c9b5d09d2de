// Package cmd implements the engineshift command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/3leaps/engineshift/internal/config"
	"github.com/3leaps/engineshift/internal/observability"
)

const appName = "engineshift"

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "none",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile  string
	verbose  bool
	readOnly bool
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Migrate search engine configuration between clusters",
	Long: `engineshift copies engine configuration (schema, synonyms, curations,
search settings and crawler setup) from one App Search cluster to another.

It can export single engines to bundle files, import bundles, and run a
resumable bulk migration that records progress in a state file so an
interrupted run can pick up where it stopped.

Example:
  engineshift engines --cluster source
  engineshift migrate --dry-run
  engineshift migrate parks --prefix import- --concurrency 10
  engineshift migrate --resume --retry-failed-only`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	setDefaults()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/engineshift/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&readOnly, "readonly", false, "Refuse any command that writes to the target cluster")
	pf.String("log-level", "info", "Log level (debug|info|warn|error)")
	pf.String("source-endpoint", "", "Source cluster URL")
	pf.String("source-key", "", "Source cluster private API key")
	pf.String("target-endpoint", "", "Target cluster URL")
	pf.String("target-key", "", "Target cluster private API key")
	pf.Duration("timeout", 0, "Per-request HTTP timeout (default 30s)")
	pf.Float64("rate-limit", 0, "Maximum requests per second per cluster (0 = unlimited)")

	bindFlag("readonly", pf.Lookup("readonly"))
	bindFlag("logging.level", pf.Lookup("log-level"))
	bindFlag("source.endpoint", pf.Lookup("source-endpoint"))
	bindFlag("source.key", pf.Lookup("source-key"))
	bindFlag("target.endpoint", pf.Lookup("target-endpoint"))
	bindFlag("target.key", pf.Lookup("target-key"))
	bindFlag("http.timeout", pf.Lookup("timeout"))
	bindFlag("http.rate_limit", pf.Lookup("rate-limit"))
}

// setDefaults registers configuration defaults on the global viper instance.
func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

func initConfig(cmd *cobra.Command, _ []string) error {
	observability.InitCLILogger(appName, verbose)

	v := viper.GetViper()
	setDefaults()
	if err := config.BindEnv(v); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid environment", err)
	}
	if err := config.ReadFile(v, cfgFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(foundry.ExitFileNotFound, "Config file not found", err)
		}
		return exitError(foundry.ExitFileReadError, "Failed to read config file", err)
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	config.Use(cfg)

	if !verbose {
		if err := observability.SetLevel(cfg.Logging.Level); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid log level", err)
		}
	}
	return nil
}

// currentConfig returns the configuration decoded by initConfig. Commands
// invoked without the root pre-run (tests) fall back to defaults.
func currentConfig(ctx context.Context) (*config.Config, error) {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg, nil
	}
	return config.Load(ctx)
}

// IsReadOnly reports whether writes to the target cluster are forbidden.
func IsReadOnly() bool {
	return readOnly || viper.GetBool("readonly")
}

func requireWritable(action string) error {
	if IsReadOnly() {
		return exitError(foundry.ExitInvalidArgument,
			fmt.Sprintf("readonly mode enabled: refusing to %s", action),
			errors.New("use --dry-run or disable --readonly"))
	}
	return nil
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	defer observability.Sync()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(os.Stderr, "Error:", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}
