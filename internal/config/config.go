// Package config loads engineshift settings from defaults, an optional
// config file, ENGINESHIFT_* environment variables and runtime overrides,
// in increasing order of precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "ENGINESHIFT"

// Config is the decoded application configuration.
type Config struct {
	Source   ClusterConfig `mapstructure:"source"`
	Target   ClusterConfig `mapstructure:"target"`
	HTTP     HTTPConfig    `mapstructure:"http"`
	Migrate  MigrateConfig `mapstructure:"migrate"`
	Import   ImportConfig  `mapstructure:"import"`
	Archive  ArchiveConfig `mapstructure:"archive"`
	Logging  LoggingConfig `mapstructure:"logging"`
	ReadOnly bool          `mapstructure:"readonly"`
}

// ClusterConfig addresses one cluster.
type ClusterConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Key      string `mapstructure:"key"`
}

// HTTPConfig tunes the API clients.
type HTTPConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	PageSize  int           `mapstructure:"page_size"`
}

// MigrateConfig holds migration defaults; command flags override them.
type MigrateConfig struct {
	Concurrency       int     `mapstructure:"concurrency"`
	OutputDir         string  `mapstructure:"output_dir"`
	StateFile         string  `mapstructure:"state_file"`
	Prefix            string  `mapstructure:"prefix"`
	Format            string  `mapstructure:"format"`
	SecondsPerEngine  float64 `mapstructure:"seconds_per_engine"`
	FailureDisplayCap int     `mapstructure:"failure_display_cap"`
}

// ImportConfig holds the import retry budgets.
type ImportConfig struct {
	SchemaBatchSize    int           `mapstructure:"schema_batch_size"`
	CreateAttempts     int           `mapstructure:"create_attempts"`
	CreateDelay        time.Duration `mapstructure:"create_delay"`
	DeleteWaitAttempts int           `mapstructure:"delete_wait_attempts"`
	DeleteWaitDelay    time.Duration `mapstructure:"delete_wait_delay"`
}

// ArchiveConfig enables S3 archiving of bundles when Bucket is set.
type ArchiveConfig struct {
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Profile  string `mapstructure:"profile"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for environment variables to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source.endpoint", "")
	v.SetDefault("source.key", "")
	v.SetDefault("target.endpoint", "")
	v.SetDefault("target.key", "")

	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.rate_limit", 0.0)
	v.SetDefault("http.page_size", 25)

	v.SetDefault("migrate.concurrency", 5)
	v.SetDefault("migrate.output_dir", "./exports")
	v.SetDefault("migrate.state_file", "./migration-state.json")
	v.SetDefault("migrate.prefix", "")
	v.SetDefault("migrate.format", "json")
	v.SetDefault("migrate.seconds_per_engine", 10.0)
	v.SetDefault("migrate.failure_display_cap", 20)

	v.SetDefault("import.schema_batch_size", 64)
	v.SetDefault("import.create_attempts", 10)
	v.SetDefault("import.create_delay", "5s")
	v.SetDefault("import.delete_wait_attempts", 30)
	v.SetDefault("import.delete_wait_delay", "2s")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("archive.region", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.profile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("readonly", false)
}

// envSpec maps a key to its environment variables. The first name is the
// automatic ENGINESHIFT_<SECTION>_<KEY> form; the rest are short aliases.
type envSpec struct {
	Key   string
	Names []string
}

func getEnvSpecs() []envSpec {
	return []envSpec{
		{Key: "source.endpoint", Names: []string{"ENGINESHIFT_SOURCE_ENDPOINT"}},
		{Key: "source.key", Names: []string{"ENGINESHIFT_SOURCE_KEY", "ENGINESHIFT_SOURCE_API_KEY"}},
		{Key: "target.endpoint", Names: []string{"ENGINESHIFT_TARGET_ENDPOINT"}},
		{Key: "target.key", Names: []string{"ENGINESHIFT_TARGET_KEY", "ENGINESHIFT_TARGET_API_KEY"}},
		{Key: "logging.level", Names: []string{"ENGINESHIFT_LOGGING_LEVEL", "ENGINESHIFT_LOG_LEVEL"}},
		{Key: "migrate.concurrency", Names: []string{"ENGINESHIFT_MIGRATE_CONCURRENCY", "ENGINESHIFT_CONCURRENCY"}},
		{Key: "migrate.state_file", Names: []string{"ENGINESHIFT_MIGRATE_STATE_FILE", "ENGINESHIFT_STATE_FILE"}},
		{Key: "readonly", Names: []string{"ENGINESHIFT_READONLY"}},
	}
}

// BindEnv wires environment variables into v.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range getEnvSpecs() {
		args := append([]string{spec.Key}, spec.Names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", spec.Key, err)
		}
	}
	return nil
}

// DefaultConfigFile returns $XDG_CONFIG_HOME/engineshift/config.yaml, or ""
// when no user config directory is known.
func DefaultConfigFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "engineshift", "config.yaml")
}

// ReadFile merges the config file at path into v. An empty path tries the
// default location and ignores its absence; an explicit path must exist.
func ReadFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile()
		if path == "" {
			return nil
		}
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return nil
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if c.Migrate.Concurrency < 1 {
		return fmt.Errorf("config: migrate.concurrency must be at least 1, got %d", c.Migrate.Concurrency)
	}
	switch c.Migrate.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("config: migrate.format must be json or yaml, got %q", c.Migrate.Format)
	}
	if c.HTTP.PageSize < 0 || c.HTTP.PageSize > 1000 {
		return fmt.Errorf("config: http.page_size must be between 0 and 1000, got %d", c.HTTP.PageSize)
	}
	if c.HTTP.RateLimit < 0 {
		return fmt.Errorf("config: http.rate_limit must not be negative")
	}
	return nil
}

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// Load builds a Config from defaults, the file named by ENGINESHIFT_CONFIG
// (if any), the environment, and overrides. Nested override maps are
// flattened to dotted keys and win over everything else.
func Load(_ context.Context, overrides ...map[string]any) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		if err := ReadFile(v, path); err != nil {
			return nil, err
		}
	}
	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}
	setConfig(cfg)
	return cfg, nil
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// Use records cfg as the current configuration. Commands call it after
// decoding the global viper instance.
func Use(cfg *Config) {
	setConfig(cfg)
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
