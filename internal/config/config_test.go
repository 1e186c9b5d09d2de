package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
		assert.Equal(t, 25, cfg.HTTP.PageSize)
		assert.Zero(t, cfg.HTTP.RateLimit)

		assert.Equal(t, 5, cfg.Migrate.Concurrency)
		assert.Equal(t, "./exports", cfg.Migrate.OutputDir)
		assert.Equal(t, "./migration-state.json", cfg.Migrate.StateFile)
		assert.Equal(t, "json", cfg.Migrate.Format)
		assert.Equal(t, 10.0, cfg.Migrate.SecondsPerEngine)
		assert.Equal(t, 20, cfg.Migrate.FailureDisplayCap)

		assert.Equal(t, 64, cfg.Import.SchemaBatchSize)
		assert.Equal(t, 10, cfg.Import.CreateAttempts)
		assert.Equal(t, 5*time.Second, cfg.Import.CreateDelay)
		assert.Equal(t, 30, cfg.Import.DeleteWaitAttempts)
		assert.Equal(t, 2*time.Second, cfg.Import.DeleteWaitDelay)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.False(t, cfg.ReadOnly)
		assert.Empty(t, cfg.Archive.Bucket)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		cfg, err := Load(ctx, map[string]any{
			"migrate": map[string]any{"concurrency": 12, "prefix": "import-"},
			"logging": map[string]any{"level": "debug"},
		})
		require.NoError(t, err)

		assert.Equal(t, 12, cfg.Migrate.Concurrency)
		assert.Equal(t, "import-", cfg.Migrate.Prefix)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "./exports", cfg.Migrate.OutputDir)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("ENGINESHIFT_SOURCE_ENDPOINT", "https://old.example")
		t.Setenv("ENGINESHIFT_TARGET_API_KEY", "secret")
		t.Setenv("ENGINESHIFT_LOG_LEVEL", "warn")
		t.Setenv("ENGINESHIFT_HTTP_RATE_LIMIT", "7.5")
		t.Setenv("ENGINESHIFT_READONLY", "true")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, "https://old.example", cfg.Source.Endpoint)
		assert.Equal(t, "secret", cfg.Target.Key)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 7.5, cfg.HTTP.RateLimit)
		assert.True(t, cfg.ReadOnly)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("ENGINESHIFT_CONCURRENCY", "4")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Migrate.Concurrency)

		cfg, err = Load(ctx, map[string]any{"migrate": map[string]any{"concurrency": 9}})
		require.NoError(t, err)
		assert.Equal(t, 9, cfg.Migrate.Concurrency)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
target:
  endpoint: https://new.example
import:
  create_delay: 1m
migrate:
  state_file: state.db
`), 0o600))
		t.Setenv("ENGINESHIFT_CONFIG", path)
		t.Setenv("ENGINESHIFT_STATE_FILE", "env.db")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://new.example", cfg.Target.Endpoint)
		assert.Equal(t, time.Minute, cfg.Import.CreateDelay)
		assert.Equal(t, "env.db", cfg.Migrate.StateFile, "environment wins over the file")
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		t.Setenv("ENGINESHIFT_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
		_, err := Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "absent.yaml")
	})
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]any
		wantErr  string
	}{
		{"zero concurrency", map[string]any{"migrate": map[string]any{"concurrency": 0}}, "migrate.concurrency"},
		{"bad format", map[string]any{"migrate": map[string]any{"format": "xml"}}, "migrate.format"},
		{"page size", map[string]any{"http": map[string]any{"page_size": 5000}}, "http.page_size"},
		{"rate", map[string]any{"http": map[string]any{"rate_limit": -1}}, "http.rate_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.override)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetConfig(t *testing.T) {
	cfg, err := Load(context.Background(), map[string]any{"migrate": map[string]any{"prefix": "copy-"}})
	require.NoError(t, err)

	current := GetConfig()
	require.NotNil(t, current)
	assert.Equal(t, cfg.Migrate.Prefix, current.Migrate.Prefix)

	other := *cfg
	other.Migrate.Prefix = "other-"
	Use(&other)
	assert.Equal(t, "other-", GetConfig().Migrate.Prefix)
}

func TestEnvSpecs(t *testing.T) {
	names := make(map[string]string)
	for _, spec := range getEnvSpecs() {
		require.NotEmpty(t, spec.Names)
		for _, n := range spec.Names {
			names[n] = spec.Key
		}
	}
	assert.Equal(t, "logging.level", names["ENGINESHIFT_LOG_LEVEL"])
	assert.Equal(t, "source.key", names["ENGINESHIFT_SOURCE_API_KEY"])
	assert.Equal(t, "migrate.state_file", names["ENGINESHIFT_STATE_FILE"])
}

func TestReadFile_DefaultLocationIsOptional(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	v := viper.New()
	assert.NoError(t, ReadFile(v, ""))
	assert.Empty(t, v.ConfigFileUsed())
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"a": 1,
		"b": map[string]any{"c": "x", "d": map[string]any{"e": true}},
	})
	assert.Equal(t, map[string]any{"a": 1, "b.c": "x", "b.d.e": true}, got)
}
