// Package manifest provides loading and validation of engineshift migration
// manifests.
//
// A migration manifest is a YAML or JSON file describing a bulk migration:
// the source and target clusters, which engines to select, how the run
// behaves, and where bundles and events go.
//
// Manifests are validated against a JSON Schema before use. The schema
// enforces strict typing and disallows unknown properties. API keys are never
// stored in the manifest; each cluster names the environment variable that
// holds its key.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	source:
//	  endpoint: https://old-cluster.example.com
//	  key_env: SOURCE_API_KEY
//	target:
//	  endpoint: https://new-cluster.example.com
//	  key_env: TARGET_API_KEY
//	match:
//	  filter: parks
//	  excludes:
//	    - "*-staging"
//	migrate:
//	  concurrency: 5
//	  prefix: import-
//	  resume: true
package manifest

import (
	"os"

	"github.com/3leaps/engineshift/pkg/match"
)

// Manifest represents a validated migration manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	Source ClusterConfig `json:"source" yaml:"source"`
	Target ClusterConfig `json:"target" yaml:"target"`

	// Match selects source engines by name (optional).
	Match MatchConfig `json:"match,omitempty" yaml:"match,omitempty"`

	// Migrate configures run behavior (optional).
	Migrate MigrateConfig `json:"migrate,omitempty" yaml:"migrate,omitempty"`

	// Archive uploads every exported bundle to S3 (optional).
	Archive *ArchiveConfig `json:"archive,omitempty" yaml:"archive,omitempty"`

	// Output configures the JSONL event stream (optional).
	Output OutputConfig `json:"output,omitempty" yaml:"output,omitempty"`
}

// ClusterConfig points at one search cluster.
type ClusterConfig struct {
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// KeyEnv names the environment variable holding the private API key.
	KeyEnv string `json:"key_env,omitempty" yaml:"key_env,omitempty"`
}

// APIKey resolves the key from the environment. Empty when KeyEnv is unset
// or the variable is empty.
func (c ClusterConfig) APIKey() string {
	if c.KeyEnv == "" {
		return ""
	}
	return os.Getenv(c.KeyEnv)
}

// MatchConfig selects engines by name.
type MatchConfig struct {
	// Filter is a case-sensitive substring. Empty selects all.
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`

	Includes []string `json:"includes,omitempty" yaml:"includes,omitempty"`
	Excludes []string `json:"excludes,omitempty" yaml:"excludes,omitempty"`
	Regex    string   `json:"regex,omitempty" yaml:"regex,omitempty"`
}

// MatcherConfig converts to the matcher configuration.
func (m MatchConfig) MatcherConfig() match.Config {
	return match.Config{
		Filter:   m.Filter,
		Includes: m.Includes,
		Excludes: m.Excludes,
		Regex:    m.Regex,
	}
}

// MigrateConfig configures run behavior. All fields are optional; a field
// left unset keeps the value from the configuration file or environment.
type MigrateConfig struct {
	// Concurrency is the batch size. Range: 1-64.
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`

	// Prefix is prepended to each destination engine name.
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty"`

	Resume          bool `json:"resume,omitempty" yaml:"resume,omitempty"`
	RetryFailedOnly bool `json:"retry_failed_only,omitempty" yaml:"retry_failed_only,omitempty"`
	SkipExisting    bool `json:"skip_existing,omitempty" yaml:"skip_existing,omitempty"`
	Force           bool `json:"force,omitempty" yaml:"force,omitempty"`

	// Cleanup removes each bundle after a successful import.
	Cleanup bool `json:"cleanup,omitempty" yaml:"cleanup,omitempty"`

	// OutputDir receives exported bundles.
	OutputDir string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`

	// StateFile persists progress. A .db/.sqlite/.sqlite3 extension selects
	// the SQLite store.
	StateFile string `json:"state_file,omitempty" yaml:"state_file,omitempty"`

	// Format of exported bundles: json or yaml.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// SecondsPerEngine feeds the dry-run duration estimate.
	SecondsPerEngine float64 `json:"seconds_per_engine,omitempty" yaml:"seconds_per_engine,omitempty"`
}

// ArchiveConfig configures bundle upload to an S3 bucket.
type ArchiveConfig struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Profile  string `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// OutputConfig configures the event stream.
type OutputConfig struct {
	// Destination is "stdout" or "file:/path/to/events.jsonl". Empty
	// disables the stream.
	Destination string `json:"destination,omitempty" yaml:"destination,omitempty"`
}
