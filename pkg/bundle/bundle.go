// Package bundle defines the on-disk format of an exported engine.
//
// A bundle holds everything needed to recreate an engine's configuration on
// another cluster: schema, synonyms, curations, search settings and crawler
// configuration. Documents are not part of a bundle.
//
// Bundles are written as YAML for .yaml/.yml paths and as indented JSON
// otherwise.
package bundle

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// Version is the bundle format version written by this package.
const Version = 1

var (
	// ErrEmpty indicates the bundle file has no content.
	ErrEmpty = errors.New("bundle file is empty")

	// ErrUnsupportedVersion indicates a bundle written by an incompatible release.
	ErrUnsupportedVersion = errors.New("unsupported bundle version")

	// ErrMissingName indicates a bundle without an engine name.
	ErrMissingName = errors.New("bundle engine name is required")
)

// Format is the serialization used for a bundle file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Bundle is one exported engine.
type Bundle struct {
	Version        int               `json:"version" yaml:"version"`
	ExportedAt     time.Time         `json:"exported_at" yaml:"exported_at"`
	Source         string            `json:"source,omitempty" yaml:"source,omitempty"`
	Engine         Engine            `json:"engine" yaml:"engine"`
	Schema         map[string]string `json:"schema" yaml:"schema"`
	Synonyms       [][]string        `json:"synonyms" yaml:"synonyms"`
	Curations      []Curation        `json:"curations" yaml:"curations"`
	SearchSettings map[string]any    `json:"search_settings,omitempty" yaml:"search_settings,omitempty"`
	Crawler        *Crawler          `json:"crawler,omitempty" yaml:"crawler,omitempty"`
}

// Engine is the engine metadata carried in a bundle.
type Engine struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

// Curation is an exported curation without its source-side ID.
type Curation struct {
	Queries  []string `json:"queries" yaml:"queries"`
	Promoted []string `json:"promoted,omitempty" yaml:"promoted,omitempty"`
	Hidden   []string `json:"hidden,omitempty" yaml:"hidden,omitempty"`
}

// Crawler is exported crawler configuration.
type Crawler struct {
	Domains []Domain `json:"domains" yaml:"domains"`
}

// Domain is one crawled domain with its sub-resources.
type Domain struct {
	Name        string      `json:"name" yaml:"name"`
	EntryPoints []string    `json:"entry_points,omitempty" yaml:"entry_points,omitempty"`
	CrawlRules  []CrawlRule `json:"crawl_rules,omitempty" yaml:"crawl_rules,omitempty"`
	Sitemaps    []string    `json:"sitemaps,omitempty" yaml:"sitemaps,omitempty"`
}

// CrawlRule is an allow/deny rule for crawled paths.
type CrawlRule struct {
	Policy  string `json:"policy" yaml:"policy"`
	Rule    string `json:"rule" yaml:"rule"`
	Pattern string `json:"pattern" yaml:"pattern"`
	Order   int    `json:"order,omitempty" yaml:"order,omitempty"`
}

// New returns an empty bundle for the named engine stamped with the current
// format version.
func New(name string) *Bundle {
	return &Bundle{
		Version:    Version,
		ExportedAt: time.Now().UTC(),
		Engine:     Engine{Name: name},
		Schema:     map[string]string{},
		Synonyms:   [][]string{},
		Curations:  []Curation{},
	}
}

// Validate checks the fields every reader depends on.
func (b *Bundle) Validate() error {
	if b.Version != Version {
		return ErrUnsupportedVersion
	}
	if strings.TrimSpace(b.Engine.Name) == "" {
		return ErrMissingName
	}
	return nil
}

// FormatFor returns the format implied by a file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Path returns the conventional bundle path for an engine in dir.
func Path(dir, engine string, format Format) string {
	ext := ".json"
	if format == FormatYAML {
		ext = ".yaml"
	}
	return filepath.Join(dir, engine+ext)
}
