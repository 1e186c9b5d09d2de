package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmpty is returned for a zero-length manifest.
var ErrEmpty = errors.New("manifest file is empty")

// Load reads, validates and defaults a manifest from path.
//
// The format is chosen by extension: .yaml/.yml for YAML, .json for JSON.
// Unknown extensions try YAML first, then JSON. A missing file returns an
// error wrapping fs.ErrNotExist.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a manifest from raw bytes. path is used
// for format detection and error messages.
//
// The raw document is validated against the schema before it is decoded, so
// unknown fields are rejected rather than silently dropped.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(jsonData); err != nil {
		return nil, err
	}

	// Decoding the normalized JSON keeps one code path for both formats.
	var m Manifest
	if err := json.Unmarshal(jsonData, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.check(); err != nil {
		return nil, err
	}
	return &m, nil
}

// check enforces rules the schema cannot express.
func (m *Manifest) check() error {
	var errs ValidationErrors
	if m.Migrate.RetryFailedOnly && !m.Migrate.Resume {
		errs = append(errs, ValidationError{Path: "/migrate/retry_failed_only", Message: "requires resume"})
	}
	if sameEndpoint(m.Source.Endpoint, m.Target.Endpoint) && m.Migrate.Prefix == "" {
		errs = append(errs, ValidationError{Path: "/target/endpoint", Message: "source and target are the same cluster; set migrate.prefix"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func sameEndpoint(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}

// toJSON converts the input to JSON for schema validation.
func toJSON(data []byte, path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if !json.Valid(data) {
			var raw any
			err := json.Unmarshal(data, &raw)
			return nil, fmt.Errorf("invalid JSON in manifest: %w", err)
		}
		return data, nil
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		jsonData, err := yamlToJSON(data)
		if err == nil {
			return jsonData, nil
		}
		if json.Valid(data) {
			return data, nil
		}
		return nil, fmt.Errorf("parse manifest (tried YAML and JSON): %w", err)
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML in manifest: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert manifest to JSON: %w", err)
	}
	return jsonData, nil
}
