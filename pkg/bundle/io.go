package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/3leaps/engineshift/pkg/atomicfile"
)

// Write serializes b to path, creating the parent directory if absent. The
// file is replaced atomically.
func Write(path string, b *Bundle) error {
	if b == nil {
		return fmt.Errorf("bundle is nil")
	}
	if err := b.Validate(); err != nil {
		return err
	}

	data, err := Marshal(b, FormatFor(path))
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write bundle %s: %w", path, err)
	}
	return nil
}

// Marshal encodes b in the given format.
func Marshal(b *Bundle, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle yaml: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(b, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal bundle json: %w", err)
		}
		return append(data, '\n'), nil
	}
}

// Read loads and validates a bundle from path.
//
// The format is chosen by extension. For unrecognized extensions YAML is
// tried first, then JSON.
func Read(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("bundle file not found: %s: %w", path, err)
		}
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return Unmarshal(data, path)
}

// Unmarshal parses bundle bytes. path is used only for format detection.
func Unmarshal(data []byte, path string) (*Bundle, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, ErrEmpty
	}

	var (
		b   *Bundle
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		b, err = parseJSON(data)
	case ".yaml", ".yml":
		b, err = parseYAML(data)
	default:
		b, err = parseYAML(data)
		if err != nil {
			var jsonErr error
			if b, jsonErr = parseJSON(data); jsonErr == nil {
				err = nil
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if err := b.Validate(); err != nil {
		if errors.Is(err, ErrUnsupportedVersion) {
			return nil, fmt.Errorf("%w: %d", err, b.Version)
		}
		return nil, err
	}
	b.normalize()
	return b, nil
}

func parseJSON(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid JSON in bundle: %w", err)
	}
	return &b, nil
}

func parseYAML(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid YAML in bundle: %w", err)
	}
	return &b, nil
}

func (b *Bundle) normalize() {
	if b.Schema == nil {
		b.Schema = map[string]string{}
	}
	if b.Synonyms == nil {
		b.Synonyms = [][]string{}
	}
	if b.Curations == nil {
		b.Curations = []Curation{}
	}
}
