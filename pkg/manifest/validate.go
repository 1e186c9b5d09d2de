package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	schemasassets "github.com/3leaps/engineshift/internal/assets/schemas"
	"github.com/fulmenhq/gofulmen/schema"
)

// SchemaID identifies the embedded migration manifest schema.
const SchemaID = "engineshift/v1.0.0/migration-manifest"

var (
	ErrSchemaNotFound   = errors.New("manifest schema not found")
	ErrValidationFailed = errors.New("manifest validation failed")
)

// ValidationError is one problem found in a manifest. Path is a JSON
// pointer such as "/migrate/concurrency"; it is empty for problems that
// concern the document as a whole.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every problem of one manifest. It matches
// ErrValidationFailed under errors.Is.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ErrValidationFailed.Error()
	case 1:
		return e[0].Error()
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("%s with %d errors:", ErrValidationFailed, len(e)))
	for _, ve := range e {
		lines = append(lines, "  - "+ve.Error())
	}
	return strings.Join(lines, "\n")
}

func (e ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

// Validate runs the schema and cross-field checks on a manifest assembled
// in code rather than loaded from a file.
func Validate(m *Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := ValidateRaw(raw); err != nil {
		return err
	}
	return m.check()
}

// ValidateRaw validates a JSON document against the embedded schema.
// Unknown fields are errors. Diagnostics below error severity are ignored.
func ValidateRaw(raw []byte) error {
	v, err := compiledSchema()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(raw)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
	}
	if errs == nil {
		return nil
	}
	return errs
}

var compiledSchema = sync.OnceValues(func() (*schema.Validator, error) {
	if len(schemasassets.MigrationManifestSchema) == 0 {
		return nil, fmt.Errorf("%w: embedded schema is empty", ErrSchemaNotFound)
	}
	v, err := schema.NewValidator(schemasassets.MigrationManifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema %s: %w", SchemaID, err)
	}
	return v, nil
})
