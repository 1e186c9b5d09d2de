// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time to ensure the CLI and library work
// correctly regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// MigrationManifestSchema is the embedded migration-manifest JSON schema.
//
//go:embed migration-manifest.schema.json
var MigrationManifestSchema []byte
