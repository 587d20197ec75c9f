// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so the CLI and library validate
// correctly regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// SeedManifestSchema is the embedded seed-manifest JSON schema.
//
//go:embed seed-manifest.schema.json
var SeedManifestSchema []byte
