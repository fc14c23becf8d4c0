// Package schemas provides access to embedded JSON schemas.
package schemas

import (
	_ "embed"
)

// Embed the flow JSON Schema into the binary for validation and tooling.
// The schema defines the structure of flow files and enables IDE
// autocompletion, early validation, and schema-based tools.
//
//go:embed flow.schema.json
var flowSchema []byte

// GetFlowSchema returns the embedded flow JSON Schema as raw bytes.
// This schema can be used for validation, IDE integration, or schema export.
func GetFlowSchema() []byte {
	return flowSchema
}

// GetFlowSchemaString returns the embedded flow JSON Schema as a string.
// This is a convenience method for use cases that need the schema as a string.
func GetFlowSchemaString() string {
	return string(flowSchema)
}
