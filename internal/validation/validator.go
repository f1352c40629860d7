package validation

import "github.com/sentraops/sentra/pkg/schema"

// Validator checks playbook definitions for correctness before activation.
// Uses JSON Schema Draft 2020-12 for structural validation.
type Validator interface {
	ValidateDefinition(def *schema.PlaybookDefinition) error
}

// ActionLookup resolves action kinds during semantic validation. Satisfied by
// the action registry; may be nil to skip action checks.
type ActionLookup interface {
	// Has reports whether the kind is registered.
	Has(kind schema.ActionKind) bool

	// ValidateParams runs the action's static parameter check against raw
	// (pre-resolution) parameters.
	ValidateParams(kind schema.ActionKind, params map[string]any) error
}
