package validation

import (
	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/pkg/schema"
)

// PlaybookValidator orchestrates the three-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (action refs, edge refs, parameters, trigger config)
// 3. Reachability (steps unreachable from the entry step)
type PlaybookValidator struct {
	jsonSchema *JSONSchemaValidator
	actions    ActionLookup
	cel        *expressions.CELEngine
}

// NewPlaybookValidator creates a PlaybookValidator. lookup may be nil to skip
// action checks; cel may be nil to skip trigger-expression compilation.
func NewPlaybookValidator(lookup ActionLookup, cel *expressions.CELEngine) (*PlaybookValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &PlaybookValidator{
		jsonSchema: jsv,
		actions:    lookup,
		cel:        cel,
	}, nil
}

// Validate runs the full 3-stage pipeline and returns an aggregated result.
// Structural errors short-circuit: semantic and reachability stages are
// skipped because the definition's shape cannot be trusted.
func (pv *PlaybookValidator) Validate(def *schema.PlaybookDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "playbook definition is nil")
		return r
	}

	result := validateStructural(pv.jsonSchema, def)
	if !result.Valid() {
		return result
	}

	result.Merge(validateSemantic(def, pv.actions, pv.cel))

	// Reachability needs a semantically sound graph.
	if result.Valid() {
		result.Merge(validateReachability(def))
	}

	return result
}

// ValidateDefinition satisfies the Validator interface.
func (pv *PlaybookValidator) ValidateDefinition(def *schema.PlaybookDefinition) error {
	return pv.Validate(def).ToError()
}

// validateStructural wraps JSONSchemaValidator.ValidateDefinition, converting
// its error output into ValidationResult.
func validateStructural(v *JSONSchemaValidator, def *schema.PlaybookDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	err := v.ValidateDefinition(def)
	if err == nil {
		return result
	}

	engErr, ok := err.(*schema.EngineError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if engErr.Details != nil {
		if violations, ok := engErr.Details["violations"].([]string); ok {
			for _, v := range violations {
				result.AddError("/", schema.ErrCodeValidation, v)
			}
			return result
		}
	}
	result.AddError("/", schema.ErrCodeValidation, engErr.Message)
	return result
}
