package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/sentraops/sentra/pkg/schema"
)

// playbookSchemaJSON is the JSON Schema for PlaybookDefinition validation.
// Embedded as a constant to avoid filesystem dependencies.
const playbookSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://sentraops.dev/schemas/playbook.json",
  "type": "object",
  "required": ["name", "trigger_type", "steps"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "trigger_type": {
      "type": "string",
      "enum": ["manual", "alert", "incident", "schedule", "webhook"]
    },
    "trigger_conditions": {
      "type": "object"
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "maxItems": 500,
      "items": { "$ref": "#/$defs/step" }
    },
    "entry_step_id": {
      "type": "string",
      "minLength": 1
    },
    "schedule": { "type": "string" },
    "execution_timeout_seconds": {
      "type": "integer",
      "minimum": 1
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "action"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "name": { "type": "string" },
        "action": {
          "type": "string",
          "enum": [
            "enrich_ip", "enrich_domain", "enrich_hash",
            "send_notification", "update_alert", "create_incident",
            "run_script", "conditional", "transform", "wait"
          ]
        },
        "parameters": { "type": "object" },
        "on_success": { "type": "string" },
        "on_failure": { "type": "string" },
        "timeout_seconds": {
          "type": "integer",
          "minimum": 1
        }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates playbook definitions against the embedded
// playbook JSON Schema (Draft 2020-12). Safe for concurrent use.
type JSONSchemaValidator struct {
	playbookSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the playbook
// schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(playbookSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal playbook schema: %w", err)
	}
	if err := c.AddResource("https://sentraops.dev/schemas/playbook.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add playbook schema resource: %w", err)
	}

	pbSchema, err := c.Compile("https://sentraops.dev/schemas/playbook.json")
	if err != nil {
		return nil, fmt.Errorf("compile playbook schema: %w", err)
	}

	return &JSONSchemaValidator{playbookSchema: pbSchema}, nil
}

// ValidateDefinition validates a PlaybookDefinition against the playbook
// JSON Schema.
func (v *JSONSchemaValidator) ValidateDefinition(def *schema.PlaybookDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "playbook definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize playbook definition").WithCause(err)
	}

	if err := v.playbookSchema.Validate(doc); err != nil {
		return toEngineError(err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toEngineError converts a jsonschema.ValidationError into an EngineError
// with clear, actionable messages for operator consumption.
func toEngineError(err error) *schema.EngineError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
