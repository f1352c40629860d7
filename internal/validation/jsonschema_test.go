package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentraops/sentra/pkg/schema"
)

func validDefinition() *schema.PlaybookDefinition {
	return &schema.PlaybookDefinition{
		Name:        "phishing-triage",
		TriggerType: schema.TriggerAlert,
		Steps: []schema.StepDefinition{
			{ID: "enrich", Action: schema.ActionEnrichIP, OnSuccess: "notify"},
			{ID: "notify", Action: schema.ActionSendNotification},
		},
	}
}

func TestJSONSchemaValidatorAcceptsValidDefinition(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateDefinition(validDefinition()))
}

func TestJSONSchemaValidatorRejectsNil(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateDefinition(nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestJSONSchemaValidatorRejectsMissingName(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.Name = ""

	err = v.ValidateDefinition(def)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestJSONSchemaValidatorRejectsUnknownTriggerType(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.TriggerType = "carrier-pigeon"

	err = v.ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trigger_type")
}

func TestJSONSchemaValidatorRejectsUnknownAction(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.Steps[0].Action = "launch_missiles"

	err = v.ValidateDefinition(def)
	require.Error(t, err)
}

func TestJSONSchemaValidatorRejectsEmptySteps(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.Steps = nil

	err = v.ValidateDefinition(def)
	require.Error(t, err)
}

func TestJSONSchemaValidatorRejectsStepWithoutID(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.Steps[0].ID = ""

	err = v.ValidateDefinition(def)
	require.Error(t, err)
}

func TestJSONSchemaValidatorRejectsNonPositiveTimeout(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.Steps[0].TimeoutSeconds = -5

	err = v.ValidateDefinition(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout_seconds")
}

func TestJSONSchemaValidatorReportsAllViolations(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	def := validDefinition()
	def.Name = ""
	def.TriggerType = "nonsense"

	err = v.ValidateDefinition(def)
	require.Error(t, err)

	engErr, ok := err.(*schema.EngineError)
	require.True(t, ok)
	violations, ok := engErr.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 2)
}
