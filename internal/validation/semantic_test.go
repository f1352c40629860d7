package validation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentraops/sentra/internal/actions"
	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/pkg/schema"
)

// stubAction registers under an arbitrary kind with a pluggable param check.
type stubAction struct {
	kind     schema.ActionKind
	validate func(map[string]any) error
}

func (s *stubAction) Kind() schema.ActionKind { return s.kind }

func (s *stubAction) Validate(params map[string]any) error {
	if s.validate == nil {
		return nil
	}
	return s.validate(params)
}

func (s *stubAction) Execute(ctx context.Context, in actions.Input) (*actions.Result, error) {
	return &actions.Result{}, nil
}

func testLookup(t *testing.T, kinds ...schema.ActionKind) *actions.Registry {
	t.Helper()
	reg := actions.NewRegistry()
	for _, k := range kinds {
		require.NoError(t, reg.Register(&stubAction{kind: k}))
	}
	return reg
}

func testCEL(t *testing.T) *expressions.CELEngine {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	return cel
}

func TestSemanticDetectsDuplicateStepIDs(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:        "dup",
		TriggerType: schema.TriggerManual,
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "duplicate step id")
}

func TestSemanticDetectsDanglingEdges(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:        "dangling",
		TriggerType: schema.TriggerManual,
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait, OnSuccess: "ghost", OnFailure: "phantom"},
		},
	}

	result := validateSemantic(def, nil, nil)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "steps[0].on_success", result.Errors[0].Path)
	assert.Equal(t, "steps[0].on_failure", result.Errors[1].Path)
}

func TestSemanticDetectsDanglingEntry(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:        "entry",
		TriggerType: schema.TriggerManual,
		EntryStepID: "ghost",
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, nil)
	require.False(t, result.Valid())
	assert.Equal(t, "entry_step_id", result.Errors[0].Path)
}

func TestSemanticDetectsUnregisteredAction(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:        "missing-action",
		TriggerType: schema.TriggerManual,
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionRunScript},
		},
	}

	lookup := testLookup(t, schema.ActionWait)
	result := validateSemantic(def, lookup, nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "not registered")
}

func TestSemanticRunsActionParamChecks(t *testing.T) {
	reg := actions.NewRegistry()
	require.NoError(t, reg.Register(&stubAction{
		kind: schema.ActionRunScript,
		validate: func(params map[string]any) error {
			if _, ok := params["script_id"]; !ok {
				return schema.NewError(schema.ErrCodeValidation, "script_id parameter is required")
			}
			return nil
		},
	}))

	def := &schema.PlaybookDefinition{
		Name:        "params",
		TriggerType: schema.TriggerManual,
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionRunScript, Parameters: json.RawMessage(`{"args":{}}`)},
		},
	}

	result := validateSemantic(def, reg, nil)
	require.False(t, result.Valid())
	assert.Equal(t, "steps[0].parameters", result.Errors[0].Path)
	assert.Contains(t, result.Errors[0].Message, "script_id")
}

func TestSemanticSkipsParamChecksForTemplatedParameters(t *testing.T) {
	reg := actions.NewRegistry()
	require.NoError(t, reg.Register(&stubAction{
		kind: schema.ActionWait,
		validate: func(params map[string]any) error {
			return schema.NewError(schema.ErrCodeValidation, "should not run")
		},
	}))

	def := &schema.PlaybookDefinition{
		Name:        "templated",
		TriggerType: schema.TriggerManual,
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait, Parameters: json.RawMessage(`{"seconds":"{{delay}}"}`)},
		},
	}

	result := validateSemantic(def, reg, nil)
	assert.True(t, result.Valid())
}

func TestSemanticChecksEmptyParamsAgainstAction(t *testing.T) {
	reg := actions.NewRegistry()
	require.NoError(t, reg.Register(&stubAction{
		kind: schema.ActionCreateIncident,
		validate: func(params map[string]any) error {
			if _, ok := params["title"]; !ok {
				return schema.NewError(schema.ErrCodeValidation, "title parameter is required")
			}
			return nil
		},
	}))

	def := &schema.PlaybookDefinition{
		Name:        "empty-params",
		TriggerType: schema.TriggerManual,
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionCreateIncident},
		},
	}

	result := validateSemantic(def, reg, nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "title")
}

func TestSemanticScheduleTriggerRequiresCron(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:        "sched",
		TriggerType: schema.TriggerSchedule,
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, nil)
	require.False(t, result.Valid())
	assert.Equal(t, "schedule", result.Errors[0].Path)
}

func TestSemanticRejectsInvalidCronExpression(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:        "sched",
		TriggerType: schema.TriggerSchedule,
		Schedule:    "every five minutes",
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, nil)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "cron")
}

func TestSemanticAcceptsValidCronExpression(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:        "sched",
		TriggerType: schema.TriggerSchedule,
		Schedule:    "*/5 * * * *",
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, nil)
	assert.True(t, result.Valid())
}

func TestSemanticWarnsScheduleOnNonScheduleTrigger(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:        "warn",
		TriggerType: schema.TriggerAlert,
		Schedule:    "*/5 * * * *",
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "schedule", result.Warnings[0].Path)
}

func TestSemanticRejectsNonStringTriggerExpression(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:              "expr",
		TriggerType:       schema.TriggerAlert,
		TriggerConditions: map[string]any{"expression": 42},
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, nil)
	require.False(t, result.Valid())
	assert.Equal(t, "trigger_conditions.expression", result.Errors[0].Path)
}

func TestSemanticCompilesTriggerExpression(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:              "expr",
		TriggerType:       schema.TriggerAlert,
		TriggerConditions: map[string]any{"expression": `fields.severity == "high" &&`},
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, testCEL(t))
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, "invalid trigger expression")
}

func TestSemanticAcceptsValidTriggerExpression(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:              "expr",
		TriggerType:       schema.TriggerAlert,
		TriggerConditions: map[string]any{"expression": `fields.severity == "high"`},
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, testCEL(t))
	assert.True(t, result.Valid())
}

func TestSemanticWarnsStepTimeoutExceedsExecutionTimeout(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:                    "timeouts",
		TriggerType:             schema.TriggerManual,
		ExecutionTimeoutSeconds: 60,
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait, TimeoutSeconds: 120},
		},
	}

	result := validateSemantic(def, nil, nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0].Message, "exceeds execution timeout")
}

func TestSemanticWarnsConditionsOnManualTrigger(t *testing.T) {
	def := &schema.PlaybookDefinition{
		Name:              "manual",
		TriggerType:       schema.TriggerManual,
		TriggerConditions: map[string]any{"severity": "high"},
		Steps: []schema.StepDefinition{
			{ID: "a", Action: schema.ActionWait},
		},
	}

	result := validateSemantic(def, nil, nil)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "trigger_conditions", result.Warnings[0].Path)
}
