package actions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/pkg/schema"
)

type fakeIntel struct {
	report *IntelReport
	err    error
	gotTyp string
	gotVal string
}

func (f *fakeIntel) Lookup(_ context.Context, indicator, indicatorType string) (*IntelReport, error) {
	f.gotVal = indicator
	f.gotTyp = indicatorType
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeNotifier struct {
	err      error
	gotChan  string
	gotMsg   string
	ackValue string
}

func (f *fakeNotifier) Send(_ context.Context, channel, message string) (string, error) {
	f.gotChan = channel
	f.gotMsg = message
	if f.err != nil {
		return "", f.err
	}
	return f.ackValue, nil
}

type fakeCases struct {
	incidentID string
	err        error
	gotAlert   string
	gotFields  map[string]any
}

func (f *fakeCases) PatchAlert(_ context.Context, alertID string, fields map[string]any) (map[string]any, error) {
	f.gotAlert = alertID
	f.gotFields = fields
	if f.err != nil {
		return nil, f.err
	}
	return fields, nil
}

func (f *fakeCases) CreateIncident(_ context.Context, fields map[string]any) (string, error) {
	f.gotFields = fields
	if f.err != nil {
		return "", f.err
	}
	return f.incidentID, nil
}

type fakeRunner struct {
	result map[string]any
	err    error
	gotID  string
}

func (f *fakeRunner) Run(_ context.Context, scriptID string, args map[string]any) (map[string]any, error) {
	f.gotID = scriptID
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testCollaborators() (Collaborators, *fakeIntel, *fakeNotifier, *fakeCases, *fakeRunner) {
	intel := &fakeIntel{report: &IntelReport{Reputation: "malicious", Confidence: 97, Sources: []string{"feed-a"}, Tags: []string{"botnet"}}}
	notify := &fakeNotifier{ackValue: "msg-123"}
	cases := &fakeCases{incidentID: "INC-42"}
	runner := &fakeRunner{result: map[string]any{"exit_code": 0}}
	return Collaborators{Intel: intel, Notify: notify, Cases: cases, Scripts: runner}, intel, notify, cases, runner
}

func TestRegisterBuiltins(t *testing.T) {
	collabs, _, _, _, _ := testCollaborators()
	reg := NewRegistry()

	err := RegisterBuiltins(reg, collabs, expressions.NewExprEngine(), expressions.NewGoJQEngine())
	require.NoError(t, err)

	for _, kind := range schema.ActionKinds {
		assert.True(t, reg.Has(kind), "missing builtin for %s", kind)
	}
	assert.Equal(t, len(schema.ActionKinds), reg.Count())
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewWaitAction()))

	err := reg.Register(NewWaitAction())
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
}

func TestEnrichIPUsesContextFallback(t *testing.T) {
	collabs, intel, _, _, _ := testCollaborators()
	reg := NewRegistry()
	require.NoError(t, reg.Register(EnrichActions(collabs.Intel)[0]))

	action, err := reg.Get(schema.ActionEnrichIP)
	require.NoError(t, err)

	res, err := action.Execute(context.Background(), Input{
		Params:  map[string]any{},
		Context: map[string]any{"source_ip": "203.0.113.7"},
	})
	require.NoError(t, err)

	assert.Equal(t, "203.0.113.7", intel.gotVal)
	assert.Equal(t, "ip", intel.gotTyp)
	assert.Equal(t, "malicious", res.Output["reputation"])
	assert.Equal(t, true, res.Output["is_malicious"])
}

func TestEnrichFailsWithoutIndicator(t *testing.T) {
	collabs, _, _, _, _ := testCollaborators()
	action := EnrichActions(collabs.Intel)[1] // enrich_domain

	_, err := action.Execute(context.Background(), Input{
		Params:  map[string]any{},
		Context: map[string]any{},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeAction, schema.CodeOf(err))
}

func TestSendNotification(t *testing.T) {
	collabs, _, notify, _, _ := testCollaborators()
	action := NewSendNotificationAction(collabs.Notify)

	res, err := action.Execute(context.Background(), Input{
		Params: map[string]any{"channel": "#soc-alerts", "message": "malicious IP detected"},
	})
	require.NoError(t, err)

	assert.Equal(t, "#soc-alerts", notify.gotChan)
	assert.Equal(t, "malicious IP detected", notify.gotMsg)
	assert.Equal(t, "msg-123", res.Output["delivery_ack"])
}

func TestSendNotificationValidate(t *testing.T) {
	action := NewSendNotificationAction(nil)

	err := action.Validate(map[string]any{"channel": "#soc"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	assert.NoError(t, action.Validate(map[string]any{"channel": "#soc", "message": "hi"}))
}

func TestUpdateAlertDefaultsFromContext(t *testing.T) {
	collabs, _, _, cases, _ := testCollaborators()
	action := NewUpdateAlertAction(collabs.Cases)

	res, err := action.Execute(context.Background(), Input{
		Params:  map[string]any{"fields": map[string]any{"status": "triaged"}},
		Context: map[string]any{"alert_id": "ALRT-9"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ALRT-9", cases.gotAlert)
	assert.Equal(t, "ALRT-9", res.Output["updated_alert_id"])
	assert.Equal(t, map[string]any{"status": "triaged"}, res.Output["patched_fields"])
}

func TestCreateIncident(t *testing.T) {
	collabs, _, _, cases, _ := testCollaborators()
	action := NewCreateIncidentAction(collabs.Cases)

	res, err := action.Execute(context.Background(), Input{
		Params: map[string]any{"title": "Ransomware outbreak", "severity": "critical"},
	})
	require.NoError(t, err)

	assert.Equal(t, "INC-42", res.Output["incident_id"])
	assert.Equal(t, "critical", cases.gotFields["severity"])
}

func TestRunScriptMergesResult(t *testing.T) {
	collabs, _, _, _, runner := testCollaborators()
	action := NewRunScriptAction(collabs.Scripts)

	res, err := action.Execute(context.Background(), Input{
		Params: map[string]any{"script_id": "block-ip", "args": map[string]any{"ip": "203.0.113.7"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "block-ip", runner.gotID)
	assert.Equal(t, "block-ip", res.Output["script_id"])
	assert.Equal(t, 0, res.Output["exit_code"])
}

func TestRunScriptPropagatesFailure(t *testing.T) {
	action := NewRunScriptAction(&fakeRunner{err: errors.New("sandbox limit")})

	_, err := action.Execute(context.Background(), Input{
		Params: map[string]any{"script_id": "block-ip"},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeAction, schema.CodeOf(err))
}

func TestConditionalOperators(t *testing.T) {
	action := NewConditionalAction(nil)
	execCtx := map[string]any{
		"severity":   "high",
		"confidence": 0.97,
		"count":      float64(12),
		"tags":       []any{"botnet", "c2"},
		"message":    "suspicious login from 203.0.113.7",
	}

	cases := []struct {
		name   string
		params map[string]any
		holds  bool
	}{
		{"equals string", map[string]any{"field": "severity", "operator": "equals", "value": "high"}, true},
		{"equals cross-type", map[string]any{"field": "count", "operator": "equals", "value": "12"}, true},
		{"not_equals", map[string]any{"field": "severity", "operator": "not_equals", "value": "low"}, true},
		{"contains substring", map[string]any{"field": "message", "operator": "contains", "value": "203.0.113.7"}, true},
		{"contains list member", map[string]any{"field": "tags", "operator": "contains", "value": "c2"}, true},
		{"greater_than", map[string]any{"field": "confidence", "operator": "greater_than", "value": 0.9}, true},
		{"less_than fails", map[string]any{"field": "count", "operator": "less_than", "value": 10}, false},
		{"equals fails", map[string]any{"field": "severity", "operator": "equals", "value": "low"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := action.Execute(context.Background(), Input{Params: tc.params, Context: execCtx})
			if tc.holds {
				require.NoError(t, err)
				assert.Empty(t, res.Output)
			} else {
				require.Error(t, err)
				assert.Equal(t, schema.ErrCodeAction, schema.CodeOf(err))
			}
		})
	}
}

func TestConditionalMissingFieldFails(t *testing.T) {
	action := NewConditionalAction(nil)

	_, err := action.Execute(context.Background(), Input{
		Params:  map[string]any{"field": "nonexistent", "operator": "equals", "value": "x"},
		Context: map[string]any{},
	})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeAction, schema.CodeOf(err))
}

func TestConditionalExpressionMode(t *testing.T) {
	action := NewConditionalAction(expressions.NewExprEngine())
	execCtx := map[string]any{"confidence": 0.97, "severity": "high"}

	_, err := action.Execute(context.Background(), Input{
		Params:  map[string]any{"expression": `confidence > 0.9 && severity == "high"`},
		Context: execCtx,
	})
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), Input{
		Params:  map[string]any{"expression": `confidence > 0.99`},
		Context: execCtx,
	})
	require.Error(t, err)
}

func TestConditionalValidate(t *testing.T) {
	action := NewConditionalAction(nil)

	assert.NoError(t, action.Validate(map[string]any{"field": "a", "operator": "equals", "value": 1}))
	assert.NoError(t, action.Validate(map[string]any{"expression": "a > 1"}))

	err := action.Validate(map[string]any{"field": "a", "operator": "matches", "value": 1})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))

	err = action.Validate(map[string]any{"operator": "equals", "value": 1})
	require.Error(t, err)
}

func TestTransformAction(t *testing.T) {
	action := NewTransformAction(expressions.NewGoJQEngine())

	res, err := action.Execute(context.Background(), Input{
		Params: map[string]any{
			"program":   `.alerts | map(.severity) | unique`,
			"assign_to": "severities",
		},
		Context: map[string]any{
			"alerts": []any{
				map[string]any{"severity": "high"},
				map[string]any{"severity": "low"},
				map[string]any{"severity": "high"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"high", "low"}, res.Output["severities"])
}

func TestTransformValidate(t *testing.T) {
	action := NewTransformAction(expressions.NewGoJQEngine())

	require.Error(t, action.Validate(map[string]any{}))
	require.Error(t, action.Validate(map[string]any{"program": ".", "assign_to": ""}))
	assert.NoError(t, action.Validate(map[string]any{"program": ".count + 1"}))
}

func TestWaitValidate(t *testing.T) {
	action := NewWaitAction()

	assert.NoError(t, action.Validate(map[string]any{"seconds": 5}))
	assert.NoError(t, action.Validate(map[string]any{"seconds": 0.5}))
	require.Error(t, action.Validate(map[string]any{}))
	require.Error(t, action.Validate(map[string]any{"seconds": -1}))
	require.Error(t, action.Validate(map[string]any{"seconds": "soon"}))
}

func TestWaitCancellable(t *testing.T) {
	action := NewWaitAction()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := action.Execute(ctx, Input{Params: map[string]any{"seconds": 30}})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeCancelled, schema.CodeOf(err))
}
