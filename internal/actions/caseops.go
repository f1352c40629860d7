package actions

import (
	"context"

	"github.com/sentraops/sentra/pkg/schema"
)

// UpdateAlertAction patches fields on an alert through the case-management
// collaborator. The alert id defaults to the context's alert_id.
type UpdateAlertAction struct {
	cases CaseManager
}

// NewUpdateAlertAction creates the update_alert action.
func NewUpdateAlertAction(cases CaseManager) *UpdateAlertAction {
	return &UpdateAlertAction{cases: cases}
}

func (a *UpdateAlertAction) Kind() schema.ActionKind { return schema.ActionUpdateAlert }

func (a *UpdateAlertAction) Validate(params map[string]any) error {
	if v, ok := params["fields"]; ok {
		if _, isMap := v.(map[string]any); !isMap {
			return schema.NewError(schema.ErrCodeValidation, "update_alert: fields must be an object")
		}
	} else {
		return schema.NewError(schema.ErrCodeValidation, "update_alert: fields parameter is required")
	}
	return nil
}

func (a *UpdateAlertAction) Execute(ctx context.Context, in Input) (*Result, error) {
	alertID := stringParam(in.Params, "alert_id", "")
	if alertID == "" {
		if v, ok := in.Context["alert_id"].(string); ok {
			alertID = v
		}
	}
	if alertID == "" {
		return nil, schema.NewError(schema.ErrCodeAction, "update_alert: no alert_id parameter and none in context")
	}

	fields := mapParam(in.Params, "fields")
	if len(fields) == 0 {
		return nil, schema.NewError(schema.ErrCodeAction, "update_alert: fields is empty")
	}

	patched, err := a.cases.PatchAlert(ctx, alertID, fields)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"patch alert %q failed: %s", alertID, err.Error()).WithCause(err)
	}

	return &Result{Output: map[string]any{
		"updated_alert_id": alertID,
		"patched_fields":   patched,
	}}, nil
}

// CreateIncidentAction opens an incident through the case-management
// collaborator and records the new incident id.
type CreateIncidentAction struct {
	cases CaseManager
}

// NewCreateIncidentAction creates the create_incident action.
func NewCreateIncidentAction(cases CaseManager) *CreateIncidentAction {
	return &CreateIncidentAction{cases: cases}
}

func (a *CreateIncidentAction) Kind() schema.ActionKind { return schema.ActionCreateIncident }

func (a *CreateIncidentAction) Validate(params map[string]any) error {
	if _, ok := params["title"]; !ok {
		return schema.NewError(schema.ErrCodeValidation, "create_incident: title parameter is required")
	}
	return nil
}

func (a *CreateIncidentAction) Execute(ctx context.Context, in Input) (*Result, error) {
	title := stringParam(in.Params, "title", "")
	if title == "" {
		return nil, schema.NewError(schema.ErrCodeAction, "create_incident: title is empty")
	}

	fields := map[string]any{
		"title":       title,
		"description": stringParam(in.Params, "description", ""),
		"severity":    stringParam(in.Params, "severity", "medium"),
	}
	if ids, ok := in.Params["alert_ids"].([]any); ok {
		fields["alert_ids"] = ids
	}

	incidentID, err := a.cases.CreateIncident(ctx, fields)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"create incident %q failed: %s", title, err.Error()).WithCause(err)
	}

	return &Result{Output: map[string]any{
		"incident_id":    incidentID,
		"incident_title": title,
	}}, nil
}
