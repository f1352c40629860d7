package schema

import "encoding/json"

// PlaybookDefinition is the JSON-serializable playbook authoring format.
// Operators submit this at creation time; it is validated before the
// playbook can transition to active.
type PlaybookDefinition struct {
	Name                    string           `json:"name"`
	Description             string           `json:"description,omitempty"`
	TriggerType             TriggerType      `json:"trigger_type"`
	TriggerConditions       map[string]any   `json:"trigger_conditions,omitempty"`
	Steps                   []StepDefinition `json:"steps"`
	EntryStepID             string           `json:"entry_step_id,omitempty"` // defaults to first declared step
	Schedule                string           `json:"schedule,omitempty"`      // cron expression, schedule triggers only
	ExecutionTimeoutSeconds int              `json:"execution_timeout_seconds,omitempty"`
}

// StepDefinition describes a single node in a playbook's graph: one action
// bound to parameters and two outgoing edges. A null edge is terminal.
type StepDefinition struct {
	ID             string          `json:"id"`
	Name           string          `json:"name,omitempty"`
	Action         ActionKind      `json:"action"`
	Parameters     json.RawMessage `json:"parameters,omitempty"` // values may contain {{path}} templates
	OnSuccess      string          `json:"on_success,omitempty"`
	OnFailure      string          `json:"on_failure,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
}

// Entry returns the effective entry step id: explicit if set, otherwise the
// first declared step.
func (d *PlaybookDefinition) Entry() string {
	if d.EntryStepID != "" {
		return d.EntryStepID
	}
	if len(d.Steps) > 0 {
		return d.Steps[0].ID
	}
	return ""
}

// TriggerType enumerates what kind of event starts a playbook.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerAlert    TriggerType = "alert"
	TriggerIncident TriggerType = "incident"
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
)

// ValidTriggerType reports whether t is one of the known trigger types.
func ValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerManual, TriggerAlert, TriggerIncident, TriggerSchedule, TriggerWebhook:
		return true
	}
	return false
}

// ActionKind enumerates the closed set of step actions. Unknown kinds fail
// playbook validation, never execution.
type ActionKind string

const (
	ActionEnrichIP         ActionKind = "enrich_ip"
	ActionEnrichDomain     ActionKind = "enrich_domain"
	ActionEnrichHash       ActionKind = "enrich_hash"
	ActionSendNotification ActionKind = "send_notification"
	ActionUpdateAlert      ActionKind = "update_alert"
	ActionCreateIncident   ActionKind = "create_incident"
	ActionRunScript        ActionKind = "run_script"
	ActionConditional      ActionKind = "conditional"
	ActionTransform        ActionKind = "transform"
	ActionWait             ActionKind = "wait"
)

// ActionKinds lists every known action kind.
var ActionKinds = []ActionKind{
	ActionEnrichIP,
	ActionEnrichDomain,
	ActionEnrichHash,
	ActionSendNotification,
	ActionUpdateAlert,
	ActionCreateIncident,
	ActionRunScript,
	ActionConditional,
	ActionTransform,
	ActionWait,
}

// ValidActionKind reports whether k is a known action kind.
func ValidActionKind(k ActionKind) bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// PlaybookStatus is the lifecycle state of a playbook definition.
type PlaybookStatus string

const (
	PlaybookDraft    PlaybookStatus = "draft"
	PlaybookActive   PlaybookStatus = "active"
	PlaybookDisabled PlaybookStatus = "disabled"
	PlaybookArchived PlaybookStatus = "archived"
)

// TriggerSource identifies what started an execution.
type TriggerSource struct {
	Kind       TriggerType `json:"kind"`
	AlertID    string      `json:"alert_id,omitempty"`
	IncidentID string      `json:"incident_id,omitempty"`
}

// Event is an inbound envelope handed to the trigger matcher.
type Event struct {
	SourceKind TriggerType    `json:"source_kind"` // alert or incident
	Fields     map[string]any `json:"fields"`
}
