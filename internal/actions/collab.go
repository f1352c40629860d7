package actions

import "context"

// Collaborator contracts. Concrete implementations (threat-intel providers,
// chat/email delivery, the case-management backend, the sandboxed script
// runner) live outside the engine; the engine only ever sees these
// interfaces. Any error they return becomes a step failure, never a crash.

// IntelReport is a threat-intel verdict for one indicator.
type IntelReport struct {
	Reputation string   `json:"reputation"` // malicious, suspicious, clean, unknown
	Confidence int      `json:"confidence"` // 0-100
	Sources    []string `json:"sources"`
	Tags       []string `json:"tags,omitempty"`
}

// ThreatIntel looks up reputation data for an indicator of compromise.
type ThreatIntel interface {
	Lookup(ctx context.Context, indicator, indicatorType string) (*IntelReport, error)
}

// Notifier delivers a message to a channel (chat, email list, pager).
type Notifier interface {
	Send(ctx context.Context, channel, message string) (ack string, err error)
}

// CaseManager patches alerts and opens incidents in the case backend.
type CaseManager interface {
	PatchAlert(ctx context.Context, alertID string, fields map[string]any) (map[string]any, error)
	CreateIncident(ctx context.Context, fields map[string]any) (incidentID string, err error)
}

// ScriptRunner executes a pre-registered sandboxed script by id.
type ScriptRunner interface {
	Run(ctx context.Context, scriptID string, args map[string]any) (map[string]any, error)
}

// Collaborators bundles the external contracts the built-in actions need.
type Collaborators struct {
	Intel   ThreatIntel
	Notify  Notifier
	Cases   CaseManager
	Scripts ScriptRunner
}
