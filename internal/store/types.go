package store

import (
	"encoding/json"
	"time"

	"github.com/sentraops/sentra/pkg/schema"
)

// Playbook is the persisted representation of a playbook definition.
// Versions are immutable: publishing a changed definition creates a new
// version row so in-flight executions keep the version they started with.
type Playbook struct {
	ID         string                    `json:"id"`
	Version    int                       `json:"version"`
	Definition schema.PlaybookDefinition `json:"definition"`
	Status     schema.PlaybookStatus     `json:"status"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// Execution is the persisted state of a single playbook run.
type Execution struct {
	ID              string                 `json:"id"`
	PlaybookID      string                 `json:"playbook_id"`
	PlaybookVersion int                    `json:"playbook_version"`
	Status          schema.ExecutionStatus `json:"status"`
	TriggerSource   schema.TriggerSource   `json:"trigger_source"`
	Context         map[string]any         `json:"context,omitempty"`
	CurrentStepID   string                 `json:"current_step_id,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// StepRecord is one entry in an execution's step history. Sequence is the
// 1-based position of the step within its execution; a step id may appear
// more than once when the graph loops through it.
type StepRecord struct {
	ID          int64             `json:"id"`
	ExecutionID string            `json:"execution_id"`
	StepID      string            `json:"step_id"`
	Sequence    int               `json:"sequence"`
	Status      schema.StepStatus `json:"status"`
	Input       json.RawMessage   `json:"input,omitempty"`
	Output      json.RawMessage   `json:"output,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	DurationMs  int64             `json:"duration_ms,omitempty"`
}

// HistoryEvent is an immutable entry in the execution history log.
type HistoryEvent struct {
	ID          int64           `json:"id"`
	ExecutionID string          `json:"execution_id"`
	StepID      string          `json:"step_id,omitempty"`
	Type        string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Sequence    int64           `json:"sequence"`
}

// --- Filter and update types ---

// ExecutionUpdate specifies mutable fields of an execution.
type ExecutionUpdate struct {
	Status        *schema.ExecutionStatus `json:"status,omitempty"`
	Context       map[string]any          `json:"context,omitempty"`
	CurrentStepID *string                 `json:"current_step_id,omitempty"`
	ErrorMessage  *string                 `json:"error_message,omitempty"`
	StartedAt     *time.Time              `json:"started_at,omitempty"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
}

// ExecutionFilter specifies criteria for listing executions.
type ExecutionFilter struct {
	PlaybookID string                  `json:"playbook_id,omitempty"`
	Status     *schema.ExecutionStatus `json:"status,omitempty"`
	Since      *time.Time              `json:"since,omitempty"`
	Limit      int                     `json:"limit,omitempty"`
	Offset     int                     `json:"offset,omitempty"`
}
