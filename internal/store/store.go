package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Playbooks (versioned, immutable definitions)
	CreatePlaybook(ctx context.Context, pb *Playbook) error
	GetPlaybook(ctx context.Context, id string, version int) (*Playbook, error)
	GetLatestPlaybook(ctx context.Context, id string) (*Playbook, error)
	UpdatePlaybookStatus(ctx context.Context, id string, status string) error
	ListActivePlaybooks(ctx context.Context) ([]*Playbook, error)

	// Executions
	CreateExecution(ctx context.Context, ex *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)

	// Step history (append-only)
	AppendStepRecord(ctx context.Context, rec *StepRecord) error
	ListStepRecords(ctx context.Context, executionID string) ([]*StepRecord, error)

	// History log (append-only)
	AppendHistory(ctx context.Context, event *HistoryEvent) error
	ListHistory(ctx context.Context, executionID string, since int64) ([]*HistoryEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error

	// Lifecycle
	Close() error
}
