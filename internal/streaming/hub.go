package streaming

import "context"

// Event is a real-time notification emitted while an execution runs. It
// mirrors the persisted history event; the hub is a live view, the store is
// the record.
type Event struct {
	ExecutionID string `json:"execution_id"`
	StepID      string `json:"step_id,omitempty"`
	Type        string `json:"type"`
	Payload     any    `json:"payload,omitempty"`
	Sequence    int64  `json:"sequence,omitempty"`
}

// Filter specifies which events a subscriber wants to receive.
type Filter struct {
	ExecutionID string   `json:"execution_id,omitempty"`
	Types       []string `json:"types,omitempty"`
}

// Hub provides pub/sub for live execution events.
type Hub interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}
