package engine

import (
	"context"
	"encoding/json"

	"github.com/sentraops/sentra/internal/store"
	"github.com/sentraops/sentra/internal/streaming"
)

// historyTee persists a history event and republishes it on the live hub.
// Persistence is authoritative: a failed append is an error, a dropped hub
// delivery is not.
type historyTee struct {
	store store.Store
	hub   *streaming.MemoryHub
}

func (t *historyTee) AppendHistory(ctx context.Context, event *store.HistoryEvent) error {
	if err := t.store.AppendHistory(ctx, event); err != nil {
		return err
	}

	var payload any
	if len(event.Payload) > 0 {
		payload = json.RawMessage(event.Payload)
	}
	_ = t.hub.Publish(ctx, streaming.Event{
		ExecutionID: event.ExecutionID,
		StepID:      event.StepID,
		Type:        event.Type,
		Payload:     payload,
		Sequence:    event.Sequence,
	})
	return nil
}

var _ HistoryAppender = (*historyTee)(nil)
