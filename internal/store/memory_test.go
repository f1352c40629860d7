package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentraops/sentra/pkg/schema"
)

func samplePlaybook(id string, version int) *Playbook {
	return &Playbook{
		ID:      id,
		Version: version,
		Definition: schema.PlaybookDefinition{
			Name:        "Phishing triage",
			TriggerType: schema.TriggerAlert,
			Steps: []schema.StepDefinition{
				{ID: "notify", Action: schema.ActionSendNotification},
			},
		},
		Status: schema.PlaybookActive,
	}
}

func TestMemoryStorePlaybookVersions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreatePlaybook(ctx, samplePlaybook("pb-1", 1)))
	require.NoError(t, s.CreatePlaybook(ctx, samplePlaybook("pb-1", 2)))

	err := s.CreatePlaybook(ctx, samplePlaybook("pb-1", 2))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))

	got, err := s.GetPlaybook(ctx, "pb-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	latest, err := s.GetLatestPlaybook(ctx, "pb-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	_, err = s.GetPlaybook(ctx, "pb-1", 9)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestMemoryStoreListActivePlaybooks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreatePlaybook(ctx, samplePlaybook("pb-a", 1)))
	require.NoError(t, s.CreatePlaybook(ctx, samplePlaybook("pb-b", 1)))
	require.NoError(t, s.UpdatePlaybookStatus(ctx, "pb-b", string(schema.PlaybookDisabled)))

	active, err := s.ListActivePlaybooks(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "pb-a", active[0].ID)
}

func TestMemoryStoreExecutionLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ex := &Execution{
		ID:              "exec-1",
		PlaybookID:      "pb-1",
		PlaybookVersion: 1,
		TriggerSource:   schema.TriggerSource{Kind: schema.TriggerAlert, AlertID: "ALRT-1"},
		Context:         map[string]any{"source_ip": "203.0.113.7"},
	}
	require.NoError(t, s.CreateExecution(ctx, ex))

	err := s.CreateExecution(ctx, ex)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))

	got, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionPending, got.Status)

	running := schema.ExecutionRunning
	now := time.Now().UTC()
	require.NoError(t, s.UpdateExecution(ctx, "exec-1", ExecutionUpdate{
		Status:    &running,
		StartedAt: &now,
	}))

	got, err = s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, schema.ExecutionRunning, got.Status)
	require.NotNil(t, got.StartedAt)

	// Mutating the returned copy must not leak into the store.
	got.Context["source_ip"] = "changed"
	again, err := s.GetExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", again.Context["source_ip"])
}

func TestMemoryStoreListExecutionsFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.CreateExecution(ctx, &Execution{
			ID:         id,
			PlaybookID: "pb-1",
		}))
	}
	done := schema.ExecutionCompleted
	require.NoError(t, s.UpdateExecution(ctx, "e2", ExecutionUpdate{Status: &done}))

	all, err := s.ListExecutions(ctx, ExecutionFilter{PlaybookID: "pb-1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	completed, err := s.ListExecutions(ctx, ExecutionFilter{Status: &done})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "e2", completed[0].ID)

	limited, err := s.ListExecutions(ctx, ExecutionFilter{PlaybookID: "pb-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStoreStepRecordsOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 3; i >= 1; i-- {
		require.NoError(t, s.AppendStepRecord(ctx, &StepRecord{
			ExecutionID: "exec-1",
			StepID:      "step",
			Sequence:    i,
			Status:      schema.StepSuccess,
		}))
	}

	records, err := s.ListStepRecords(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Sequence)
	}
}

func TestMemoryStoreHistorySequence(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, typ := range []string{schema.EventExecutionStarted, schema.EventStepStarted, schema.EventStepSucceeded} {
		require.NoError(t, s.AppendHistory(ctx, &HistoryEvent{
			ExecutionID: "exec-1",
			Type:        typ,
		}))
	}

	events, err := s.ListHistory(ctx, "exec-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}

	tail, err := s.ListHistory(ctx, "exec-1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, schema.EventStepSucceeded, tail[0].Type)
}
