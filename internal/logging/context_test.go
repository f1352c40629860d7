package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ExecutionID(ctx))
	assert.Empty(t, PlaybookID(ctx))
	assert.Empty(t, StepID(ctx))

	ctx = WithIDs(ctx, "exec-1", "pb-1", "enrich")
	assert.Equal(t, "exec-1", ExecutionID(ctx))
	assert.Equal(t, "pb-1", PlaybookID(ctx))
	assert.Equal(t, "enrich", StepID(ctx))
}

func TestCorrelationHandlerInjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithIDs(context.Background(), "exec-9", "pb-7", "notify")
	logger.InfoContext(ctx, "step started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "exec-9", record["execution_id"])
	assert.Equal(t, "pb-7", record["playbook_id"])
	assert.Equal(t, "notify", record["step_id"])
}

func TestCorrelationHandlerSkipsEmpty(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "no correlation")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	_, has := record["execution_id"]
	assert.False(t, has)
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithExecutionID(context.Background(), "exec-3")
	LogWith(ctx, logger).Info("hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "exec-3", record["execution_id"])
}
