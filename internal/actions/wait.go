package actions

import (
	"context"
	"time"

	"github.com/sentraops/sentra/pkg/schema"
)

// WaitAction pauses the execution for a fixed number of seconds. The
// orchestrator handles the actual delay so it can interleave cancellation;
// Execute here sleeps only when the action is invoked directly.
type WaitAction struct{}

// NewWaitAction creates the wait action.
func NewWaitAction() *WaitAction { return &WaitAction{} }

func (a *WaitAction) Kind() schema.ActionKind { return schema.ActionWait }

func (a *WaitAction) Validate(params map[string]any) error {
	seconds, ok := params["seconds"]
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, "wait: seconds parameter is required")
	}
	f, ok := toFloat(seconds)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "wait: seconds must be a number (got %T)", seconds)
	}
	if f < 0 {
		return schema.NewError(schema.ErrCodeValidation, "wait: seconds must not be negative")
	}
	return nil
}

// WaitDuration extracts the configured delay from resolved parameters.
func WaitDuration(params map[string]any) (time.Duration, error) {
	f, ok := toFloat(params["seconds"])
	if !ok || f < 0 {
		return 0, schema.NewErrorf(schema.ErrCodeAction, "wait: invalid seconds value %v", params["seconds"])
	}
	return time.Duration(f * float64(time.Second)), nil
}

func (a *WaitAction) Execute(ctx context.Context, in Input) (*Result, error) {
	d, err := WaitDuration(in.Params)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, schema.NewError(schema.ErrCodeCancelled, "wait interrupted").WithCause(ctx.Err())
	}

	return &Result{Output: map[string]any{"waited_seconds": d.Seconds()}}, nil
}
