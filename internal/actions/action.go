package actions

import (
	"context"

	"github.com/sentraops/sentra/pkg/schema"
)

// Action is one executable step kind. Implementations receive fully resolved
// parameters and must never panic: every failure path returns an error, which
// the orchestrator converts into a failed step record and routes through the
// step's on_failure edge.
type Action interface {
	// Kind returns the action identifier this implementation handles.
	Kind() schema.ActionKind

	// Validate checks raw (pre-resolution) parameters at playbook-validation
	// time. Template placeholders are still present; only structure that does
	// not depend on runtime values is checked.
	Validate(params map[string]any) error

	// Execute runs the action. A nil error is a success outcome; the returned
	// output map is merged into the execution context. A non-nil error is a
	// failure outcome routed through on_failure.
	Execute(ctx context.Context, in Input) (*Result, error)
}

// Input is the data provided to an action at execution time.
type Input struct {
	// Params holds the step parameters after template resolution.
	Params map[string]any

	// Context is a read-only view of the execution context. Actions must not
	// mutate it; output flows back through Result.
	Context map[string]any
}

// Result is a successful action outcome.
type Result struct {
	// Output is merged into the execution context.
	Output map[string]any
}

// stringParam extracts a string parameter, or def when absent.
func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// mapParam extracts a map parameter, or nil when absent.
func mapParam(params map[string]any, key string) map[string]any {
	if v, ok := params[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
