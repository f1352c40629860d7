package actions

import (
	"context"

	"github.com/sentraops/sentra/pkg/schema"
)

// RunScriptAction executes a pre-registered sandboxed script by id. The
// script's declared return value is merged into the execution context.
type RunScriptAction struct {
	runner ScriptRunner
}

// NewRunScriptAction creates the run_script action.
func NewRunScriptAction(runner ScriptRunner) *RunScriptAction {
	return &RunScriptAction{runner: runner}
}

func (a *RunScriptAction) Kind() schema.ActionKind { return schema.ActionRunScript }

func (a *RunScriptAction) Validate(params map[string]any) error {
	if _, ok := params["script_id"]; !ok {
		return schema.NewError(schema.ErrCodeValidation, "run_script: script_id parameter is required")
	}
	if v, ok := params["args"]; ok {
		if _, isMap := v.(map[string]any); !isMap {
			return schema.NewError(schema.ErrCodeValidation, "run_script: args must be an object")
		}
	}
	return nil
}

func (a *RunScriptAction) Execute(ctx context.Context, in Input) (*Result, error) {
	scriptID := stringParam(in.Params, "script_id", "")
	if scriptID == "" {
		return nil, schema.NewError(schema.ErrCodeAction, "run_script: script_id is empty")
	}

	result, err := a.runner.Run(ctx, scriptID, mapParam(in.Params, "args"))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"script %q failed: %s", scriptID, err.Error()).WithCause(err)
	}

	output := map[string]any{"script_id": scriptID}
	for k, v := range result {
		output[k] = v
	}
	return &Result{Output: output}, nil
}
