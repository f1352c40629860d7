package actions

import (
	"context"

	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/pkg/schema"
)

// TransformAction reshapes context data with a jq program. It is the one
// engine-local action with no collaborator: the program runs against a
// read-only snapshot of the execution context and its result is stored back
// under the assign_to key.
type TransformAction struct {
	jq *expressions.GoJQEngine
}

// NewTransformAction creates the transform action.
func NewTransformAction(jq *expressions.GoJQEngine) *TransformAction {
	return &TransformAction{jq: jq}
}

func (a *TransformAction) Kind() schema.ActionKind { return schema.ActionTransform }

func (a *TransformAction) Validate(params map[string]any) error {
	program, ok := params["program"].(string)
	if !ok || program == "" {
		return schema.NewError(schema.ErrCodeValidation, "transform: program parameter is required")
	}
	if _, ok := params["assign_to"]; ok {
		if s, isStr := params["assign_to"].(string); !isStr || s == "" {
			return schema.NewError(schema.ErrCodeValidation, "transform: assign_to must be a non-empty string")
		}
	}
	return nil
}

func (a *TransformAction) Execute(ctx context.Context, in Input) (*Result, error) {
	program := stringParam(in.Params, "program", "")
	if program == "" {
		return nil, schema.NewError(schema.ErrCodeAction, "transform: program is empty")
	}
	assignTo := stringParam(in.Params, "assign_to", "transformed")

	out, err := a.jq.Evaluate(ctx, program, in.Context)
	if err != nil {
		return nil, err
	}

	return &Result{Output: map[string]any{assignTo: out}}, nil
}
