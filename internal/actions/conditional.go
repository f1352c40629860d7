package actions

import (
	"context"
	"strconv"
	"strings"

	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/pkg/schema"
)

// Comparison operators accepted by the conditional action.
var conditionalOperators = map[string]bool{
	"equals":       true,
	"not_equals":   true,
	"contains":     true,
	"greater_than": true,
	"less_than":    true,
}

// ConditionalAction evaluates a predicate against the execution context and
// reports success when it holds and failure when it does not. It never
// touches the context: its only job is selecting the on_success/on_failure
// branch.
//
// Two parameter forms:
//   - {field, operator, value}: compares context[field] against value with
//     one of equals, not_equals, contains, greater_than, less_than.
//   - {expression}: an expr-lang program evaluated with the context as its
//     environment; must produce a boolean.
type ConditionalAction struct {
	expr *expressions.ExprEngine
}

// NewConditionalAction creates the conditional action. expr may be nil to
// disable expression mode.
func NewConditionalAction(expr *expressions.ExprEngine) *ConditionalAction {
	return &ConditionalAction{expr: expr}
}

func (a *ConditionalAction) Kind() schema.ActionKind { return schema.ActionConditional }

func (a *ConditionalAction) Validate(params map[string]any) error {
	if _, hasExpr := params["expression"]; hasExpr {
		if _, isStr := params["expression"].(string); !isStr {
			return schema.NewError(schema.ErrCodeValidation, "conditional: expression must be a string")
		}
		return nil
	}

	if _, ok := params["field"]; !ok {
		return schema.NewError(schema.ErrCodeValidation, "conditional: field parameter is required (or use expression)")
	}
	op := stringParam(params, "operator", "equals")
	if !conditionalOperators[op] {
		return schema.NewErrorf(schema.ErrCodeValidation, "conditional: unknown operator %q", op)
	}
	if _, ok := params["value"]; !ok {
		return schema.NewError(schema.ErrCodeValidation, "conditional: value parameter is required")
	}
	return nil
}

func (a *ConditionalAction) Execute(ctx context.Context, in Input) (*Result, error) {
	if exprStr, ok := in.Params["expression"].(string); ok && exprStr != "" {
		return a.executeExpression(ctx, exprStr, in.Context)
	}

	field := stringParam(in.Params, "field", "")
	operator := stringParam(in.Params, "operator", "equals")
	expected := in.Params["value"]

	actual, err := expressions.LookupPath(in.Context, field)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"conditional: field %q not present in context", field)
	}

	holds, err := compare(actual, operator, expected)
	if err != nil {
		return nil, err
	}
	if !holds {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"condition not met: %s %s %v (actual: %v)", field, operator, expected, actual)
	}
	return &Result{}, nil
}

func (a *ConditionalAction) executeExpression(ctx context.Context, exprStr string, execCtx map[string]any) (*Result, error) {
	if a.expr == nil {
		return nil, schema.NewError(schema.ErrCodeAction, "conditional: expression mode not enabled")
	}
	out, err := a.expr.Evaluate(ctx, exprStr, execCtx)
	if err != nil {
		return nil, err
	}
	holds, ok := out.(bool)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"conditional: expression %q did not produce a boolean (got %T)", exprStr, out)
	}
	if !holds {
		return nil, schema.NewErrorf(schema.ErrCodeAction, "condition not met: %s", exprStr)
	}
	return &Result{}, nil
}

// compare applies one operator. Numeric comparison is used when both sides
// are numbers; equality otherwise falls back to stringified comparison so
// "85" equals 85, matching how alert fields arrive from mixed sources.
func compare(actual any, operator string, expected any) (bool, error) {
	switch operator {
	case "equals":
		return valuesEqual(actual, expected), nil
	case "not_equals":
		return !valuesEqual(actual, expected), nil
	case "contains":
		if list, ok := actual.([]any); ok {
			for _, item := range list {
				if valuesEqual(item, expected) {
					return true, nil
				}
			}
			return false, nil
		}
		return strings.Contains(asString(actual), asString(expected)), nil
	case "greater_than", "less_than":
		af, aok := toFloat(actual)
		ef, eok := toFloat(expected)
		if !aok || !eok {
			return false, schema.NewErrorf(schema.ErrCodeAction,
				"conditional: %s requires numeric operands (got %T and %T)", operator, actual, expected)
		}
		if operator == "greater_than" {
			return af > ef, nil
		}
		return af < ef, nil
	default:
		return false, schema.NewErrorf(schema.ErrCodeAction, "conditional: unknown operator %q", operator)
	}
}

func valuesEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
	}
	return asString(a) == asString(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		return ""
	}
}
