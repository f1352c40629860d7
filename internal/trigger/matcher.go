package trigger

import (
	"context"
	"reflect"
	"strings"

	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/pkg/schema"
)

// The reserved condition key holding a CEL predicate over the event fields.
const expressionKey = "expression"

// Matcher decides whether an inbound alert/incident event should start a
// playbook run. Matching is a conjunction over the playbook's
// trigger_conditions; every declared condition must hold. Stateless and safe
// for concurrent use.
type Matcher struct {
	cel *expressions.CELEngine
}

// NewMatcher creates a Matcher. cel may be nil to disable expression
// conditions (they then fail any playbook declaring one).
func NewMatcher(cel *expressions.CELEngine) *Matcher {
	return &Matcher{cel: cel}
}

// Matches reports whether the event satisfies every condition declared by
// the playbook definition. Manual triggers bypass the matcher entirely; the
// caller names the playbook directly.
func (m *Matcher) Matches(ctx context.Context, def *schema.PlaybookDefinition, event schema.Event) (bool, error) {
	if def.TriggerType != event.SourceKind {
		return false, nil
	}

	for key, expected := range def.TriggerConditions {
		ok, err := m.evalCondition(ctx, key, expected, event)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evalCondition evaluates one condition against the event fields.
// Condition forms:
//   - "expression": <CEL program> — must evaluate to true
//   - "has_<field>": true — field present and non-null
//   - "<field>": [v1, v2, ...] — membership test
//   - "<field>": literal — exact match
//
// Missing fields on the event fail any condition referencing them.
func (m *Matcher) evalCondition(ctx context.Context, key string, expected any, event schema.Event) (bool, error) {
	if key == expressionKey {
		expr, ok := expected.(string)
		if !ok {
			return false, schema.NewError(schema.ErrCodeValidation, "trigger expression must be a string")
		}
		if m.cel == nil {
			return false, schema.NewError(schema.ErrCodeValidation, "trigger expressions not enabled")
		}
		return m.cel.EvaluateBool(ctx, expr, map[string]any{
			"fields":      event.Fields,
			"source_kind": string(event.SourceKind),
		})
	}

	if field, isPresence := strings.CutPrefix(key, "has_"); isPresence {
		if want, ok := expected.(bool); ok {
			val, present := event.Fields[field]
			has := present && val != nil
			return has == want, nil
		}
		// has_ prefix with a non-bool value is an ordinary field condition.
	}

	actual, present := event.Fields[key]
	if !present {
		return false, nil
	}

	if list, ok := expected.([]any); ok {
		for _, candidate := range list {
			if looseEqual(actual, candidate) {
				return true, nil
			}
		}
		return false, nil
	}

	return looseEqual(actual, expected), nil
}

// looseEqual compares two JSON-decoded values, tolerating the int/float64
// split that comes from mixing decoded JSON with Go literals.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
