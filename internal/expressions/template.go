package expressions

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sentraops/sentra/pkg/schema"
)

// Resolver substitutes {{path.to.value}} placeholders in step parameters
// against an execution context. It is stateless and safe for concurrent use
// across executions.
//
// Resolution rules:
//   - A string that is exactly one placeholder resolves to the referenced
//     value with its native JSON type preserved.
//   - A string with embedded placeholders resolves to a string; non-string
//     values are stringified inline.
//   - A missing path is a hard error naming the path. Placeholders are never
//     silently replaced with an empty string.
//   - Objects and arrays are resolved recursively; every string leaf is
//     checked. Non-template values pass through unchanged.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// ResolveParams unmarshals raw step parameters and resolves every template
// placeholder against execCtx. Returns the resolved parameter map.
func (r *Resolver) ResolveParams(raw json.RawMessage, execCtx map[string]any) (map[string]any, error) {
	params := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "unmarshal step parameters: %s", err.Error()).WithCause(err)
		}
	}

	resolved, err := r.ResolveValue(params, execCtx)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}

// ResolveValue resolves templates in an arbitrary JSON-compatible value.
func (r *Resolver) ResolveValue(v any, execCtx map[string]any) (any, error) {
	switch val := v.(type) {
	case string:
		return r.resolveString(val, execCtx)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			rv, err := r.ResolveValue(item, execCtx)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rv, err := r.ResolveValue(item, execCtx)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// resolveString resolves placeholders in a single string. A whole-string
// placeholder keeps the native type of the referenced value so conditionals
// can compare booleans and numbers rather than stringified forms.
func (r *Resolver) resolveString(s string, execCtx map[string]any) (any, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	// Whole-value reference: "{{path}}" with nothing around it.
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		if inner != "" && !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}") && trimmed == s {
			return LookupPath(execCtx, inner)
		}
	}

	var result strings.Builder
	result.Grow(len(s))

	i := 0
	for i < len(s) {
		idx := strings.Index(s[i:], "{{")
		if idx == -1 {
			result.WriteString(s[i:])
			break
		}

		result.WriteString(s[i : i+idx])
		start := i + idx + 2

		end := strings.Index(s[start:], "}}")
		if end == -1 {
			return nil, schema.NewError(schema.ErrCodeTemplate, "unclosed {{ placeholder")
		}
		end += start

		path := strings.TrimSpace(s[start:end])
		if path == "" {
			return nil, schema.NewError(schema.ErrCodeTemplate, "empty placeholder: {{ }}")
		}

		val, err := LookupPath(execCtx, path)
		if err != nil {
			return nil, err
		}
		result.WriteString(stringify(val))

		i = end + 2
	}

	return result.String(), nil
}

// HasTemplates reports whether a JSON blob contains any {{...}} placeholders.
func HasTemplates(raw json.RawMessage) bool {
	return strings.Contains(string(raw), "{{")
}

// LookupPath navigates a dot-separated path into nested maps. A direct key
// lookup is tried first so context keys containing dots still resolve.
func LookupPath(root map[string]any, path string) (any, error) {
	if root != nil {
		if val, ok := root[path]; ok {
			return val, nil
		}
	}

	segments := strings.Split(path, ".")
	var current any = root

	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, missingPathErr(path)
		}
		val, ok := m[seg]
		if !ok {
			return nil, missingPathErr(path)
		}
		current = val
	}

	return current, nil
}

func missingPathErr(path string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeTemplate,
		"template path %q not found in execution context", path).
		WithDetails(map[string]any{"path": path})
}

// stringify converts a resolved value to its inline string form for
// embedding inside a larger template string.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
