package validation

import (
	"fmt"

	"github.com/sentraops/sentra/pkg/schema"
)

// validateReachability walks the step graph from the entry step through
// on_success/on_failure edges and flags unreachable steps as warnings.
// Cycles are legal (poll-until loops bounded by the step ceiling), so this
// stage never reports them.
func validateReachability(def *schema.PlaybookDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	entry := def.Entry()
	if entry == "" {
		return result
	}

	steps := make(map[string]*schema.StepDefinition, len(def.Steps))
	for i := range def.Steps {
		steps[def.Steps[i].ID] = &def.Steps[i]
	}

	reachable := make(map[string]bool, len(steps))
	queue := []string{entry}
	reachable[entry] = true

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		step, ok := steps[id]
		if !ok {
			continue // dangling edges already caught by semantic
		}
		for _, next := range []string{step.OnSuccess, step.OnFailure} {
			if next != "" && !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	for i, s := range def.Steps {
		if !reachable[s.ID] {
			result.AddWarning(fmt.Sprintf("steps[%d]", i), schema.ErrCodeValidation,
				fmt.Sprintf("step %q is unreachable from entry step %q", s.ID, entry))
		}
	}

	return result
}
