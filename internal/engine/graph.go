package engine

import (
	"github.com/sentraops/sentra/pkg/schema"
)

// Graph is the step graph of a playbook, indexed for O(1) transitions.
// Cycles are legal; the orchestrator's step ceiling bounds runaway loops.
type Graph struct {
	steps map[string]*schema.StepDefinition
	entry *schema.StepDefinition
}

// BuildGraph indexes a playbook's steps and resolves the entry step. The
// definition is expected to have passed validation already; the checks here
// guard against graphs constructed outside that path.
func BuildGraph(def *schema.PlaybookDefinition) (*Graph, error) {
	if len(def.Steps) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "playbook has no steps")
	}

	steps := make(map[string]*schema.StepDefinition, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "step with empty id")
		}
		if _, dup := steps[step.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate step id %q", step.ID)
		}
		steps[step.ID] = step
	}

	for _, step := range steps {
		for _, ref := range []string{step.OnSuccess, step.OnFailure} {
			if ref == "" {
				continue
			}
			if _, ok := steps[ref]; !ok {
				return nil, schema.NewErrorf(schema.ErrCodeValidation,
					"step %q references unknown step %q", step.ID, ref).WithStep(step.ID)
			}
		}
	}

	entryID := def.Entry()
	entry, ok := steps[entryID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "entry step %q not found", entryID)
	}

	return &Graph{steps: steps, entry: entry}, nil
}

// Entry returns the entry step.
func (g *Graph) Entry() *schema.StepDefinition { return g.entry }

// Step returns the step with the given id, or nil.
func (g *Graph) Step(id string) *schema.StepDefinition {
	return g.steps[id]
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int { return len(g.steps) }

// Reachable returns the set of step ids reachable from the entry step via
// on_success and on_failure edges.
func (g *Graph) Reachable() map[string]bool {
	seen := make(map[string]bool, len(g.steps))
	stack := []*schema.StepDefinition{g.entry}
	for len(stack) > 0 {
		step := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[step.ID] {
			continue
		}
		seen[step.ID] = true
		for _, ref := range []string{step.OnSuccess, step.OnFailure} {
			if next, ok := g.steps[ref]; ok && !seen[ref] {
				stack = append(stack, next)
			}
		}
	}
	return seen
}
