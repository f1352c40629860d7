// Package diagram renders playbook step graphs as Mermaid flowcharts.
package diagram

import (
	"fmt"
	"strings"

	"github.com/sentraops/sentra/pkg/schema"
)

// RenderMermaid renders a playbook definition as a Mermaid flowchart string.
// Node shape follows the action kind; on_success and on_failure edges are
// labeled so branch routing is visible at a glance.
func RenderMermaid(def *schema.PlaybookDefinition) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if def.Name != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", def.Name))
	}

	entry := def.Entry()
	for _, step := range def.Steps {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(step)))
	}

	if entry != "" {
		b.WriteString(fmt.Sprintf("    _start((\"start\")) --> %s\n", mermaidSafeID(entry)))
	}
	for _, step := range def.Steps {
		if step.OnSuccess != "" {
			b.WriteString(fmt.Sprintf("    %s -->|success| %s\n",
				mermaidSafeID(step.ID), mermaidSafeID(step.OnSuccess)))
		}
		if step.OnFailure != "" {
			b.WriteString(fmt.Sprintf("    %s -->|failure| %s\n",
				mermaidSafeID(step.ID), mermaidSafeID(step.OnFailure)))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition shaped by action kind.
func mermaidNodeDef(step schema.StepDefinition) string {
	id := mermaidSafeID(step.ID)
	label := stepLabel(step)

	switch step.Action {
	case schema.ActionConditional:
		return fmt.Sprintf("%s{%q}", id, label)
	case schema.ActionWait:
		return fmt.Sprintf("%s([%q])", id, label)
	case schema.ActionRunScript:
		return fmt.Sprintf("%s[[%q]]", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// stepLabel prefers the human-readable name, falling back to id plus action.
func stepLabel(step schema.StepDefinition) string {
	if step.Name != "" {
		return step.Name
	}
	return fmt.Sprintf("%s: %s", step.ID, step.Action)
}

// mermaidSafeID converts a step id to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
