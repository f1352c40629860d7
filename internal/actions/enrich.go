package actions

import (
	"context"

	"github.com/sentraops/sentra/pkg/schema"
)

// enrichSpec maps an enrichment action kind to its indicator type and the
// conventional context field the indicator defaults to when the parameter is
// absent.
type enrichSpec struct {
	kind         schema.ActionKind
	indicatorTyp string
	contextField string
}

var enrichSpecs = []enrichSpec{
	{schema.ActionEnrichIP, "ip", "source_ip"},
	{schema.ActionEnrichDomain, "domain", "domain"},
	{schema.ActionEnrichHash, "hash", "file_hash"},
}

// EnrichAction resolves an indicator of compromise through the threat-intel
// collaborator and merges the verdict into the execution context.
type EnrichAction struct {
	spec  enrichSpec
	intel ThreatIntel
}

// EnrichActions builds the three enrichment actions (ip, domain, hash).
func EnrichActions(intel ThreatIntel) []Action {
	out := make([]Action, 0, len(enrichSpecs))
	for _, spec := range enrichSpecs {
		out = append(out, &EnrichAction{spec: spec, intel: intel})
	}
	return out
}

func (a *EnrichAction) Kind() schema.ActionKind { return a.spec.kind }

func (a *EnrichAction) Validate(params map[string]any) error {
	if v, ok := params["indicator"]; ok {
		if _, isStr := v.(string); !isStr {
			return schema.NewErrorf(schema.ErrCodeValidation, "%s: indicator must be a string", a.spec.kind)
		}
	}
	return nil
}

func (a *EnrichAction) Execute(ctx context.Context, in Input) (*Result, error) {
	indicator := stringParam(in.Params, "indicator", "")
	if indicator == "" {
		// Fall back to the conventional context field for this indicator type.
		if v, ok := in.Context[a.spec.contextField].(string); ok {
			indicator = v
		}
	}
	if indicator == "" {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"%s: no indicator parameter and context has no %q field", a.spec.kind, a.spec.contextField)
	}

	report, err := a.intel.Lookup(ctx, indicator, a.spec.indicatorTyp)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction,
			"threat intel lookup for %s %q failed: %s", a.spec.indicatorTyp, indicator, err.Error()).WithCause(err)
	}

	sources := make([]any, len(report.Sources))
	for i, s := range report.Sources {
		sources[i] = s
	}
	tags := make([]any, len(report.Tags))
	for i, t := range report.Tags {
		tags[i] = t
	}

	return &Result{Output: map[string]any{
		"indicator":    indicator,
		"reputation":   report.Reputation,
		"confidence":   report.Confidence,
		"sources":      sources,
		"tags":         tags,
		"is_malicious": report.Reputation == "malicious",
	}}, nil
}
