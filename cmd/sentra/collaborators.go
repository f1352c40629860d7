package main

import (
	"context"

	"github.com/sentraops/sentra/internal/actions"
	"github.com/sentraops/sentra/pkg/schema"
)

// Collaborator backends (threat intel, chat delivery, case management,
// script sandbox) are deployment-specific and plug in here. Until they are
// configured, every call fails cleanly: the step records a failure and the
// playbook's on_failure edge decides what happens next.

type unconfiguredIntel struct{}

func (unconfiguredIntel) Lookup(context.Context, string, string) (*actions.IntelReport, error) {
	return nil, schema.NewError(schema.ErrCodeAction, "threat intel provider not configured")
}

type unconfiguredNotifier struct{}

func (unconfiguredNotifier) Send(context.Context, string, string) (string, error) {
	return "", schema.NewError(schema.ErrCodeAction, "notification backend not configured")
}

type unconfiguredCases struct{}

func (unconfiguredCases) PatchAlert(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, schema.NewError(schema.ErrCodeAction, "case management backend not configured")
}

func (unconfiguredCases) CreateIncident(context.Context, map[string]any) (string, error) {
	return "", schema.NewError(schema.ErrCodeAction, "case management backend not configured")
}

type unconfiguredScripts struct{}

func (unconfiguredScripts) Run(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, schema.NewError(schema.ErrCodeAction, "script runner not configured")
}

func defaultCollaborators() actions.Collaborators {
	return actions.Collaborators{
		Intel:   unconfiguredIntel{},
		Notify:  unconfiguredNotifier{},
		Cases:   unconfiguredCases{},
		Scripts: unconfiguredScripts{},
	}
}
