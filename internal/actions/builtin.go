package actions

import (
	"github.com/sentraops/sentra/internal/expressions"
)

// RegisterBuiltins installs the full built-in action set into reg. The
// collaborator bundle supplies the external integrations; exprEngine and
// jqEngine back the conditional's expression mode and the transform action.
func RegisterBuiltins(reg *Registry, collabs Collaborators, exprEngine *expressions.ExprEngine, jqEngine *expressions.GoJQEngine) error {
	all := make([]Action, 0, 10)
	for _, a := range EnrichActions(collabs.Intel) {
		all = append(all, a)
	}
	all = append(all,
		NewSendNotificationAction(collabs.Notify),
		NewUpdateAlertAction(collabs.Cases),
		NewCreateIncidentAction(collabs.Cases),
		NewRunScriptAction(collabs.Scripts),
		NewConditionalAction(exprEngine),
		NewTransformAction(jqEngine),
		NewWaitAction(),
	)

	for _, a := range all {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}
