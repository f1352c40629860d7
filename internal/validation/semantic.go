package validation

import (
	"encoding/json"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/sentraops/sentra/internal/expressions"
	"github.com/sentraops/sentra/pkg/schema"
)

// validateSemantic performs semantic analysis on the playbook definition.
// Checks: duplicate step ids, edge and entry references, action registration,
// static action parameters, trigger configuration.
func validateSemantic(def *schema.PlaybookDefinition, lookup ActionLookup, cel *expressions.CELEngine) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	stepIDs := make(map[string]bool, len(def.Steps))
	for i, s := range def.Steps {
		if stepIDs[s.ID] {
			result.AddError(fmt.Sprintf("steps[%d].id", i), schema.ErrCodeValidation,
				fmt.Sprintf("duplicate step id %q", s.ID))
		}
		stepIDs[s.ID] = true
	}

	if def.EntryStepID != "" && !stepIDs[def.EntryStepID] {
		result.AddError("entry_step_id", schema.ErrCodeValidation,
			fmt.Sprintf("references non-existent step %q", def.EntryStepID))
	}

	for i := range def.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		validateStepSemantic(&def.Steps[i], path, stepIDs, lookup, def.ExecutionTimeoutSeconds, result)
	}

	validateTrigger(def, cel, result)

	return result
}

// validateStepSemantic checks a single step's edges, action, and parameters.
func validateStepSemantic(step *schema.StepDefinition, path string, stepIDs map[string]bool, lookup ActionLookup, execTimeout int, result *schema.ValidationResult) {
	if step.OnSuccess != "" && !stepIDs[step.OnSuccess] {
		result.AddError(path+".on_success", schema.ErrCodeValidation,
			fmt.Sprintf("references non-existent step %q", step.OnSuccess))
	}
	if step.OnFailure != "" && !stepIDs[step.OnFailure] {
		result.AddError(path+".on_failure", schema.ErrCodeValidation,
			fmt.Sprintf("references non-existent step %q", step.OnFailure))
	}

	if lookup != nil && step.Action != "" {
		if !lookup.Has(step.Action) {
			result.AddError(path+".action", schema.ErrCodeValidation,
				fmt.Sprintf("action %q not registered", step.Action))
		} else {
			validateStepParams(step, path, lookup, result)
		}
	}

	// Warning: a per-step timeout longer than the execution wall clock never
	// fires in full.
	if execTimeout > 0 && step.TimeoutSeconds > execTimeout {
		result.AddWarning(path+".timeout_seconds", schema.ErrCodeValidation,
			fmt.Sprintf("step timeout (%ds) exceeds execution timeout (%ds)", step.TimeoutSeconds, execTimeout))
	}
}

// validateStepParams runs the action's static parameter check. Parameters
// containing template placeholders are skipped: their values are only known
// at resolution time.
func validateStepParams(step *schema.StepDefinition, path string, lookup ActionLookup, result *schema.ValidationResult) {
	if len(step.Parameters) == 0 {
		// Actions with required parameters reject an empty map.
		if err := lookup.ValidateParams(step.Action, map[string]any{}); err != nil {
			result.AddError(path+".parameters", schema.ErrCodeValidation, err.Error())
		}
		return
	}
	if expressions.HasTemplates(step.Parameters) {
		return
	}

	params := make(map[string]any)
	if err := json.Unmarshal(step.Parameters, &params); err != nil {
		result.AddError(path+".parameters", schema.ErrCodeValidation,
			fmt.Sprintf("parameters are not a JSON object: %s", err.Error()))
		return
	}
	if err := lookup.ValidateParams(step.Action, params); err != nil {
		result.AddError(path+".parameters", schema.ErrCodeValidation, err.Error())
	}
}

// validateTrigger checks trigger-specific configuration: cron expressions for
// schedule triggers and the shape of trigger conditions.
func validateTrigger(def *schema.PlaybookDefinition, cel *expressions.CELEngine, result *schema.ValidationResult) {
	if def.TriggerType == schema.TriggerSchedule {
		if def.Schedule == "" {
			result.AddError("schedule", schema.ErrCodeValidation,
				"schedule trigger requires a cron expression")
		} else if _, err := cron.ParseStandard(def.Schedule); err != nil {
			result.AddError("schedule", schema.ErrCodeValidation,
				fmt.Sprintf("invalid cron expression %q: %s", def.Schedule, err.Error()))
		}
	} else if def.Schedule != "" {
		result.AddWarning("schedule", schema.ErrCodeValidation,
			fmt.Sprintf("schedule is ignored for trigger type %q", def.TriggerType))
	}

	if len(def.TriggerConditions) > 0 && def.TriggerType == schema.TriggerManual {
		result.AddWarning("trigger_conditions", schema.ErrCodeValidation,
			"trigger conditions are ignored for manual triggers")
	}

	if raw, ok := def.TriggerConditions["expression"]; ok {
		expr, isStr := raw.(string)
		if !isStr {
			result.AddError("trigger_conditions.expression", schema.ErrCodeValidation,
				"trigger expression must be a string")
			return
		}
		if cel != nil {
			if err := cel.Compile(expr); err != nil {
				result.AddError("trigger_conditions.expression", schema.ErrCodeValidation,
					fmt.Sprintf("invalid trigger expression: %s", err.Error()))
			}
		}
	}
}
