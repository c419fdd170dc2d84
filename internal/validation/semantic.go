package validation

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/robfig/cron/v3"

	"github.com/rendis/autoflow/pkg/schema"
)

// stepRefPattern finds {{stepN...}} references inside config strings.
var stepRefPattern = regexp.MustCompile(`\{\{\s*step(\d+)\b`)

// validateSemantic checks what the schema cannot: trigger configuration
// consistency, step type resolution, and references to step results.
func validateSemantic(def *schema.WorkflowDefinition, resolver StepResolver, filters FilterCompiler) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	validateTrigger(def, filters, result)

	for i, step := range def.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if resolver != nil {
			if _, _, err := resolver.Resolve(step.Type); err != nil {
				code := schema.ErrCodeValidation
				if engErr, ok := err.(*schema.EngineError); ok {
					code = engErr.Code
				}
				result.AddError(path+".type", code, schema.Message(err))
			}
		}
		validateStepRefs(step.Config, path+".config", i+1, result)
	}

	return result
}

func validateTrigger(def *schema.WorkflowDefinition, filters FilterCompiler, result *schema.ValidationResult) {
	tc := def.TriggerConfig

	switch def.TriggerType {
	case schema.TriggerScheduled:
		if tc.Cron == "" {
			result.AddError("trigger_config.cron", schema.ErrCodeValidation,
				"scheduled workflows require a cron expression")
		} else if _, err := cron.ParseStandard(tc.Cron); err != nil {
			result.AddError("trigger_config.cron", schema.ErrCodeValidation,
				fmt.Sprintf("invalid cron expression %q: %s", tc.Cron, err))
		}
	case schema.TriggerEmailReceived:
		if tc.Filter != "" && filters != nil {
			if err := filters.Compile(tc.Filter); err != nil {
				result.AddError("trigger_config.filter", schema.ErrCodeValidation, schema.Message(err))
			}
		}
	default:
		if !def.TriggerType.Valid() {
			result.AddError("trigger_type", schema.ErrCodeValidation,
				fmt.Sprintf("unknown trigger type %q", def.TriggerType))
		}
	}

	if tc.Cron != "" && def.TriggerType != schema.TriggerScheduled {
		result.AddWarning("trigger_config.cron", schema.ErrCodeValidation,
			fmt.Sprintf("cron is ignored for %s workflows", def.TriggerType))
	}
	if (tc.Filter != "" || tc.Mailbox != nil) && def.TriggerType != schema.TriggerEmailReceived {
		result.AddWarning("trigger_config", schema.ErrCodeValidation,
			fmt.Sprintf("mailbox and filter are ignored for %s workflows", def.TriggerType))
	}
}

// validateStepRefs flags {{stepN}} tokens that refer to the current or a
// later step. Such tokens never resolve and are left verbatim at run time.
func validateStepRefs(node any, path string, current int, result *schema.ValidationResult) {
	switch v := node.(type) {
	case string:
		for _, m := range stepRefPattern.FindAllStringSubmatch(v, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if n >= current || n < 1 {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("reference to step%d is not available at step %d", n, current))
			}
		}
	case map[string]any:
		for k, item := range v {
			validateStepRefs(item, path+"."+k, current, result)
		}
	case []any:
		for i, item := range v {
			validateStepRefs(item, fmt.Sprintf("%s[%d]", path, i), current, result)
		}
	}
}
