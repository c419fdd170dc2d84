package validation

import "github.com/rendis/autoflow/pkg/schema"

// WorkflowValidator runs the two-stage validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (trigger config, step types, step references)
type WorkflowValidator struct {
	jsonSchema *JSONSchemaValidator
	resolver   StepResolver
	filters    FilterCompiler
}

// NewWorkflowValidator creates a WorkflowValidator. resolver and filters may
// be nil to skip step type and filter compilation checks.
func NewWorkflowValidator(resolver StepResolver, filters FilterCompiler) (*WorkflowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{
		jsonSchema: jsv,
		resolver:   resolver,
		filters:    filters,
	}, nil
}

// Validate runs the pipeline and returns an aggregated result. Structural
// errors short-circuit the semantic stage.
func (wv *WorkflowValidator) Validate(def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "workflow definition is nil")
		return r
	}

	result := structuralResult(wv.jsonSchema.ValidateDefinition(def))
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(def, wv.resolver, wv.filters))
	return result
}

// ValidateDefinition satisfies the Validator interface.
func (wv *WorkflowValidator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	return wv.Validate(def).ToError()
}

// Schema exposes the structural validator for raw-document checks.
func (wv *WorkflowValidator) Schema() *JSONSchemaValidator {
	return wv.jsonSchema
}

// structuralResult converts a structural validation error into a result with
// one entry per violation.
func structuralResult(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	engErr, ok := err.(*schema.EngineError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := engErr.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, engErr.Message)
	return result
}

var _ Validator = (*WorkflowValidator)(nil)
