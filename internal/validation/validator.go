package validation

import (
	"github.com/rendis/autoflow/internal/actions"
	"github.com/rendis/autoflow/pkg/schema"
)

// Validator checks workflow definitions before they are stored.
type Validator interface {
	ValidateDefinition(def *schema.WorkflowDefinition) error
}

// StepResolver resolves step types to integration actions. Satisfied by
// *actions.Registry.
type StepResolver interface {
	Resolve(stepType string) (actions.Integration, actions.Action, error)
}

// FilterCompiler compiles trigger filter expressions. Satisfied by
// *expressions.CELEngine.
type FilterCompiler interface {
	Compile(expression string) error
}
