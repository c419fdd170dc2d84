package engine

import "strconv"

// TriggerKey is the execution context key holding the trigger payload.
const TriggerKey = "trigger"

// ExecutionContext is the in-memory data visible to step interpolation:
// the trigger payload under "trigger" and each completed step's result
// under "step<N>" (1-based). It lives only for the duration of one run.
type ExecutionContext map[string]any

// NewExecutionContext seeds a context with the trigger payload.
func NewExecutionContext(payload any) ExecutionContext {
	return ExecutionContext{TriggerKey: payload}
}

// StepKey returns the context key of step n, e.g. "step2".
func StepKey(n int) string {
	return "step" + strconv.Itoa(n)
}

// SetStepResult stores the result of step n.
func (c ExecutionContext) SetStepResult(n int, result any) {
	c[StepKey(n)] = result
}

// Snapshot returns a shallow copy for handing to actions, so an action
// cannot add or remove keys of the live context.
func (c ExecutionContext) Snapshot() map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
