package actions

import (
	"context"
	"encoding/json"
)

// Action is one named operation of an integration, e.g. slack's
// "send_message". Implementations may perform network I/O and must return a
// descriptive error on any failure.
type Action interface {
	Name() string
	Execute(ctx context.Context, input ActionInput) (*ActionOutput, error)
}

// Integration is a named external capability exposing a fixed set of actions.
type Integration interface {
	Name() string
	// RequiresCredentials reports whether steps using this integration need a
	// connected tenant credential.
	RequiresCredentials() bool
	Actions() []Action
}

// ActionRegistry maps step types to integration actions.
type ActionRegistry interface {
	Register(integration Integration) error
	Resolve(stepType string) (Integration, Action, error)
	List() []IntegrationInfo
}

// ActionInput is the data provided to an action at execution time.
type ActionInput struct {
	Credentials map[string]any `json:"-"`
	Config      map[string]any `json:"config"`
	Context     map[string]any `json:"context,omitempty"`
}

// ActionOutput is the result of an action execution.
type ActionOutput struct {
	Data json.RawMessage `json:"data,omitempty"`
}

// IntegrationInfo is a summary of a registered integration for listing.
type IntegrationInfo struct {
	Name                string   `json:"name"`
	RequiresCredentials bool     `json:"requires_credentials"`
	Actions             []string `json:"actions"`
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc struct {
	name string
	fn   func(ctx context.Context, input ActionInput) (*ActionOutput, error)
}

// NewActionFunc creates an Action backed by fn.
func NewActionFunc(name string, fn func(ctx context.Context, input ActionInput) (*ActionOutput, error)) *ActionFunc {
	return &ActionFunc{name: name, fn: fn}
}

func (a *ActionFunc) Name() string { return a.name }

func (a *ActionFunc) Execute(ctx context.Context, input ActionInput) (*ActionOutput, error) {
	return a.fn(ctx, input)
}

// staticIntegration is a fixed list of actions under one name.
type staticIntegration struct {
	name        string
	credentials bool
	actions     []Action
}

// NewIntegration bundles actions under an integration name.
func NewIntegration(name string, requiresCredentials bool, acts ...Action) Integration {
	return &staticIntegration{name: name, credentials: requiresCredentials, actions: acts}
}

func (s *staticIntegration) Name() string              { return s.name }
func (s *staticIntegration) RequiresCredentials() bool { return s.credentials }
func (s *staticIntegration) Actions() []Action         { return s.actions }

// JSONOutput marshals v as an ActionOutput.
func JSONOutput(v any) (*ActionOutput, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &ActionOutput{Data: data}, nil
}
