package actions

import (
	"context"
	"net/http"

	"github.com/rendis/autoflow/internal/expressions"
)

// BuiltinConfig configures the integrations shipped with the engine.
type BuiltinConfig struct {
	HTTP HTTPConfig
	// HTTPClient overrides the client used by the http integration.
	HTTPClient *http.Client
}

// RegisterBuiltins registers the built-in integrations: jq and expr
// (credential-less data shaping) and http (authenticated requests).
func RegisterBuiltins(reg *Registry, cfg BuiltinConfig) error {
	for _, integ := range []Integration{
		NewJQIntegration(expressions.NewGoJQEngine()),
		NewExprIntegration(expressions.NewExprEngine()),
		NewHTTPIntegration(cfg.HTTP, cfg.HTTPClient),
	} {
		if err := reg.Register(integ); err != nil {
			return err
		}
	}
	return nil
}

// NewJQIntegration exposes jq_transform. Config: "query" (required) and
// "input" (optional; defaults to the whole execution context). The first
// jq output becomes the step result; multiple outputs become an array.
func NewJQIntegration(jq *expressions.GoJQEngine) Integration {
	transform := NewActionFunc("transform", func(ctx context.Context, input ActionInput) (*ActionOutput, error) {
		query, err := requireStringParam(input.Config, "query")
		if err != nil {
			return nil, err
		}
		var doc any = input.Context
		if _, ok := input.Config["input"]; ok {
			doc = anyParam(input.Config, "input")
		}
		out, err := jq.Run(ctx, query, doc)
		if err != nil {
			return nil, err
		}
		return JSONOutput(out)
	})
	return NewIntegration("jq", false, transform)
}

// NewExprIntegration exposes expr_eval. Config: "expression" (required) and
// "vars" (optional object). The execution context keys (trigger, step1, ...)
// are visible as variables; vars override them.
func NewExprIntegration(ev *expressions.ExprEngine) Integration {
	eval := NewActionFunc("eval", func(ctx context.Context, input ActionInput) (*ActionOutput, error) {
		expression, err := requireStringParam(input.Config, "expression")
		if err != nil {
			return nil, err
		}
		vars, err := mapParam(input.Config, "vars")
		if err != nil {
			return nil, err
		}
		env := make(map[string]any, len(input.Context)+len(vars))
		for k, v := range input.Context {
			env[k] = v
		}
		for k, v := range vars {
			env[k] = v
		}
		out, err := ev.Evaluate(ctx, expression, env)
		if err != nil {
			return nil, err
		}
		return JSONOutput(out)
	})
	return NewIntegration("expr", false, eval)
}
