package actions

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/autoflow/pkg/schema"
)

func stringParam(params map[string]any, key, def string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func requireStringParam(params map[string]any, key string) (string, error) {
	s := stringParam(params, key, "")
	if s == "" {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "missing required config %q", key)
	}
	return s, nil
}

func boolParam(params map[string]any, key string, def bool) bool {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// mapParam reads an object param. A JSON-encoded string is decoded, which
// lets a whole prior step result be passed through a {{stepN}} token.
func mapParam(params map[string]any, key string) (map[string]any, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case string:
		var out map[string]any
		if err := json.Unmarshal([]byte(m), &out); err != nil {
			return nil, fmt.Errorf("config %q is not a JSON object: %w", key, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("config %q must be an object, got %T", key, v)
}

// anyParam reads a param of arbitrary shape, decoding JSON text when the
// value is a string that parses.
func anyParam(params map[string]any, key string) any {
	v, ok := params[key]
	if !ok {
		return nil
	}
	if s, ok := v.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			return decoded
		}
	}
	return v
}
