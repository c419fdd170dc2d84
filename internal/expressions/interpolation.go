package expressions

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// tokenPattern matches {{ path.to.value }}. Paths are non-empty and contain no
// braces; surrounding whitespace inside the braces is ignored.
var tokenPattern = regexp.MustCompile(`\{\{\s*([^{}\s][^{}]*?)\s*\}\}`)

// Substitute returns a copy of node with every {{path}} token inside string
// leaves replaced by the value found at that dot-path in ctx. Maps and slices
// are walked recursively; other leaves are returned unchanged. A token whose
// path cannot be fully resolved is left verbatim. The input is never mutated.
func Substitute(node any, ctx map[string]any) any {
	switch v := node.(type) {
	case string:
		return SubstituteString(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Substitute(item, ctx)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Substitute(item, ctx)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = SubstituteString(item, ctx)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = SubstituteString(item, ctx)
		}
		return out
	default:
		return node
	}
}

// SubstituteConfig is Substitute specialised to a step config object.
func SubstituteConfig(config map[string]any, ctx map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}
	out, _ := Substitute(config, ctx).(map[string]any)
	return out
}

// SubstituteString replaces the tokens of a single string.
func SubstituteString(s string, ctx map[string]any) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return tokenPattern.ReplaceAllStringFunc(s, func(token string) string {
		path := tokenPattern.FindStringSubmatch(token)[1]
		val, ok := Lookup(ctx, path)
		if !ok {
			return token
		}
		return stringify(val)
	})
}

// Lookup walks a dot-delimited path through nested maps and slices. Slice
// segments must be non-negative integers. The boolean is false when any
// segment is missing or a non-container is reached before the path ends.
func Lookup(root map[string]any, path string) (any, bool) {
	if root == nil || path == "" {
		return nil, false
	}
	var current any = root
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, false
		}
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// ContainsToken reports whether s has at least one {{path}} token.
func ContainsToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// stringify renders a resolved value for inline insertion into a string.
func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case json.RawMessage:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
