package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// variablePattern matches {{ variable }} templates.
var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Interpolate replaces {{ variable }} placeholders with outputs of earlier
// steps. Unknown variables are left unchanged.
func Interpolate(template string, state *ExecutionState) string {
	if state == nil {
		return template
	}
	return variablePattern.ReplaceAllStringFunc(template, func(m string) string {
		name := variablePattern.FindStringSubmatch(m)[1]
		value, ok := state.Outputs[name]
		if !ok {
			return m
		}
		return fmt.Sprint(value)
	})
}

// InterpolateParams interpolates every string in params, recursing into
// maps and lists. A string that is exactly one reference keeps the type of
// the referenced value.
func InterpolateParams(params map[string]any, state *ExecutionState) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = interpolateValue(v, state)
	}
	return out
}

func interpolateValue(value any, state *ExecutionState) any {
	switch v := value.(type) {
	case string:
		return interpolateString(v, state)
	case map[string]any:
		return InterpolateParams(v, state)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = interpolateValue(item, state)
		}
		return out
	}
	return value
}

func interpolateString(s string, state *ExecutionState) any {
	if state == nil {
		return s
	}
	trimmed := strings.TrimSpace(s)
	if loc := variablePattern.FindStringSubmatchIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		if value, ok := state.Outputs[trimmed[loc[2]:loc[3]]]; ok {
			return value
		}
		return s
	}
	return Interpolate(s, state)
}
