package engine

import (
	"fmt"
	"reflect"
)

// Special expectation values.
const (
	ExpectPresent = "present" // key exists with a non-nil value
	ExpectAbsent  = "absent"  // key missing or nil
)

// DefaultChecker compares the output named key with expected. Maps match
// when every expected entry matches, so extra actual keys are allowed.
// Lists match element by element. Numbers compare by value regardless of
// their Go type.
func DefaultChecker(key string, expected any, state *ExecutionState) *ExpectResult {
	actual, exists := state.Get(key)
	result := &ExpectResult{Key: key, Expected: expected, Actual: actual}

	switch expected {
	case ExpectPresent:
		result.Passed = exists && actual != nil
		result.Message = fmt.Sprintf("%s = %v", key, actual)
		if !result.Passed {
			result.Message = fmt.Sprintf("%s not present", key)
		}
		return result
	case ExpectAbsent:
		result.Passed = !exists || actual == nil
		result.Message = fmt.Sprintf("%s absent", key)
		if !result.Passed {
			result.Message = fmt.Sprintf("%s unexpectedly = %v", key, actual)
		}
		return result
	}

	if !exists {
		result.Message = fmt.Sprintf("key %q not found in outputs", key)
		return result
	}
	if msg := Match(expected, actual); msg != "" {
		result.Message = msg
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%s = %v", key, expected)
	return result
}

// Match returns an empty string when actual matches expected, or a
// description of the first mismatch.
func Match(expected, actual any) string {
	return match("", expected, actual)
}

func match(path string, expected, actual any) string {
	at := func() string {
		if path == "" {
			return ""
		}
		return path + ": "
	}

	switch exp := expected.(type) {
	case map[string]any:
		act, ok := toMap(actual)
		if !ok {
			return fmt.Sprintf("%sexpected map, got %T", at(), actual)
		}
		for k, ev := range exp {
			av, has := act[k]
			if !has {
				return fmt.Sprintf("%smissing key %q", at(), k)
			}
			if msg := match(path+"."+k, ev, av); msg != "" {
				return msg
			}
		}
		return ""

	case []any:
		act, ok := toList(actual)
		if !ok {
			return fmt.Sprintf("%sexpected list, got %T", at(), actual)
		}
		if len(act) != len(exp) {
			return fmt.Sprintf("%sexpected %d items, got %d", at(), len(exp), len(act))
		}
		for i := range exp {
			if msg := match(fmt.Sprintf("%s[%d]", path, i), exp[i], act[i]); msg != "" {
				return msg
			}
		}
		return ""
	}

	if ef, ok := toFloat(expected); ok {
		if af, ok := toFloat(actual); ok && ef == af {
			return ""
		}
	} else if fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual) {
		return ""
	}
	return fmt.Sprintf("%sexpected %v, got %v", at(), expected, actual)
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func toList(v any) ([]any, bool) {
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
