package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterpolate(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set("object_id", "thermostat")
	state.Set("count", 3)

	tests := []struct {
		template string
		want     string
	}{
		{"{{ object_id }}", "thermostat"},
		{"{{object_id}}", "thermostat"},
		{"id={{ object_id }}/{{ count }}", "id=thermostat/3"},
		{"{{ unknown }}", "{{ unknown }}"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Interpolate(tt.template, state); got != tt.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
	assert.Equal(t, "{{ x }}", Interpolate("{{ x }}", nil))
}

func TestInterpolateParamsPreservesTypes(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set("schedule", map[string]any{"id": "abc"})
	state.Set("target", 21.5)

	params := map[string]any{
		"object": "{{ schedule }}",
		"args":   []any{"{{ target }}", 2},
		"nested": map[string]any{"label": "t={{ target }}"},
		"flag":   true,
	}

	got := InterpolateParams(params, state)
	assert.Equal(t, map[string]any{"id": "abc"}, got["object"])
	assert.Equal(t, []any{21.5, 2}, got["args"])
	assert.Equal(t, map[string]any{"label": "t=21.5"}, got["nested"])
	assert.Equal(t, true, got["flag"])

	assert.Equal(t, "{{ target }}", params["args"].([]any)[0], "input must not be modified")
	assert.Nil(t, InterpolateParams(nil, state))
}
