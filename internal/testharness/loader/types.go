// Package loader reads conformance test cases from YAML files.
package loader

import "fmt"

// TestCase is a single scenario run against a WebChannel server.
type TestCase struct {
	// ID is the unique test case identifier (e.g., "TC-INIT-001").
	ID string `yaml:"id"`

	// Name is a human-readable name for the test.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Steps are the actions to execute in order.
	Steps []Step `yaml:"steps"`

	// Timeout is the maximum duration for the test (e.g., "10s").
	Timeout string `yaml:"timeout,omitempty"`

	Tags []string `yaml:"tags,omitempty"`

	// Skip disables the test; SkipReason is reported instead.
	Skip       bool   `yaml:"skip,omitempty"`
	SkipReason string `yaml:"skip_reason,omitempty"`

	// File is the path the test was loaded from, empty for parsed bytes.
	File string `yaml:"-"`
}

// Step is a single action in a test case.
type Step struct {
	// Action names the handler (e.g., "connect", "invoke").
	Action string `yaml:"action"`

	// Params are parameters for the action.
	Params map[string]any `yaml:"params,omitempty"`

	// Expect maps output keys to expected values.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Timeout overrides the engine's step timeout.
	Timeout string `yaml:"timeout,omitempty"`

	Description string `yaml:"description,omitempty"`
}

// LoadError provides details about a test case loading error.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
