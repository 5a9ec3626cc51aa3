// Package engine executes conformance test cases step by step.
package engine

import (
	"context"
	"time"

	"github.com/mash-protocol/webchannel-go/internal/testharness/loader"
)

// TestResult is the outcome of a single test case.
type TestResult struct {
	TestCase    *loader.TestCase
	Passed      bool
	Error       error
	StepResults []*StepResult
	Duration    time.Duration
	StartTime   time.Time
	EndTime     time.Time
	Skipped     bool
	SkipReason  string
}

// StepResult is the outcome of a single step.
type StepResult struct {
	Step      *loader.Step
	StepIndex int // 0-based
	Passed    bool
	Error     error

	// ExpectResults maps expectation keys to their results.
	ExpectResults map[string]*ExpectResult

	Duration time.Duration

	// Output holds the values the action produced.
	Output map[string]any
}

// ExpectResult is the result of checking one expectation.
type ExpectResult struct {
	Key      string
	Expected any
	Actual   any
	Passed   bool
	Message  string
}

// SuiteResult is the outcome of running a list of test cases.
type SuiteResult struct {
	SuiteName string
	Results   []*TestResult
	PassCount int
	FailCount int
	SkipCount int
	Duration  time.Duration
}

// ActionHandler performs a step. The returned outputs are checked against
// the step's expectations and made available to later steps.
type ActionHandler func(ctx context.Context, step *loader.Step, state *ExecutionState) (map[string]any, error)

// ExpectChecker checks an expectation against the execution state.
type ExpectChecker func(key string, expected any, state *ExecutionState) *ExpectResult

// ExecutionState is shared by the steps of one test case.
type ExecutionState struct {
	// Outputs accumulated from previous steps.
	Outputs map[string]any

	// Custom holds handler-private state such as open connections.
	Custom map[string]any

	Context context.Context
}

// NewExecutionState creates an empty execution state.
func NewExecutionState(ctx context.Context) *ExecutionState {
	return &ExecutionState{
		Outputs: make(map[string]any),
		Custom:  make(map[string]any),
		Context: ctx,
	}
}

// Get returns an output value.
func (s *ExecutionState) Get(key string) (any, bool) {
	v, ok := s.Outputs[key]
	return v, ok
}

// Set stores an output value.
func (s *ExecutionState) Set(key string, value any) {
	s.Outputs[key] = value
}

// EngineConfig configures the test engine.
type EngineConfig struct {
	// DefaultTimeout bounds a test case without its own timeout.
	DefaultTimeout time.Duration

	// StepTimeout bounds a step without its own timeout.
	StepTimeout time.Duration

	StopOnFirstFailure bool

	// SetupTest runs before the steps of every test case.
	SetupTest func(ctx context.Context, tc *loader.TestCase, state *ExecutionState) error

	// TeardownTest runs after every test case that was set up, also on failure.
	TeardownTest func(tc *loader.TestCase, state *ExecutionState)

	// OnTestComplete is called after each test case of a suite.
	OnTestComplete func(result *TestResult)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		DefaultTimeout: 30 * time.Second,
		StepTimeout:    5 * time.Second,
	}
}
