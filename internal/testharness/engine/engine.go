package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mash-protocol/webchannel-go/internal/testharness/loader"
)

// Engine executes test cases.
type Engine struct {
	config   *EngineConfig
	handlers map[string]ActionHandler
	checkers map[string]ExpectChecker
	mu       sync.RWMutex
}

// New creates a new test engine with default configuration.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new test engine with the given configuration.
func NewWithConfig(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		config:   config,
		handlers: make(map[string]ActionHandler),
		checkers: make(map[string]ExpectChecker),
	}
}

// RegisterHandler registers an action handler.
func (e *Engine) RegisterHandler(action string, handler ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = handler
}

// RegisterChecker registers a checker for one expectation key. Keys without
// a checker use DefaultChecker.
func (e *Engine) RegisterChecker(key string, checker ExpectChecker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkers[key] = checker
}

// Actions returns the registered action names, sorted.
func (e *Engine) Actions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.handlers))
}

// Run executes a single test case.
func (e *Engine) Run(ctx context.Context, tc *loader.TestCase) *TestResult {
	result := &TestResult{TestCase: tc, StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
	}()

	if tc.Skip {
		result.Skipped = true
		result.SkipReason = tc.SkipReason
		if result.SkipReason == "" {
			result.SkipReason = "skipped by test definition"
		}
		return result
	}

	timeout := e.config.DefaultTimeout
	if tc.Timeout != "" {
		d, err := time.ParseDuration(tc.Timeout)
		if err != nil {
			result.Error = fmt.Errorf("invalid timeout %q: %w", tc.Timeout, err)
			return result
		}
		timeout = d
	}
	testCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := NewExecutionState(testCtx)
	if e.config.SetupTest != nil {
		if err := e.config.SetupTest(testCtx, tc, state); err != nil {
			result.Error = fmt.Errorf("test setup failed: %w", err)
			return result
		}
	}
	if e.config.TeardownTest != nil {
		defer e.config.TeardownTest(tc, state)
	}

	for i := range tc.Steps {
		sr := e.executeStep(testCtx, &tc.Steps[i], i, state)
		result.StepResults = append(result.StepResults, sr)
		if !sr.Passed {
			result.Error = fmt.Errorf("step %d (%s): %w", i+1, sr.Step.Action, sr.Error)
			return result
		}
	}
	result.Passed = true
	return result
}

func (e *Engine) executeStep(ctx context.Context, step *loader.Step, index int, state *ExecutionState) *StepResult {
	result := &StepResult{
		Step:          step,
		StepIndex:     index,
		ExpectResults: make(map[string]*ExpectResult),
		Output:        make(map[string]any),
	}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	timeout := e.config.StepTimeout
	if step.Timeout != "" {
		d, err := time.ParseDuration(step.Timeout)
		if err != nil {
			result.Error = fmt.Errorf("invalid step timeout %q: %w", step.Timeout, err)
			return result
		}
		timeout = d
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.mu.RLock()
	handler, exists := e.handlers[step.Action]
	e.mu.RUnlock()
	if !exists {
		result.Error = fmt.Errorf("unknown action: %s", step.Action)
		return result
	}

	resolved := *step
	resolved.Params = InterpolateParams(step.Params, state)
	outputs, err := handler(stepCtx, &resolved, state)
	if err != nil {
		result.Error = err
		return result
	}
	for k, v := range outputs {
		state.Set(k, v)
		result.Output[k] = v
	}

	result.Passed = true
	expect := InterpolateParams(step.Expect, state)
	for _, key := range slices.Sorted(maps.Keys(expect)) {
		er := e.checkExpectation(key, expect[key], state)
		result.ExpectResults[key] = er
		if !er.Passed && result.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("expectation failed: %s - %s", key, er.Message)
		}
	}
	return result
}

func (e *Engine) checkExpectation(key string, expected any, state *ExecutionState) *ExpectResult {
	e.mu.RLock()
	checker, exists := e.checkers[key]
	e.mu.RUnlock()
	if !exists {
		checker = DefaultChecker
	}
	return checker(key, expected, state)
}

// RunSuite executes the cases in order.
func (e *Engine) RunSuite(ctx context.Context, name string, cases []*loader.TestCase) *SuiteResult {
	result := &SuiteResult{SuiteName: name}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for _, tc := range cases {
		if ctx.Err() != nil {
			break
		}
		tr := e.Run(ctx, tc)
		result.Results = append(result.Results, tr)

		switch {
		case tr.Skipped:
			result.SkipCount++
		case tr.Passed:
			result.PassCount++
		default:
			result.FailCount++
		}
		if e.config.OnTestComplete != nil {
			e.config.OnTestComplete(tr)
		}
		if !tr.Passed && !tr.Skipped && e.config.StopOnFirstFailure {
			break
		}
	}
	return result
}
