package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/internal/testharness/engine"
	"github.com/mash-protocol/webchannel-go/internal/testharness/loader"
)

func constHandler(out map[string]any) engine.ActionHandler {
	return func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		return out, nil
	}
}

func TestEngineBasic(t *testing.T) {
	e := engine.New()
	e.RegisterHandler("init", constHandler(map[string]any{"objects": []any{"schedules", "thermostat"}}))

	tc := &loader.TestCase{
		ID: "TC-001",
		Steps: []loader.Step{{
			Action: "init",
			Expect: map[string]any{"objects": []any{"schedules", "thermostat"}},
		}},
	}

	result := e.Run(context.Background(), tc)
	if !result.Passed {
		t.Errorf("Passed = false, error: %v", result.Error)
	}
	if len(result.StepResults) != 1 {
		t.Errorf("len(StepResults) = %d, want 1", len(result.StepResults))
	}
}

func TestEngineStepsShareOutputs(t *testing.T) {
	e := engine.New()
	var order []int

	e.RegisterHandler("one", func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		order = append(order, 1)
		return map[string]any{"object_id": "thermostat"}, nil
	})
	e.RegisterHandler("two", func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		order = append(order, 2)
		return map[string]any{"seen": step.Params["object"]}, nil
	})

	tc := &loader.TestCase{
		ID: "TC-STEPS",
		Steps: []loader.Step{
			{Action: "one"},
			{Action: "two", Params: map[string]any{"object": "{{ object_id }}"}, Expect: map[string]any{"seen": "thermostat"}},
		},
	}

	result := e.Run(context.Background(), tc)
	require.True(t, result.Passed, "error: %v", result.Error)
	assert.Equal(t, []int{1, 2}, order)
}

func TestEngineStopsAtFailingStep(t *testing.T) {
	e := engine.New()
	ran := false
	e.RegisterHandler("fail", func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		return nil, errors.New("connection refused")
	})
	e.RegisterHandler("after", func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		ran = true
		return nil, nil
	})

	result := e.Run(context.Background(), &loader.TestCase{
		ID:    "TC-FAIL",
		Steps: []loader.Step{{Action: "fail"}, {Action: "after"}},
	})

	assert.False(t, result.Passed)
	assert.False(t, ran)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "step 1 (fail)")
	assert.Contains(t, result.Error.Error(), "connection refused")
}

func TestEngineExpectationFailure(t *testing.T) {
	e := engine.New()
	e.RegisterHandler("read", constHandler(map[string]any{"value": 19.5}))

	result := e.Run(context.Background(), &loader.TestCase{
		ID:    "TC-EXPECT",
		Steps: []loader.Step{{Action: "read", Expect: map[string]any{"value": 21.5}}},
	})

	assert.False(t, result.Passed)
	er := result.StepResults[0].ExpectResults["value"]
	require.NotNil(t, er)
	assert.False(t, er.Passed)
	assert.Equal(t, 19.5, er.Actual)
}

func TestEngineUnknownAction(t *testing.T) {
	e := engine.New()
	result := e.Run(context.Background(), &loader.TestCase{
		ID:    "TC-UNKNOWN",
		Steps: []loader.Step{{Action: "teleport"}},
	})
	assert.False(t, result.Passed)
	assert.Contains(t, result.Error.Error(), "unknown action: teleport")
}

func TestEngineSkip(t *testing.T) {
	e := engine.New()
	result := e.Run(context.Background(), &loader.TestCase{
		ID:    "TC-SKIP",
		Skip:  true,
		Steps: []loader.Step{{Action: "anything"}},
	})
	assert.True(t, result.Skipped)
	assert.Equal(t, "skipped by test definition", result.SkipReason)
}

func TestEngineStepTimeout(t *testing.T) {
	e := engine.New()
	e.RegisterHandler("block", func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	start := time.Now()
	result := e.Run(context.Background(), &loader.TestCase{
		ID:    "TC-TIMEOUT",
		Steps: []loader.Step{{Action: "block", Timeout: "20ms"}},
	})
	assert.False(t, result.Passed)
	assert.ErrorIs(t, result.Error, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEngineInvalidTimeout(t *testing.T) {
	e := engine.New()
	result := e.Run(context.Background(), &loader.TestCase{
		ID:      "TC-BADTIMEOUT",
		Timeout: "soon",
		Steps:   []loader.Step{{Action: "x"}},
	})
	assert.False(t, result.Passed)
	assert.True(t, strings.Contains(result.Error.Error(), "invalid timeout"))
}

func TestEngineSetupAndTeardown(t *testing.T) {
	var events []string
	e := engine.NewWithConfig(&engine.EngineConfig{
		DefaultTimeout: time.Second,
		StepTimeout:    time.Second,
		SetupTest: func(ctx context.Context, tc *loader.TestCase, state *engine.ExecutionState) error {
			events = append(events, "setup")
			state.Custom["conn"] = "open"
			return nil
		},
		TeardownTest: func(tc *loader.TestCase, state *engine.ExecutionState) {
			events = append(events, "teardown:"+state.Custom["conn"].(string))
		},
	})
	e.RegisterHandler("step", func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		events = append(events, "step")
		return nil, errors.New("boom")
	})

	e.Run(context.Background(), &loader.TestCase{ID: "TC-SETUP", Steps: []loader.Step{{Action: "step"}}})
	assert.Equal(t, []string{"setup", "step", "teardown:open"}, events)
}

func TestRunSuite(t *testing.T) {
	var completed []string
	config := engine.DefaultConfig()
	config.OnTestComplete = func(r *engine.TestResult) { completed = append(completed, r.TestCase.ID) }
	e := engine.NewWithConfig(config)
	e.RegisterHandler("ok", constHandler(nil))
	e.RegisterHandler("bad", func(ctx context.Context, step *loader.Step, state *engine.ExecutionState) (map[string]any, error) {
		return nil, errors.New("bad")
	})

	cases := []*loader.TestCase{
		{ID: "A", Steps: []loader.Step{{Action: "ok"}}},
		{ID: "B", Steps: []loader.Step{{Action: "bad"}}},
		{ID: "C", Skip: true, Steps: []loader.Step{{Action: "ok"}}},
	}

	suite := e.RunSuite(context.Background(), "conformance", cases)
	assert.Equal(t, 1, suite.PassCount)
	assert.Equal(t, 1, suite.FailCount)
	assert.Equal(t, 1, suite.SkipCount)
	assert.Equal(t, []string{"A", "B", "C"}, completed)

	config.StopOnFirstFailure = true
	suite = e.RunSuite(context.Background(), "conformance", cases)
	assert.Len(t, suite.Results, 2)
}

func TestActions(t *testing.T) {
	e := engine.New()
	e.RegisterHandler("invoke", constHandler(nil))
	e.RegisterHandler("connect", constHandler(nil))
	assert.Equal(t, []string{"connect", "invoke"}, e.Actions())
}
