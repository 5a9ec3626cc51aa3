package reporter_test

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/internal/testharness/engine"
	"github.com/mash-protocol/webchannel-go/internal/testharness/loader"
	"github.com/mash-protocol/webchannel-go/internal/testharness/reporter"
)

func testResult(id, name string, passed, skipped bool, err error) *engine.TestResult {
	r := &engine.TestResult{
		TestCase: &loader.TestCase{ID: id, Name: name},
		Passed:   passed,
		Skipped:  skipped,
		Error:    err,
		Duration: 100 * time.Millisecond,
	}
	if skipped {
		r.SkipReason = "needs alarm trigger"
		return r
	}
	r.StepResults = []*engine.StepResult{{
		Step:      &loader.Step{Action: "invoke", Description: "read the unit"},
		StepIndex: 0,
		Passed:    passed,
		Error:     err,
		Duration:  50 * time.Millisecond,
		ExpectResults: map[string]*engine.ExpectResult{
			"result": {Key: "result", Expected: "celsius", Actual: "celsius", Passed: passed, Message: "result = celsius"},
		},
		Output: map[string]any{"result": "celsius"},
	}}
	return r
}

func suiteResult() *engine.SuiteResult {
	return &engine.SuiteResult{
		SuiteName: "conformance",
		Results: []*engine.TestResult{
			testResult("TC-001", "Init", true, false, nil),
			testResult("TC-002", "Invoke <unit>", false, false, errors.New("step 1 (invoke): timeout")),
			testResult("TC-003", "Alarm", false, true, nil),
		},
		PassCount: 1,
		FailCount: 1,
		SkipCount: 1,
		Duration:  500 * time.Millisecond,
	}
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.NewTextReporter(&buf, false).ReportSuite(suiteResult()))
	out := buf.String()

	for _, want := range []string{
		"=== Suite: conformance ===",
		"[PASS] TC-001 - Init (100ms)",
		"[FAIL] TC-002 - Invoke <unit>",
		"Error: step 1 (invoke): timeout",
		"[SKIP] TC-003 - Alarm",
		"Skip reason: needs alarm trigger",
		"Total:   3",
		"Pass Rate: 50.0%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	assert.NotContains(t, out, "Step 1:")
}

func TestTextReporterVerbose(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.NewTextReporter(&buf, true).ReportTest(testResult("TC-001", "Init", true, false, nil)))
	out := buf.String()

	assert.Contains(t, out, "[PASS] Step 1: invoke")
	assert.Contains(t, out, "read the unit")
	assert.Contains(t, out, "[OK] result: result = celsius")
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.NewJSONReporter(&buf, true).ReportSuite(suiteResult()))

	var got reporter.JSONSuiteResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "conformance", got.SuiteName)
	assert.Equal(t, 3, got.Total)
	assert.Equal(t, 50.0, got.PassRate)
	require.Len(t, got.Tests, 3)
	assert.Equal(t, "passed", got.Tests[0].Status)
	assert.Equal(t, "failed", got.Tests[1].Status)
	assert.Equal(t, "step 1 (invoke): timeout", got.Tests[1].Error)
	assert.Equal(t, "skipped", got.Tests[2].Status)
	assert.Equal(t, "needs alarm trigger", got.Tests[2].SkipReason)
	require.Len(t, got.Tests[0].Steps, 1)
	assert.True(t, got.Tests[0].Steps[0].Expects["result"].Passed)
}

func TestJUnitReporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.NewJUnitReporter(&buf).ReportSuite(suiteResult()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "Invoke &lt;unit&gt;")
	assert.Contains(t, out, "<![CDATA[Step 1 (invoke): step 1 (invoke): timeout")

	var suite struct {
		Tests    int `xml:"tests,attr"`
		Failures int `xml:"failures,attr"`
		Skipped  int `xml:"skipped,attr"`
		Cases    []struct {
			Classname string    `xml:"classname,attr"`
			Failure   *struct{} `xml:"failure"`
			Skipped   *struct{} `xml:"skipped"`
		} `xml:"testcase"`
	}
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &suite))
	assert.Equal(t, 3, suite.Tests)
	assert.Equal(t, 1, suite.Failures)
	assert.Equal(t, 1, suite.Skipped)
	require.Len(t, suite.Cases, 3)
	assert.Nil(t, suite.Cases[0].Failure)
	assert.NotNil(t, suite.Cases[1].Failure)
	assert.NotNil(t, suite.Cases[2].Skipped)
}

func TestJUnitReportTest(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, reporter.NewJUnitReporter(&buf).ReportTest(testResult("TC-009", "", true, false, nil)))
	assert.Contains(t, buf.String(), `name="TC-009"`)
	assert.Contains(t, buf.String(), `tests="1"`)
}
