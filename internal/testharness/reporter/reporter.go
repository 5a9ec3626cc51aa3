// Package reporter formats conformance results as text, JSON or JUnit XML.
package reporter

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/mash-protocol/webchannel-go/internal/testharness/engine"
)

// Reporter writes test results.
type Reporter interface {
	ReportSuite(result *engine.SuiteResult) error
	ReportTest(result *engine.TestResult) error
}

func status(r *engine.TestResult) string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Passed:
		return "passed"
	default:
		return "failed"
	}
}

func passRate(r *engine.SuiteResult) float64 {
	total := r.PassCount + r.FailCount
	if total == 0 {
		return 0
	}
	return float64(r.PassCount) / float64(total) * 100
}

// TextReporter writes human-readable reports.
type TextReporter struct {
	w       io.Writer
	verbose bool
}

// NewTextReporter creates a text reporter. Verbose output lists every step
// and expectation.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{w: w, verbose: verbose}
}

// ReportSuite writes every test followed by a summary.
func (r *TextReporter) ReportSuite(result *engine.SuiteResult) error {
	fmt.Fprintf(r.w, "\n=== Suite: %s ===\n", result.SuiteName)
	fmt.Fprintf(r.w, "Duration: %s\n\n", result.Duration.Round(time.Millisecond))

	for _, tr := range result.Results {
		if err := r.ReportTest(tr); err != nil {
			return err
		}
	}
	return r.ReportSummary(result)
}

// ReportSummary writes only the totals of a suite, for callers that
// streamed the individual tests already.
func (r *TextReporter) ReportSummary(result *engine.SuiteResult) error {
	fmt.Fprintf(r.w, "\n--- Summary ---\n")
	fmt.Fprintf(r.w, "Total:   %d\n", len(result.Results))
	fmt.Fprintf(r.w, "Passed:  %d\n", result.PassCount)
	fmt.Fprintf(r.w, "Failed:  %d\n", result.FailCount)
	fmt.Fprintf(r.w, "Skipped: %d\n", result.SkipCount)
	if result.PassCount+result.FailCount > 0 {
		fmt.Fprintf(r.w, "Pass Rate: %.1f%%\n", passRate(result))
	}
	return nil
}

// ReportTest writes one status line, plus step details when verbose.
func (r *TextReporter) ReportTest(result *engine.TestResult) error {
	tc := result.TestCase
	label := map[string]string{"skipped": "SKIP", "passed": "PASS", "failed": "FAIL"}[status(result)]

	name := tc.ID
	if tc.Name != "" {
		name += " - " + tc.Name
	}
	fmt.Fprintf(r.w, "[%s] %s (%s)\n", label, name, result.Duration.Round(time.Millisecond))

	if result.Skipped && result.SkipReason != "" {
		fmt.Fprintf(r.w, "       Skip reason: %s\n", result.SkipReason)
	}
	if !result.Passed && result.Error != nil {
		fmt.Fprintf(r.w, "       Error: %v\n", result.Error)
	}
	if !r.verbose {
		return nil
	}

	for _, sr := range result.StepResults {
		stepStatus := "PASS"
		if !sr.Passed {
			stepStatus = "FAIL"
		}
		fmt.Fprintf(r.w, "    [%s] Step %d: %s (%s)\n",
			stepStatus, sr.StepIndex+1, sr.Step.Action, sr.Duration.Round(time.Millisecond))
		if sr.Step.Description != "" {
			fmt.Fprintf(r.w, "           %s\n", sr.Step.Description)
		}
		for _, key := range slices.Sorted(maps.Keys(sr.ExpectResults)) {
			er := sr.ExpectResults[key]
			expStatus := "OK"
			if !er.Passed {
				expStatus = "FAILED"
			}
			fmt.Fprintf(r.w, "           [%s] %s: %s\n", expStatus, key, er.Message)
		}
	}
	return nil
}

// JSONReporter writes JSON reports.
type JSONReporter struct {
	w      io.Writer
	pretty bool
}

// NewJSONReporter creates a JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{w: w, pretty: pretty}
}

// JSONSuiteResult is the JSON form of a suite result.
type JSONSuiteResult struct {
	SuiteName string           `json:"suite_name"`
	Duration  string           `json:"duration"`
	Total     int              `json:"total"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	PassRate  float64          `json:"pass_rate"`
	Tests     []JSONTestResult `json:"tests"`
}

// JSONTestResult is the JSON form of a test result.
type JSONTestResult struct {
	ID         string           `json:"id"`
	Name       string           `json:"name,omitempty"`
	File       string           `json:"file,omitempty"`
	Status     string           `json:"status"`
	Duration   string           `json:"duration"`
	Error      string           `json:"error,omitempty"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Steps      []JSONStepResult `json:"steps,omitempty"`
}

// JSONStepResult is the JSON form of a step result.
type JSONStepResult struct {
	Index    int                   `json:"index"`
	Action   string                `json:"action"`
	Status   string                `json:"status"`
	Duration string                `json:"duration"`
	Error    string                `json:"error,omitempty"`
	Expects  map[string]JSONExpect `json:"expects,omitempty"`
	Outputs  map[string]any        `json:"outputs,omitempty"`
}

// JSONExpect is the JSON form of an expectation result.
type JSONExpect struct {
	Passed   bool   `json:"passed"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Message  string `json:"message"`
}

// ReportSuite writes the whole suite as one JSON document.
func (r *JSONReporter) ReportSuite(result *engine.SuiteResult) error {
	out := JSONSuiteResult{
		SuiteName: result.SuiteName,
		Duration:  result.Duration.Round(time.Millisecond).String(),
		Total:     len(result.Results),
		Passed:    result.PassCount,
		Failed:    result.FailCount,
		Skipped:   result.SkipCount,
		PassRate:  passRate(result),
		Tests:     make([]JSONTestResult, 0, len(result.Results)),
	}
	for _, tr := range result.Results {
		out.Tests = append(out.Tests, testToJSON(tr))
	}
	return r.write(out)
}

// ReportTest writes a single test result as one JSON document.
func (r *JSONReporter) ReportTest(result *engine.TestResult) error {
	return r.write(testToJSON(result))
}

func testToJSON(result *engine.TestResult) JSONTestResult {
	tc := result.TestCase
	out := JSONTestResult{
		ID:         tc.ID,
		Name:       tc.Name,
		File:       tc.File,
		Status:     status(result),
		Duration:   result.Duration.Round(time.Millisecond).String(),
		SkipReason: result.SkipReason,
	}
	if result.Error != nil {
		out.Error = result.Error.Error()
	}

	for _, sr := range result.StepResults {
		js := JSONStepResult{
			Index:    sr.StepIndex,
			Action:   sr.Step.Action,
			Status:   "passed",
			Duration: sr.Duration.Round(time.Millisecond).String(),
			Outputs:  sr.Output,
		}
		if !sr.Passed {
			js.Status = "failed"
		}
		if sr.Error != nil {
			js.Error = sr.Error.Error()
		}
		if len(sr.ExpectResults) > 0 {
			js.Expects = make(map[string]JSONExpect, len(sr.ExpectResults))
			for key, er := range sr.ExpectResults {
				js.Expects[key] = JSONExpect{Passed: er.Passed, Expected: er.Expected, Actual: er.Actual, Message: er.Message}
			}
		}
		out.Steps = append(out.Steps, js)
	}
	return out
}

func (r *JSONReporter) write(v any) error {
	enc := json.NewEncoder(r.w)
	if r.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// JUnitReporter writes JUnit XML for CI systems.
type JUnitReporter struct {
	w io.Writer
}

// NewJUnitReporter creates a JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{w: w}
}

type junitSuite struct {
	XMLName  xml.Name    `xml:"testsuite"`
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Detail  string `xml:",cdata"`
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// ReportSuite writes the suite as a single testsuite element.
func (r *JUnitReporter) ReportSuite(result *engine.SuiteResult) error {
	suite := junitSuite{
		Name:     result.SuiteName,
		Tests:    len(result.Results),
		Failures: result.FailCount,
		Skipped:  result.SkipCount,
		Time:     seconds(result.Duration),
	}
	for _, tr := range result.Results {
		tc := junitCase{
			Name:      tr.TestCase.Name,
			Classname: tr.TestCase.ID,
			Time:      seconds(tr.Duration),
		}
		if tc.Name == "" {
			tc.Name = tr.TestCase.ID
		}
		switch {
		case tr.Skipped:
			tc.Skipped = &junitSkipped{Message: tr.SkipReason}
		case !tr.Passed:
			f := &junitFailure{}
			if tr.Error != nil {
				f.Message = tr.Error.Error()
			}
			for _, sr := range tr.StepResults {
				if !sr.Passed {
					f.Detail += fmt.Sprintf("Step %d (%s): %v\n", sr.StepIndex+1, sr.Step.Action, sr.Error)
				}
			}
			tc.Failure = f
		}
		suite.Cases = append(suite.Cases, tc)
	}

	if _, err := io.WriteString(r.w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(r.w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return fmt.Errorf("failed to encode junit report: %w", err)
	}
	_, err := io.WriteString(r.w, "\n")
	return err
}

// ReportTest wraps a single result in a one-test suite.
func (r *JUnitReporter) ReportTest(result *engine.TestResult) error {
	suite := &engine.SuiteResult{
		SuiteName: result.TestCase.ID,
		Results:   []*engine.TestResult{result},
		Duration:  result.Duration,
	}
	switch {
	case result.Skipped:
		suite.SkipCount = 1
	case result.Passed:
		suite.PassCount = 1
	default:
		suite.FailCount = 1
	}
	return r.ReportSuite(suite)
}
