// Command webchannel-test runs conformance scenarios against a WebChannel
// server.
//
// Usage:
//
//	webchannel-test [flags] [test-pattern]
//
// Flags:
//
//	-target string        WebSocket URL of the server under test (required)
//	-tests string         Directory with YAML test cases (default "./testdata/conformance")
//	-tags string          Comma-separated tags; run only cases carrying one of them
//	-protocol string      Default encoding: json, cbor (default "json")
//	-timeout duration     Per-test timeout (default 30s)
//	-step-timeout duration Per-step timeout (default 5s)
//	-fail-fast            Stop at the first failing test
//	-verbose              Show step details
//	-json                 Output results as JSON
//	-junit                Output results as JUnit XML
//	-ca-file string       PEM certificate to trust for wss:// targets
//	-insecure             Skip TLS certificate verification
//	-protocol-log string  File path for protocol event logging (CBOR format)
//
// Examples:
//
//	# Run every scenario against the demo server
//	webchannel-test -target ws://localhost:8080/ws
//
//	# Run the property scenarios over TLS with the demo's certificate
//	webchannel-test -target wss://localhost:8443/ws -ca-file certs/server.pem -tags property
//
//	# Run matching test IDs and write a JUnit report
//	webchannel-test -target ws://localhost:8080/ws -junit "TC-INVOKE-.*" > report.xml
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/mash-protocol/webchannel-go/internal/testharness/engine"
	"github.com/mash-protocol/webchannel-go/internal/testharness/loader"
	"github.com/mash-protocol/webchannel-go/internal/testharness/reporter"
	"github.com/mash-protocol/webchannel-go/internal/testharness/runner"
	"github.com/mash-protocol/webchannel-go/pkg/cert"
	wclog "github.com/mash-protocol/webchannel-go/pkg/log"
)

type options struct {
	target      string
	tests       string
	tags        string
	protocol    string
	timeout     time.Duration
	stepTimeout time.Duration
	failFast    bool
	verbose     bool
	jsonOut     bool
	junitOut    bool
	caFile      string
	insecure    bool
	protocolLog string
	pattern     string
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("webchannel-test", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.target, "target", "", "WebSocket URL of the server under test")
	fs.StringVar(&opts.tests, "tests", "./testdata/conformance", "Directory with YAML test cases")
	fs.StringVar(&opts.tags, "tags", "", "Comma-separated tags to run")
	fs.StringVar(&opts.protocol, "protocol", runner.ProtocolJSON, "Default encoding: json, cbor")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-test timeout")
	fs.DurationVar(&opts.stepTimeout, "step-timeout", 5*time.Second, "Per-step timeout")
	fs.BoolVar(&opts.failFast, "fail-fast", false, "Stop at the first failing test")
	fs.BoolVar(&opts.verbose, "verbose", false, "Show step details")
	fs.BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")
	fs.BoolVar(&opts.junitOut, "junit", false, "Output results as JUnit XML")
	fs.StringVar(&opts.caFile, "ca-file", "", "PEM certificate to trust for wss:// targets")
	fs.BoolVar(&opts.insecure, "insecure", false, "Skip TLS certificate verification")
	fs.StringVar(&opts.protocolLog, "protocol-log", "", "File path for protocol event logging (CBOR format)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		opts.pattern = fs.Arg(0)
	}
	if opts.target == "" {
		return nil, errors.New("target URL is required (-target)")
	}
	if opts.jsonOut && opts.junitOut {
		return nil, errors.New("-json and -junit are mutually exclusive")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(2)
	}
	failed, err := run(context.Background(), opts, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// run executes the selected cases and returns the number of failures.
func run(ctx context.Context, opts *options, stdout, stderr io.Writer) (failed int, err error) {
	cases, err := selectCases(opts)
	if err != nil {
		return 0, err
	}
	if len(cases) == 0 {
		return 0, fmt.Errorf("no test cases selected from %s", opts.tests)
	}

	tlsConfig, err := clientTLSConfig(opts)
	if err != nil {
		return 0, err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	config := runner.Config{
		Target:             opts.target,
		Protocol:           opts.protocol,
		TLSConfig:          tlsConfig,
		DefaultTimeout:     opts.timeout,
		StepTimeout:        opts.stepTimeout,
		StopOnFirstFailure: opts.failFast,
		Logger:             logger,
	}
	if opts.protocolLog != "" {
		fileLogger, ferr := wclog.NewFileLogger(opts.protocolLog)
		if ferr != nil {
			return 0, fmt.Errorf("failed to create protocol logger: %w", ferr)
		}
		defer func() { err = multierr.Append(err, fileLogger.Close()) }()
		config.ProtocolLogger = fileLogger
	}

	var rep reporter.Reporter
	switch {
	case opts.jsonOut:
		rep = reporter.NewJSONReporter(stdout, true)
	case opts.junitOut:
		rep = reporter.NewJUnitReporter(stdout)
	default:
		text := reporter.NewTextReporter(stdout, opts.verbose)
		fmt.Fprintf(stdout, "WebChannel conformance: %d tests against %s\n", len(cases), opts.target)
		// Text output streams each test; the suite summary follows at the end.
		config.OnTestComplete = func(r *engine.TestResult) { _ = text.ReportTest(r) }
		rep = summaryOnly{text}
	}

	result := runner.New(config).Run(ctx, "webchannel-conformance", cases)
	if err := rep.ReportSuite(result); err != nil {
		return result.FailCount, err
	}
	return result.FailCount, nil
}

// summaryOnly reports a suite without repeating tests already streamed.
type summaryOnly struct {
	*reporter.TextReporter
}

func (s summaryOnly) ReportSuite(result *engine.SuiteResult) error {
	return s.ReportSummary(result)
}

func selectCases(opts *options) ([]*loader.TestCase, error) {
	cases, err := loader.LoadDirectory(opts.tests)
	if err != nil {
		return nil, err
	}
	if opts.pattern != "" {
		if cases, err = loader.FilterByPattern(cases, opts.pattern); err != nil {
			return nil, err
		}
	}
	if opts.tags != "" {
		cases = loader.FilterByTags(cases, strings.Split(opts.tags, ",")...)
	}
	return cases, nil
}

func clientTLSConfig(opts *options) (*tls.Config, error) {
	if opts.caFile == "" && !opts.insecure {
		return nil, nil
	}
	config := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.insecure {
		config.InsecureSkipVerify = true // #nosec G402 -- explicit opt-in for test servers
		return config, nil
	}
	data, err := os.ReadFile(opts.caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	ca, err := cert.DecodeCertPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse CA file: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(ca)
	config.RootCAs = pool
	return config, nil
}
