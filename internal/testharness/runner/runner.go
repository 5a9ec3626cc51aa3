// Package runner drives conformance test cases against a WebChannel server.
//
// Each test case gets its own client session. Steps open it with the
// "connect" action and the runner closes it when the case ends.
package runner

import (
	"context"
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/mash-protocol/webchannel-go/internal/testharness/engine"
	"github.com/mash-protocol/webchannel-go/internal/testharness/loader"
	"github.com/mash-protocol/webchannel-go/pkg/log"
)

// Protocols accepted by the connect action.
const (
	ProtocolJSON = "json"
	ProtocolCBOR = "cbor"
)

const sessionKey = "session"

// Config configures a Runner.
type Config struct {
	// Target is the WebSocket URL of the server under test.
	Target string

	// Protocol is the default encoding, "json" or "cbor".
	Protocol string

	// TLSConfig is used for wss:// targets.
	TLSConfig *tls.Config

	DefaultTimeout     time.Duration
	StepTimeout        time.Duration
	StopOnFirstFailure bool

	// OnTestComplete is called after each test case.
	OnTestComplete func(result *engine.TestResult)

	// Logger for operational logging (optional).
	Logger *slog.Logger

	// ProtocolLogger receives every frame of every session (optional).
	ProtocolLogger log.Logger
}

// Runner executes test cases against one server.
type Runner struct {
	config Config
	engine *engine.Engine
}

// New creates a runner with every built-in action registered.
func New(config Config) *Runner {
	if config.Protocol == "" {
		config.Protocol = ProtocolJSON
	}
	ec := engine.DefaultConfig()
	if config.DefaultTimeout > 0 {
		ec.DefaultTimeout = config.DefaultTimeout
	}
	if config.StepTimeout > 0 {
		ec.StepTimeout = config.StepTimeout
	}
	ec.StopOnFirstFailure = config.StopOnFirstFailure
	ec.OnTestComplete = config.OnTestComplete
	ec.TeardownTest = func(tc *loader.TestCase, state *engine.ExecutionState) {
		if s, ok := state.Custom[sessionKey].(*session); ok {
			_ = s.close()
			delete(state.Custom, sessionKey)
		}
	}

	r := &Runner{config: config, engine: engine.NewWithConfig(ec)}
	r.registerHandlers()
	return r
}

// Engine returns the underlying engine, e.g. to register extra actions.
func (r *Runner) Engine() *engine.Engine { return r.engine }

// Run executes cases as one suite.
func (r *Runner) Run(ctx context.Context, name string, cases []*loader.TestCase) *engine.SuiteResult {
	r.debugLog("runner: starting suite", "suite", name, "cases", len(cases), "target", r.config.Target)
	return r.engine.RunSuite(ctx, name, cases)
}

func (r *Runner) debugLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}
