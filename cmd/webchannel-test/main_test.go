package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/webchannel-go/internal/testharness/reporter"
	"github.com/mash-protocol/webchannel-go/pkg/cert"
	"github.com/mash-protocol/webchannel-go/pkg/channel"
	"github.com/mash-protocol/webchannel-go/pkg/examples"
	"github.com/mash-protocol/webchannel-go/pkg/loop"
	"github.com/mash-protocol/webchannel-go/pkg/transport"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-target", "ws://localhost:8080/ws", "-tags", "init", "-json", "TC-INIT-.*"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", opts.target)
	assert.Equal(t, "TC-INIT-.*", opts.pattern)
	assert.True(t, opts.jsonOut)
	assert.Equal(t, 30*time.Second, opts.timeout)

	_, err = parseFlags(nil, io.Discard)
	assert.ErrorContains(t, err, "target URL is required")

	_, err = parseFlags([]string{"-target", "ws://x", "-json", "-junit"}, io.Discard)
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestClientTLSConfig(t *testing.T) {
	config, err := clientTLSConfig(&options{})
	require.NoError(t, err)
	assert.Nil(t, config)

	config, err = clientTLSConfig(&options{insecure: true})
	require.NoError(t, err)
	assert.True(t, config.InsecureSkipVerify)

	id, err := cert.GenerateSelfSigned([]string{"localhost"}, time.Hour, time.Now())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "server.pem")
	require.NoError(t, os.WriteFile(path, cert.EncodeCertPEM(id.Certificate), 0o644))

	config, err = clientTLSConfig(&options{caFile: path})
	require.NoError(t, err)
	require.NotNil(t, config.RootCAs)

	_, err = clientTLSConfig(&options{caFile: filepath.Join(t.TempDir(), "missing.pem")})
	assert.Error(t, err)
}

func startServer(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	config := channel.DefaultConfig()
	config.PropertyUpdateInterval = 0

	l := loop.New()
	ch := channel.New(l, config)
	require.NoError(t, ch.RegisterObject("thermostat", examples.NewThermostat(l)))
	ws := transport.NewServer(transport.ServerConfig{
		WebSocket: transport.DefaultWebSocketConfig(),
		OnConnect: func(t *transport.WebSocket) {
			l.Post(func() { _ = ch.ConnectTo(t) })
		},
	})
	srv := httptest.NewServer(ws)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		srv.Close()
		_ = ws.Close()
		cancel()
		<-done
		ch.Close()
		l.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

const cases = `
id: TC-A
tags: [smoke]
steps:
  - action: connect
  - action: init
    expect:
      objects: [thermostat]
---
id: TC-B
tags: [slow]
steps:
  - action: connect
  - action: init
    expect:
      objects: [nothing]
`

func writeCases(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cases.yaml"), []byte(cases), 0o644))
	return dir
}

func TestRunJSON(t *testing.T) {
	opts := &options{
		target:      startServer(t),
		tests:       writeCases(t),
		protocol:    "json",
		timeout:     10 * time.Second,
		stepTimeout: 2 * time.Second,
		jsonOut:     true,
	}

	var stdout bytes.Buffer
	failed, err := run(context.Background(), opts, &stdout, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	var got reporter.JSONSuiteResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &got))
	assert.Equal(t, 2, got.Total)
	assert.Equal(t, 1, got.Passed)
}

func TestRunTextWithTags(t *testing.T) {
	opts := &options{
		target:      startServer(t),
		tests:       writeCases(t),
		tags:        "smoke",
		protocol:    "json",
		timeout:     10 * time.Second,
		stepTimeout: 2 * time.Second,
		protocolLog: filepath.Join(t.TempDir(), "run.wclog"),
	}

	var stdout bytes.Buffer
	failed, err := run(context.Background(), opts, &stdout, io.Discard)
	require.NoError(t, err)
	assert.Zero(t, failed)

	out := stdout.String()
	assert.Contains(t, out, "WebChannel conformance: 1 tests")
	assert.Contains(t, out, "[PASS] TC-A")
	assert.Contains(t, out, "Total:   1")
	assert.NotContains(t, out, "TC-B")
	assert.FileExists(t, opts.protocolLog)
}

func TestRunNoCases(t *testing.T) {
	opts := &options{target: "ws://127.0.0.1:1/ws", tests: writeCases(t), tags: "none"}
	_, err := run(context.Background(), opts, io.Discard, io.Discard)
	assert.ErrorContains(t, err, "no test cases selected")
}
