package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowtrace/config"
	"github.com/c360/flowtrace/errors"
	"github.com/c360/flowtrace/report"
	"github.com/c360/flowtrace/testutil"
)

const probeConfig = `
application_id: orders
error_types:
  - type: HTTP:CONNECTIVITY
    parent: CORE:CONNECTIVITY
  - type: HTTP:TIMEOUT
    parent: HTTP:CONNECTIVITY
components:
  http:request:
    error_mappings:
      - source: HTTP:TIMEOUT
        target: CORE:RETRY_EXHAUSTED
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flowtrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(probeConfig), 0600))
	return path
}

func noEnv(string) string { return "" }

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &stdout, &stderr, noEnv))
	assert.Equal(t, "flowtrace version "+Version+"\n", stdout.String())
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-h"}, &stdout, &stderr, noEnv)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, stderr.String(), "--probe=HTTP:TIMEOUT")
}

func TestRun_Schema(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-schema"}, &stdout, &stderr, noEnv))
	assert.True(t, json.Valid(stdout.Bytes()))
	assert.Contains(t, stdout.String(), "error_mappings")
}

func TestRun_InvalidFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-log-level", "loud"}, &stdout, &stderr, noEnv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestRun_ValidateAndExplain(t *testing.T) {
	path := writeConfig(t)
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-c", path, "-explain"}, &stdout, &stderr, noEnv))

	assert.Contains(t, stderr.String(), `"msg":"Configuration is valid"`)
	assert.Contains(t, stdout.String(), "HTTP:TIMEOUT")
	assert.Contains(t, stdout.String(), "http:request")
	assert.Contains(t, stdout.String(), "1: HTTP:TIMEOUT -> CORE:RETRY_EXHAUSTED")
}

func TestRun_ConfigFromEnv(t *testing.T) {
	path := writeConfig(t)
	getenv := func(key string) string {
		switch key {
		case "FLOWTRACE_CONFIG":
			return path
		case "FLOWTRACE_APPLICATION_ID":
			return "orders-canary"
		}
		return ""
	}
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), nil, &stdout, &stderr, getenv))
	assert.Contains(t, stderr.String(), `"application_id":"orders-canary"`)
}

func TestRun_MissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-c", filepath.Join(t.TempDir(), "none.yaml")}, &stdout, &stderr, noEnv)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfigNotFound)
}

func TestRun_ProbeWithoutNATS(t *testing.T) {
	path := writeConfig(t)
	var stdout, stderr bytes.Buffer
	args := []string{"-c", path, "-probe", "HTTP:TIMEOUT", "-component", "http:request"}
	require.NoError(t, run(context.Background(), args, &stdout, &stderr, noEnv))

	var rep report.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rep))
	assert.Equal(t, "CORE:RETRY_EXHAUSTED", rep.ErrorType)
	assert.Equal(t, "probe/processors/0", rep.FailingComponent)
	assert.Contains(t, stderr.String(), "reports are only logged")
}

func TestRunProbe_Publishes(t *testing.T) {
	cfg, err := config.NewLoader(config.WithLookupEnv(func(string) (string, bool) { return "", false })).
		LoadFile(writeConfig(t))
	require.NoError(t, err)

	pub := testutil.NewMockPublisher()
	logger := slog.New(slog.DiscardHandler)

	rep, err := runProbe(context.Background(), cfg, "HTTP:TIMEOUT", "http:request", pub, logger)
	require.NoError(t, err)
	assert.Equal(t, "orders", rep.ApplicationID)
	assert.Equal(t, "CORE:RETRY_EXHAUSTED", rep.ErrorType)
	assert.Equal(t, "synthetic HTTP:TIMEOUT failure", rep.Cause)
	assert.Contains(t, rep.FlowStack, "probe/processors/0")

	msgs := pub.Messages("errors.orders.core")
	require.Len(t, msgs, 1)
	var published report.Report
	require.NoError(t, json.Unmarshal(msgs[0], &published))
	assert.Equal(t, rep, published)

	// Without a mapping the declared type is reported on its own namespace
	_, err = runProbe(context.Background(), cfg, "HTTP:CONNECTIVITY", "http:request", pub, logger)
	require.NoError(t, err)
	assert.Len(t, pub.Messages("errors.orders.http"), 1)
}

func TestRunProbe_Rejects(t *testing.T) {
	cfg := config.DefaultConfig()
	logger := slog.New(slog.DiscardHandler)

	_, err := runProbe(context.Background(), cfg, "HTTP:NOPE", "http:request", nil, logger)
	assert.ErrorIs(t, err, errors.ErrUnknownErrorType)

	_, err = runProbe(context.Background(), cfg, "CORE:TIMEOUT", "request", nil, logger)
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}
