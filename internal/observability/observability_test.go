package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := GlobalLogger
	buf := &bytes.Buffer{}
	SetLogger(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { GlobalLogger = prev })
	return buf
}

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "memberdir-test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := TraceDirectoryOp(context.Background(), "load", "user-1")
	assert.NotNil(t, ctx)
	EndSpan(span, errors.New("ignored by the no-op tracer"))
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", samplerFor(1).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestLogReadFailure_CountsAndLogs(t *testing.T) {
	buf := captureLogs(t)
	before := testutil.ToFloat64(RemoteReadFailures.WithLabelValues("profiles"))

	LogReadFailure(context.Background(), "profiles", errors.New("connection reset"))

	assert.Equal(t, before+1, testutil.ToFloat64(RemoteReadFailures.WithLabelValues("profiles")))
	assert.Contains(t, buf.String(), "directory read failed")
	assert.Contains(t, buf.String(), "connection reset")
}

func TestLogWriteFailure_DefaultsCode(t *testing.T) {
	buf := captureLogs(t)
	before := testutil.ToFloat64(RemoteWriteFailures.WithLabelValues("update", "unknown"))

	LogWriteFailure(context.Background(), "update", "", errors.New("rejected"))

	assert.Equal(t, before+1, testutil.ToFloat64(RemoteWriteFailures.WithLabelValues("update", "unknown")))
	assert.Contains(t, buf.String(), "directory write rejected")
}

func TestRepoLogger_RespectsToggle(t *testing.T) {
	buf := captureLogs(t)
	l := NewRepoLogger("profiles")

	l.LogRead(context.Background(), slog.Int("rows", 3))
	assert.Contains(t, buf.String(), `"table":"profiles"`)

	buf.Reset()
	RepoLoggingEnabled = false
	t.Cleanup(func() { RepoLoggingEnabled = true })
	l.LogUpdate(context.Background())
	assert.Empty(t, buf.String())

	l.LogError(context.Background(), errors.New("boom"), "update")
	assert.Contains(t, buf.String(), "repository error")
}

func TestRecordErrorInContext_NoSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordErrorInContext(context.Background(), errors.New("boom"))
		RecordErrorInContext(context.Background(), nil)
	})
}
