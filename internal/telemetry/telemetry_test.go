package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestVerbosityLevel(t *testing.T) {
	assert.Equal(t, "warn", VerbosityLevel(0))
	assert.Equal(t, "info", VerbosityLevel(1))
	assert.Equal(t, "debug", VerbosityLevel(2))
	assert.Equal(t, "trace", VerbosityLevel(5))
}

func TestSetupLogger_Trace(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := SetupLogger(LogOptions{Level: "trace", Format: "text", Output: &buf})

	logger.Log(context.Background(), LevelTrace, "delivery metadata")
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.Contains(t, buf.String(), "delivery metadata")
}

func TestSetupLogger_FiltersBelowLevel(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := SetupLogger(LogOptions{Level: "warn", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestFromContext(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveDelivery("jobs")
	m.ObserveDelivery("jobs")
	m.ObserveOutcome("jobs", OutcomeAck, 10*time.Millisecond)
	m.ObserveOutcome("jobs", OutcomeRequeue, time.Millisecond)
	m.ObserveFault("jobs", "consume")
	m.ObserveConnect("jobs", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("jobs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("jobs", OutcomeAck)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("jobs", OutcomeRequeue)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Faults.WithLabelValues("jobs", "consume")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connects.WithLabelValues("jobs", "ok")))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDelivery("jobs")
		m.ObserveOutcome("jobs", OutcomeDead, time.Second)
		m.ObserveFault("jobs", "qos")
		m.ObserveConnect("jobs", "failed")
	})
}
