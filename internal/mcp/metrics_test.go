package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newTestMetrics() (*Metrics, *metric.ManualReader) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return NewMetrics(mp.Meter(instrumentationName), zap.NewNop()), reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sum(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is %T", m.Name, m.Data)
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetrics_RecordInvocation(t *testing.T) {
	m, reader := newTestMetrics()
	ctx := context.Background()

	m.RecordInvocation(ctx, "cover_find", 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, "cover_find", 50*time.Millisecond,
		detecterr.New(detecterr.InvalidConstruction, "bad target"))

	got := collect(t, reader)
	require.Contains(t, got, "detectd.mcp.tool.invocations_total")
	require.Contains(t, got, "detectd.mcp.tool.duration_seconds")
	require.Contains(t, got, "detectd.mcp.tool.errors_total")
	assert.Equal(t, int64(2), sum(t, got["detectd.mcp.tool.invocations_total"]))
	assert.Equal(t, int64(1), sum(t, got["detectd.mcp.tool.errors_total"]))

	errs := got["detectd.mcp.tool.errors_total"].Data.(metricdata.Sum[int64])
	reason, ok := errs.DataPoints[0].Attributes.Value("reason")
	require.True(t, ok)
	assert.Equal(t, "DET006", reason.AsString())
}

func TestMetrics_ActiveRequests(t *testing.T) {
	m, reader := newTestMetrics()
	ctx := context.Background()

	m.IncrementActive(ctx, "circuit_annotate")
	m.IncrementActive(ctx, "circuit_annotate")
	m.DecrementActive(ctx, "circuit_annotate")

	got := collect(t, reader)
	require.Contains(t, got, "detectd.mcp.tool.active_requests")
	assert.Equal(t, int64(1), sum(t, got["detectd.mcp.tool.active_requests"]))
}

func TestMetrics_RecordDetectors(t *testing.T) {
	m, reader := newTestMetrics()
	ctx := context.Background()

	m.RecordDetectors(ctx, 3)
	m.RecordDetectors(ctx, 40)

	got := collect(t, reader)
	require.Contains(t, got, "detectd.mcp.annotate.detectors")
	hist, ok := got["detectd.mcp.annotate.detectors"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
	assert.Equal(t, int64(43), hist.DataPoints[0].Sum)
}

func TestMetrics_UnknownToolGetsItsOwnAttribute(t *testing.T) {
	m, reader := newTestMetrics()
	ctx := context.Background()

	m.RecordInvocation(ctx, "cover_find", time.Millisecond, nil)
	m.RecordInvocation(ctx, "other_tool", time.Millisecond, nil)

	data := collect(t, reader)["detectd.mcp.tool.invocations_total"].Data.(metricdata.Sum[int64])
	var tools []string
	for _, dp := range data.DataPoints {
		v, ok := dp.Attributes.Value("tool")
		require.True(t, ok)
		tools = append(tools, v.AsString())
	}
	assert.ElementsMatch(t, []string{"cover_find", "other_tool"}, tools)
}

func TestNewMetrics_NilLogger(t *testing.T) {
	mp := metric.NewMeterProvider()
	assert.NotPanics(t, func() {
		m := NewMetrics(mp.Meter(instrumentationName), nil)
		m.IncrementActive(context.Background(), "cover_find")
	})
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"malformed circuit", detecterr.New(detecterr.MalformedCircuit, "mixed moment"), "DET001"},
		{"wrapped", errors.Join(errors.New("ctx"), detecterr.New(detecterr.MissingCoordinate, "qubit 3")), "DET005"},
		{"generic error", errors.New("something went wrong"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categorizeError(tt.err))
		})
	}
}
