package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/detectd/pkg/detecterr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/detectd/internal/mcp"

// toolNames are the tools registered by registerTools. Their attribute sets
// are built once.
var toolNames = []string{"circuit_validate", "circuit_fragments", "circuit_annotate", "cover_find"}

// durationBuckets center on the default SAT budget of 100ms.
var durationBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.2, 0.5, 1, 5, 30}

// Metrics holds the MCP tool instruments. A nil instrument is skipped.
type Metrics struct {
	invocations metric.Int64Counter
	errors      metric.Int64Counter
	duration    metric.Float64Histogram
	active      metric.Int64UpDownCounter
	detectors   metric.Int64Histogram

	byTool map[string]metric.MeasurementOption
}

// NewMetrics creates the tool instruments on meter. Instruments that cannot
// be created are reported once on logger.
func NewMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	m := &Metrics{byTool: make(map[string]metric.MeasurementOption, len(toolNames))}
	for _, name := range toolNames {
		m.byTool[name] = toolOption(name)
	}

	var errs []error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}
	m.invocations = counter("detectd.mcp.tool.invocations_total", "MCP tool invocations", "{invocation}")
	m.errors = counter("detectd.mcp.tool.errors_total", "Failed MCP tool invocations by DETxxx code", "{error}")

	var err error
	m.duration, err = meter.Float64Histogram("detectd.mcp.tool.duration_seconds",
		metric.WithDescription("Duration of MCP tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	errs = append(errs, err)
	m.active, err = meter.Int64UpDownCounter("detectd.mcp.tool.active_requests",
		metric.WithDescription("MCP tool invocations in progress"),
		metric.WithUnit("{request}"))
	errs = append(errs, err)
	m.detectors, err = meter.Int64Histogram("detectd.mcp.annotate.detectors",
		metric.WithDescription("Detectors found per circuit_annotate call"),
		metric.WithUnit("{detector}"),
		metric.WithExplicitBucketBoundaries(0, 1, 10, 100, 1000, 10000))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil && logger != nil {
		logger.Warn("some MCP instruments are unavailable", zap.Error(err))
	}
	return m
}

func toolOption(tool string) metric.MeasurementOption {
	return metric.WithAttributeSet(attribute.NewSet(attribute.String("tool", tool)))
}

func (m *Metrics) tool(name string) metric.MeasurementOption {
	if opt, ok := m.byTool[name]; ok {
		return opt
	}
	return toolOption(name)
}

// RecordInvocation records one finished tool call.
func (m *Metrics) RecordInvocation(ctx context.Context, toolName string, duration time.Duration, err error) {
	opt := m.tool(toolName)
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, opt)
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), opt)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", toolName),
			attribute.String("reason", categorizeError(err)),
		))
	}
}

// RecordDetectors records the detector count of one annotation.
func (m *Metrics) RecordDetectors(ctx context.Context, n int) {
	if m.detectors != nil {
		m.detectors.Record(ctx, int64(n))
	}
}

// IncrementActive marks a tool call as started.
func (m *Metrics) IncrementActive(ctx context.Context, toolName string) {
	if m.active != nil {
		m.active.Add(ctx, 1, m.tool(toolName))
	}
}

// DecrementActive marks a tool call as finished.
func (m *Metrics) DecrementActive(ctx context.Context, toolName string) {
	if m.active != nil {
		m.active.Add(ctx, -1, m.tool(toolName))
	}
}

// categorizeError maps an error to its DETxxx code, or "internal_error".
func categorizeError(err error) string {
	if err == nil {
		return ""
	}
	if detecterr.IsUserError(err) {
		return detecterr.KindOf(err).Code()
	}
	return "internal_error"
}
