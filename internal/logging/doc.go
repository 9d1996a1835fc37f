// Package logging provides structured logging for detectd.
//
// The logger wraps Zap with:
//   - a Trace level (-2, below Debug) for per-flow propagation detail
//   - stderr output, optionally teed into an OpenTelemetry log provider
//   - context field injection (trace_id, span_id, run.id, source)
//   - sampling below Error
//
// Logs go to stderr because the CLI writes annotated circuits to stdout.
//
// Usage:
//
//	cfg, err := logging.FromSettings("debug", "json")
//	logger, err := logging.NewLogger(cfg, nil)
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "annotation complete", zap.Int("detectors", n))
//
// Tests use NewTestLogger, which records entries in memory:
//
//	tl := logging.NewTestLogger()
//	svc := detect.New(tl.Logger, ...)
//	tl.AssertLogged(t, zapcore.InfoLevel, "annotation complete")
package logging
