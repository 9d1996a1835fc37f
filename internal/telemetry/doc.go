// Package telemetry wires OpenTelemetry tracing and metrics for detectd.
//
// Telemetry is off by default. When enabled it exports over OTLP (gRPC or
// HTTP/protobuf) to the configured collector. Exporter setup failures never
// stop detectd: the instance is marked degraded and falls back to the global
// no-op providers.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
