// Package telemetry provides the observability stack for convergo:
// structured logging with zerolog, Prometheus metrics, and OpenTelemetry
// tracing.
//
// Logging produces the process root logger; components derive child loggers
// with With(). Metrics cover run, action, and probe counters plus latency
// histograms under the "convergo" namespace, served over HTTP. Tracing emits
// run.execute and action.execute spans through OTLP or stdout exporters.
//
// All three subsystems accept a disabled configuration and degrade to cheap
// no-ops, so callers wire them unconditionally.
package telemetry
