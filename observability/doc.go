// Package observability provides OpenTelemetry-based lifecycle metrics for
// taskq workers. The MetricsExtension implements extension hooks to record
// system-wide counters for leased, succeeded, failed, swept and late
// reported tasks.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
