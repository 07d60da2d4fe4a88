// Package prometheus exposes goSession engine metrics as a
// prometheus.Collector.
//
// [Exporter] reads [goSession.Engine.MetricsSnapshot] at scrape time and
// emits gosession_*_total counters plus the
// gosession_provider_latency_seconds histogram. [Exporter.Handler] serves it
// from a private registry.
//
// # What this package must NOT do
//
//   - Register collectors in the global Prometheus registry; callers choose
//     where the collector goes.
//   - Mutate engine state.
package prometheus
