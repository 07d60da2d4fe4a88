// Package otel publishes goSession engine metrics through an OpenTelemetry
// meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and,
// for the provider latency histogram, bucket/count/sum gauges. A single
// callback reads [goSession.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
