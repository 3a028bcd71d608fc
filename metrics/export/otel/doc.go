// Package otel binds levelAuth engine metrics to OpenTelemetry instruments.
//
// [New] registers an Int64ObservableCounter per engine counter and per audit
// delivery counter, plus an Int64ObservableGauge per latency bucket. A single
// callback reads the engine once per collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
