// Package prometheus renders levelAuth engine metrics in Prometheus text
// exposition format.
//
// [New] wraps an Engine and [Exporter.Handler] serves every counter as
// levelauth_*_total plus the login and validate latency histograms when they
// are enabled. The server mounts the handler at /metrics.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
