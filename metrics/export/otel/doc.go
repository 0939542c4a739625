// Package otel binds directauth flow metrics to an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per flow counter and one
// Int64ObservableGauge per step-latency bucket. A single callback reads the flow's
// snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate flow state.
package otel
