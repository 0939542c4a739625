// Package prometheus exposes directauth flow metrics through prometheus/client_golang.
//
// [NewCollector] returns a prometheus.Collector that reads flow snapshots at scrape time.
// Counter names are prefixed directauth_*_total and the single histogram is
// directauth_step_latency_seconds. Register it on your own registry, or mount
// [Collector.Handler] which uses a private one.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate flow state.
package prometheus
