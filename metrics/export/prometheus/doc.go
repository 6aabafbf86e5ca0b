// Package prometheus renders goSession metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts a [goSession.Engine] and exposes an [http.Handler]
// that renders all goSession counters and histograms. Counter names are prefixed
// gosession_*_total; the single histogram is gosession_verify_latency_us.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
