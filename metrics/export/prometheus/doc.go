// Package prometheus exposes tokenauth metrics to Prometheus.
//
// [PrometheusExporter] implements prometheus.Collector, so it can be
// registered on any registry. [PrometheusExporter.Handler] serves it from a
// private registry. Counters are named tokenauth_*_total and the gate latency
// histogram is tokenauth_gate_latency_seconds.
package prometheus
