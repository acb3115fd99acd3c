// Package otel binds tokenauth metrics to an OpenTelemetry meter.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter and
// an Int64ObservableGauge per latency bucket. Callers own the MeterProvider.
package otel
