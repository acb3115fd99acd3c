package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() tokenauth.MetricsSnapshot
	AuditDropped() uint64
}

// latency holds one gauge per cumulative bucket plus the sample count.
type latency struct {
	id      tokenauth.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// OTelExporter reads one snapshot per collection cycle and reports it
// through observable instruments registered on a single callback.
type OTelExporter struct {
	source   metricsSource
	counters map[tokenauth.MetricID]metric.Int64ObservableCounter
	latency  []latency
	dropped  metric.Int64ObservableCounter

	instruments []metric.Observable
	reg         metric.Registration
}

// NewOTelExporter registers instruments on meter reading from engine.
func NewOTelExporter(meter metric.Meter, engine *tokenauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource is NewOTelExporter for any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	switch {
	case meter == nil:
		return nil, ErrNilMeter
	case source == nil:
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[tokenauth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	if err := e.instrument(meter); err != nil {
		return nil, err
	}

	reg, err := meter.RegisterCallback(e.observe, e.instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.reg = reg
	return e, nil
}

func (e *OTelExporter) instrument(meter metric.Meter) error {
	counter := func(name, help string) (metric.Int64ObservableCounter, error) {
		c, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", name, err)
		}
		e.instruments = append(e.instruments, c)
		return c, nil
	}
	gauge := func(name, help string) (metric.Int64ObservableGauge, error) {
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return nil, fmt.Errorf("gauge %s: %w", name, err)
		}
		e.instruments = append(e.instruments, g)
		return g, nil
	}

	for _, def := range internaldefs.CounterDefs {
		c, err := counter(def.Name, def.Help)
		if err != nil {
			return err
		}
		e.counters[def.ID] = c
	}

	for _, def := range internaldefs.HistogramDefs {
		l := latency{id: def.ID}
		for _, suffix := range internaldefs.HistogramBoundSuffix {
			g, err := gauge(def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.")
			if err != nil {
				return err
			}
			l.buckets = append(l.buckets, g)
		}
		g, err := gauge(def.Name+"_count", "Histogram total sample count.")
		if err != nil {
			return err
		}
		l.count = g
		e.latency = append(e.latency, l)
	}

	c, err := counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp)
	if err != nil {
		return err
	}
	e.dropped = c
	return nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()

	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, l := range e.latency {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, g := range l.buckets {
			o.ObserveInt64(g, int64(cum[i]))
		}
		o.ObserveInt64(l.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.reg == nil {
		return nil
	}
	return e.reg.Unregister()
}
