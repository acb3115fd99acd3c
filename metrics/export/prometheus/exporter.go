package prometheus

import (
	"net/http"
	"strings"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

type metricsSource interface {
	MetricsSnapshot() tokenauth.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter publishes engine metrics. It is a prometheus.Collector
// and can also render the text exposition format on its own.
type PrometheusExporter struct {
	source       metricsSource
	counters     []*prom.Desc
	histograms   []*prom.Desc
	auditDropped *prom.Desc
}

var _ prom.Collector = (*PrometheusExporter)(nil)

// NewPrometheusExporter creates an exporter reading from engine.
func NewPrometheusExporter(engine *tokenauth.Engine) *PrometheusExporter {
	return NewPrometheusExporterFromSource(engine)
}

// NewPrometheusExporterFromSource creates an exporter from any value
// exposing MetricsSnapshot and AuditDropped.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	p := &PrometheusExporter{
		source:       source,
		counters:     make([]*prom.Desc, len(internaldefs.CounterDefs)),
		histograms:   make([]*prom.Desc, len(internaldefs.HistogramDefs)),
		auditDropped: prom.NewDesc(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, nil, nil),
	}
	for i, def := range internaldefs.CounterDefs {
		p.counters[i] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	for i, def := range internaldefs.HistogramDefs {
		p.histograms[i] = prom.NewDesc(def.Name, def.Help, nil, nil)
	}
	return p
}

// Describe implements prometheus.Collector.
func (p *PrometheusExporter) Describe(ch chan<- *prom.Desc) {
	for _, d := range p.counters {
		ch <- d
	}
	for _, d := range p.histograms {
		ch <- d
	}
	ch <- p.auditDropped
}

// Collect implements prometheus.Collector.
func (p *PrometheusExporter) Collect(ch chan<- prom.Metric) {
	if p == nil || p.source == nil {
		return
	}

	snapshot := p.source.MetricsSnapshot()
	for i, def := range internaldefs.CounterDefs {
		ch <- prom.MustNewConstMetric(p.counters[i], prom.CounterValue, float64(snapshot.Counters[def.ID]))
	}
	for i, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for j, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[j]
		}
		// Sum is not tracked by the engine.
		ch <- prom.MustNewConstHistogram(p.histograms[i], cumulative[len(cumulative)-1], 0, buckets)
	}
	ch <- prom.MustNewConstMetric(p.auditDropped, prom.CounterValue, float64(p.source.AuditDropped()))
}

// Handler serves the exporter from a private registry, so nothing is added
// to the global default registry.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry(), promhttp.HandlerOpts{})
}

func (p *PrometheusExporter) registry() *prom.Registry {
	reg := prom.NewRegistry()
	reg.MustRegister(p)
	return reg
}

// Render returns the current metrics in the text exposition format, or an
// empty string when the engine has metrics disabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	snapshot := p.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && p.source.AuditDropped() == 0 {
		return ""
	}

	families, err := p.registry().Gather()
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&b, mf); err != nil {
			return ""
		}
	}
	return b.String()
}
