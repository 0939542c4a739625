package prometheus

import (
	"net/http"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/MrEthical07/directauth/metrics/export/internaldefs"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsSource is anything that exposes flow metrics; *directauth.Flow satisfies it.
type MetricsSource interface {
	MetricsSnapshot() directauth.MetricsSnapshot
	AuditDropped() uint64
}

type counterDesc struct {
	id   directauth.MetricID
	desc *prom.Desc
}

type histogramDesc struct {
	id   directauth.MetricID
	desc *prom.Desc
}

// Collector is a prometheus.Collector that sums the snapshots of one or more flows
// on every scrape.
type Collector struct {
	sources      []MetricsSource
	counters     []counterDesc
	histograms   []histogramDesc
	auditDropped *prom.Desc
}

var _ prom.Collector = (*Collector)(nil)

// NewCollector creates a collector over the given flows.
func NewCollector(flows ...*directauth.Flow) *Collector {
	sources := make([]MetricsSource, 0, len(flows))
	for _, f := range flows {
		sources = append(sources, f)
	}
	return NewCollectorFromSources(sources...)
}

// NewCollectorFromSources creates a collector over arbitrary sources. Nil sources are skipped.
func NewCollectorFromSources(sources ...MetricsSource) *Collector {
	c := &Collector{
		counters:   make([]counterDesc, 0, len(internaldefs.CounterDefs)),
		histograms: make([]histogramDesc, 0, len(internaldefs.HistogramDefs)),
		auditDropped: prom.NewDesc(
			"directauth_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, s := range sources {
		if s != nil {
			c.sources = append(c.sources, s)
		}
	}
	for _, def := range internaldefs.CounterDefs {
		c.counters = append(c.counters, counterDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histograms = append(c.histograms, histogramDesc{id: def.ID, desc: prom.NewDesc(def.Name, def.Help, nil, nil)})
	}
	return c
}

func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	for _, d := range c.histograms {
		ch <- d.desc
	}
	ch <- c.auditDropped
}

func (c *Collector) Collect(ch chan<- prom.Metric) {
	counters := make(map[directauth.MetricID]uint64, len(c.counters))
	histograms := make(map[directauth.MetricID][8]uint64, len(c.histograms))
	sums := make(map[directauth.MetricID]time.Duration, len(c.histograms))
	var dropped uint64

	for _, s := range c.sources {
		snap := s.MetricsSnapshot()
		for id, v := range snap.Counters {
			counters[id] += v
		}
		for id, raw := range snap.Histograms {
			sum := histograms[id]
			n := internaldefs.NormalizeBuckets(raw)
			for i := range sum {
				sum[i] += n[i]
			}
			histograms[id] = sum
		}
		for id, d := range snap.HistogramSums {
			sums[id] += d
		}
		dropped += s.AuditDropped()
	}

	for _, d := range c.counters {
		ch <- prom.MustNewConstMetric(d.desc, prom.CounterValue, float64(counters[d.id]))
	}
	for _, d := range c.histograms {
		cumulative := internaldefs.CumulativeBuckets(histograms[d.id])
		buckets := make(map[float64]uint64, len(internaldefs.HistogramUpperBounds))
		for i, le := range internaldefs.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		ch <- prom.MustNewConstHistogram(d.desc, cumulative[len(cumulative)-1], sums[d.id].Seconds(), buckets)
	}
	ch <- prom.MustNewConstMetric(c.auditDropped, prom.CounterValue, float64(dropped))
}

// Handler serves only this collector from a private registry.
func (c *Collector) Handler() http.Handler {
	reg := prom.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
