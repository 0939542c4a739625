package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/directauth"
	"github.com/MrEthical07/directauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// OutcomesName is the instrument that carries every per-state counter, keyed by the
// "state" attribute.
const OutcomesName = "directauth_flow_outcomes_total"

// MetricsSource is anything that exposes flow metrics; *directauth.Flow satisfies it.
type MetricsSource interface {
	MetricsSnapshot() directauth.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         directauth.MetricID
	instrument metric.Int64ObservableCounter
}

type observedOutcome struct {
	id    directauth.MetricID
	attrs metric.ObserveOption
}

type observedHistogram struct {
	id      directauth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableCounter
}

// OTelExporter observes the summed snapshots of its sources on every collection cycle.
type OTelExporter struct {
	sources      []MetricsSource
	registration metric.Registration
	counters     []observedCounter
	outcomes     metric.Int64ObservableCounter
	outcomeAttrs []observedOutcome
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers observable instruments for flows on meter.
func NewOTelExporter(meter metric.Meter, flows ...*directauth.Flow) (*OTelExporter, error) {
	sources := make([]MetricsSource, 0, len(flows))
	for _, f := range flows {
		if f == nil {
			return nil, ErrNilSource
		}
		sources = append(sources, f)
	}
	return NewOTelExporterFromSources(meter, sources...)
}

// NewOTelExporterFromSources registers instruments over arbitrary metrics sources.
func NewOTelExporterFromSources(meter metric.Meter, sources ...MetricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if len(sources) == 0 {
		return nil, ErrNilSource
	}
	for _, s := range sources {
		if s == nil {
			return nil, ErrNilSource
		}
	}

	exporter := &OTelExporter{
		sources:    sources,
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}
	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*10+2)

	outcomes, err := meter.Int64ObservableCounter(OutcomesName,
		metric.WithDescription("Flow operations by resulting state."))
	if err != nil {
		return nil, fmt.Errorf("create outcome counter: %w", err)
	}
	exporter.outcomes = outcomes
	observables = append(observables, outcomes)

	for _, def := range internaldefs.CounterDefs {
		if def.State != "" {
			exporter.outcomeAttrs = append(exporter.outcomeAttrs, observedOutcome{
				id:    def.ID,
				attrs: metric.WithAttributes(attribute.String("state", string(def.State))),
			})
			continue
		}
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i := 0; i < len(internaldefs.HistogramBoundSuffix); i++ {
			name := def.Name + "_bucket_le_" + internaldefs.HistogramBoundSuffix[i]
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)

		sumName := def.Name + "_sum"
		sumIns, err := meter.Float64ObservableCounter(sumName,
			metric.WithDescription("Histogram total observed seconds."), metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("create histogram sum counter %s: %w", sumName, err)
		}
		h.sum = sumIns
		observables = append(observables, sumIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"directauth_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	counters := make(map[directauth.MetricID]uint64)
	histograms := make(map[directauth.MetricID][8]uint64)
	sums := make(map[directauth.MetricID]time.Duration)
	var dropped uint64
	for _, s := range e.sources {
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

	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(counters[c.id]))
	}
	for _, o := range e.outcomeAttrs {
		observer.ObserveInt64(e.outcomes, int64(counters[o.id]), o.attrs)
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(histograms[h.id])
		for i := 0; i < len(cumulative); i++ {
			observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		observer.ObserveFloat64(h.sum, sums[h.id].Seconds())
	}
	observer.ObserveInt64(e.auditDropped, int64(dropped))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
