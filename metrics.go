package directauth

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one flow counter.
//
// MetricID values are stable across releases; exporters key their series on them.
type MetricID uint16

const (
	// MetricFlowStarted counts Start calls that reached the wire.
	MetricFlowStarted MetricID = iota
	// MetricFlowResumed counts Resume and Proceed* calls that reached the wire.
	MetricFlowResumed
	// MetricFlowReset counts Reset calls.
	MetricFlowReset
	// MetricAuthenticated counts operations that ended in Authenticated.
	MetricAuthenticated
	// MetricMfaRequired counts operations that ended in MfaRequired.
	MetricMfaRequired
	// MetricOobPending counts operations that ended in OobPending.
	MetricOobPending
	// MetricPrompt counts operations that ended in Prompt.
	MetricPrompt
	// MetricTransfer counts operations that ended in Transfer.
	MetricTransfer
	// MetricAuthorizationPending counts operations that ended in AuthorizationPending.
	MetricAuthorizationPending
	// MetricOAuth2Error counts operations that ended in OAuth2Error.
	MetricOAuth2Error
	// MetricAPIError counts operations that ended in APIError.
	MetricAPIError
	// MetricInternalError counts operations that ended in InternalError.
	MetricInternalError
	// MetricCanceled counts operations that ended in Canceled.
	MetricCanceled
	// MetricConcurrentRejected counts calls rejected because another operation was in flight.
	MetricConcurrentRejected
	// MetricStepLatency is the wire step latency histogram.
	MetricStepLatency
	metricIDCount
)

var metricByKind = map[StateKind]MetricID{
	KindAuthenticated:        MetricAuthenticated,
	KindMfaRequired:          MetricMfaRequired,
	KindOobPending:           MetricOobPending,
	KindPrompt:               MetricPrompt,
	KindTransfer:             MetricTransfer,
	KindAuthorizationPending: MetricAuthorizationPending,
	KindOAuth2Error:          MetricOAuth2Error,
	KindAPIError:             MetricAPIError,
	KindInternalError:        MetricInternalError,
	KindCanceled:             MetricCanceled,
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a lock-free set of flow counters and one latency histogram.
//
// A nil or disabled Metrics ignores every update.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of Metrics. HistogramSums holds the
// total observed duration per histogram.
type MetricsSnapshot struct {
	Counters      map[MetricID]uint64
	Histograms    map[MetricID][]uint64
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics creates metrics according to cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the step latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// IncState adds one to the counter for s's kind. Idle has no counter.
func (m *Metrics) IncState(s State) {
	if id, ok := metricByKind[s.Kind()]; ok {
		m.Inc(id)
	}
}

// Observe records d in the histogram for id. Only MetricStepLatency has a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricStepLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	if d > 0 {
		atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
	}
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:      map[MetricID]uint64{},
			Histograms:    map[MetricID][]uint64{},
			HistogramSums: map[MetricID]time.Duration{},
		}
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		HistogramSums: make(map[MetricID]time.Duration, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricStepLatency].buckets[i])
		}
		s.Histograms[MetricStepLatency] = buckets
		s.HistogramSums[MetricStepLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricStepLatency].sumNanos))
	}

	return s
}

// Step latency is dominated by the network, so buckets are coarser than an in-process hot path.
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 25:
		return 0
	case ms <= 50:
		return 1
	case ms <= 100:
		return 2
	case ms <= 250:
		return 3
	case ms <= 500:
		return 4
	case ms <= 1000:
		return 5
	case ms <= 2500:
		return 6
	default:
		return 7
	}
}
