package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricSessionCreated counts sessions issued to new visitors.
	MetricSessionCreated MetricID = iota
	// MetricSessionDestroyed counts logouts and explicit destroys.
	MetricSessionDestroyed
	// MetricLoginStarted counts authorization redirects issued.
	MetricLoginStarted
	// MetricLoginSuccess counts completed code exchanges.
	MetricLoginSuccess
	// MetricLoginFailure counts failed code exchanges.
	MetricLoginFailure
	// MetricCSRFMismatch counts callbacks rejected for a state mismatch.
	MetricCSRFMismatch
	// MetricRefreshSuccess counts persisted token refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts refreshes that failed for provider or storage reasons.
	MetricRefreshFailure
	// MetricRefreshTokenInvalid counts refresh grants rejected by the provider.
	MetricRefreshTokenInvalid
	// MetricRefreshSuperseded counts refreshes that lost to a concurrent refresh.
	MetricRefreshSuperseded
	// MetricUnauthenticated counts AuthenticatedUser calls that returned ErrUnauthenticated.
	MetricUnauthenticated
	// MetricBatchRuns counts RefreshExpiringTokens runs.
	MetricBatchRuns
	// MetricBatchRefreshed accumulates RefreshJobResult.Refreshed.
	MetricBatchRefreshed
	// MetricBatchFailed accumulates RefreshJobResult.Failed.
	MetricBatchFailed
	// MetricProviderLatency is the token endpoint latency histogram.
	MetricProviderLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricSessionCreated:      "session_created",
	MetricSessionDestroyed:    "session_destroyed",
	MetricLoginStarted:        "login_started",
	MetricLoginSuccess:        "login_success",
	MetricLoginFailure:        "login_failure",
	MetricCSRFMismatch:        "csrf_mismatch",
	MetricRefreshSuccess:      "refresh_success",
	MetricRefreshFailure:      "refresh_failure",
	MetricRefreshTokenInvalid: "refresh_token_invalid",
	MetricRefreshSuperseded:   "refresh_superseded",
	MetricUnauthenticated:     "unauthenticated",
	MetricBatchRuns:           "batch_runs",
	MetricBatchRefreshed:      "batch_refreshed",
	MetricBatchFailed:         "batch_failed",
	MetricProviderLatency:     "provider_latency",
}

// String returns the stable snake_case name used by exporters.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBounds are the upper bounds, in milliseconds, of the first seven
// latency buckets. The eighth bucket is unbounded.
var HistogramBounds = [histBucketCount - 1]float64{5, 10, 25, 50, 100, 250, 500}

type metricHistogram struct {
	buckets  [histBucketCount]uint64
	sumNanos uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. A nil *Metrics is a valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	// HistogramSums holds the total observed duration per histogram.
	HistogramSums map[MetricID]time.Duration
}

// NewMetrics allocates counters according to cfg.
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

// LatencyEnabled reports whether histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in the histogram for id. Only MetricProviderLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricProviderLatency {
		return
	}

	if d < 0 {
		d = 0
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
	atomic.AddUint64(&m.histograms[id].sumNanos, uint64(d))
}

// Value returns the current value of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Disabled metrics return empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:      make(map[MetricID]uint64, int(metricIDCount)),
		Histograms:    make(map[MetricID][]uint64, 1),
		HistogramSums: make(map[MetricID]time.Duration, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricProviderLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricProviderLatency].buckets[i])
		}
		s.Histograms[MetricProviderLatency] = buckets
		s.HistogramSums[MetricProviderLatency] = time.Duration(atomic.LoadUint64(&m.histograms[MetricProviderLatency].sumNanos))
	}

	return s
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:      map[MetricID]uint64{},
		Histograms:    map[MetricID][]uint64{},
		HistogramSums: map[MetricID]time.Duration{},
	}
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
