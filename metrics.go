package levelAuth

import (
	"sort"
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricSignupSuccess MetricID = iota
	MetricSignupValidationFailure
	MetricSignupDuplicate
	MetricSignupUplineNotFound
	MetricEmailConfirmSuccess
	MetricEmailConfirmFailure
	MetricEmailConfirmAlreadyVerified
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginUnverified
	MetricSessionCreated
	MetricSessionValid
	MetricSessionInvalid
	MetricLogout
	MetricPasswordResetRequest
	MetricPasswordResetConfirmSuccess
	MetricPasswordResetConfirmFailure
	MetricPasswordRehash
	MetricMailFailure
	MetricProfileRead
	MetricLoginLatency
	MetricValidateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the first seven latency
// buckets. Anything slower lands in the eighth.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// counter sits alone on a cache line so hot counters do not contend.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

type latencyHistogram [histBucketCount]atomic.Uint64

// histogramIDs maps a latency metric onto its slot in Metrics.latency.
var histogramIDs = map[MetricID]int{
	MetricLoginLatency:    0,
	MetricValidateLatency: 1,
}

// Metrics holds lock-free engine counters. A nil or disabled Metrics ignores updates.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	hists   [2]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histogram buckets are non-cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counts[id].Add(1)
}

// Observe records d in the histogram for id. Only latency metrics have histograms.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	slot, ok := histogramIDs[id]
	if !ok || !m.LatencyEnabled() {
		return
	}
	m.hists[slot][bucketIndex(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if _, hist := histogramIDs[id]; !hist {
			s.Counters[id] = m.counts[id].Load()
		}
	}
	if !m.latency {
		return s
	}
	for id, slot := range histogramIDs {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = m.hists[slot][i].Load()
		}
		s.Histograms[id] = buckets
	}
	return s
}

// bucketIndex truncates d to whole milliseconds before comparing, so 5.9ms
// still counts as 5ms.
func bucketIndex(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	return sort.Search(len(latencyBounds), func(i int) bool { return d <= latencyBounds[i] })
}
