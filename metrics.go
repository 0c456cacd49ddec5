package vkauth

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by vkauth APIs.
//
// MetricID instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	MetricBackupCodeRegenerated
	MetricEnrollmentStarted
	MetricEnrollmentConfirmed
	MetricTOTPDisabled
	MetricSwitchToCandidate
	MetricSwitchBack
	MetricSwitchDenied
	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricRateLimitHit
	MetricValidateLatency

	metricIDCount
)

// Padding keeps each counter on its own cache line.
type paddedCounter struct {
	value uint64
	_     [64 - 8]byte
}

type metricHistogram struct {
	buckets [8]uint64
}

// Metrics defines a public type used by vkauth APIs.
//
// Metrics instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// NewMetrics describes the newmetrics operation and its observable behavior.
//
// NewMetrics may return an error when input validation, dependency calls, or
// security checks fail.
// NewMetrics does not mutate shared global state and can be used concurrently
// when the receiver and dependencies are concurrently safe.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value describes the value operation and its observable behavior.
//
// Value may return an error when input validation, dependency calls, or
// security checks fail.
// Value does not mutate shared global state and can be used concurrently
// when the receiver and dependencies are concurrently safe.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot describes the snapshot operation and its observable behavior.
//
// Snapshot may return an error when input validation, dependency calls, or
// security checks fail.
// Snapshot does not mutate shared global state and can be used concurrently
// when the receiver and dependencies are concurrently safe.
func (m *Metrics) Snapshot() map[MetricID]uint64 {
	out := make(map[MetricID]uint64, metricIDCount)
	if m == nil {
		return out
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		out[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return out
}

// LatencyBuckets describes the latencybuckets operation and its observable
// behavior.
//
// LatencyBuckets may return an error when input validation, dependency calls,
// or security checks fail.
// LatencyBuckets does not mutate shared global state and can be used
// concurrently when the receiver and dependencies are concurrently safe.
func (m *Metrics) LatencyBuckets(id MetricID) [8]uint64 {
	var out [8]uint64
	if m == nil || id >= metricIDCount {
		return out
	}
	for i := range out {
		out[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
	}
	return out
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	switch {
	case ms < 5:
		return 0
	case ms < 10:
		return 1
	case ms < 25:
		return 2
	case ms < 50:
		return 3
	case ms < 100:
		return 4
	case ms < 250:
		return 5
	case ms < 500:
		return 6
	default:
		return 7
	}
}
