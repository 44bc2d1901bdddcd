package stationauth

import "sync/atomic"

// MetricID identifies one in-process counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts completed sign-ins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected credential attempts.
	MetricLoginFailure
	// MetricLoginLocked counts sign-in attempts against a locked account.
	MetricLoginLocked
	// MetricSecondFactorRequired counts re-prompts for a missing code.
	MetricSecondFactorRequired
	// MetricSecondFactorSuccess counts accepted second-factor codes.
	MetricSecondFactorSuccess
	// MetricSecondFactorFailure counts rejected second-factor codes.
	MetricSecondFactorFailure
	// MetricBackupCodeUsed counts consumed backup codes.
	MetricBackupCodeUsed
	// MetricProfileCreated counts lazily created profiles.
	MetricProfileCreated
	// MetricProfileDegraded counts fallbacks to an ephemeral profile.
	MetricProfileDegraded
	// MetricRefreshSuccess counts token refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed token refreshes.
	MetricRefreshFailure
	// MetricSessionTimeout counts forced idle sign-outs.
	MetricSessionTimeout
	// MetricSessionRevoked counts explicit session revocations.
	MetricSessionRevoked
	// MetricLogout counts sign-outs.
	MetricLogout

	metricIDCount
)

// Metrics holds the engine's atomic counters. All operations are no-ops
// when metrics are disabled.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a [Metrics] instance per the given config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments one counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Get returns the current value of one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot returns a deep copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, metricIDCount),
	}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
