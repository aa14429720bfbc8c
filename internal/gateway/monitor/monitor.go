// Package monitor accumulates cache performance counters.
package monitor

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of the performance counters.
//
// AverageResponseTime divides the cumulative response time by all recorded
// serving outcomes (hits + misses + network requests); background
// revalidations are tracked separately and never inflate the average.
type Stats struct {
	CacheHits               uint64
	CacheMisses             uint64
	NetworkRequests         uint64
	BackgroundRevalidations uint64
	TotalResponseTime       time.Duration
	AverageResponseTime     time.Duration
}

// Monitor counts cache outcomes. All methods are safe for concurrent use.
// Counters only move forward until an explicit Reset.
type Monitor struct {
	hits       atomic.Uint64
	misses     atomic.Uint64
	network    atomic.Uint64
	background atomic.Uint64
	totalNanos atomic.Int64

	metrics *Metrics
}

// New creates a Monitor. The metrics mirror is optional.
func New(metrics *Metrics) *Monitor {
	return &Monitor{metrics: metrics}
}

// RecordHit counts one cache hit served in d.
func (m *Monitor) RecordHit(d time.Duration) {
	if m == nil {
		return
	}
	m.hits.Add(1)
	m.totalNanos.Add(int64(d))
	if m.metrics != nil {
		m.metrics.CacheHits.Inc()
		m.metrics.ResponseSeconds.Add(d.Seconds())
	}
}

// RecordMiss counts one cache miss.
func (m *Monitor) RecordMiss() {
	if m == nil {
		return
	}
	m.misses.Add(1)
	if m.metrics != nil {
		m.metrics.CacheMisses.Inc()
	}
}

// RecordNetwork counts one serving network fetch completed in d.
func (m *Monitor) RecordNetwork(d time.Duration) {
	if m == nil {
		return
	}
	m.network.Add(1)
	m.totalNanos.Add(int64(d))
	if m.metrics != nil {
		m.metrics.NetworkRequests.Inc()
		m.metrics.ResponseSeconds.Add(d.Seconds())
	}
}

// RecordBackground counts one background revalidation attempt.
func (m *Monitor) RecordBackground() {
	if m == nil {
		return
	}
	m.background.Add(1)
	if m.metrics != nil {
		m.metrics.BackgroundRevalidations.Inc()
	}
}

// Snapshot derives the current stats.
func (m *Monitor) Snapshot() Stats {
	if m == nil {
		return Stats{}
	}
	stats := Stats{
		CacheHits:               m.hits.Load(),
		CacheMisses:             m.misses.Load(),
		NetworkRequests:         m.network.Load(),
		BackgroundRevalidations: m.background.Load(),
		TotalResponseTime:       time.Duration(m.totalNanos.Load()),
	}
	if recorded := stats.CacheHits + stats.CacheMisses + stats.NetworkRequests; recorded > 0 {
		stats.AverageResponseTime = stats.TotalResponseTime / time.Duration(recorded)
	}
	return stats
}

// Reset zeroes the snapshot counters. The Prometheus mirror is cumulative
// and is not reset.
func (m *Monitor) Reset() {
	if m == nil {
		return
	}
	m.hits.Store(0)
	m.misses.Store(0)
	m.network.Store(0)
	m.background.Store(0)
	m.totalNanos.Store(0)
}
