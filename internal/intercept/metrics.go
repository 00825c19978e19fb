package intercept

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects interception statistics.
type Metrics struct {
	// Passthroughs are counted on the hot path without taking the lock.
	passthroughs atomic.Uint64

	mu sync.RWMutex

	// Per-key metrics
	keyMetrics map[string]*KeyMetrics

	// Global counters
	totalIntercepts uint64
	totalFailures   uint64
	totalPanics     uint64
	totalDuration   time.Duration
}

// KeyMetrics holds metrics for one owner/member key.
type KeyMetrics struct {
	Key            string
	InterceptCount uint64
	FailureCount   uint64
	TotalDuration  time.Duration
	MinDuration    time.Duration
	MaxDuration    time.Duration
	LastIntercept  time.Time
}

// AverageDuration returns the mean handler duration for the key.
func (km KeyMetrics) AverageDuration() time.Duration {
	if km.InterceptCount == 0 {
		return 0
	}
	return km.TotalDuration / time.Duration(km.InterceptCount)
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		keyMetrics: make(map[string]*KeyMetrics),
	}
}

// RecordPassthrough counts a call delegated to the original dispatcher.
func (m *Metrics) RecordPassthrough() {
	m.passthroughs.Add(1)
}

// RecordIntercept records one handler run.
func (m *Metrics) RecordIntercept(key string, duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalIntercepts++
	m.totalDuration += duration
	if failed {
		m.totalFailures++
	}

	km := m.keyMetrics[key]
	if km == nil {
		km = &KeyMetrics{
			Key:         key,
			MinDuration: duration,
			MaxDuration: duration,
		}
		m.keyMetrics[key] = km
	}

	km.InterceptCount++
	km.TotalDuration += duration
	km.LastIntercept = time.Now()
	if duration < km.MinDuration {
		km.MinDuration = duration
	}
	if duration > km.MaxDuration {
		km.MaxDuration = duration
	}
	if failed {
		km.FailureCount++
	}
}

// RecordPanic records a recovered handler panic.
func (m *Metrics) RecordPanic(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPanics++
}

// TotalPassthroughs returns the number of calls that were not intercepted.
func (m *Metrics) TotalPassthroughs() uint64 {
	return m.passthroughs.Load()
}

// TotalIntercepts returns the number of handler runs.
func (m *Metrics) TotalIntercepts() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalIntercepts
}

// TotalFailures returns the number of failed handler runs.
func (m *Metrics) TotalFailures() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalFailures
}

// TotalPanics returns the number of recovered handler panics.
func (m *Metrics) TotalPanics() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalPanics
}

// KeyStats returns a copy of the metrics for key.
func (m *Metrics) KeyStats(key string) (KeyMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	km, ok := m.keyMetrics[key]
	if !ok {
		return KeyMetrics{}, false
	}
	return *km, true
}

// TopKeys returns the n most intercepted keys.
func (m *Metrics) TopKeys(n int) []KeyMetrics {
	m.mu.RLock()
	all := make([]KeyMetrics, 0, len(m.keyMetrics))
	for _, km := range m.keyMetrics {
		all = append(all, *km)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].InterceptCount != all[j].InterceptCount {
			return all[i].InterceptCount > all[j].InterceptCount
		}
		return all[i].Key < all[j].Key
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.passthroughs.Store(0)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyMetrics = make(map[string]*KeyMetrics)
	m.totalIntercepts = 0
	m.totalFailures = 0
	m.totalPanics = 0
	m.totalDuration = 0
}
