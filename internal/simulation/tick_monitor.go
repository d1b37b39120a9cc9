package simulation

import (
	"sync"
	"time"
)

// TickStats summarises observed step durations.
type TickStats struct {
	Samples  uint64        `json:"samples"`
	Average  time.Duration `json:"average_ns"`
	Max      time.Duration `json:"max_ns"`
	Last     time.Duration `json:"last_ns"`
	Overruns uint64        `json:"overruns"`
	Skipped  uint64        `json:"skipped"`
}

// AverageFPS derives the frames-per-second equivalent of the average step cost.
func (s TickStats) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the simulation loop.
type TickMonitor struct {
	mu       sync.Mutex
	samples  uint64
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns uint64
	skipped  uint64
}

// NewTickMonitor constructs an empty monitor.
func NewTickMonitor() *TickMonitor {
	return &TickMonitor{}
}

// Observe records the cost of one step; steps slower than budget count as overruns.
func (m *TickMonitor) Observe(duration, budget time.Duration) {
	if m == nil || duration < 0 {
		return
	}
	m.mu.Lock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	if budget > 0 && duration > budget {
		m.overruns++
	}
	m.mu.Unlock()
}

// Skipped records steps dropped to recover from a stall.
func (m *TickMonitor) Skipped(steps int) {
	if m == nil || steps <= 0 {
		return
	}
	m.mu.Lock()
	m.skipped += uint64(steps)
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated statistics.
func (m *TickMonitor) Snapshot() TickStats {
	if m == nil {
		return TickStats{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := TickStats{
		Samples:  m.samples,
		Max:      m.max,
		Last:     m.last,
		Overruns: m.overruns,
		Skipped:  m.skipped,
	}
	if m.samples > 0 {
		stats.Average = m.total / time.Duration(m.samples)
	}
	return stats
}

// Reset clears the accumulated statistics.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples, m.total, m.max, m.last = 0, 0, 0, 0
	m.overruns, m.skipped = 0, 0
	m.mu.Unlock()
}
