package kernel

import "sync"

// SchedMetrics accumulates scheduling statistics: a streaming distribution
// of actual time-slice durations (via the P² quantile estimator) plus
// simple running counters, mirroring the shape of this module's
// event-loop metrics collector but re-pointed at scheduler events.
type SchedMetrics struct {
	mu sync.Mutex

	enabled bool

	sliceDurationTicks *pSquareMultiQuantile

	contextSwitches     uint64
	timesliceExhausted  uint64
	priorityInheritances uint64
	sortlinkMaxDepth    int
	readyQueueMaxDepth  int
}

// NewSchedMetrics returns a SchedMetrics tracking the P50/P90/P99
// quantiles of observed time-slice durations. When enabled is false every
// Record/Observe call is a no-op and Snapshot reports all zeros, matching
// [WithMetrics](false) — the collector still exists so call sites never
// need a nil check.
func NewSchedMetrics(enabled bool) *SchedMetrics {
	return &SchedMetrics{
		enabled:            enabled,
		sliceDurationTicks: newPSquareMultiQuantile(0.5, 0.9, 0.99),
	}
}

// RecordSlice records one task's realized run duration, in ticks, between
// being scheduled and being switched away from.
func (m *SchedMetrics) RecordSlice(ticks uint64) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sliceDurationTicks.Update(float64(ticks))
	m.contextSwitches++
}

// RecordTimesliceExhausted counts a round-robin rotation caused by a
// task's time slice running out, as opposed to it blocking voluntarily.
func (m *SchedMetrics) RecordTimesliceExhausted() {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timesliceExhausted++
}

// RecordPriorityInheritance counts one priority boost granted to a mutex
// owner to resolve priority inversion.
func (m *SchedMetrics) RecordPriorityInheritance() {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priorityInheritances++
}

// ObserveReadyQueueDepth feeds the instantaneous length of one priority's
// ready queue (the one just enqueued into) into the running maximum.
func (m *SchedMetrics) ObserveReadyQueueDepth(depth int) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if depth > m.readyQueueMaxDepth {
		m.readyQueueMaxDepth = depth
	}
}

// ObserveSortlinkDepth feeds the instantaneous combined sortlink
// population into the running maximum.
func (m *SchedMetrics) ObserveSortlinkDepth(depth int) {
	if !m.enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if depth > m.sortlinkMaxDepth {
		m.sortlinkMaxDepth = depth
	}
}

// Snapshot is a point-in-time copy of the counters and quantiles in
// SchedMetrics, safe to read without holding the collector's lock.
type Snapshot struct {
	ContextSwitches      uint64
	TimesliceExhausted   uint64
	PriorityInheritances uint64
	SortlinkMaxDepth     int
	ReadyQueueMaxDepth   int
	SliceP50             float64
	SliceP90             float64
	SliceP99             float64
	SliceSamples         int
}

// Snapshot returns the current metrics state.
func (m *SchedMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ContextSwitches:      m.contextSwitches,
		TimesliceExhausted:   m.timesliceExhausted,
		PriorityInheritances: m.priorityInheritances,
		SortlinkMaxDepth:     m.sortlinkMaxDepth,
		ReadyQueueMaxDepth:   m.readyQueueMaxDepth,
		SliceP50:             m.sliceDurationTicks.Quantile(0),
		SliceP90:             m.sliceDurationTicks.Quantile(1),
		SliceP99:             m.sliceDurationTicks.Quantile(2),
		SliceSamples:         m.sliceDurationTicks.Count(),
	}
}
