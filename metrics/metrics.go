package metrics

import "sync/atomic"

// Metrics captures shared operational stats for the batch workers.
type Metrics struct {
	workerCount  int64
	unitsPending int64

	unitsCompleted int64
	unitsFailed    int64
	unitsSkipped   int64

	sectionsGenerated int64
	backendRetries    int64
}

// Snapshot provides a consistent view of the current metrics.
type Snapshot struct {
	WorkerCount       int   `json:"worker_count"`
	UnitsPending      int   `json:"units_pending"`
	UnitsCompleted    int64 `json:"units_completed"`
	UnitsFailed       int64 `json:"units_failed"`
	UnitsSkipped      int64 `json:"units_skipped"`
	SectionsGenerated int64 `json:"sections_generated"`
	BackendRetries    int64 `json:"backend_retries"`
}

// New creates a zeroed Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

// UpdatePool records the current worker pool shape.
func (m *Metrics) UpdatePool(workers, pending int) {
	atomic.StoreInt64(&m.workerCount, int64(workers))
	atomic.StoreInt64(&m.unitsPending, int64(pending))
}

// RecordUnit increments the completion counter for one processed unit,
// or the failure counter when err is non-nil.
func (m *Metrics) RecordUnit(err error) {
	if err != nil {
		atomic.AddInt64(&m.unitsFailed, 1)
		return
	}
	atomic.AddInt64(&m.unitsCompleted, 1)
}

// RecordSkip counts a unit already covered by a checkpoint.
func (m *Metrics) RecordSkip() {
	atomic.AddInt64(&m.unitsSkipped, 1)
}

// RecordSection counts one generated section.
func (m *Metrics) RecordSection() {
	atomic.AddInt64(&m.sectionsGenerated, 1)
}

// RecordBackendRetry counts a transient backend failure left for a later run.
func (m *Metrics) RecordBackendRetry() {
	atomic.AddInt64(&m.backendRetries, 1)
}

// Snapshot returns a read-only view of metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		WorkerCount:       int(atomic.LoadInt64(&m.workerCount)),
		UnitsPending:      int(atomic.LoadInt64(&m.unitsPending)),
		UnitsCompleted:    atomic.LoadInt64(&m.unitsCompleted),
		UnitsFailed:       atomic.LoadInt64(&m.unitsFailed),
		UnitsSkipped:      atomic.LoadInt64(&m.unitsSkipped),
		SectionsGenerated: atomic.LoadInt64(&m.sectionsGenerated),
		BackendRetries:    atomic.LoadInt64(&m.backendRetries),
	}
}
