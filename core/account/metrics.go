package account

import "github.com/codewandler/bankes/core/metrics"

// Metrics instruments the repository. Implementations must be safe for
// concurrent use.
type Metrics interface {
	LoadDuration() metrics.Timer
	SaveDuration() metrics.Timer
	EventsReplayed(count int)
	EventsAppended(count int)
	ConcurrencyConflict()

	SnapshotHit(found bool)
	SnapshotWritten()
	SnapshotFailed()
}

type nopMetrics struct{}

func (nopMetrics) LoadDuration() metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) SaveDuration() metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) EventsReplayed(int)          {}
func (nopMetrics) EventsAppended(int)          {}
func (nopMetrics) ConcurrencyConflict()        {}
func (nopMetrics) SnapshotHit(bool)            {}
func (nopMetrics) SnapshotWritten()            {}
func (nopMetrics) SnapshotFailed()             {}

// NopMetrics returns a Metrics implementation that records nothing.
func NopMetrics() Metrics { return nopMetrics{} }
