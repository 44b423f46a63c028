package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/bankes/core/account"
	"github.com/codewandler/bankes/core/metrics"
)

// accountMetrics implements account.Metrics using Prometheus.
type accountMetrics struct {
	loadDuration prometheus.Histogram
	saveDuration prometheus.Histogram

	eventsReplayed       prometheus.Counter
	eventsAppended       prometheus.Counter
	concurrencyConflicts prometheus.Counter

	snapshotLookups *prometheus.CounterVec
	snapshotWrites  *prometheus.CounterVec
}

// NewAccountMetrics creates a new Prometheus implementation of account.Metrics.
func NewAccountMetrics(reg prometheus.Registerer) account.Metrics {
	m := &accountMetrics{
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bankes_account_load_duration_seconds",
			Help:    "Account load latency in seconds",
			Buckets: defaultBuckets,
		}),

		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bankes_account_save_duration_seconds",
			Help:    "Account save latency in seconds",
			Buckets: defaultBuckets,
		}),

		eventsReplayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bankes_account_events_replayed_total",
			Help: "Total number of events folded while loading accounts",
		}),

		eventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bankes_account_events_appended_total",
			Help: "Total number of events appended",
		}),

		concurrencyConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bankes_account_concurrency_conflicts_total",
			Help: "Total number of optimistic concurrency failures",
		}),

		snapshotLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bankes_account_snapshot_lookups_total",
			Help: "Total number of snapshot lookups by outcome",
		}, []string{"found"}),

		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bankes_account_snapshot_writes_total",
			Help: "Total number of snapshot writes by outcome",
		}, []string{"success"}),
	}

	reg.MustRegister(
		m.loadDuration,
		m.saveDuration,
		m.eventsReplayed,
		m.eventsAppended,
		m.concurrencyConflicts,
		m.snapshotLookups,
		m.snapshotWrites,
	)

	return m
}

func (m *accountMetrics) LoadDuration() metrics.Timer { return newTimer(m.loadDuration) }
func (m *accountMetrics) SaveDuration() metrics.Timer { return newTimer(m.saveDuration) }

func (m *accountMetrics) EventsReplayed(count int) { m.eventsReplayed.Add(float64(count)) }
func (m *accountMetrics) EventsAppended(count int) { m.eventsAppended.Add(float64(count)) }
func (m *accountMetrics) ConcurrencyConflict()     { m.concurrencyConflicts.Inc() }

func (m *accountMetrics) SnapshotHit(found bool) {
	m.snapshotLookups.WithLabelValues(boolToStr(found)).Inc()
}
func (m *accountMetrics) SnapshotWritten() { m.snapshotWrites.WithLabelValues("true").Inc() }
func (m *accountMetrics) SnapshotFailed()  { m.snapshotWrites.WithLabelValues("false").Inc() }

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ account.Metrics = (*accountMetrics)(nil)
