package account

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultSnapshotInterval is the number of committed events between snapshots.
const DefaultSnapshotInterval = 5

type (
	valueOption[T any] struct{ v T }

	repoOpts struct {
		log              *slog.Logger
		snapshotInterval int
		metrics          Metrics
	}

	executeOpts struct {
		maxTries uint
		backOff  backoff.BackOff
	}

	RepositoryOption interface{ applyToRepository(*repoOpts) }
	ExecuteOption    interface{ applyToExecute(*executeOpts) }

	LogOption              valueOption[*slog.Logger]
	SnapshotIntervalOption valueOption[int]
	MetricsOption          valueOption[Metrics]
	MaxTriesOption         valueOption[uint]
	BackOffOption          valueOption[backoff.BackOff]
)

func WithLogger(l *slog.Logger) LogOption         { return LogOption{v: l} }
func WithMetrics(m Metrics) MetricsOption         { return MetricsOption{v: m} }
func WithMaxTries(n uint) MaxTriesOption          { return MaxTriesOption{v: n} }
func WithBackOff(b backoff.BackOff) BackOffOption { return BackOffOption{v: b} }

// WithSnapshotInterval sets how many committed events lie between snapshots.
// Zero disables snapshot writes; existing snapshots are still read.
func WithSnapshotInterval(n int) SnapshotIntervalOption { return SnapshotIntervalOption{v: n} }

func (o LogOption) applyToRepository(r *repoOpts)              { r.log = o.v }
func (o SnapshotIntervalOption) applyToRepository(r *repoOpts) { r.snapshotInterval = o.v }
func (o MetricsOption) applyToRepository(r *repoOpts)          { r.metrics = o.v }
func (o MaxTriesOption) applyToExecute(e *executeOpts)         { e.maxTries = o.v }
func (o BackOffOption) applyToExecute(e *executeOpts)          { e.backOff = o.v }

func newRepoOpts(opts ...RepositoryOption) repoOpts {
	options := repoOpts{
		log:              slog.Default(),
		snapshotInterval: DefaultSnapshotInterval,
		metrics:          NopMetrics(),
	}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	return options
}

func newExecuteOpts(opts ...ExecuteOption) executeOpts {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = time.Second

	options := executeOpts{
		maxTries: 5,
		backOff:  b,
	}
	for _, opt := range opts {
		opt.applyToExecute(&options)
	}
	return options
}
