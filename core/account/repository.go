package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"

	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/core/sf"
)

// Repository hydrates accounts from an es.Log and persists their pending
// events with optimistic concurrency. It holds no locks: concurrent writers
// to one account are serialized by the log's conditional append.
type Repository struct {
	log              *slog.Logger
	store            es.Log
	snapshotInterval int
	metrics          Metrics
	snapshots        *sf.Group[*Snapshot]
}

func NewRepository(store es.Log, opts ...RepositoryOption) *Repository {
	options := newRepoOpts(opts...)
	return &Repository{
		log:              options.log.With(slog.String("repo", "account")),
		store:            store,
		snapshotInterval: options.snapshotInterval,
		metrics:          options.metrics,
		snapshots:        sf.New[*Snapshot](),
	}
}

// Load rebuilds the account from its latest snapshot and the events after
// it. An account that was never written is returned empty with Version
// es.NoStream. Any event that cannot be decoded or folded aborts the load.
func (r *Repository) Load(ctx context.Context, id AccountID) (*Account, error) {
	if id == "" {
		return nil, errors.New("account id is empty")
	}
	defer r.metrics.LoadDuration().ObserveDuration()

	log := r.log.With(slog.Group("account", slog.String("id", id.String())))

	snapshot, err := r.loadSnapshot(ctx, log, id)
	if err != nil {
		return nil, fmt.Errorf("load snapshot for account %s: %w", id, err)
	}

	acc := New(id)
	if snapshot != nil {
		acc = FromSnapshot(id, *snapshot)
		log.Debug("snapshot applied", snapshot.logAttrs())
	}

	start := ReplayStart(snapshot)
	records, err := r.store.ReadForward(ctx, StreamKey(id), start)
	if errors.Is(err, es.ErrStreamNotFound) {
		log.Debug("stream not found", start.SlogAttrWithKey("start"))
		return acc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", StreamKey(id), err)
	}

	for _, rec := range records {
		evt, err := DecodeEvent(rec.Type, rec.Data)
		if err != nil {
			return nil, fmt.Errorf("account %s at %d: %w", id, rec.Position, err)
		}
		if err := acc.ReplayHistoricalEvent(rec.Position, evt); err != nil {
			return nil, fmt.Errorf("account %s: %w", id, err)
		}
	}
	r.metrics.EventsReplayed(len(records))

	log.Debug(
		"loaded",
		start.SlogAttrWithKey("start"),
		acc.Version().SlogAttr(),
		slog.Int("num_events", len(records)),
	)

	return acc, nil
}

// loadSnapshot returns the newest snapshot, or nil if there is none or it
// cannot be decoded. Concurrent loads of one account share the read.
func (r *Repository) loadSnapshot(ctx context.Context, log *slog.Logger, id AccountID) (*Snapshot, error) {
	key := SnapshotStreamKey(id)
	read := func() (*Snapshot, error) { return r.readSnapshot(ctx, log, key) }

	snapshot, shared, err := r.snapshots.Do(key, read)
	if err != nil && shared && ctx.Err() == nil && isContextErr(err) {
		// the caller that ran the shared read was cancelled, not us
		snapshot, err = read()
	}
	if err != nil {
		return nil, err
	}
	r.metrics.SnapshotHit(snapshot != nil)
	return snapshot, nil
}

func (r *Repository) readSnapshot(ctx context.Context, log *slog.Logger, key string) (*Snapshot, error) {
	records, err := r.store.ReadBackward(ctx, key, es.StreamEnd, 1)
	if errors.Is(err, es.ErrStreamNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	snapshot, err := DecodeSnapshot(records[0])
	if err != nil {
		log.Warn(
			"ignoring unreadable snapshot",
			records[0].Position.SlogAttrWithKey("position"),
			slog.Any("error", err),
		)
		return nil, nil
	}
	return snapshot, nil
}

// Save appends the pending events of acc, expecting the stream to still be
// at acc.Version(). On success the account's version moves to the new
// revision and the pending buffer is cleared. If another writer got there
// first, es.ErrConcurrencyConflict is returned and acc is left unchanged.
//
// Snapshots are written after the append whenever the new revision completes
// a snapshot interval. A failed snapshot write does not fail Save.
func (r *Repository) Save(ctx context.Context, acc *Account) error {
	if len(acc.pending) == 0 {
		return nil
	}
	defer r.metrics.SaveDuration().ObserveDuration()

	events := make([]es.EventData, 0, len(acc.pending))
	for _, e := range acc.pending {
		data, err := EncodeEvent(e)
		if err != nil {
			return err
		}
		events = append(events, data)
	}

	expected := acc.Version()
	revision, err := r.store.AppendConditional(ctx, StreamKey(acc.ID()), expected, events)
	if err != nil {
		if errors.Is(err, es.ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict()
		}
		return fmt.Errorf("save account %s: %w", acc.ID(), err)
	}

	acc.commit(revision)
	r.metrics.EventsAppended(len(events))

	log := r.log.With(
		slog.Group(
			"account",
			slog.String("id", acc.ID().String()),
			revision.SlogAttr(),
		),
	)

	if want := expected + es.Version(len(events)); revision != want {
		log.Warn("unexpected revision after append", want.SlogAttrWithKey("want"))
	}

	if ShouldSnapshot(revision, r.snapshotInterval) {
		r.writeSnapshot(ctx, log, acc)
	}

	log.Debug("saved", slog.Int("num_events", len(events)))
	return nil
}

func (r *Repository) writeSnapshot(ctx context.Context, log *slog.Logger, acc *Account) {
	snapshot := acc.Snapshot()
	data, err := EncodeSnapshot(snapshot)
	if err == nil {
		_, err = r.store.AppendUnconditional(ctx, SnapshotStreamKey(acc.ID()), []es.EventData{data})
	}
	if err != nil {
		r.metrics.SnapshotFailed()
		log.Warn("events committed, snapshot pending", slog.Any("error", err))
		return
	}
	r.metrics.SnapshotWritten()
	log.Debug("snapshot saved", snapshot.logAttrs())
}

// Execute loads the account, runs fn on it and saves the result. When the
// save loses a race to another writer the whole cycle is retried with
// backoff; any other error, including domain errors from fn, is returned
// immediately.
func (r *Repository) Execute(
	ctx context.Context,
	id AccountID,
	fn func(*Account) error,
	opts ...ExecuteOption,
) (*Account, error) {
	options := newExecuteOpts(opts...)
	attempt := 0

	return backoff.Retry(ctx, func() (*Account, error) {
		attempt++
		acc, err := r.Load(ctx, id)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := fn(acc); err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := r.Save(ctx, acc); err != nil {
			if errors.Is(err, es.ErrConcurrencyConflict) {
				r.log.Debug(
					"retrying after conflict",
					slog.String("account", id.String()),
					slog.Int("attempt", attempt),
				)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return acc, nil
	}, backoff.WithBackOff(options.backOff), backoff.WithMaxTries(options.maxTries))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
