// Package postgres provides a PostgreSQL backed es.Log using pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codewandler/bankes/core/es"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE of a unique or primary key violation.
const uniqueViolation = "23505"

// maxAppendTries bounds the attempts of AppendUnconditional when it keeps
// losing the next revision to concurrent writers.
const maxAppendTries = 10

// Log stores all streams in one log_records table keyed by
// (stream, revision). Two writers that both read revision N race on the
// insert of N+1; the loser gets a primary key violation and a conflict.
type Log struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Open connects to databaseURL and creates the schema if needed.
func Open(ctx context.Context, databaseURL string) (*Log, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 0
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Log{
		pool: pool,
		log:  slog.Default().With(slog.String("log", "postgres")),
	}, nil
}

func (l *Log) Close() { l.pool.Close() }

func (l *Log) ReadForward(ctx context.Context, stream string, from es.Version) ([]es.Record, error) {
	return l.read(ctx, stream,
		`SELECT revision, event_id, event_type, data, recorded_at
		   FROM log_records
		  WHERE stream = $1 AND revision >= $2
		  ORDER BY revision ASC`,
		stream, from.Int64(),
	)
}

func (l *Log) ReadBackward(ctx context.Context, stream string, from es.Version, maxCount int) ([]es.Record, error) {
	return l.read(ctx, stream,
		`SELECT revision, event_id, event_type, data, recorded_at
		   FROM log_records
		  WHERE stream = $1 AND revision <= $2
		  ORDER BY revision DESC
		  LIMIT $3`,
		stream, from.Int64(), maxCount,
	)
}

func (l *Log) read(ctx context.Context, stream, query string, args ...any) ([]es.Record, error) {
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stream %s: %w", stream, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (es.Record, error) {
		rec := es.Record{Stream: stream}
		var revision int64
		if err := row.Scan(&revision, &rec.ID, &rec.Type, &rec.Data, &rec.RecordedAt); err != nil {
			return es.Record{}, err
		}
		rec.Position = es.Version(revision)
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}

	if len(out) == 0 {
		rev, err := revision(ctx, l.pool, stream)
		if err != nil {
			return nil, err
		}
		if !rev.Exists() {
			return nil, es.ErrStreamNotFound
		}
	}
	return out, nil
}

func (l *Log) AppendConditional(
	ctx context.Context,
	stream string,
	expected es.Version,
	events []es.EventData,
) (es.Version, error) {
	return l.append(ctx, stream, events, func(current es.Version) error {
		if current != expected {
			return es.ConflictError(stream, expected, current)
		}
		return nil
	})
}

func (l *Log) AppendUnconditional(ctx context.Context, stream string, events []es.EventData) (es.Version, error) {
	return retryOnConflict(ctx, maxAppendTries, newAppendBackOff(), func() (es.Version, error) {
		return l.append(ctx, stream, events, func(es.Version) error { return nil })
	})
}

func newAppendBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

// retryOnConflict runs appendFn until it stops failing with a concurrency
// conflict or maxTries attempts are used up. Other errors end it at once.
func retryOnConflict(
	ctx context.Context,
	maxTries uint,
	b backoff.BackOff,
	appendFn func() (es.Version, error),
) (es.Version, error) {
	return backoff.Retry(ctx, func() (es.Version, error) {
		rev, err := appendFn()
		if err != nil && !errors.Is(err, es.ErrConcurrencyConflict) {
			return es.NoStream, backoff.Permanent(err)
		}
		return rev, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))
}

func (l *Log) append(
	ctx context.Context,
	stream string,
	events []es.EventData,
	check func(current es.Version) error,
) (es.Version, error) {
	if err := es.ValidateAppend(stream, events); err != nil {
		return es.NoStream, err
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return es.NoStream, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := revision(ctx, tx, stream)
	if err != nil {
		return es.NoStream, err
	}
	if err := check(current); err != nil {
		return es.NoStream, err
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		current = current.Next()
		batch.Queue(
			`INSERT INTO log_records (stream, revision, event_id, event_type, data)
			 VALUES ($1, $2, $3, $4, $5)`,
			stream, current.Int64(), e.ID, e.Type, e.Data,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		if isUniqueViolation(err) {
			return es.NoStream, fmt.Errorf("%w: stream %s was written concurrently", es.ErrConcurrencyConflict, stream)
		}
		return es.NoStream, fmt.Errorf("append events: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return es.NoStream, fmt.Errorf("commit: %w", err)
	}

	l.log.Debug(
		"append",
		slog.String("stream", stream),
		current.SlogAttrWithKey("revision"),
		slog.Int("num_events", len(events)),
	)
	return current, nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func revision(ctx context.Context, q queryer, stream string) (es.Version, error) {
	var rev int64
	if err := q.QueryRow(ctx,
		`SELECT COALESCE(MAX(revision), -1) FROM log_records WHERE stream = $1`,
		stream,
	).Scan(&rev); err != nil {
		return es.NoStream, fmt.Errorf("read revision of %s: %w", stream, err)
	}
	return es.Version(rev), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ es.Log = (*Log)(nil)
