// Package sqlite provides a SQLite-backed es.Log.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/codewandler/bankes/core/es"
)

const memoryPath = ":memory:"

// Log persists streams in a single log_records table keyed by
// (stream, revision). The primary key is the final guard against two
// writers claiming the same revision.
type Log struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Log, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := memoryPath
	if path != memoryPath {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Log{
		db:  db,
		log: slog.Default().With(slog.String("log", "sqlite")),
	}, nil
}

// Close closes the database handle.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Log) ReadForward(ctx context.Context, stream string, from es.Version) ([]es.Record, error) {
	return l.read(ctx, stream,
		`SELECT revision, event_id, event_type, data, recorded_at
		   FROM log_records
		  WHERE stream = ? AND revision >= ?
		  ORDER BY revision ASC`,
		stream, from.Int64(),
	)
}

func (l *Log) ReadBackward(ctx context.Context, stream string, from es.Version, maxCount int) ([]es.Record, error) {
	return l.read(ctx, stream,
		`SELECT revision, event_id, event_type, data, recorded_at
		   FROM log_records
		  WHERE stream = ? AND revision <= ?
		  ORDER BY revision DESC
		  LIMIT ?`,
		stream, from.Int64(), maxCount,
	)
}

func (l *Log) read(ctx context.Context, stream string, query string, args ...any) ([]es.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := l.query(ctx, stream, query, args...)
	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		rev, err := revision(ctx, l.db, stream)
		if err != nil {
			return nil, err
		}
		if !rev.Exists() {
			return nil, es.ErrStreamNotFound
		}
	}
	return out, nil
}

func (l *Log) query(ctx context.Context, stream string, query string, args ...any) ([]es.Record, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stream %s: %w", stream, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]es.Record, 0)
	for rows.Next() {
		var (
			rec        = es.Record{Stream: stream}
			revision   int64
			recordedAt int64
		)
		if err := rows.Scan(&revision, &rec.ID, &rec.Type, &rec.Data, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Position = es.Version(revision)
		rec.RecordedAt = time.UnixMilli(recordedAt).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stream %s: %w", stream, err)
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
	return l.append(ctx, stream, events, func(es.Version) error { return nil })
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
	if err := ctx.Err(); err != nil {
		return es.NoStream, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return es.NoStream, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := revision(ctx, tx, stream)
	if err != nil {
		return es.NoStream, err
	}
	if err := check(current); err != nil {
		return es.NoStream, err
	}

	now := time.Now().UTC().UnixMilli()
	for _, e := range events {
		current = current.Next()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO log_records (stream, revision, event_id, event_type, data, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			stream, current.Int64(), e.ID, e.Type, e.Data, now,
		); err != nil {
			if isConstraintError(err) {
				return es.NoStream, fmt.Errorf("%w: stream %s revision %d already written", es.ErrConcurrencyConflict, stream, current)
			}
			return es.NoStream, fmt.Errorf("append event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isConstraintError(err) {
			return es.NoStream, fmt.Errorf("%w: %w", es.ErrConcurrencyConflict, err)
		}
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
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// revision returns the latest revision of stream, or es.NoStream.
func revision(ctx context.Context, q queryer, stream string) (es.Version, error) {
	var rev int64
	if err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), -1) FROM log_records WHERE stream = ?`,
		stream,
	).Scan(&rev); err != nil {
		return es.NoStream, fmt.Errorf("read revision of %s: %w", stream, err)
	}
	return es.Version(rev), nil
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

var _ es.Log = (*Log)(nil)
