// Package redis provides a Redis backed es.Log. Every log stream is a Redis
// list whose index is the record position.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/internal/codec"
)

const defaultKeyPrefix = "bankes:log"

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // KeyPrefix is prepended to every stream key. Defaults to "bankes:log".
	Log       *slog.Logger
}

// entry is the list element stored per record.
type entry struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Data       []byte    `json:"data"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Log appends with RPUSH. Conditional appends WATCH the list and run the
// length check and the push in one MULTI/EXEC, so a concurrent push aborts
// the transaction.
type Log struct {
	client    *redis.Client
	codec     codec.Codec
	log       *slog.Logger
	keyPrefix string
}

func NewLog(ctx context.Context, cfg Config) (*Log, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &Log{
		client:    rdb,
		codec:     codec.JSONCodec{},
		log:       log.With(slog.String("log", "redis"), slog.String("prefix", prefix)),
		keyPrefix: prefix,
	}, nil
}

func (l *Log) Close() error { return l.client.Close() }

func (l *Log) ReadForward(ctx context.Context, stream string, from es.Version) ([]es.Record, error) {
	key := l.key(stream)
	start := max(from.Int64(), 0)

	values, err := l.client.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	if len(values) == 0 {
		if err := l.exists(ctx, key); err != nil {
			return nil, err
		}
		return []es.Record{}, nil
	}
	return l.decode(stream, es.Version(start), values)
}

func (l *Log) ReadBackward(ctx context.Context, stream string, from es.Version, maxCount int) ([]es.Record, error) {
	key := l.key(stream)

	n, err := l.client.LLen(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	if n == 0 {
		return nil, es.ErrStreamNotFound
	}
	end := min(from.Int64(), n-1)
	if end < 0 || maxCount <= 0 {
		return []es.Record{}, nil
	}
	start := max(end-int64(maxCount)+1, 0)

	values, err := l.client.LRange(ctx, key, start, end).Result()
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", stream, err)
	}
	out, err := l.decode(stream, es.Version(start), values)
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

func (l *Log) AppendConditional(
	ctx context.Context,
	stream string,
	expected es.Version,
	events []es.EventData,
) (es.Version, error) {
	if err := es.ValidateAppend(stream, events); err != nil {
		return es.NoStream, err
	}
	values, err := l.encode(events)
	if err != nil {
		return es.NoStream, err
	}

	key := l.key(stream)
	var revision es.Version

	err = l.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil {
			return err
		}
		if current := es.Version(n - 1); current != expected {
			return es.ConflictError(stream, expected, current)
		}

		var push *redis.IntCmd
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			push = pipe.RPush(ctx, key, values...)
			return nil
		}); err != nil {
			return err
		}
		revision = es.Version(push.Val() - 1)
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return es.NoStream, fmt.Errorf("%w: stream %s was written concurrently", es.ErrConcurrencyConflict, stream)
	}
	if err != nil {
		if errors.Is(err, es.ErrConcurrencyConflict) {
			return es.NoStream, err
		}
		return es.NoStream, fmt.Errorf("append to stream %s: %w", stream, err)
	}

	l.logAppend(stream, revision, len(events))
	return revision, nil
}

func (l *Log) AppendUnconditional(ctx context.Context, stream string, events []es.EventData) (es.Version, error) {
	if err := es.ValidateAppend(stream, events); err != nil {
		return es.NoStream, err
	}
	values, err := l.encode(events)
	if err != nil {
		return es.NoStream, err
	}

	n, err := l.client.RPush(ctx, l.key(stream), values...).Result()
	if err != nil {
		return es.NoStream, fmt.Errorf("append to stream %s: %w", stream, err)
	}

	revision := es.Version(n - 1)
	l.logAppend(stream, revision, len(events))
	return revision, nil
}

func (l *Log) exists(ctx context.Context, key string) error {
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return es.ErrStreamNotFound
	}
	return nil
}

func (l *Log) encode(events []es.EventData) ([]any, error) {
	now := time.Now().UTC()
	values := make([]any, 0, len(events))
	for _, e := range events {
		b, err := l.codec.Marshal(entry{ID: e.ID, Type: e.Type, Data: e.Data, RecordedAt: now})
		if err != nil {
			return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
		}
		values = append(values, b)
	}
	return values, nil
}

func (l *Log) decode(stream string, start es.Version, values []string) ([]es.Record, error) {
	out := make([]es.Record, 0, len(values))
	for i, v := range values {
		e, err := codec.Decode[entry](l.codec, []byte(v))
		if err != nil {
			return nil, fmt.Errorf("decode record %d of stream %s: %w", start.Int64()+int64(i), stream, err)
		}
		out = append(out, es.Record{
			Stream:     stream,
			Position:   start + es.Version(i),
			ID:         e.ID,
			Type:       e.Type,
			Data:       e.Data,
			RecordedAt: e.RecordedAt,
		})
	}
	return out, nil
}

func (l *Log) logAppend(stream string, revision es.Version, n int) {
	l.log.Debug(
		"append",
		slog.String("stream", stream),
		revision.SlogAttrWithKey("revision"),
		slog.Int("num_events", n),
	)
}

func (l *Log) key(stream string) string {
	return l.keyPrefix + ":" + stream
}

var _ es.Log = (*Log)(nil)
