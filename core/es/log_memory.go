package es

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InMemoryLog is a simple, correct (optimistic) log for tests/dev.
type InMemoryLog struct {
	mu      sync.Mutex
	log     *slog.Logger
	streams map[string][]Record
}

func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		log:     slog.Default().With(slog.String("log", "memory")),
		streams: map[string][]Record{},
	}
}

func (s *InMemoryLog) ReadForward(ctx context.Context, stream string, from Version) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.streams[stream]
	if !ok {
		return nil, ErrStreamNotFound
	}

	out := make([]Record, 0)
	for _, r := range records {
		if r.Position < from {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *InMemoryLog) ReadBackward(ctx context.Context, stream string, from Version, maxCount int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.streams[stream]
	if !ok {
		return nil, ErrStreamNotFound
	}

	out := make([]Record, 0)
	for i := len(records) - 1; i >= 0 && len(out) < maxCount; i-- {
		if records[i].Position > from {
			continue
		}
		out = append(out, records[i])
	}
	return out, nil
}

func (s *InMemoryLog) AppendConditional(
	ctx context.Context,
	stream string,
	expected Version,
	events []EventData,
) (Version, error) {
	if err := ValidateAppend(stream, events); err != nil {
		return NoStream, err
	}
	if err := ctx.Err(); err != nil {
		return NoStream, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.revision(stream)
	if current != expected {
		return NoStream, ConflictError(stream, expected, current)
	}
	return s.append(stream, current, events), nil
}

func (s *InMemoryLog) AppendUnconditional(ctx context.Context, stream string, events []EventData) (Version, error) {
	if err := ValidateAppend(stream, events); err != nil {
		return NoStream, err
	}
	if err := ctx.Err(); err != nil {
		return NoStream, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.append(stream, s.revision(stream), events), nil
}

// revision must be called with mu held.
func (s *InMemoryLog) revision(stream string) Version {
	records := s.streams[stream]
	if len(records) == 0 {
		return NoStream
	}
	return records[len(records)-1].Position
}

// append must be called with mu held.
func (s *InMemoryLog) append(stream string, current Version, events []EventData) Version {
	now := time.Now()
	for _, e := range events {
		current++
		s.streams[stream] = append(s.streams[stream], Record{
			Stream:     stream,
			Position:   current,
			ID:         e.ID,
			Type:       e.Type,
			Data:       append([]byte(nil), e.Data...),
			RecordedAt: now,
		})
	}

	s.log.Debug(
		"append",
		slog.String("stream", stream),
		current.SlogAttrWithKey("revision"),
		slog.Int("num_events", len(events)),
	)
	return current
}

var _ Log = (*InMemoryLog)(nil)
