package es

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrStreamNotFound      = errors.New("stream not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrNoEvents            = errors.New("no events to append")
)

// EventData is an event ready to be appended to a log stream.
type EventData struct {
	// ID uniquely identifies the event and lets stores deduplicate retries.
	ID string `json:"id"`
	// Type is the event type tag used to pick a decoder on read.
	Type string `json:"type"`
	// Data is the encoded event payload.
	Data []byte `json:"data"`
}

// NewEventData wraps an encoded payload with a fresh event ID.
func NewEventData(eventType string, data []byte) EventData {
	return EventData{ID: gonanoid.Must(), Type: eventType, Data: data}
}

func (e EventData) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is empty")
	}
	if e.Type == "" {
		return fmt.Errorf("event type is empty")
	}
	return nil
}

// Record is an event as persisted in a log stream.
type Record struct {
	Stream     string    `json:"stream"`
	Position   Version   `json:"position"`
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Data       []byte    `json:"data"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Log is an append-only store of ordered, per-key streams.
//
// Positions within a stream start at 0 and are strictly increasing without
// gaps. Reading a stream that was never written fails with ErrStreamNotFound.
type Log interface {
	// ReadForward returns all records of stream with Position >= from, oldest first.
	ReadForward(ctx context.Context, stream string, from Version) ([]Record, error)
	// ReadBackward returns up to maxCount records with Position <= from, newest first.
	ReadBackward(ctx context.Context, stream string, from Version, maxCount int) ([]Record, error)
	// AppendConditional appends events if the stream is currently at expected
	// (NoStream for a stream that does not exist) and returns the new revision.
	// On mismatch nothing is appended and ErrConcurrencyConflict is returned.
	AppendConditional(ctx context.Context, stream string, expected Version, events []EventData) (Version, error)
	// AppendUnconditional appends events at the end of stream and returns the new revision.
	AppendUnconditional(ctx context.Context, stream string, events []EventData) (Version, error)
}

// ValidateAppend checks the arguments shared by all append implementations.
func ValidateAppend(stream string, events []EventData) error {
	if stream == "" {
		return errors.New("stream is empty")
	}
	if len(events) == 0 {
		return ErrNoEvents
	}
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

// ConflictError builds the error returned when an expected revision does not match.
func ConflictError(stream string, expected, actual Version) error {
	return fmt.Errorf(
		"%w: stream %s expected version %d, got %d",
		ErrConcurrencyConflict,
		stream,
		expected,
		actual,
	)
}
