package account

import (
	"fmt"

	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/internal/codec"
)

// SnapshotEventType tags records in the snapshot stream.
const SnapshotEventType = "snapshot"

var payloadCodec codec.Codec = codec.JSONCodec{}

// EncodeEvent serializes e under its variant name.
func EncodeEvent(e Event) (es.EventData, error) {
	data, err := payloadCodec.Marshal(e)
	if err != nil {
		return es.EventData{}, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return es.NewEventData(e.EventType(), data), nil
}

// DecodeEvent restores an event from its tag and payload. Unknown tags fail
// with es.ErrUnknownEventType.
func DecodeEvent(eventType string, data []byte) (Event, error) {
	switch eventType {
	case EventTypeAccountCreated:
		return decode[AccountCreated](eventType, data)
	case EventTypeMoneyDeposited:
		return decode[MoneyDeposited](eventType, data)
	case EventTypeMoneyWithdrawn:
		return decode[MoneyWithdrawn](eventType, data)
	}
	return nil, fmt.Errorf("%w: %s", es.ErrUnknownEventType, eventType)
}

func decode[T Event](eventType string, data []byte) (Event, error) {
	ev, err := codec.Decode[T](payloadCodec, data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return ev, nil
}

// EncodeSnapshot serializes s for the snapshot stream.
func EncodeSnapshot(s Snapshot) (es.EventData, error) {
	data, err := payloadCodec.Marshal(s)
	if err != nil {
		return es.EventData{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return es.NewEventData(SnapshotEventType, data), nil
}

// DecodeSnapshot restores a snapshot record.
func DecodeSnapshot(r es.Record) (*Snapshot, error) {
	if r.Type != SnapshotEventType {
		return nil, fmt.Errorf("%w: %s", es.ErrUnknownEventType, r.Type)
	}
	s, err := codec.Decode[Snapshot](payloadCodec, r.Data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}
