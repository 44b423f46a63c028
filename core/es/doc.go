// Package es provides the storage port of the event-sourced domain: an
// append-only [Log] of ordered per-key streams with optimistic concurrency.
//
// Positions within a stream are 0-indexed [Version] values. [NoStream] is the
// expected version of a stream that has never been written, which keeps it
// apart from a stream whose only event sits at Version 0.
//
//	rev, err := log.AppendConditional(ctx, "account-42", es.NoStream, events)
//	if errors.Is(err, es.ErrConcurrencyConflict) {
//	    // someone else wrote first; reload and retry
//	}
//
// [InMemoryLog] is a correct in-process implementation used by tests and
// the memory backend. Durable implementations live in the adapters/sqlite,
// adapters/postgres, adapters/redis and adapters/nats packages; all of them
// pass the suite in package logtest.
package es
