// Package logtest provides a conformance suite for es.Log implementations.
package logtest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/bankes/core/es"
)

// Run exercises log against the es.Log contract. Every subtest writes to its
// own stream so a single backing store can be shared.
func Run(t *testing.T, log es.Log) {
	t.Helper()

	newStream := func() string { return "test-" + gonanoid.Must() }
	events := func(n int) []es.EventData {
		out := make([]es.EventData, n)
		for i := range n {
			out[i] = es.NewEventData("Tested", fmt.Appendf(nil, `{"n":%d}`, i))
		}
		return out
	}

	t.Run("stream not found", func(t *testing.T) {
		s := newStream()
		_, err := log.ReadForward(t.Context(), s, 0)
		require.ErrorIs(t, err, es.ErrStreamNotFound)
		_, err = log.ReadBackward(t.Context(), s, es.StreamEnd, 1)
		require.ErrorIs(t, err, es.ErrStreamNotFound)
	})

	t.Run("append to new stream", func(t *testing.T) {
		s := newStream()
		in := events(3)
		rev, err := log.AppendConditional(t.Context(), s, es.NoStream, in)
		require.NoError(t, err)
		require.Equal(t, es.Version(2), rev)

		records, err := log.ReadForward(t.Context(), s, 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
		for i, r := range records {
			require.Equal(t, es.Version(i), r.Position)
			require.Equal(t, in[i].ID, r.ID)
			require.Equal(t, "Tested", r.Type)
			require.Equal(t, in[i].Data, r.Data)
			require.Equal(t, s, r.Stream)
		}
	})

	t.Run("no events", func(t *testing.T) {
		_, err := log.AppendConditional(t.Context(), newStream(), es.NoStream, nil)
		require.ErrorIs(t, err, es.ErrNoEvents)
		_, err = log.AppendUnconditional(t.Context(), newStream(), nil)
		require.ErrorIs(t, err, es.ErrNoEvents)
	})

	t.Run("revision zero is not no stream", func(t *testing.T) {
		s := newStream()
		_, err := log.AppendConditional(t.Context(), s, 0, events(1))
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)
		_, err = log.ReadForward(t.Context(), s, 0)
		require.ErrorIs(t, err, es.ErrStreamNotFound)

		rev, err := log.AppendConditional(t.Context(), s, es.NoStream, events(1))
		require.NoError(t, err)
		require.Equal(t, es.Version(0), rev)

		_, err = log.AppendConditional(t.Context(), s, es.NoStream, events(1))
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)
	})

	t.Run("stale expected version", func(t *testing.T) {
		s := newStream()
		_, err := log.AppendConditional(t.Context(), s, es.NoStream, events(3))
		require.NoError(t, err)

		_, err = log.AppendConditional(t.Context(), s, 1, events(2))
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)

		records, err := log.ReadForward(t.Context(), s, 0)
		require.NoError(t, err)
		require.Len(t, records, 3, "conflicting append must not write anything")

		rev, err := log.AppendConditional(t.Context(), s, 2, events(2))
		require.NoError(t, err)
		require.Equal(t, es.Version(4), rev)
	})

	t.Run("read forward from position", func(t *testing.T) {
		s := newStream()
		_, err := log.AppendConditional(t.Context(), s, es.NoStream, events(5))
		require.NoError(t, err)

		records, err := log.ReadForward(t.Context(), s, 3)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, es.Version(3), records[0].Position)
		require.Equal(t, es.Version(4), records[1].Position)

		records, err = log.ReadForward(t.Context(), s, 5)
		require.NoError(t, err)
		require.Empty(t, records)
	})

	t.Run("read backward", func(t *testing.T) {
		s := newStream()
		_, err := log.AppendConditional(t.Context(), s, es.NoStream, events(4))
		require.NoError(t, err)

		records, err := log.ReadBackward(t.Context(), s, es.StreamEnd, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, es.Version(3), records[0].Position)

		records, err = log.ReadBackward(t.Context(), s, 2, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, es.Version(2), records[0].Position)
		require.Equal(t, es.Version(1), records[1].Position)
	})

	t.Run("append unconditional", func(t *testing.T) {
		s := newStream()
		rev, err := log.AppendUnconditional(t.Context(), s, events(1))
		require.NoError(t, err)
		require.Equal(t, es.Version(0), rev)

		rev, err = log.AppendUnconditional(t.Context(), s, events(2))
		require.NoError(t, err)
		require.Equal(t, es.Version(2), rev)

		records, err := log.ReadBackward(t.Context(), s, es.StreamEnd, 1)
		require.NoError(t, err)
		require.Equal(t, es.Version(2), records[0].Position)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		s := newStream()
		_, err := log.AppendConditional(t.Context(), s, es.NoStream, events(1))
		require.NoError(t, err)

		const n = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			conflicts int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := log.AppendConditional(t.Context(), s, 0, events(2))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, es.ErrConcurrencyConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, succeeded)
		require.Equal(t, n-1, conflicts)

		records, err := log.ReadForward(t.Context(), s, 0)
		require.NoError(t, err)
		require.Len(t, records, 3)
	})
}
