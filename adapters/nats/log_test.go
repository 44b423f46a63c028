package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/bankes/core/account"
	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/core/es/logtest"
	"github.com/codewandler/bankes/core/money"
)

func newTestLog(t *testing.T, connect Connector) *Log {
	t.Helper()
	l, err := NewLog(t.Context(), LogConfig{
		Connect: connect,
		Log:     slog.Default(),
		Storage: jetstream.MemoryStorage,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLog_Conformance(t *testing.T) {
	l := newTestLog(t, NewTestContainer(t))

	t.Run("stream info", func(t *testing.T) {
		si, err := l.stream.Info(t.Context())
		require.NoError(t, err)
		require.Equal(t, defaultStreamName, si.Config.Name)
		require.Equal(t, []string{fmt.Sprintf("%s.>", defaultSubjectPrefix)}, si.Config.Subjects)
	})

	logtest.Run(t, l)
}

func TestLog_Repository(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))

	// two logs on one stream behave like two processes
	repoA := account.NewRepository(newTestLog(t, connect), account.WithSnapshotInterval(3))
	repoB := account.NewRepository(newTestLog(t, connect), account.WithSnapshotInterval(3))

	id := account.NewAccountID()
	usd := func(s string) money.Money { return money.MustParse(s + " USD") }

	_, err := repoA.Execute(t.Context(), id, func(a *account.Account) error {
		if err := a.Create("C1", money.USD); err != nil {
			return err
		}
		return a.Deposit(usd("100"))
	})
	require.NoError(t, err)

	a, err := repoA.Load(t.Context(), id)
	require.NoError(t, err)
	b, err := repoB.Load(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, es.Version(1), b.Version())

	require.NoError(t, a.Withdraw(usd("30")))
	require.NoError(t, repoA.Save(t.Context(), a))

	require.NoError(t, b.Withdraw(usd("50")))
	require.ErrorIs(t, repoB.Save(t.Context(), b), es.ErrConcurrencyConflict)

	b, err = repoB.Load(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, es.Version(2), b.Version())
	require.True(t, b.Balance().Equal(usd("70")))

	for range 4 {
		_, err := repoB.Execute(t.Context(), id, func(a *account.Account) error {
			return a.Deposit(usd("1"))
		})
		require.NoError(t, err)
	}

	snaps, err := repoA.Load(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, es.Version(6), snaps.Version())
	require.True(t, snaps.Balance().Equal(usd("74")))
}

func TestIsWrongLastSequence(t *testing.T) {
	require.True(t, isWrongLastSequence(fmt.Errorf("publish: %w", &jetstream.APIError{
		Code:      400,
		ErrorCode: jetstream.JSErrCodeStreamWrongLastSequence,
	})))
	require.False(t, isWrongLastSequence(&jetstream.APIError{Code: 503}))
	require.False(t, isWrongLastSequence(errors.New("random error")))
}
