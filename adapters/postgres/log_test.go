package postgres

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codewandler/bankes/core/account"
	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/core/es/logtest"
	"github.com/codewandler/bankes/core/money"
)

func newTestDatabase(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in -short mode")
	}

	ctx := t.Context()
	pgC, err := testcontainers.Run(
		ctx, "postgres:16-alpine",
		testcontainers.WithEnv(map[string]string{
			"POSTGRES_USER":     "bankes",
			"POSTGRES_PASSWORD": "bankes",
			"POSTGRES_DB":       "bankes",
		}),
		testcontainers.WithExposedPorts("5432/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgC); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://bankes:bankes@%s:%s/bankes?sslmode=disable", host, port.Port())
}

func TestLog(t *testing.T) {
	url := newTestDatabase(t)

	l, err := Open(t.Context(), url)
	require.NoError(t, err)
	t.Cleanup(l.Close)

	logtest.Run(t, l)

	t.Run("reopen keeps data", func(t *testing.T) {
		repo := account.NewRepository(l)
		id := account.NewAccountID()
		_, err := repo.Execute(t.Context(), id, func(a *account.Account) error {
			return a.Create("C1", money.EUR)
		})
		require.NoError(t, err)

		reopened, err := Open(t.Context(), url)
		require.NoError(t, err)
		defer reopened.Close()

		a, err := account.NewRepository(reopened).Load(t.Context(), id)
		require.NoError(t, err)
		require.Equal(t, es.Version(0), a.Version())
		require.True(t, a.IsCreated())
	})

	t.Run("concurrent unconditional appends", func(t *testing.T) {
		stream := "unconditional-" + string(account.NewAccountID())

		const n = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			revs = map[es.Version]bool{}
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rev, err := l.AppendUnconditional(t.Context(), stream, []es.EventData{
					es.NewEventData("snapshot", []byte(fmt.Sprintf(`{"n":%d}`, i))),
				})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				revs[rev] = true
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.Len(t, revs, n)
		records, err := l.ReadForward(t.Context(), stream, 0)
		require.NoError(t, err)
		require.Len(t, records, n)
		for i, rec := range records {
			require.Equal(t, es.Version(i), rec.Position)
			require.True(t, revs[rec.Position])
		}
	})
}

func TestRetryOnConflict(t *testing.T) {
	conflict := es.ConflictError("s", 0, 1)

	t.Run("succeeds after conflicts", func(t *testing.T) {
		calls := uint(0)
		rev, err := retryOnConflict(t.Context(), 5, &backoff.ZeroBackOff{}, func() (es.Version, error) {
			calls++
			if calls < 3 {
				return es.NoStream, conflict
			}
			return 7, nil
		})
		require.NoError(t, err)
		require.Equal(t, es.Version(7), rev)
		require.Equal(t, uint(3), calls)
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		calls := uint(0)
		_, err := retryOnConflict(t.Context(), 4, &backoff.ZeroBackOff{}, func() (es.Version, error) {
			calls++
			return es.NoStream, conflict
		})
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)
		require.Equal(t, uint(4), calls)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		errBoom := errors.New("boom")
		calls := uint(0)
		_, err := retryOnConflict(t.Context(), 4, &backoff.ZeroBackOff{}, func() (es.Version, error) {
			calls++
			return es.NoStream, errBoom
		})
		require.ErrorIs(t, err, errBoom)
		require.Equal(t, uint(1), calls)
	})
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(t.Context(), "")
	require.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, isUniqueViolation(&pgconn.PgError{Code: "40001"}))
	require.False(t, isUniqueViolation(errors.New("random error")))
}
