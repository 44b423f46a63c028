package account_test

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/bankes/core/account"
	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/core/money"
)

func newCreated(t *testing.T) *account.Account {
	t.Helper()
	a := account.New(account.NewAccountID())
	require.NoError(t, a.Create("C1", money.USD))
	return a
}

func TestAccount_New(t *testing.T) {
	a := account.New("acc-1")
	require.Equal(t, account.AccountID("acc-1"), a.ID())
	require.Equal(t, es.NoStream, a.Version())
	require.False(t, a.IsCreated())
	require.Empty(t, a.PendingEvents())
	require.Equal(t, account.State{}, a.State())
}

func TestAccount_CreateDepositWithdraw(t *testing.T) {
	a := account.New("acc-1")
	require.NoError(t, a.Create("C1", money.USD))
	require.NoError(t, a.Deposit(money.MustParse("100 USD")))
	require.NoError(t, a.Withdraw(money.MustParse("40 USD")))

	require.True(t, a.Balance().Equal(money.MustParse("60 USD")))
	require.Equal(t, account.CustomerID("C1"), a.CustomerID())
	require.Equal(t, es.NoStream, a.Version(), "commands never move the version")
	require.Equal(t, []account.Event{
		account.AccountCreated{CustomerId: "C1", Currency: money.USD},
		account.MoneyDeposited{Money: money.MustParse("100 USD")},
		account.MoneyWithdrawn{Money: money.MustParse("40 USD")},
	}, a.PendingEvents())
}

func TestAccount_InsufficientBalance(t *testing.T) {
	a := newCreated(t)
	require.NoError(t, a.Deposit(money.MustParse("50 USD")))

	before := a.State()
	pending := a.PendingEvents()

	err := a.Withdraw(money.MustParse("80 USD"))
	require.ErrorIs(t, err, account.ErrInsufficientBalance)
	require.Equal(t, before, a.State())
	require.Equal(t, pending, a.PendingEvents())
	require.True(t, a.Balance().Equal(money.MustParse("50 USD")))

	require.NoError(t, a.Withdraw(money.MustParse("50 USD")), "withdrawing to exactly zero is allowed")
	require.True(t, a.Balance().IsZero())
}

func TestAccount_CurrencyMismatch(t *testing.T) {
	a := newCreated(t)
	require.NoError(t, a.Deposit(money.MustParse("10 USD")))

	require.ErrorIs(t, a.Deposit(money.MustParse("10 EUR")), money.ErrCurrencyMismatch)
	require.ErrorIs(t, a.Withdraw(money.MustParse("1 EUR")), money.ErrCurrencyMismatch)
	require.Len(t, a.PendingEvents(), 2)
	require.True(t, a.Balance().Equal(money.MustParse("10 USD")))
}

func TestAccount_Guards(t *testing.T) {
	t.Run("not initialized", func(t *testing.T) {
		a := account.New("acc-1")
		require.ErrorIs(t, a.Deposit(money.MustParse("1 USD")), account.ErrNotInitialized)
		require.ErrorIs(t, a.Withdraw(money.MustParse("1 USD")), account.ErrNotInitialized)
		require.Empty(t, a.PendingEvents())
	})

	t.Run("already initialized", func(t *testing.T) {
		a := newCreated(t)
		require.ErrorIs(t, a.Create("C2", money.EUR), account.ErrAlreadyInitialized)
		require.Equal(t, account.CustomerID("C1"), a.CustomerID())
		require.Len(t, a.PendingEvents(), 1)
	})

	t.Run("invalid input", func(t *testing.T) {
		a := account.New("acc-1")
		require.ErrorIs(t, a.Create("", money.USD), account.ErrInvalidCustomer)
		require.ErrorIs(t, a.Create("C1", "usd"), money.ErrInvalidCurrency)
		require.False(t, a.IsCreated())

		a = newCreated(t)
		require.ErrorIs(t, a.Deposit(money.Zero(money.USD)), account.ErrInvalidAmount)
		require.ErrorIs(t, a.Deposit(money.MustParse("-5 USD")), account.ErrInvalidAmount)
		require.ErrorIs(t, a.Withdraw(money.MustParse("-5 USD")), account.ErrInvalidAmount)
		require.Len(t, a.PendingEvents(), 1)
	})
}

func TestAccount_PendingEventsIsACopy(t *testing.T) {
	a := newCreated(t)
	events := a.PendingEvents()
	events[0] = account.MoneyDeposited{}
	require.IsType(t, account.AccountCreated{}, a.PendingEvents()[0])
}

func TestAccount_Replay(t *testing.T) {
	a := account.New("acc-1")
	require.NoError(t, a.ReplayHistoricalEvent(0, account.AccountCreated{CustomerId: "C1", Currency: money.USD}))
	require.NoError(t, a.ReplayHistoricalEvent(1, account.MoneyDeposited{Money: money.MustParse("5 USD")}))

	require.Equal(t, es.Version(1), a.Version())
	require.Empty(t, a.PendingEvents(), "replay never produces pending events")
	require.True(t, a.Balance().Equal(money.MustParse("5 USD")))

	t.Run("gap", func(t *testing.T) {
		err := a.ReplayHistoricalEvent(3, account.MoneyDeposited{Money: money.MustParse("5 USD")})
		require.ErrorIs(t, err, account.ErrVersionGap)
		require.Equal(t, es.Version(1), a.Version())
	})

	t.Run("invalid history", func(t *testing.T) {
		err := a.ReplayHistoricalEvent(2, account.MoneyWithdrawn{Money: money.MustParse("6 USD")})
		require.ErrorIs(t, err, account.ErrInsufficientBalance)
		require.Equal(t, es.Version(1), a.Version())
		require.True(t, a.Balance().Equal(money.MustParse("5 USD")))
	})
}

func TestAccount_ReplayNonPositiveAmount(t *testing.T) {
	created := account.AccountCreated{CustomerId: "C1", Currency: money.USD}

	for _, e := range []account.Event{
		account.MoneyDeposited{Money: money.MustParse("-5 USD")},
		account.MoneyDeposited{Money: money.Zero(money.USD)},
		account.MoneyWithdrawn{Money: money.MustParse("-7 USD")},
	} {
		a := account.New("acc-1")
		require.NoError(t, a.ReplayHistoricalEvent(0, created))

		err := a.ReplayHistoricalEvent(1, e)
		require.ErrorIs(t, err, account.ErrInvalidAmount, "%#v", e)
		require.Equal(t, es.Version(0), a.Version())
		require.True(t, a.Balance().IsZero())
	}
}

func TestFold_UnknownEvent(t *testing.T) {
	s := account.State{}
	_, err := account.Fold(s, &account.AccountCreated{CustomerId: "C1", Currency: money.USD})
	require.ErrorIs(t, err, es.ErrUnknownEventType)
	_, err = account.Fold(s, nil)
	require.ErrorIs(t, err, es.ErrUnknownEventType)
}

func TestFold_BalanceProperty(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for run := range 50 {
		a := newCreated(t)
		expected := decimal.Zero

		for range 40 {
			amount := decimal.New(rng.Int64N(10_000)+1, -2)
			m := money.New(amount, money.USD)

			if rng.IntN(2) == 0 {
				require.NoError(t, a.Deposit(m))
				expected = expected.Add(amount)
				continue
			}

			err := a.Withdraw(m)
			if expected.LessThan(amount) {
				require.ErrorIs(t, err, account.ErrInsufficientBalance, "run %d", run)
				continue
			}
			require.NoError(t, err)
			expected = expected.Sub(amount)
		}

		require.True(t, a.Balance().Amount.Equal(expected), "run %d", run)
		require.False(t, a.Balance().IsNegative())

		// replaying the produced events twice yields identical states
		var s1, s2 account.State
		for _, e := range a.PendingEvents() {
			var err error
			s1, err = account.Fold(s1, e)
			require.NoError(t, err)
			s2, err = account.Fold(s2, e)
			require.NoError(t, err)
			require.False(t, s1.Balance.IsNegative())
		}
		require.Equal(t, s1, s2)
		require.True(t, s1.Balance.Equal(a.Balance()))
	}
}

func TestAccount_FromSnapshot(t *testing.T) {
	snap := account.Snapshot{
		State: account.State{
			CustomerId: "C1",
			Balance:    money.MustParse("30 USD"),
		},
		Version: 9,
	}
	a := account.FromSnapshot("acc-1", snap)
	require.Equal(t, es.Version(9), a.Version())
	require.True(t, a.IsCreated())
	require.Equal(t, snap, a.Snapshot())

	require.NoError(t, a.ReplayHistoricalEvent(10, account.MoneyWithdrawn{Money: money.MustParse("30 USD")}))
	require.True(t, a.Balance().IsZero())
}
