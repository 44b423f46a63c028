package account

import (
	"fmt"

	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/core/es/assert"
	"github.com/codewandler/bankes/core/money"
)

// State is the folded result of an account's events.
type State struct {
	CustomerId CustomerID  `json:"CustomerId"`
	Balance    money.Money `json:"Balance"`
}

// IsCreated reports whether AccountCreated has been folded into s.
func (s State) IsCreated() bool { return s.Balance.Currency != "" }

// Fold applies e to s and returns the next state. It is pure: the same
// state and event always give the same result, and s is never modified.
func Fold(s State, e Event) (State, error) {
	switch ev := e.(type) {
	case AccountCreated:
		if s.IsCreated() {
			return s, ErrAlreadyInitialized
		}
		if err := ev.Currency.Validate(); err != nil {
			return s, err
		}
		return State{CustomerId: ev.CustomerId, Balance: money.Zero(ev.Currency)}, nil

	case MoneyDeposited:
		if !s.IsCreated() {
			return s, ErrNotInitialized
		}
		if !ev.Money.IsPositive() {
			return s, fmt.Errorf("%w: %s", ErrInvalidAmount, ev.Money)
		}
		balance, err := s.Balance.Add(ev.Money)
		if err != nil {
			return s, err
		}
		return State{CustomerId: s.CustomerId, Balance: balance}, nil

	case MoneyWithdrawn:
		if !s.IsCreated() {
			return s, ErrNotInitialized
		}
		if !ev.Money.IsPositive() {
			return s, fmt.Errorf("%w: %s", ErrInvalidAmount, ev.Money)
		}
		balance, err := s.Balance.Sub(ev.Money)
		if err != nil {
			return s, err
		}
		if balance.IsNegative() {
			return s, fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBalance, s.Balance, ev.Money)
		}
		return State{CustomerId: s.CustomerId, Balance: balance}, nil
	}
	return s, fmt.Errorf("%w: %T", es.ErrUnknownEventType, e)
}

// Account is the event-sourced aggregate of a single bank account.
//
// Commands validate their input, fold the resulting event into the state and
// buffer it as pending. A failing command leaves the account untouched.
// Version only moves when history is replayed or the repository commits
// pending events.
type Account struct {
	id      AccountID
	version es.Version
	state   State
	pending []Event
}

// New returns an account without history.
func New(id AccountID) *Account {
	return &Account{id: id, version: es.NoStream}
}

// FromSnapshot returns an account positioned at the snapshot's version.
func FromSnapshot(id AccountID, s Snapshot) *Account {
	return &Account{id: id, version: s.Version, state: s.State}
}

func (a *Account) ID() AccountID          { return a.id }
func (a *Account) Version() es.Version    { return a.version }
func (a *Account) State() State           { return a.state }
func (a *Account) Balance() money.Money   { return a.state.Balance }
func (a *Account) CustomerID() CustomerID { return a.state.CustomerId }
func (a *Account) IsCreated() bool        { return a.state.IsCreated() }

// PendingEvents returns a copy of the events produced since the last load or save.
func (a *Account) PendingEvents() []Event {
	out := make([]Event, len(a.pending))
	copy(out, a.pending)
	return out
}

// Snapshot captures the current state at the current version.
func (a *Account) Snapshot() Snapshot {
	return Snapshot{State: a.state, Version: a.version}
}

// === Commands ===

func (a *Account) Create(customerID CustomerID, currency money.Currency) error {
	return assert.Checked(
		func() error { return a.raise(AccountCreated{CustomerId: customerID, Currency: currency}) },
		assert.False(a.IsCreated(), "account is new", ErrAlreadyInitialized),
		assert.True(customerID != "", "customer id is set", ErrInvalidCustomer),
	)
}

func (a *Account) Deposit(m money.Money) error {
	return assert.Checked(
		func() error { return a.raise(MoneyDeposited{Money: m}) },
		a.isCreated(),
		isPositive(m),
	)
}

func (a *Account) Withdraw(m money.Money) error {
	return assert.Checked(
		func() error { return a.raise(MoneyWithdrawn{Money: m}) },
		a.isCreated(),
		isPositive(m),
	)
}

func (a *Account) isCreated() assert.Cond {
	return assert.True(a.IsCreated(), "account is created", ErrNotInitialized)
}

func isPositive(m money.Money) assert.Cond {
	return assert.True(m.IsPositive(), m.String(), ErrInvalidAmount)
}

// raise folds e and, only if that succeeds, records it as pending.
func (a *Account) raise(e Event) error {
	next, err := Fold(a.state, e)
	if err != nil {
		return err
	}
	a.state = next
	a.pending = append(a.pending, e)
	return nil
}

// === Replay ===

// ReplayHistoricalEvent folds an already committed event found at position.
// Positions must follow the current version without gaps.
func (a *Account) ReplayHistoricalEvent(position es.Version, e Event) error {
	if position != a.version.Next() {
		return fmt.Errorf("%w: expected %d, got %d", ErrVersionGap, a.version.Next(), position)
	}
	next, err := Fold(a.state, e)
	if err != nil {
		return fmt.Errorf("replay %T at %d: %w", e, position, err)
	}
	a.state = next
	a.version = position
	return nil
}

// commit marks the pending events as persisted at revision.
func (a *Account) commit(revision es.Version) {
	a.version = revision
	a.pending = nil
}
