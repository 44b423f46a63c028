package account

import (
	"github.com/codewandler/bankes/core/money"
)

// Event is one of AccountCreated, MoneyDeposited or MoneyWithdrawn.
// The set is closed: the unexported marker keeps other packages from adding
// variants that Fold would not understand.
type Event interface {
	// EventType is the tag the event is stored under.
	EventType() string
	isAccountEvent()
}

type (
	AccountCreated struct {
		CustomerId CustomerID     `json:"CustomerId"`
		Currency   money.Currency `json:"Currency"`
	}

	MoneyDeposited struct {
		Money money.Money `json:"Money"`
	}

	MoneyWithdrawn struct {
		Money money.Money `json:"Money"`
	}
)

const (
	EventTypeAccountCreated = "AccountCreated"
	EventTypeMoneyDeposited = "MoneyDeposited"
	EventTypeMoneyWithdrawn = "MoneyWithdrawn"
)

func (AccountCreated) EventType() string { return EventTypeAccountCreated }
func (MoneyDeposited) EventType() string { return EventTypeMoneyDeposited }
func (MoneyWithdrawn) EventType() string { return EventTypeMoneyWithdrawn }

func (AccountCreated) isAccountEvent() {}
func (MoneyDeposited) isAccountEvent() {}
func (MoneyWithdrawn) isAccountEvent() {}
