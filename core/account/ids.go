package account

import "github.com/google/uuid"

type (
	// AccountID identifies an account and derives its log stream keys.
	AccountID string
	// CustomerID identifies the customer owning an account.
	CustomerID string
)

func NewAccountID() AccountID   { return AccountID(uuid.NewString()) }
func NewCustomerID() CustomerID { return CustomerID(uuid.NewString()) }

func (id AccountID) String() string  { return string(id) }
func (id CustomerID) String() string { return string(id) }

// StreamKey is the log stream holding the account's events.
func StreamKey(id AccountID) string { return "account-" + string(id) }

// SnapshotStreamKey is the log stream holding the account's snapshots.
func SnapshotStreamKey(id AccountID) string { return "AccountSnapshot-" + string(id) }
