package account

import "errors"

var (
	ErrInsufficientBalance = errors.New("balance is insufficient")
	ErrNotInitialized      = errors.New("account not initialized")
	ErrAlreadyInitialized  = errors.New("account already initialized")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidCustomer     = errors.New("customer id is required")
	ErrVersionGap          = errors.New("event position out of order")
)
