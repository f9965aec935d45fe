package ledger

import "errors"

var (
	// ErrNotFound is returned when the team or stock does not exist.
	ErrNotFound = errors.New("ledger: not found")

	// ErrStoreUnavailable is returned when the store cannot be read or
	// written. No state was changed.
	ErrStoreUnavailable = errors.New("ledger: store unavailable")

	// ErrInsufficientFunds is returned under the strict policy when a
	// mutation would leave a negative deposit.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientHoldings is returned when selling more lots than held.
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")

	// ErrInvalidTransfer is returned under the strict policy for a transfer
	// whose source and destination are the same team.
	ErrInvalidTransfer = errors.New("ledger: invalid transfer")

	// ErrInvalidAmount is returned for a non-positive amount or lot count.
	ErrInvalidAmount = errors.New("ledger: invalid amount")

	ErrInvalidMode = errors.New("ledger: unknown deposit mode")
	ErrInvalidSide = errors.New("ledger: unknown trade side")
)
