package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand indicates a malformed, empty or unbalanced request,
	// rejected before any row lock is taken.
	ErrInvalidCommand = errors.New("ledger: invalid command")
	// ErrAccountNotFound indicates a referenced account row does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountExists indicates an account id or code collision on create.
	ErrAccountExists = errors.New("ledger: account already exists")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrEntryNotPending indicates a lifecycle action on a POSTED or VOID entry.
	ErrEntryNotPending = errors.New("ledger: entry is not pending")
	// ErrAccountFrozen indicates the account status forbids any movement.
	ErrAccountFrozen = errors.New("ledger: account is frozen")
	// ErrInflowLocked indicates the account rejects inflows.
	ErrInflowLocked = errors.New("ledger: account is locked for inflows")
	// ErrOutflowLocked indicates the account rejects outflows.
	ErrOutflowLocked = errors.New("ledger: account is locked for outflows")
	// ErrConcurrency indicates a write conflict the store could not serialize.
	ErrConcurrency = errors.New("ledger: concurrent update conflict")
	// ErrImbalance is the errors.Is target for ImbalanceError.
	ErrImbalance = errors.New("ledger: entry lines do not sum to zero")
	// ErrInsufficientFunds is the errors.Is target for InsufficientFundsError.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// ImbalanceError carries the nonzero remainder of an unbalanced command.
// It is the writer's last line of defense; callers are expected to
// pre-balance.
type ImbalanceError struct {
	Remainder int64
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("ledger: entry lines sum to %d, want 0", e.Remainder)
}

func (e *ImbalanceError) Is(target error) bool {
	return target == ErrImbalance
}

// InsufficientFundsError reports the account whose projected effective
// balance would cross its type-specific bound, in minor units.
type InsufficientFundsError struct {
	AccountID string
	Balance   int64
	Limit     int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("ledger: insufficient funds on account %s: effective balance %d breaches limit %d", e.AccountID, e.Balance, e.Limit)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
