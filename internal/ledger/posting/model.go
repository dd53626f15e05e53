package posting

import (
	"fmt"
	"time"

	"github.com/saldo-ledger/saldo/internal/ledger/money"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
)

// EntryStatus enumerates the journal entry lifecycle.
type EntryStatus string

const (
	EntryStatusPending EntryStatus = "PENDING"
	EntryStatusPosted  EntryStatus = "POSTED"
	EntryStatusVoid    EntryStatus = "VOID"
)

// Entry is a journal header grouping a balanced set of lines. Hash and
// PreviousHash stay nil until the asynchronous sealer reaches the entry;
// once sealed they are immutable.
type Entry struct {
	ID             string
	Description    string
	Status         EntryStatus
	PostedAt       *time.Time
	CreatedAt      time.Time
	IdempotencyKey string
	ExternalRef    string
	CorrelationID  string
	ValueDate      *time.Time
	Metadata       map[string]any
	Hash           *string
	PreviousHash   *string
	Sequence       int64
	Lines          []Line
}

// Line is one account movement within an entry. Amount uses the debit
// convention: positive increases the account's ledger balance on post.
// BalanceAfter is the owning account's running ledger balance immediately
// after the line is posted; while the line is pending it equals the
// pre-line ledger balance.
type Line struct {
	ID           int64
	EntryID      string
	AccountID    string
	Amount       money.Amount
	BalanceAfter money.Amount
	CreatedAt    time.Time
}

// CommandLine is one account movement of a Command.
type CommandLine struct {
	AccountID string
	Amount    money.Amount
}

// Command is the ephemeral input to the ledger writer. Line amounts must
// sum to exactly zero.
type Command struct {
	Description    string
	IdempotencyKey string
	ExternalRef    string
	CorrelationID  string
	ValueDate      *time.Time
	Metadata       map[string]any
	Lines          []CommandLine
}

// Validate rejects structurally broken commands before any lock is taken.
// The zero-sum check lives in the writer, where it guards committed state.
func (c Command) Validate() error {
	if c.Description == "" {
		return fmt.Errorf("%w: description required", lshared.ErrInvalidCommand)
	}
	if len(c.Lines) < 2 {
		return fmt.Errorf("%w: at least two lines required", lshared.ErrInvalidCommand)
	}
	for i, line := range c.Lines {
		if line.AccountID == "" {
			return fmt.Errorf("%w: line %d missing account", lshared.ErrInvalidCommand, i)
		}
	}
	return nil
}

// BalanceSnapshot is an append-only point-in-time copy of an account's
// ledger balance.
type BalanceSnapshot struct {
	ID        string
	AccountID string
	Balance   money.Amount
	CreatedAt time.Time
}

// Balance is the read-side view of an account's balances.
type Balance struct {
	AccountID string
	Ledger    money.Amount
	Pending   money.Amount
}

// RebuildResult reports a single account reconciliation.
type RebuildResult struct {
	AccountID string
	Old       money.Amount
	New       money.Amount
	Diff      money.Amount
}

// EndOfDayOptions controls the EOD rebuild run. When AsOf is set every
// account is snapshotted at that timestamp (idempotent per account and
// timestamp); otherwise only corrected accounts are snapshotted.
type EndOfDayOptions struct {
	AsOf *time.Time
}

// EndOfDayResult summarizes an EOD rebuild.
type EndOfDayResult struct {
	Accounts  int
	Corrected []RebuildResult
	Snapshots int
}

// SnapshotResult summarizes a snapshot sweep over active accounts.
type SnapshotResult struct {
	Accounts  int
	Snapshots int
}
