package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saldo-ledger/saldo/internal/ledger/accounts"
	"github.com/saldo-ledger/saldo/internal/ledger/lockorder"
	"github.com/saldo-ledger/saldo/internal/ledger/money"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
)

// projection tracks an account's balances while a command is applied.
type projection struct {
	account accounts.Account
	ledger  money.Amount
	pending money.Amount
}

// commitEntry fully applies a balanced command inside the caller's
// transaction, or applies nothing. It issues a fixed number of statements
// regardless of line count: one account lock/fetch, one entry insert, one
// bulk balance update and one bulk line insert.
//
// The returned event is nil when the command was short-circuited by its
// idempotency key.
func commitEntry(ctx context.Context, tx TxRepository, cmd Command, posted bool, now time.Time) (string, *EntryPostedEvent, error) {
	if cmd.IdempotencyKey != "" {
		existing, found, err := tx.FindEntryIDByKey(ctx, cmd.IdempotencyKey)
		if err != nil {
			return "", nil, err
		}
		if found {
			return existing, nil, nil
		}
	}

	ids := make([]string, 0, len(cmd.Lines))
	for _, line := range cmd.Lines {
		ids = append(ids, line.AccountID)
	}
	ordered := lockorder.Accounts(ids)
	locked, err := tx.LockAccounts(ctx, ordered)
	if err != nil {
		return "", nil, err
	}
	projections := make(map[string]*projection, len(locked))
	for _, acc := range locked {
		projections[acc.ID] = &projection{account: acc, ledger: acc.LedgerBalance, pending: acc.PendingBalance}
	}
	if len(locked) < len(ordered) {
		for _, id := range ordered {
			if _, ok := projections[id]; !ok {
				return "", nil, fmt.Errorf("%w: %s", lshared.ErrAccountNotFound, id)
			}
		}
	}

	var sum money.Amount
	for _, line := range cmd.Lines {
		proj := projections[line.AccountID]
		if err := checkStatus(proj.account, line.Amount); err != nil {
			return "", nil, err
		}
		if posted {
			proj.ledger += line.Amount
		} else {
			proj.pending += line.Amount
		}
		if err := checkOverdraft(proj, posted); err != nil {
			return "", nil, err
		}
		sum += line.Amount
	}
	if sum != 0 {
		return "", nil, &lshared.ImbalanceError{Remainder: int64(sum)}
	}

	entry := Entry{
		ID:             uuid.NewString(),
		Description:    cmd.Description,
		Status:         EntryStatusPending,
		CreatedAt:      now,
		IdempotencyKey: cmd.IdempotencyKey,
		ExternalRef:    cmd.ExternalRef,
		CorrelationID:  cmd.CorrelationID,
		ValueDate:      cmd.ValueDate,
		Metadata:       cmd.Metadata,
	}
	if posted {
		entry.Status = EntryStatusPosted
		postedAt := now
		entry.PostedAt = &postedAt
	}
	if err := tx.InsertEntry(ctx, &entry); err != nil {
		return "", nil, err
	}

	updates := make([]BalanceUpdate, 0, len(ordered))
	for _, id := range ordered {
		proj := projections[id]
		updates = append(updates, BalanceUpdate{AccountID: id, Ledger: proj.ledger, Pending: proj.pending})
	}
	if err := tx.UpdateBalances(ctx, updates); err != nil {
		return "", nil, err
	}

	// Per-account running ledger totals in line order. Pending commits do
	// not move ledger balances, so their lines carry the pre-line balance.
	running := make(map[string]money.Amount, len(locked))
	for _, acc := range locked {
		running[acc.ID] = acc.LedgerBalance
	}
	lines := make([]Line, 0, len(cmd.Lines))
	event := &EntryPostedEvent{EntryID: entry.ID, Description: entry.Description, ExternalRef: entry.ExternalRef}
	for _, line := range cmd.Lines {
		if posted {
			running[line.AccountID] += line.Amount
		}
		lines = append(lines, Line{
			EntryID:      entry.ID,
			AccountID:    line.AccountID,
			Amount:       line.Amount,
			BalanceAfter: running[line.AccountID],
			CreatedAt:    now,
		})
		event.Lines = append(event.Lines, EventLine{AccountID: line.AccountID, Amount: line.Amount})
	}
	if err := tx.InsertLines(ctx, lines); err != nil {
		return "", nil, err
	}

	if !posted {
		event = nil
	}
	return entry.ID, event, nil
}

func checkStatus(acc accounts.Account, amount money.Amount) error {
	switch acc.Status {
	case accounts.AccountStatusFrozen:
		return fmt.Errorf("%w: %s", lshared.ErrAccountFrozen, acc.ID)
	case accounts.AccountStatusLockedOutflow:
		if acc.Type.IsOutflow(amount) {
			return fmt.Errorf("%w: %s", lshared.ErrOutflowLocked, acc.ID)
		}
	case accounts.AccountStatusLockedInflow:
		if acc.Type.IsInflow(amount) {
			return fmt.Errorf("%w: %s", lshared.ErrInflowLocked, acc.ID)
		}
	}
	return nil
}

// checkOverdraft enforces the type-specific balance bound for non-overdraft
// accounts. Only ASSET and LIABILITY carry a bound; the remaining types are
// unbounded regardless of the overdraft flag.
func checkOverdraft(proj *projection, posted bool) error {
	if proj.account.AllowOverdraft {
		return nil
	}
	effective := proj.ledger
	if !posted {
		effective = proj.ledger + proj.pending
	}
	switch proj.account.Type {
	case accounts.AccountTypeAsset:
		if effective < proj.account.MinBalance {
			return &lshared.InsufficientFundsError{
				AccountID: proj.account.ID,
				Balance:   int64(effective),
				Limit:     int64(proj.account.MinBalance),
			}
		}
	case accounts.AccountTypeLiability:
		if effective > 0 {
			return &lshared.InsufficientFundsError{
				AccountID: proj.account.ID,
				Balance:   int64(effective),
				Limit:     0,
			}
		}
	}
	return nil
}
