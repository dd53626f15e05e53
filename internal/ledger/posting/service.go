package posting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saldo-ledger/saldo/internal/ledger/accounts"
	"github.com/saldo-ledger/saldo/internal/ledger/lockorder"
	"github.com/saldo-ledger/saldo/internal/ledger/money"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
)

// Service orchestrates entry lifecycle operations. Every operation runs
// inside one database transaction; notifications are emitted only after
// the transaction has committed.
type Service struct {
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePosted commits a command as a POSTED entry.
func (s *Service) CreatePosted(ctx context.Context, cmd Command) (string, error) {
	return s.create(ctx, cmd, true)
}

// CreatePending commits a command as a PENDING reservation: amounts move
// into pending balances only.
func (s *Service) CreatePending(ctx context.Context, cmd Command) (string, error) {
	return s.create(ctx, cmd, false)
}

func (s *Service) create(ctx context.Context, cmd Command, posted bool) (string, error) {
	if err := cmd.Validate(); err != nil {
		return "", err
	}
	var entryID string
	var event *EntryPostedEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entryID, event, err = commitEntry(ctx, tx, cmd, posted, s.now())
		return err
	})
	if err != nil {
		return "", err
	}
	s.emit(ctx, event)
	return entryID, nil
}

// CreatePostedBatch commits all commands in one transaction: the batch is
// all-or-nothing.
func (s *Service) CreatePostedBatch(ctx context.Context, cmds []Command) ([]string, error) {
	return s.createBatch(ctx, cmds, true)
}

func (s *Service) CreatePendingBatch(ctx context.Context, cmds []Command) ([]string, error) {
	return s.createBatch(ctx, cmds, false)
}

func (s *Service) createBatch(ctx context.Context, cmds []Command, posted bool) ([]string, error) {
	if len(cmds) == 0 {
		return nil, fmt.Errorf("%w: empty batch", lshared.ErrInvalidCommand)
	}
	for _, cmd := range cmds {
		if err := cmd.Validate(); err != nil {
			return nil, err
		}
	}
	ids := make([]string, 0, len(cmds))
	events := make([]*EntryPostedEvent, 0, len(cmds))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, cmd := range cmds {
			id, event, err := commitEntry(ctx, tx, cmd, posted, s.now())
			if err != nil {
				return err
			}
			ids = append(ids, id)
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		s.emit(ctx, event)
	}
	return ids, nil
}

// Post promotes a PENDING entry: each line's amount moves from its
// account's pending balance into the ledger balance and the line's running
// balance is rewritten to the new ledger total.
func (s *Service) Post(ctx context.Context, entryID string) error {
	var event *EntryPostedEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		event, err = s.postInTx(ctx, tx, entryID)
		return err
	})
	if err != nil {
		return err
	}
	s.emit(ctx, event)
	return nil
}

// PostBatch posts every entry within one transaction.
func (s *Service) PostBatch(ctx context.Context, entryIDs []string) error {
	events := make([]*EntryPostedEvent, 0, len(entryIDs))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range entryIDs {
			event, err := s.postInTx(ctx, tx, id)
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, event := range events {
		s.emit(ctx, event)
	}
	return nil
}

func (s *Service) postInTx(ctx context.Context, tx TxRepository, entryID string) (*EntryPostedEvent, error) {
	entry, err := tx.GetEntryForUpdate(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != EntryStatusPending {
		return nil, fmt.Errorf("%w: entry %s is %s", lshared.ErrEntryNotPending, entryID, entry.Status)
	}
	lines, err := tx.GetEntryLines(ctx, entryID)
	if err != nil {
		return nil, err
	}
	locked, err := s.lockLineAccounts(ctx, tx, lines)
	if err != nil {
		return nil, err
	}
	for _, acc := range locked {
		if acc.Status == accounts.AccountStatusFrozen {
			return nil, fmt.Errorf("%w: %s", lshared.ErrAccountFrozen, acc.ID)
		}
	}

	ledgers := make(map[string]money.Amount, len(locked))
	pendings := make(map[string]money.Amount, len(locked))
	for _, acc := range locked {
		ledgers[acc.ID] = acc.LedgerBalance
		pendings[acc.ID] = acc.PendingBalance
	}
	lineUpdates := make([]LineBalanceUpdate, 0, len(lines))
	event := &EntryPostedEvent{EntryID: entry.ID, Description: entry.Description, ExternalRef: entry.ExternalRef}
	for _, line := range lines {
		pendings[line.AccountID] -= line.Amount
		ledgers[line.AccountID] += line.Amount
		lineUpdates = append(lineUpdates, LineBalanceUpdate{LineID: line.ID, BalanceAfter: ledgers[line.AccountID]})
		event.Lines = append(event.Lines, EventLine{AccountID: line.AccountID, Amount: line.Amount})
	}
	updates := make([]BalanceUpdate, 0, len(locked))
	for _, acc := range locked {
		updates = append(updates, BalanceUpdate{AccountID: acc.ID, Ledger: ledgers[acc.ID], Pending: pendings[acc.ID]})
	}
	if err := tx.UpdateBalances(ctx, updates); err != nil {
		return nil, err
	}
	if err := tx.UpdateLineBalances(ctx, lineUpdates); err != nil {
		return nil, err
	}
	postedAt := s.now()
	if err := tx.SetEntryStatus(ctx, entryID, EntryStatusPosted, &postedAt); err != nil {
		return nil, err
	}
	return event, nil
}

// Void releases a PENDING reservation. Ledger balances never moved, so
// only pending balances are walked back.
func (s *Service) Void(ctx context.Context, entryID string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return s.voidInTx(ctx, tx, entryID)
	})
}

func (s *Service) VoidBatch(ctx context.Context, entryIDs []string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range entryIDs {
			if err := s.voidInTx(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) voidInTx(ctx context.Context, tx TxRepository, entryID string) error {
	entry, err := tx.GetEntryForUpdate(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status != EntryStatusPending {
		return fmt.Errorf("%w: entry %s is %s", lshared.ErrEntryNotPending, entryID, entry.Status)
	}
	lines, err := tx.GetEntryLines(ctx, entryID)
	if err != nil {
		return err
	}
	locked, err := s.lockLineAccounts(ctx, tx, lines)
	if err != nil {
		return err
	}
	pendings := make(map[string]money.Amount, len(locked))
	ledgers := make(map[string]money.Amount, len(locked))
	for _, acc := range locked {
		pendings[acc.ID] = acc.PendingBalance
		ledgers[acc.ID] = acc.LedgerBalance
	}
	for _, line := range lines {
		pendings[line.AccountID] -= line.Amount
	}
	updates := make([]BalanceUpdate, 0, len(locked))
	for _, acc := range locked {
		updates = append(updates, BalanceUpdate{AccountID: acc.ID, Ledger: ledgers[acc.ID], Pending: pendings[acc.ID]})
	}
	if err := tx.UpdateBalances(ctx, updates); err != nil {
		return err
	}
	return tx.SetEntryStatus(ctx, entryID, EntryStatusVoid, nil)
}

// Reverse creates a new POSTED entry negating every line of the original.
// The original entry is untouched; the reversal carries the original id as
// its correlation id.
func (s *Service) Reverse(ctx context.Context, entryID string) (string, error) {
	var reversalID string
	var event *EntryPostedEvent
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, entryID)
		if err != nil {
			return err
		}
		lines, err := tx.GetEntryLines(ctx, entryID)
		if err != nil {
			return err
		}
		cmd := Command{
			Description:   fmt.Sprintf("Reversal of entry %s: %s", original.ID, original.Description),
			CorrelationID: original.ID,
			ExternalRef:   original.ExternalRef,
			Metadata:      original.Metadata,
		}
		for _, line := range lines {
			cmd.Lines = append(cmd.Lines, CommandLine{AccountID: line.AccountID, Amount: -line.Amount})
		}
		if len(cmd.Lines) == 0 {
			return fmt.Errorf("%w: entry %s has no lines", lshared.ErrInvalidCommand, entryID)
		}
		reversalID, event, err = commitEntry(ctx, tx, cmd, true, s.now())
		return err
	})
	if err != nil {
		return "", err
	}
	s.emit(ctx, event)
	return reversalID, nil
}

// RebuildAccountBalance recomputes the account's ledger balance from its
// POSTED lines and overwrites the stored value when they disagree. The row
// lock makes it safe against concurrent commits.
func (s *Service) RebuildAccountBalance(ctx context.Context, accountID string) (RebuildResult, error) {
	var result RebuildResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockAccounts(ctx, []string{accountID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return fmt.Errorf("%w: %s", lshared.ErrAccountNotFound, accountID)
		}
		acc := locked[0]
		rebuilt, err := tx.SumPostedLines(ctx, accountID)
		if err != nil {
			return err
		}
		result = RebuildResult{AccountID: accountID, Old: acc.LedgerBalance, New: rebuilt, Diff: rebuilt - acc.LedgerBalance}
		if result.Diff == 0 {
			return nil
		}
		return tx.SetLedgerBalances(ctx, []LedgerBalanceUpdate{{AccountID: accountID, Ledger: rebuilt}})
	})
	if err != nil {
		return RebuildResult{}, err
	}
	if result.Diff != 0 {
		s.logger.Warn("account balance rebuilt",
			slog.String("account_id", result.AccountID),
			slog.Int64("old", int64(result.Old)),
			slog.Int64("new", int64(result.New)),
		)
	}
	return result, nil
}

// CaptureSnapshot records the account's current ledger balance.
func (s *Service) CaptureSnapshot(ctx context.Context, accountID string) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockAccounts(ctx, []string{accountID})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return fmt.Errorf("%w: %s", lshared.ErrAccountNotFound, accountID)
		}
		_, err = tx.CaptureSnapshot(ctx, BalanceSnapshot{ID: uuid.NewString(), AccountID: accountID, CreatedAt: s.now()})
		return err
	})
}

// RunSnapshot captures a balance snapshot for every ACTIVE account.
func (s *Service) RunSnapshot(ctx context.Context) (SnapshotResult, error) {
	var result SnapshotResult
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids, err := tx.ListAccountIDs(ctx, true)
		if err != nil {
			return err
		}
		result.Accounts = len(ids)
		for _, id := range ids {
			inserted, err := tx.CaptureSnapshot(ctx, BalanceSnapshot{ID: uuid.NewString(), AccountID: id, CreatedAt: now})
			if err != nil {
				return err
			}
			if inserted {
				result.Snapshots++
			}
		}
		return nil
	})
	if err != nil {
		return SnapshotResult{}, err
	}
	return result, nil
}

// RunEndOfDay recomputes every account's ledger balance from POSTED lines
// in one transaction and corrects any drift. With AsOf set, every account
// is snapshotted at that timestamp; otherwise only corrected accounts are.
func (s *Service) RunEndOfDay(ctx context.Context, opts EndOfDayOptions) (EndOfDayResult, error) {
	var result EndOfDayResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ids, err := tx.ListAccountIDs(ctx, false)
		if err != nil {
			return err
		}
		locked, err := tx.LockAccounts(ctx, ids)
		if err != nil {
			return err
		}
		result.Accounts = len(locked)
		sums, err := tx.SumPostedLinesByAccount(ctx)
		if err != nil {
			return err
		}
		var updates []LedgerBalanceUpdate
		for _, acc := range locked {
			want := sums[acc.ID]
			if want == acc.LedgerBalance {
				continue
			}
			result.Corrected = append(result.Corrected, RebuildResult{
				AccountID: acc.ID, Old: acc.LedgerBalance, New: want, Diff: want - acc.LedgerBalance,
			})
			updates = append(updates, LedgerBalanceUpdate{AccountID: acc.ID, Ledger: want})
		}
		if err := tx.SetLedgerBalances(ctx, updates); err != nil {
			return err
		}

		snapshotAt := s.now()
		snapshotIDs := make([]string, 0, len(result.Corrected))
		if opts.AsOf != nil {
			snapshotAt = *opts.AsOf
			snapshotIDs = ids
		} else {
			for _, c := range result.Corrected {
				snapshotIDs = append(snapshotIDs, c.AccountID)
			}
		}
		for _, id := range snapshotIDs {
			inserted, err := tx.CaptureSnapshot(ctx, BalanceSnapshot{ID: uuid.NewString(), AccountID: id, CreatedAt: snapshotAt})
			if err != nil {
				return err
			}
			if inserted {
				result.Snapshots++
			}
		}
		return nil
	})
	if err != nil {
		return EndOfDayResult{}, err
	}
	return result, nil
}

func (s *Service) GetEntry(ctx context.Context, entryID string) (Entry, error) {
	return s.repo.GetEntry(ctx, entryID)
}

func (s *Service) GetEntries(ctx context.Context, entryIDs []string) ([]Entry, error) {
	return s.repo.GetEntries(ctx, entryIDs)
}

func (s *Service) GetBalance(ctx context.Context, accountID string) (Balance, error) {
	return s.repo.GetBalance(ctx, accountID)
}

func (s *Service) GetBalances(ctx context.Context, accountIDs []string) ([]Balance, error) {
	return s.repo.GetBalances(ctx, accountIDs)
}

// lockLineAccounts locks the accounts referenced by lines in global lock
// order and requires all of them to exist.
func (s *Service) lockLineAccounts(ctx context.Context, tx TxRepository, lines []Line) ([]accounts.Account, error) {
	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.AccountID)
	}
	ordered := lockorder.Accounts(ids)
	locked, err := tx.LockAccounts(ctx, ordered)
	if err != nil {
		return nil, err
	}
	if len(locked) < len(ordered) {
		found := make(map[string]struct{}, len(locked))
		for _, acc := range locked {
			found[acc.ID] = struct{}{}
		}
		for _, id := range ordered {
			if _, ok := found[id]; !ok {
				return nil, fmt.Errorf("%w: %s", lshared.ErrAccountNotFound, id)
			}
		}
	}
	return locked, nil
}

func (s *Service) emit(ctx context.Context, event *EntryPostedEvent) {
	if event == nil || s.notifier == nil {
		return
	}
	s.notifier.EntryPosted(ctx, *event)
}
