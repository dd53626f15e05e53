package posting

import (
	"context"
	"fmt"
	"time"

	"github.com/saldo-ledger/saldo/internal/ledger/accounts"
	"github.com/saldo-ledger/saldo/internal/ledger/money"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
)

// stubRepo is an in-memory Repository/TxRepository pair with transactional
// rollback, so batch all-or-nothing behavior is observable in tests.
type stubRepo struct {
	accs      map[string]accounts.Account
	entries   map[string]Entry
	lines     []Line
	byKey     map[string]string
	snapshots map[string]BalanceSnapshot
	nextSeq   int64
	nextLine  int64
}

func newStubRepo(accs ...accounts.Account) *stubRepo {
	r := &stubRepo{
		accs:      make(map[string]accounts.Account),
		entries:   make(map[string]Entry),
		byKey:     make(map[string]string),
		snapshots: make(map[string]BalanceSnapshot),
	}
	for _, a := range accs {
		r.accs[a.ID] = a
	}
	return r
}

type stubState struct {
	accs      map[string]accounts.Account
	entries   map[string]Entry
	lines     []Line
	byKey     map[string]string
	snapshots map[string]BalanceSnapshot
	nextSeq   int64
	nextLine  int64
}

func (r *stubRepo) snapshot() stubState {
	s := stubState{
		accs:      make(map[string]accounts.Account, len(r.accs)),
		entries:   make(map[string]Entry, len(r.entries)),
		lines:     append([]Line(nil), r.lines...),
		byKey:     make(map[string]string, len(r.byKey)),
		snapshots: make(map[string]BalanceSnapshot, len(r.snapshots)),
		nextSeq:   r.nextSeq,
		nextLine:  r.nextLine,
	}
	for k, v := range r.accs {
		s.accs[k] = v
	}
	for k, v := range r.entries {
		s.entries[k] = v
	}
	for k, v := range r.byKey {
		s.byKey[k] = v
	}
	for k, v := range r.snapshots {
		s.snapshots[k] = v
	}
	return s
}

func (r *stubRepo) restore(s stubState) {
	r.accs, r.entries, r.lines, r.byKey, r.snapshots = s.accs, s.entries, s.lines, s.byKey, s.snapshots
	r.nextSeq, r.nextLine = s.nextSeq, s.nextLine
}

func (r *stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := r.snapshot()
	if err := fn(ctx, &stubTx{repo: r}); err != nil {
		r.restore(before)
		return err
	}
	return nil
}

func (r *stubRepo) GetEntry(ctx context.Context, id string) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, lshared.ErrEntryNotFound
	}
	for _, line := range r.lines {
		if line.EntryID == id {
			e.Lines = append(e.Lines, line)
		}
	}
	return e, nil
}

func (r *stubRepo) GetEntries(ctx context.Context, ids []string) ([]Entry, error) {
	var out []Entry
	for _, id := range ids {
		e, err := r.GetEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *stubRepo) GetBalance(ctx context.Context, accountID string) (Balance, error) {
	a, ok := r.accs[accountID]
	if !ok {
		return Balance{}, lshared.ErrAccountNotFound
	}
	return Balance{AccountID: a.ID, Ledger: a.LedgerBalance, Pending: a.PendingBalance}, nil
}

func (r *stubRepo) GetBalances(ctx context.Context, accountIDs []string) ([]Balance, error) {
	var out []Balance
	for _, id := range accountIDs {
		b, err := r.GetBalance(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

type stubTx struct {
	repo *stubRepo
}

func (t *stubTx) FindEntryIDByKey(ctx context.Context, key string) (string, bool, error) {
	id, ok := t.repo.byKey[key]
	return id, ok, nil
}

func (t *stubTx) LockAccounts(ctx context.Context, ids []string) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, id := range ids {
		if a, ok := t.repo.accs[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *stubTx) InsertEntry(ctx context.Context, e *Entry) error {
	if e.IdempotencyKey != "" {
		if _, exists := t.repo.byKey[e.IdempotencyKey]; exists {
			return lshared.ErrConcurrency
		}
		t.repo.byKey[e.IdempotencyKey] = e.ID
	}
	t.repo.nextSeq++
	e.Sequence = t.repo.nextSeq
	t.repo.entries[e.ID] = *e
	return nil
}

func (t *stubTx) InsertLines(ctx context.Context, lines []Line) error {
	for _, line := range lines {
		t.repo.nextLine++
		line.ID = t.repo.nextLine
		t.repo.lines = append(t.repo.lines, line)
	}
	return nil
}

func (t *stubTx) UpdateBalances(ctx context.Context, updates []BalanceUpdate) error {
	for _, u := range updates {
		a, ok := t.repo.accs[u.AccountID]
		if !ok {
			return fmt.Errorf("unknown account %s", u.AccountID)
		}
		a.LedgerBalance = u.Ledger
		a.PendingBalance = u.Pending
		t.repo.accs[u.AccountID] = a
	}
	return nil
}

func (t *stubTx) GetEntryForUpdate(ctx context.Context, id string) (Entry, error) {
	e, ok := t.repo.entries[id]
	if !ok {
		return Entry{}, lshared.ErrEntryNotFound
	}
	return e, nil
}

func (t *stubTx) GetEntryLines(ctx context.Context, entryID string) ([]Line, error) {
	var out []Line
	for _, line := range t.repo.lines {
		if line.EntryID == entryID {
			out = append(out, line)
		}
	}
	return out, nil
}

func (t *stubTx) UpdateLineBalances(ctx context.Context, updates []LineBalanceUpdate) error {
	for _, u := range updates {
		for i := range t.repo.lines {
			if t.repo.lines[i].ID == u.LineID {
				t.repo.lines[i].BalanceAfter = u.BalanceAfter
			}
		}
	}
	return nil
}

func (t *stubTx) SetEntryStatus(ctx context.Context, id string, status EntryStatus, postedAt *time.Time) error {
	e, ok := t.repo.entries[id]
	if !ok {
		return lshared.ErrEntryNotFound
	}
	e.Status = status
	if postedAt != nil {
		e.PostedAt = postedAt
	}
	t.repo.entries[id] = e
	return nil
}

func (t *stubTx) SumPostedLines(ctx context.Context, accountID string) (money.Amount, error) {
	var sum money.Amount
	for _, line := range t.repo.lines {
		if line.AccountID != accountID {
			continue
		}
		if t.repo.entries[line.EntryID].Status == EntryStatusPosted {
			sum += line.Amount
		}
	}
	return sum, nil
}

func (t *stubTx) SumPostedLinesByAccount(ctx context.Context) (map[string]money.Amount, error) {
	sums := make(map[string]money.Amount)
	for _, line := range t.repo.lines {
		if t.repo.entries[line.EntryID].Status == EntryStatusPosted {
			sums[line.AccountID] += line.Amount
		}
	}
	return sums, nil
}

func (t *stubTx) SetLedgerBalances(ctx context.Context, updates []LedgerBalanceUpdate) error {
	for _, u := range updates {
		a, ok := t.repo.accs[u.AccountID]
		if !ok {
			return fmt.Errorf("unknown account %s", u.AccountID)
		}
		a.LedgerBalance = u.Ledger
		t.repo.accs[u.AccountID] = a
	}
	return nil
}

func (t *stubTx) ListAccountIDs(ctx context.Context, activeOnly bool) ([]string, error) {
	var ids []string
	for id, a := range t.repo.accs {
		if activeOnly && a.Status != accounts.AccountStatusActive {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (t *stubTx) CaptureSnapshot(ctx context.Context, snap BalanceSnapshot) (bool, error) {
	a, ok := t.repo.accs[snap.AccountID]
	if !ok {
		return false, nil
	}
	key := snap.AccountID + "|" + snap.CreatedAt.UTC().Format(time.RFC3339Nano)
	if _, exists := t.repo.snapshots[key]; exists {
		return false, nil
	}
	snap.Balance = a.LedgerBalance
	t.repo.snapshots[key] = snap
	return true, nil
}

// captureNotifier records emitted events.
type captureNotifier struct {
	events []EntryPostedEvent
}

func (n *captureNotifier) EntryPosted(ctx context.Context, event EntryPostedEvent) {
	n.events = append(n.events, event)
}
