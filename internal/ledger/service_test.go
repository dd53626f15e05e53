package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/saldo-ledger/saldo/internal/ledger/accounts"
	"github.com/saldo-ledger/saldo/internal/ledger/money"
	"github.com/saldo-ledger/saldo/internal/ledger/posting"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
	"github.com/saldo-ledger/saldo/internal/shared"
)

// memStore backs both the accounts and the posting repositories for facade
// tests. WithTx restores the previous state when the callback errors.
type memStore struct {
	accs     map[string]accounts.Account
	entries  map[string]posting.Entry
	lines    []posting.Line
	byKey    map[string]string
	nextSeq  int64
	nextLine int64
}

func newMemStore() *memStore {
	return &memStore{
		accs:    make(map[string]accounts.Account),
		entries: make(map[string]posting.Entry),
		byKey:   make(map[string]string),
	}
}

func (m *memStore) addAccount(a accounts.Account) {
	if a.Status == "" {
		a.Status = accounts.AccountStatusActive
	}
	m.accs[a.ID] = a
}

func (m *memStore) Insert(ctx context.Context, a accounts.Account) error {
	if _, ok := m.accs[a.ID]; ok {
		return lshared.ErrAccountExists
	}
	m.accs[a.ID] = a
	return nil
}

func (m *memStore) Update(ctx context.Context, id string, upd accounts.UpdateFields) (accounts.Account, error) {
	a, ok := m.accs[id]
	if !ok {
		return accounts.Account{}, lshared.ErrAccountNotFound
	}
	if upd.Status != nil {
		a.Status = *upd.Status
	}
	if upd.Type != nil {
		a.Type = *upd.Type
	}
	if upd.AllowOverdraft != nil {
		a.AllowOverdraft = *upd.AllowOverdraft
	}
	if upd.MinBalance != nil {
		a.MinBalance = *upd.MinBalance
	}
	m.accs[id] = a
	return a, nil
}

func (m *memStore) Get(ctx context.Context, id string) (accounts.Account, error) {
	a, ok := m.accs[id]
	if !ok {
		return accounts.Account{}, lshared.ErrAccountNotFound
	}
	return a, nil
}

func (m *memStore) GetMany(ctx context.Context, ids []string) ([]accounts.Account, error) {
	out := make([]accounts.Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.accs[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) Search(ctx context.Context, filter accounts.SearchFilter) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range m.accs {
		if filter.Code != "" && a.Code != filter.Code {
			continue
		}
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, posting.TxRepository) error) error {
	accsCopy := make(map[string]accounts.Account, len(m.accs))
	for k, v := range m.accs {
		accsCopy[k] = v
	}
	entriesCopy := make(map[string]posting.Entry, len(m.entries))
	for k, v := range m.entries {
		entriesCopy[k] = v
	}
	linesCopy := append([]posting.Line(nil), m.lines...)
	keysCopy := make(map[string]string, len(m.byKey))
	for k, v := range m.byKey {
		keysCopy[k] = v
	}
	seq, line := m.nextSeq, m.nextLine
	if err := fn(ctx, m); err != nil {
		m.accs, m.entries, m.lines, m.byKey = accsCopy, entriesCopy, linesCopy, keysCopy
		m.nextSeq, m.nextLine = seq, line
		return err
	}
	return nil
}

func (m *memStore) GetEntry(ctx context.Context, id string) (posting.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return posting.Entry{}, lshared.ErrEntryNotFound
	}
	for _, l := range m.lines {
		if l.EntryID == id {
			e.Lines = append(e.Lines, l)
		}
	}
	return e, nil
}

func (m *memStore) GetEntries(ctx context.Context, ids []string) ([]posting.Entry, error) {
	out := make([]posting.Entry, 0, len(ids))
	for _, id := range ids {
		e, err := m.GetEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) GetBalance(ctx context.Context, accountID string) (posting.Balance, error) {
	a, ok := m.accs[accountID]
	if !ok {
		return posting.Balance{}, lshared.ErrAccountNotFound
	}
	return posting.Balance{AccountID: a.ID, Ledger: a.LedgerBalance, Pending: a.PendingBalance}, nil
}

func (m *memStore) GetBalances(ctx context.Context, accountIDs []string) ([]posting.Balance, error) {
	out := make([]posting.Balance, 0, len(accountIDs))
	for _, id := range accountIDs {
		b, err := m.GetBalance(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (m *memStore) FindEntryIDByKey(ctx context.Context, key string) (string, bool, error) {
	id, ok := m.byKey[key]
	return id, ok, nil
}

func (m *memStore) LockAccounts(ctx context.Context, ids []string) ([]accounts.Account, error) {
	out := make([]accounts.Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.accs[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) InsertEntry(ctx context.Context, e *posting.Entry) error {
	if _, ok := m.entries[e.ID]; ok {
		return lshared.ErrConcurrency
	}
	m.nextSeq++
	e.Sequence = m.nextSeq
	m.entries[e.ID] = *e
	if e.IdempotencyKey != "" {
		m.byKey[e.IdempotencyKey] = e.ID
	}
	return nil
}

func (m *memStore) InsertLines(ctx context.Context, lines []posting.Line) error {
	for _, l := range lines {
		m.nextLine++
		l.ID = m.nextLine
		m.lines = append(m.lines, l)
	}
	return nil
}

func (m *memStore) UpdateBalances(ctx context.Context, updates []posting.BalanceUpdate) error {
	for _, u := range updates {
		a, ok := m.accs[u.AccountID]
		if !ok {
			return fmt.Errorf("%w: %s", lshared.ErrAccountNotFound, u.AccountID)
		}
		a.LedgerBalance = u.Ledger
		a.PendingBalance = u.Pending
		m.accs[u.AccountID] = a
	}
	return nil
}

func (m *memStore) GetEntryForUpdate(ctx context.Context, id string) (posting.Entry, error) {
	return m.GetEntry(ctx, id)
}

func (m *memStore) GetEntryLines(ctx context.Context, entryID string) ([]posting.Line, error) {
	var out []posting.Line
	for _, l := range m.lines {
		if l.EntryID == entryID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) UpdateLineBalances(ctx context.Context, updates []posting.LineBalanceUpdate) error {
	for _, u := range updates {
		for i := range m.lines {
			if m.lines[i].ID == u.LineID {
				m.lines[i].BalanceAfter = u.BalanceAfter
			}
		}
	}
	return nil
}

func (m *memStore) SetEntryStatus(ctx context.Context, id string, status posting.EntryStatus, postedAt *time.Time) error {
	e, ok := m.entries[id]
	if !ok {
		return lshared.ErrEntryNotFound
	}
	e.Status = status
	e.PostedAt = postedAt
	m.entries[id] = e
	return nil
}

func (m *memStore) SumPostedLines(ctx context.Context, accountID string) (money.Amount, error) {
	var sum money.Amount
	for _, l := range m.lines {
		if l.AccountID == accountID && m.entries[l.EntryID].Status == posting.EntryStatusPosted {
			sum += l.Amount
		}
	}
	return sum, nil
}

func (m *memStore) SumPostedLinesByAccount(ctx context.Context) (map[string]money.Amount, error) {
	sums := make(map[string]money.Amount)
	for _, l := range m.lines {
		if m.entries[l.EntryID].Status == posting.EntryStatusPosted {
			sums[l.AccountID] += l.Amount
		}
	}
	return sums, nil
}

func (m *memStore) SetLedgerBalances(ctx context.Context, updates []posting.LedgerBalanceUpdate) error {
	for _, u := range updates {
		a, ok := m.accs[u.AccountID]
		if !ok {
			return fmt.Errorf("%w: %s", lshared.ErrAccountNotFound, u.AccountID)
		}
		a.LedgerBalance = u.Ledger
		m.accs[u.AccountID] = a
	}
	return nil
}

func (m *memStore) ListAccountIDs(ctx context.Context, activeOnly bool) ([]string, error) {
	var out []string
	for id, a := range m.accs {
		if activeOnly && a.Status != accounts.AccountStatusActive {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

func (m *memStore) CaptureSnapshot(ctx context.Context, snap posting.BalanceSnapshot) (bool, error) {
	return true, nil
}

type captureSink struct {
	facts []shared.AuditFact
}

func (c *captureSink) Record(ctx context.Context, fact shared.AuditFact) {
	c.facts = append(c.facts, fact)
}

func (c *captureSink) actions() []string {
	out := make([]string, 0, len(c.facts))
	for _, f := range c.facts {
		out = append(out, f.Action)
	}
	return out
}

func newTestFacade(t *testing.T) (*Service, *memStore, *captureSink) {
	t.Helper()
	store := newMemStore()
	sink := &captureSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	postingSvc := posting.NewService(store, nil, logger)
	postingSvc.WithNow(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})
	svc := NewService(accounts.NewService(store), postingSvc, sink, nil, logger)
	return svc, store, sink
}

func TestTransferConvertsDecimalLegs(t *testing.T) {
	svc, store, sink := newTestFacade(t)
	store.addAccount(accounts.Account{ID: "acc:a", Code: "1001", Type: accounts.AccountTypeAsset, LedgerBalance: 15000})
	store.addAccount(accounts.Account{ID: "acc:b", Code: "1002", Type: accounts.AccountTypeAsset})
	ctx := context.Background()

	entryID, err := svc.Transfer(ctx, TransferRequest{
		Description: "settlement",
		Debits:      []TransferLeg{{AccountID: "acc:a", Amount: "100.00"}},
		Credits:     []TransferLeg{{AccountID: "acc:b", Amount: "100.00"}},
		ActorID:     "ops:1",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	view, err := svc.GetEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if view.Status != string(posting.EntryStatusPosted) {
		t.Fatalf("status = %s", view.Status)
	}
	if len(view.Lines) != 2 {
		t.Fatalf("lines = %d", len(view.Lines))
	}
	if view.Lines[0].AccountID != "acc:a" || view.Lines[0].Amount != "-100.00" {
		t.Fatalf("debit line = %+v", view.Lines[0])
	}
	if view.Lines[1].AccountID != "acc:b" || view.Lines[1].Amount != "100.00" {
		t.Fatalf("credit line = %+v", view.Lines[1])
	}

	balance, err := svc.GetBalance(ctx, "acc:a")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Ledger != "50.00" {
		t.Fatalf("acc:a ledger = %s", balance.Ledger)
	}
	balance, err = svc.GetBalance(ctx, "acc:b")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Ledger != "100.00" {
		t.Fatalf("acc:b ledger = %s", balance.Ledger)
	}

	if len(sink.facts) != 1 || sink.facts[0].Action != "ledger.transfer" {
		t.Fatalf("audit facts = %v", sink.actions())
	}
	if sink.facts[0].TargetID != entryID || sink.facts[0].ActorID != "ops:1" {
		t.Fatalf("audit fact = %+v", sink.facts[0])
	}
}

func TestTransferRejectsUnbalancedLegs(t *testing.T) {
	svc, store, sink := newTestFacade(t)
	store.addAccount(accounts.Account{ID: "acc:a", Code: "1001", Type: accounts.AccountTypeAsset, LedgerBalance: 15000})
	store.addAccount(accounts.Account{ID: "acc:b", Code: "1002", Type: accounts.AccountTypeAsset})

	_, err := svc.Transfer(context.Background(), TransferRequest{
		Description: "skewed",
		Debits:      []TransferLeg{{AccountID: "acc:a", Amount: "100.00"}},
		Credits:     []TransferLeg{{AccountID: "acc:b", Amount: "99.99"}},
	})
	if !errors.Is(err, lshared.ErrInvalidCommand) {
		t.Fatalf("err = %v", err)
	}
	if len(store.entries) != 0 {
		t.Fatalf("entries = %d", len(store.entries))
	}
	if len(sink.facts) != 0 {
		t.Fatalf("audit facts = %v", sink.actions())
	}
}

func TestTransferRejectsBadLegAmounts(t *testing.T) {
	svc, store, _ := newTestFacade(t)
	store.addAccount(accounts.Account{ID: "acc:a", Code: "1001", Type: accounts.AccountTypeAsset, LedgerBalance: 15000})
	store.addAccount(accounts.Account{ID: "acc:b", Code: "1002", Type: accounts.AccountTypeAsset})

	for _, amount := range []string{"0.00", "-5.00", "1.005", "12,50", "abc"} {
		_, err := svc.Transfer(context.Background(), TransferRequest{
			Description: "bad leg",
			Debits:      []TransferLeg{{AccountID: "acc:a", Amount: amount}},
			Credits:     []TransferLeg{{AccountID: "acc:b", Amount: amount}},
		})
		if !errors.Is(err, lshared.ErrInvalidCommand) {
			t.Fatalf("amount %q: err = %v", amount, err)
		}
	}
	if len(store.entries) != 0 {
		t.Fatalf("entries = %d", len(store.entries))
	}
}

func TestTransferBatchRejectsMixedPending(t *testing.T) {
	svc, store, _ := newTestFacade(t)
	store.addAccount(accounts.Account{ID: "acc:a", Code: "1001", Type: accounts.AccountTypeAsset, LedgerBalance: 15000})
	store.addAccount(accounts.Account{ID: "acc:b", Code: "1002", Type: accounts.AccountTypeAsset})

	posted := TransferRequest{
		Description: "posted leg",
		Debits:      []TransferLeg{{AccountID: "acc:a", Amount: "10.00"}},
		Credits:     []TransferLeg{{AccountID: "acc:b", Amount: "10.00"}},
	}
	pending := posted
	pending.Pending = true

	_, err := svc.TransferBatch(context.Background(), []TransferRequest{posted, pending})
	if !errors.Is(err, lshared.ErrInvalidCommand) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.TransferBatch(context.Background(), nil); !errors.Is(err, lshared.ErrInvalidCommand) {
		t.Fatalf("empty batch err = %v", err)
	}
}

func TestPendingTransferThenPost(t *testing.T) {
	svc, store, sink := newTestFacade(t)
	store.addAccount(accounts.Account{ID: "acc:a", Code: "1001", Type: accounts.AccountTypeAsset, LedgerBalance: 15000})
	store.addAccount(accounts.Account{ID: "acc:b", Code: "1002", Type: accounts.AccountTypeAsset})
	ctx := context.Background()

	entryID, err := svc.Transfer(ctx, TransferRequest{
		Description: "hold",
		Debits:      []TransferLeg{{AccountID: "acc:a", Amount: "30.00"}},
		Credits:     []TransferLeg{{AccountID: "acc:b", Amount: "30.00"}},
		Pending:     true,
		ActorID:     "ops:1",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	view, err := svc.GetEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if view.Status != string(posting.EntryStatusPending) {
		t.Fatalf("status = %s", view.Status)
	}
	balance, err := svc.GetBalance(ctx, "acc:a")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Ledger != "150.00" || balance.Pending != "-30.00" {
		t.Fatalf("held balance = %+v", balance)
	}

	if err := svc.Post(ctx, entryID, "ops:2"); err != nil {
		t.Fatalf("post: %v", err)
	}
	view, err = svc.GetEntry(ctx, entryID)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if view.Status != string(posting.EntryStatusPosted) || view.PostedAt == nil {
		t.Fatalf("posted view = %+v", view)
	}
	balance, err = svc.GetBalance(ctx, "acc:a")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Ledger != "120.00" || balance.Pending != "0.00" {
		t.Fatalf("posted balance = %+v", balance)
	}

	want := []string{"ledger.transfer", "ledger.entry.post"}
	got := sink.actions()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("audit facts = %v", got)
	}
}

func TestCreateAccountParsesMinBalance(t *testing.T) {
	svc, store, sink := newTestFacade(t)
	ctx := context.Background()

	view, err := svc.CreateAccount(ctx, CreateAccountRequest{
		ID:         "acc:new",
		Code:       "1100",
		Type:       string(accounts.AccountTypeAsset),
		MinBalance: "25.00",
		ActorID:    "ops:1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if view.MinBalance != "25.00" || view.Status != string(accounts.AccountStatusActive) {
		t.Fatalf("view = %+v", view)
	}
	if store.accs["acc:new"].MinBalance != 2500 {
		t.Fatalf("stored min balance = %d", store.accs["acc:new"].MinBalance)
	}
	if len(sink.facts) != 1 || sink.facts[0].Action != "ledger.account.create" {
		t.Fatalf("audit facts = %v", sink.actions())
	}

	_, err = svc.CreateAccount(ctx, CreateAccountRequest{
		ID:         "acc:bad",
		Code:       "1101",
		Type:       string(accounts.AccountTypeAsset),
		MinBalance: "25.001",
	})
	if !errors.Is(err, lshared.ErrInvalidCommand) {
		t.Fatalf("err = %v", err)
	}
}

func TestBalancesDisplayOnNormalSide(t *testing.T) {
	svc, store, _ := newTestFacade(t)
	store.addAccount(accounts.Account{ID: "acc:loan", Code: "2001", Type: accounts.AccountTypeLiability, LedgerBalance: -10000})

	balance, err := svc.GetBalance(context.Background(), "acc:loan")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance.Ledger != "100.00" {
		t.Fatalf("liability ledger = %s", balance.Ledger)
	}

	view, err := svc.GetAccount(context.Background(), "acc:loan")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if view.LedgerBalance != "100.00" {
		t.Fatalf("account ledger = %s", view.LedgerBalance)
	}
}

func TestEntryViewReportsSealed(t *testing.T) {
	svc, store, _ := newTestFacade(t)
	hash := "a1b2"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.entries["e1"] = posting.Entry{
		ID: "e1", Description: "sealed", Status: posting.EntryStatusPosted,
		PostedAt: &now, CreatedAt: now, Hash: &hash, Sequence: 1,
	}

	view, err := svc.GetEntry(context.Background(), "e1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !view.Sealed {
		t.Fatalf("view = %+v", view)
	}
}
