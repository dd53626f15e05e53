package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/saldo-ledger/saldo/internal/ledger/accounts"
	"github.com/saldo-ledger/saldo/internal/ledger/cache"
	"github.com/saldo-ledger/saldo/internal/ledger/money"
	"github.com/saldo-ledger/saldo/internal/ledger/posting"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
	"github.com/saldo-ledger/saldo/internal/shared"
)

// Service is the public facade over the ledger. Amounts cross this boundary
// as decimal strings; internally everything runs on minor units.
type Service struct {
	accounts *accounts.Service
	posting  *posting.Service
	audit    shared.AuditSink
	cache    *cache.Cache
	validate *validator.Validate
	flight   singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(accountsSvc *accounts.Service, postingSvc *posting.Service, audit shared.AuditSink, balanceCache *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: accountsSvc,
		posting:  postingSvc,
		audit:    audit,
		cache:    balanceCache,
		validate: validator.New(),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Transfer commits a balanced movement. Debit legs decrease the stored
// ledger balance of their account and credit legs increase it; leg totals
// must match to the paisa.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	cmd, err := s.buildCommand(req)
	if err != nil {
		return "", err
	}
	var entryID string
	if req.Pending {
		entryID, err = s.posting.CreatePending(ctx, cmd)
	} else {
		entryID, err = s.posting.CreatePosted(ctx, cmd)
	}
	if err != nil {
		return "", err
	}
	s.record(ctx, "ledger.transfer", entryID, req.ActorID, map[string]any{"pending": req.Pending})
	s.bump(ctx)
	return entryID, nil
}

// TransferBatch commits every transfer in one transaction. Mixing pending
// and posted requests in one batch is rejected.
func (s *Service) TransferBatch(ctx context.Context, reqs []TransferRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", lshared.ErrInvalidCommand)
	}
	pending := reqs[0].Pending
	cmds := make([]posting.Command, 0, len(reqs))
	for _, req := range reqs {
		if req.Pending != pending {
			return nil, fmt.Errorf("%w: batch mixes pending and posted transfers", lshared.ErrInvalidCommand)
		}
		cmd, err := s.buildCommand(req)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	var ids []string
	var err error
	if pending {
		ids, err = s.posting.CreatePendingBatch(ctx, cmds)
	} else {
		ids, err = s.posting.CreatePostedBatch(ctx, cmds)
	}
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.record(ctx, "ledger.transfer", id, reqs[0].ActorID, map[string]any{"pending": pending, "batch": true})
	}
	s.bump(ctx)
	return ids, nil
}

// Post promotes a pending entry to POSTED.
func (s *Service) Post(ctx context.Context, entryID, actorID string) error {
	if err := s.posting.Post(ctx, entryID); err != nil {
		return err
	}
	s.record(ctx, "ledger.entry.post", entryID, actorID, nil)
	s.bump(ctx)
	return nil
}

// PostBatch promotes every entry in one transaction.
func (s *Service) PostBatch(ctx context.Context, entryIDs []string, actorID string) error {
	if err := s.posting.PostBatch(ctx, entryIDs); err != nil {
		return err
	}
	for _, id := range entryIDs {
		s.record(ctx, "ledger.entry.post", id, actorID, map[string]any{"batch": true})
	}
	s.bump(ctx)
	return nil
}

// Void releases a pending entry.
func (s *Service) Void(ctx context.Context, entryID, actorID string) error {
	if err := s.posting.Void(ctx, entryID); err != nil {
		return err
	}
	s.record(ctx, "ledger.entry.void", entryID, actorID, nil)
	s.bump(ctx)
	return nil
}

// VoidBatch releases every entry in one transaction.
func (s *Service) VoidBatch(ctx context.Context, entryIDs []string, actorID string) error {
	if err := s.posting.VoidBatch(ctx, entryIDs); err != nil {
		return err
	}
	for _, id := range entryIDs {
		s.record(ctx, "ledger.entry.void", id, actorID, map[string]any{"batch": true})
	}
	s.bump(ctx)
	return nil
}

// Reverse creates a posted counter-entry negating the original.
func (s *Service) Reverse(ctx context.Context, entryID, actorID string) (string, error) {
	reversalID, err := s.posting.Reverse(ctx, entryID)
	if err != nil {
		return "", err
	}
	s.record(ctx, "ledger.entry.reverse", reversalID, actorID, map[string]any{"original": entryID})
	s.bump(ctx)
	return reversalID, nil
}

// CreateAccount opens a new account.
func (s *Service) CreateAccount(ctx context.Context, req CreateAccountRequest) (AccountView, error) {
	if err := s.validate.Struct(req); err != nil {
		return AccountView{}, fmt.Errorf("%w: %v", lshared.ErrInvalidCommand, err)
	}
	minBalance := money.Amount(0)
	if req.MinBalance != "" {
		var err error
		minBalance, err = money.Parse(req.MinBalance)
		if err != nil {
			return AccountView{}, fmt.Errorf("%w: min balance: %v", lshared.ErrInvalidCommand, err)
		}
	}
	acc, err := s.accounts.Create(ctx, accounts.CreateInput{
		ID:             req.ID,
		Code:           req.Code,
		Type:           accounts.AccountType(req.Type),
		ParentID:       req.ParentID,
		IsHeader:       req.IsHeader,
		AllowOverdraft: req.AllowOverdraft,
		MinBalance:     minBalance,
	})
	if err != nil {
		return AccountView{}, err
	}
	s.record(ctx, "ledger.account.create", acc.ID, req.ActorID, map[string]any{"type": string(acc.Type)})
	return accountView(acc), nil
}

// UpdateAccount patches account attributes. Balance fields cannot be set
// through this path.
func (s *Service) UpdateAccount(ctx context.Context, id string, req UpdateAccountRequest) (AccountView, error) {
	upd := accounts.UpdateFields{AllowOverdraft: req.AllowOverdraft}
	if req.Status != nil {
		status := accounts.AccountStatus(*req.Status)
		upd.Status = &status
	}
	if req.Type != nil {
		typ := accounts.AccountType(*req.Type)
		upd.Type = &typ
	}
	if req.MinBalance != nil {
		minBalance, err := money.Parse(*req.MinBalance)
		if err != nil {
			return AccountView{}, fmt.Errorf("%w: min balance: %v", lshared.ErrInvalidCommand, err)
		}
		upd.MinBalance = &minBalance
	}
	acc, err := s.accounts.Update(ctx, id, upd)
	if err != nil {
		return AccountView{}, err
	}
	s.record(ctx, "ledger.account.update", id, req.ActorID, nil)
	s.bump(ctx)
	return accountView(acc), nil
}

func (s *Service) GetAccount(ctx context.Context, id string) (AccountView, error) {
	acc, err := s.accounts.Get(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	return accountView(acc), nil
}

func (s *Service) GetAccounts(ctx context.Context, ids []string) ([]AccountView, error) {
	accs, err := s.accounts.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]AccountView, 0, len(accs))
	for _, acc := range accs {
		views = append(views, accountView(acc))
	}
	return views, nil
}

func (s *Service) SearchAccounts(ctx context.Context, req SearchAccountsRequest) ([]AccountView, error) {
	accs, err := s.accounts.Search(ctx, accounts.SearchFilter{
		Code:   req.Code,
		Type:   accounts.AccountType(req.Type),
		Status: accounts.AccountStatus(req.Status),
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		return nil, err
	}
	views := make([]AccountView, 0, len(accs))
	for _, acc := range accs {
		views = append(views, accountView(acc))
	}
	return views, nil
}

// GetBalance returns the account's balances, display-normalized. Results
// pass through the versioned cache when one is configured; concurrent
// misses for the same key collapse into a single load.
func (s *Service) GetBalance(ctx context.Context, accountID string) (BalanceView, error) {
	if s.cache == nil {
		return s.loadBalance(ctx, accountID)
	}
	key, err := s.cache.BuildKey(ctx, "balance", accountID)
	if err != nil {
		s.logger.Warn("balance cache unavailable", slog.Any("error", err))
		return s.loadBalance(ctx, accountID)
	}
	result, err, _ := s.flight.Do(key, func() (any, error) {
		var view BalanceView
		err := s.cache.FetchJSON(ctx, key, &view, func(ctx context.Context) (any, error) {
			return s.loadBalance(ctx, accountID)
		})
		return view, err
	})
	if err != nil {
		return BalanceView{}, err
	}
	return result.(BalanceView), nil
}

func (s *Service) GetBalances(ctx context.Context, accountIDs []string) ([]BalanceView, error) {
	views := make([]BalanceView, len(accountIDs))
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range accountIDs {
		g.Go(func() error {
			view, err := s.GetBalance(ctx, id)
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Service) GetEntry(ctx context.Context, entryID string) (EntryView, error) {
	entry, err := s.posting.GetEntry(ctx, entryID)
	if err != nil {
		return EntryView{}, err
	}
	return entryView(entry), nil
}

func (s *Service) GetEntries(ctx context.Context, entryIDs []string) ([]EntryView, error) {
	entries, err := s.posting.GetEntries(ctx, entryIDs)
	if err != nil {
		return nil, err
	}
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entryView(entry))
	}
	return views, nil
}

// buildCommand validates the request and converts decimal legs into a
// zero-sum command: debit legs carry negative minor units, credit legs
// positive ones.
func (s *Service) buildCommand(req TransferRequest) (posting.Command, error) {
	if err := s.validate.Struct(req); err != nil {
		return posting.Command{}, fmt.Errorf("%w: %v", lshared.ErrInvalidCommand, err)
	}
	cmd := posting.Command{
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		ExternalRef:    req.ExternalRef,
		CorrelationID:  req.CorrelationID,
		ValueDate:      req.ValueDate,
		Metadata:       req.Metadata,
	}
	var debitTotal, creditTotal money.Amount
	for _, leg := range req.Debits {
		amount, err := parseLeg(leg)
		if err != nil {
			return posting.Command{}, err
		}
		debitTotal += amount
		cmd.Lines = append(cmd.Lines, posting.CommandLine{AccountID: leg.AccountID, Amount: -amount})
	}
	for _, leg := range req.Credits {
		amount, err := parseLeg(leg)
		if err != nil {
			return posting.Command{}, err
		}
		creditTotal += amount
		cmd.Lines = append(cmd.Lines, posting.CommandLine{AccountID: leg.AccountID, Amount: amount})
	}
	if debitTotal != creditTotal {
		return posting.Command{}, fmt.Errorf("%w: debits %s != credits %s",
			lshared.ErrInvalidCommand, money.Format(debitTotal), money.Format(creditTotal))
	}
	return cmd, nil
}

func parseLeg(leg TransferLeg) (money.Amount, error) {
	amount, err := money.Parse(leg.Amount)
	if err != nil {
		return 0, fmt.Errorf("%w: account %s: %v", lshared.ErrInvalidCommand, leg.AccountID, err)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: account %s: leg amount must be positive", lshared.ErrInvalidCommand, leg.AccountID)
	}
	return amount, nil
}

func (s *Service) loadBalance(ctx context.Context, accountID string) (BalanceView, error) {
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return BalanceView{}, err
	}
	return BalanceView{
		AccountID: acc.ID,
		Ledger:    money.Format(acc.Type.DisplayBalance(acc.LedgerBalance)),
		Pending:   money.Format(acc.Type.DisplayBalance(acc.PendingBalance)),
	}, nil
}

func (s *Service) record(ctx context.Context, action, targetID, actorID string, payload map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, shared.AuditFact{
		Action:   action,
		TargetID: targetID,
		ActorID:  actorID,
		Payload:  payload,
		At:       s.now(),
	})
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("balance cache bump failed", slog.Any("error", err))
	}
}

func accountView(acc accounts.Account) AccountView {
	return AccountView{
		ID:             acc.ID,
		Code:           acc.Code,
		Type:           string(acc.Type),
		Status:         string(acc.Status),
		ParentID:       acc.ParentID,
		IsHeader:       acc.IsHeader,
		AllowOverdraft: acc.AllowOverdraft,
		MinBalance:     money.Format(acc.MinBalance),
		LedgerBalance:  money.Format(acc.Type.DisplayBalance(acc.LedgerBalance)),
		PendingBalance: money.Format(acc.Type.DisplayBalance(acc.PendingBalance)),
		CreatedAt:      acc.CreatedAt,
	}
}

func entryView(entry posting.Entry) EntryView {
	view := EntryView{
		ID:             entry.ID,
		Description:    entry.Description,
		Status:         string(entry.Status),
		PostedAt:       entry.PostedAt,
		CreatedAt:      entry.CreatedAt,
		IdempotencyKey: entry.IdempotencyKey,
		ExternalRef:    entry.ExternalRef,
		CorrelationID:  entry.CorrelationID,
		ValueDate:      entry.ValueDate,
		Metadata:       entry.Metadata,
		Sequence:       entry.Sequence,
		Sealed:         entry.Hash != nil,
	}
	for _, line := range entry.Lines {
		view.Lines = append(view.Lines, LineView{
			AccountID:    line.AccountID,
			Amount:       money.Format(line.Amount),
			BalanceAfter: money.Format(line.BalanceAfter),
		})
	}
	return view
}
