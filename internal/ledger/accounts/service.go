package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/saldo-ledger/saldo/internal/ledger/money"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
)

// CreateInput groups the fields needed to open an account. The id is
// supplied by the owning platform and encodes domain ownership; the ledger
// treats it as opaque.
type CreateInput struct {
	ID             string
	Code           string
	Type           AccountType
	ParentID       *string
	IsHeader       bool
	AllowOverdraft bool
	MinBalance     money.Amount
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if in.ID == "" || in.Code == "" {
		return Account{}, fmt.Errorf("%w: account id and code required", lshared.ErrInvalidCommand)
	}
	if !in.Type.Valid() {
		return Account{}, fmt.Errorf("%w: unknown account type %q", lshared.ErrInvalidCommand, in.Type)
	}
	a := Account{
		ID:             in.ID,
		Code:           in.Code,
		Type:           in.Type,
		Status:         AccountStatusActive,
		ParentID:       in.ParentID,
		IsHeader:       in.IsHeader,
		AllowOverdraft: in.AllowOverdraft,
		MinBalance:     in.MinBalance,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (s *Service) Update(ctx context.Context, id string, upd UpdateFields) (Account, error) {
	if upd.Status != nil && !upd.Status.Valid() {
		return Account{}, fmt.Errorf("%w: unknown account status %q", lshared.ErrInvalidCommand, *upd.Status)
	}
	if upd.Type != nil && !upd.Type.Valid() {
		return Account{}, fmt.Errorf("%w: unknown account type %q", lshared.ErrInvalidCommand, *upd.Type)
	}
	return s.repo.Update(ctx, id, upd)
}

func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetMany(ctx context.Context, ids []string) ([]Account, error) {
	return s.repo.GetMany(ctx, ids)
}

func (s *Service) Search(ctx context.Context, filter SearchFilter) ([]Account, error) {
	return s.repo.Search(ctx, filter)
}
