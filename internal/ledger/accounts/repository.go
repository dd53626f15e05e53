package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saldo-ledger/saldo/internal/ledger/money"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
	"github.com/saldo-ledger/saldo/internal/platform/db"
)

const accountColumns = `id, code, type, status, parent_id, is_header, allow_overdraft, min_balance, ledger_balance, pending_balance, created_at`

// UpdateFields lists the mutable account attributes. Nil fields are left
// untouched. Balances are deliberately absent: they belong to the posting
// engine.
type UpdateFields struct {
	Status         *AccountStatus
	Type           *AccountType
	AllowOverdraft *bool
	MinBalance     *money.Amount
}

// SearchFilter narrows a paged account listing.
type SearchFilter struct {
	Code   string
	Type   AccountType
	Status AccountStatus
	Limit  int
	Offset int
}

type Repository interface {
	Insert(ctx context.Context, a Account) error
	Update(ctx context.Context, id string, upd UpdateFields) (Account, error)
	Get(ctx context.Context, id string) (Account, error)
	GetMany(ctx context.Context, ids []string) ([]Account, error)
	Search(ctx context.Context, filter SearchFilter) ([]Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) Insert(ctx context.Context, a Account) error {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.Code, a.Type, a.Status, a.ParentID, a.IsHeader, a.AllowOverdraft,
		a.MinBalance, a.LedgerBalance, a.PendingBalance, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return lshared.ErrAccountExists
		}
		return err
	}
	return nil
}

// Update locks the row, applies the non-nil fields and returns the updated
// account. The lock serializes against in-flight commits touching the same
// account.
func (r *repository) Update(ctx context.Context, id string, upd UpdateFields) (Account, error) {
	var updated Account
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var current Account
		if err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id), &current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return lshared.ErrAccountNotFound
			}
			return err
		}
		if upd.Status != nil {
			current.Status = *upd.Status
		}
		if upd.Type != nil {
			current.Type = *upd.Type
		}
		if upd.AllowOverdraft != nil {
			current.AllowOverdraft = *upd.AllowOverdraft
		}
		if upd.MinBalance != nil {
			current.MinBalance = *upd.MinBalance
		}
		if _, err := tx.Exec(ctx, `UPDATE accounts SET status=$2, type=$3, allow_overdraft=$4, min_balance=$5 WHERE id=$1`,
			id, current.Status, current.Type, current.AllowOverdraft, current.MinBalance); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

func (r *repository) Get(ctx context.Context, id string) (Account, error) {
	var a Account
	err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id), &a)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, lshared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) GetMany(ctx context.Context, ids []string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) Search(ctx context.Context, filter SearchFilter) ([]Account, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE ($1 = '' OR code = $1)
  AND ($2 = '' OR type = $2)
  AND ($3 = '' OR status = $3)
ORDER BY code
LIMIT $4 OFFSET $5`, filter.Code, string(filter.Type), string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func scanAccount(row pgx.Row, a *Account) error {
	return row.Scan(&a.ID, &a.Code, &a.Type, &a.Status, &a.ParentID, &a.IsHeader,
		&a.AllowOverdraft, &a.MinBalance, &a.LedgerBalance, &a.PendingBalance, &a.CreatedAt)
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		var a Account
		if err := scanAccount(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
