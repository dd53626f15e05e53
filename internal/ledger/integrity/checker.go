// Package integrity runs structural checks over the ledger tables. Each
// check is an independent query; results are reported as counts so one bad
// row never hides the others.
package integrity

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Result carries a named count per check. OK holds iff every count is zero.
type Result struct {
	UnbalancedEntries    int `json:"unbalanced_entries"`
	DriftedAccounts      int `json:"drifted_accounts"`
	BrokenRunningBalance int `json:"broken_running_balance"`
	EmptyEntries         int `json:"empty_entries"`
	OK                   bool `json:"ok"`
}

// Repository is the checker's storage port.
type Repository interface {
	CountUnbalancedEntries(ctx context.Context) (int, error)
	CountDriftedAccounts(ctx context.Context) (int, error)
	CountBrokenRunningBalance(ctx context.Context) (int, error)
	CountEmptyEntries(ctx context.Context) (int, error)
}

type Checker struct {
	repo   Repository
	logger *slog.Logger
}

func NewChecker(repo Repository, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{repo: repo, logger: logger}
}

func (c *Checker) Run(ctx context.Context) (Result, error) {
	var result Result
	var err error
	if result.UnbalancedEntries, err = c.repo.CountUnbalancedEntries(ctx); err != nil {
		return result, err
	}
	if result.DriftedAccounts, err = c.repo.CountDriftedAccounts(ctx); err != nil {
		return result, err
	}
	if result.BrokenRunningBalance, err = c.repo.CountBrokenRunningBalance(ctx); err != nil {
		return result, err
	}
	if result.EmptyEntries, err = c.repo.CountEmptyEntries(ctx); err != nil {
		return result, err
	}
	result.OK = result.UnbalancedEntries == 0 && result.DriftedAccounts == 0 &&
		result.BrokenRunningBalance == 0 && result.EmptyEntries == 0
	if !result.OK {
		c.logger.Warn("ledger integrity checks failed",
			slog.Int("unbalanced_entries", result.UnbalancedEntries),
			slog.Int("drifted_accounts", result.DriftedAccounts),
			slog.Int("broken_running_balance", result.BrokenRunningBalance),
			slog.Int("empty_entries", result.EmptyEntries),
		)
	}
	return result, nil
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// CountUnbalancedEntries finds POSTED entries whose lines do not sum to
// zero.
func (r *repository) CountUnbalancedEntries(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM (
SELECT e.id FROM journal_entries e
JOIN journal_lines l ON l.entry_id = e.id
WHERE e.status = 'POSTED'
GROUP BY e.id
HAVING SUM(l.amount) <> 0) bad`)
}

// CountDriftedAccounts finds accounts whose stored ledger balance disagrees
// with the sum of their POSTED lines.
func (r *repository) CountDriftedAccounts(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM accounts a
WHERE a.ledger_balance <> COALESCE((
SELECT SUM(l.amount) FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = a.id AND e.status = 'POSTED'), 0)`)
}

// CountBrokenRunningBalance finds lines whose balance_after does not equal
// the preceding line's balance_after plus their own amount, per account in
// creation order.
func (r *repository) CountBrokenRunningBalance(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM (
SELECT l.id,
       l.balance_after,
       LAG(l.balance_after) OVER (PARTITION BY l.account_id ORDER BY l.created_at, l.id) AS prev_after,
       l.amount
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.status = 'POSTED') w
WHERE w.prev_after IS NOT NULL AND w.balance_after <> w.prev_after + w.amount`)
}

// CountEmptyEntries finds entries with no lines at all.
func (r *repository) CountEmptyEntries(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM journal_entries e
WHERE NOT EXISTS (SELECT 1 FROM journal_lines l WHERE l.entry_id = e.id)`)
}

func (r *repository) count(ctx context.Context, sql string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
