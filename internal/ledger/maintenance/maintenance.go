// Package maintenance wraps the store's own tuning and test-reset
// commands. Nothing here is part of the correctness surface.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ledgerTables = []string{"journal_lines", "journal_entries", "balance_snapshots", "accounts"}

// ErrResetForbidden guards the destructive reset outside test deployments.
var ErrResetForbidden = errors.New("ledger: reset is only available in test mode")

type Maintenance struct {
	db         *pgxpool.Pool
	logger     *slog.Logger
	allowReset bool
}

func New(pool *pgxpool.Pool, logger *slog.Logger, allowReset bool) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{db: pool, logger: logger, allowReset: allowReset}
}

// Optimize runs VACUUM ANALYZE over the ledger tables.
func (m *Maintenance) Optimize(ctx context.Context) error {
	for _, table := range ledgerTables {
		if _, err := m.db.Exec(ctx, `VACUUM ANALYZE `+table); err != nil {
			return fmt.Errorf("optimize %s: %w", table, err)
		}
	}
	m.logger.Info("ledger tables optimized", slog.Int("tables", len(ledgerTables)))
	return nil
}

// Reset truncates all ledger tables. Destructive; refused unless the
// deployment explicitly allows it.
func (m *Maintenance) Reset(ctx context.Context) error {
	if !m.allowReset {
		return ErrResetForbidden
	}
	for _, table := range ledgerTables {
		if _, err := m.db.Exec(ctx, `TRUNCATE TABLE `+table+` CASCADE`); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	m.logger.Warn("ledger tables truncated")
	return nil
}
