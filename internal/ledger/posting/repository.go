package posting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saldo-ledger/saldo/internal/ledger/accounts"
	"github.com/saldo-ledger/saldo/internal/ledger/money"
	lshared "github.com/saldo-ledger/saldo/internal/ledger/shared"
)

// BalanceUpdate carries an account's projected balances for the bulk
// balance statement.
type BalanceUpdate struct {
	AccountID string
	Ledger    money.Amount
	Pending   money.Amount
}

// LedgerBalanceUpdate overwrites only the posted balance, used by rebuild
// and EOD reconciliation.
type LedgerBalanceUpdate struct {
	AccountID string
	Ledger    money.Amount
}

// LineBalanceUpdate rewrites a line's running balance when its entry is
// posted.
type LineBalanceUpdate struct {
	LineID       int64
	BalanceAfter money.Amount
}

// Repository is the posting engine's storage port.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id string) (Entry, error)
	GetEntries(ctx context.Context, ids []string) ([]Entry, error)
	GetBalance(ctx context.Context, accountID string) (Balance, error)
	GetBalances(ctx context.Context, accountIDs []string) ([]Balance, error)
}

// TxRepository exposes the statements available inside one transaction.
// Account ids handed to LockAccounts must already be in lock order.
type TxRepository interface {
	FindEntryIDByKey(ctx context.Context, key string) (string, bool, error)
	LockAccounts(ctx context.Context, ids []string) ([]accounts.Account, error)
	InsertEntry(ctx context.Context, e *Entry) error
	InsertLines(ctx context.Context, lines []Line) error
	UpdateBalances(ctx context.Context, updates []BalanceUpdate) error
	GetEntryForUpdate(ctx context.Context, id string) (Entry, error)
	GetEntryLines(ctx context.Context, entryID string) ([]Line, error)
	UpdateLineBalances(ctx context.Context, updates []LineBalanceUpdate) error
	SetEntryStatus(ctx context.Context, id string, status EntryStatus, postedAt *time.Time) error
	SumPostedLines(ctx context.Context, accountID string) (money.Amount, error)
	SumPostedLinesByAccount(ctx context.Context) (map[string]money.Amount, error)
	SetLedgerBalances(ctx context.Context, updates []LedgerBalanceUpdate) error
	ListAccountIDs(ctx context.Context, activeOnly bool) ([]string, error)
	CaptureSnapshot(ctx context.Context, snap BalanceSnapshot) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const entryColumns = `id, description, status, posted_at, created_at, idempotency_key, external_ref, correlation_id, value_date, metadata, hash, previous_hash, sequence`

func (r *repository) GetEntry(ctx context.Context, id string) (Entry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, lshared.ErrEntryNotFound
		}
		return Entry{}, err
	}
	lines, err := queryLines(ctx, r.db, `SELECT id, entry_id, account_id, amount, balance_after, created_at FROM journal_lines WHERE entry_id=$1 ORDER BY id`, id)
	if err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *repository) GetEntries(ctx context.Context, ids []string) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id = ANY($1) ORDER BY sequence`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	index := make(map[string]int)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		index[entry.ID] = len(entries)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := queryLines(ctx, r.db, `SELECT id, entry_id, account_id, amount, balance_after, created_at FROM journal_lines WHERE entry_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if i, ok := index[line.EntryID]; ok {
			entries[i].Lines = append(entries[i].Lines, line)
		}
	}
	return entries, nil
}

func (r *repository) GetBalance(ctx context.Context, accountID string) (Balance, error) {
	var b Balance
	err := r.db.QueryRow(ctx, `SELECT id, ledger_balance, pending_balance FROM accounts WHERE id=$1`, accountID).
		Scan(&b.AccountID, &b.Ledger, &b.Pending)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, lshared.ErrAccountNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func (r *repository) GetBalances(ctx context.Context, accountIDs []string) ([]Balance, error) {
	rows, err := r.db.Query(ctx, `SELECT id, ledger_balance, pending_balance FROM accounts WHERE id = ANY($1) ORDER BY id`, accountIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Balance
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.AccountID, &b.Ledger, &b.Pending); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) FindEntryIDByKey(ctx context.Context, key string) (string, bool, error) {
	var id string
	err := r.tx.QueryRow(ctx, `SELECT id FROM journal_entries WHERE idempotency_key=$1`, key).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// LockAccounts fetches and exclusively locks account rows in the order the
// caller sorted them. Missing ids are simply absent from the result.
func (r *txRepository) LockAccounts(ctx context.Context, ids []string) ([]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, code, type, status, parent_id, is_header, allow_overdraft, min_balance, ledger_balance, pending_balance, created_at
FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounts.Account
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Type, &a.Status, &a.ParentID, &a.IsHeader,
			&a.AllowOverdraft, &a.MinBalance, &a.LedgerBalance, &a.PendingBalance, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, e *Entry) error {
	meta, err := marshalMetadata(e.Metadata)
	if err != nil {
		return err
	}
	err = r.tx.QueryRow(ctx, `INSERT INTO journal_entries (id, description, status, posted_at, created_at, idempotency_key, external_ref, correlation_id, value_date, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING sequence`,
		e.ID, e.Description, e.Status, e.PostedAt, e.CreatedAt, nullStr(e.IdempotencyKey),
		e.ExternalRef, e.CorrelationID, e.ValueDate, meta).Scan(&e.Sequence)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// A concurrent commit with the same idempotency key won the race.
			return lshared.ErrConcurrency
		}
		return err
	}
	return nil
}

// InsertLines writes all lines of one entry in a single statement. Line ids
// are sequence-assigned in array order, which preserves the command's line
// order for the running-balance window checks.
func (r *txRepository) InsertLines(ctx context.Context, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	accountIDs := make([]string, len(lines))
	amounts := make([]int64, len(lines))
	balances := make([]int64, len(lines))
	for i, line := range lines {
		accountIDs[i] = line.AccountID
		amounts[i] = int64(line.Amount)
		balances[i] = int64(line.BalanceAfter)
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, amount, balance_after, created_at)
SELECT $1, a, m, b, $5 FROM unnest($2::text[], $3::bigint[], $4::bigint[]) AS t(a, m, b)`,
		lines[0].EntryID, accountIDs, amounts, balances, lines[0].CreatedAt)
	return err
}

func (r *txRepository) UpdateBalances(ctx context.Context, updates []BalanceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]string, len(updates))
	ledgers := make([]int64, len(updates))
	pendings := make([]int64, len(updates))
	for i, u := range updates {
		ids[i] = u.AccountID
		ledgers[i] = int64(u.Ledger)
		pendings[i] = int64(u.Pending)
	}
	_, err := r.tx.Exec(ctx, `UPDATE accounts AS a SET ledger_balance = u.l, pending_balance = u.p
FROM unnest($1::text[], $2::bigint[], $3::bigint[]) AS u(id, l, p)
WHERE a.id = u.id`, ids, ledgers, pendings)
	return err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id string) (Entry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, lshared.ErrEntryNotFound
		}
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) GetEntryLines(ctx context.Context, entryID string) ([]Line, error) {
	return queryLines(ctx, r.tx, `SELECT id, entry_id, account_id, amount, balance_after, created_at FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
}

func (r *txRepository) UpdateLineBalances(ctx context.Context, updates []LineBalanceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]int64, len(updates))
	balances := make([]int64, len(updates))
	for i, u := range updates {
		ids[i] = u.LineID
		balances[i] = int64(u.BalanceAfter)
	}
	_, err := r.tx.Exec(ctx, `UPDATE journal_lines AS l SET balance_after = u.b
FROM unnest($1::bigint[], $2::bigint[]) AS u(id, b)
WHERE l.id = u.id`, ids, balances)
	return err
}

func (r *txRepository) SetEntryStatus(ctx context.Context, id string, status EntryStatus, postedAt *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, posted_at=COALESCE($3, posted_at) WHERE id=$1`, id, status, postedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return lshared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) SumPostedLines(ctx context.Context, accountID string) (money.Amount, error) {
	var sum int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.amount), 0) FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.account_id = $1 AND e.status = 'POSTED'`, accountID).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return money.Amount(sum), nil
}

func (r *txRepository) SumPostedLinesByAccount(ctx context.Context) (map[string]money.Amount, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.account_id, COALESCE(SUM(l.amount), 0) FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE e.status = 'POSTED'
GROUP BY l.account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := make(map[string]money.Amount)
	for rows.Next() {
		var id string
		var sum int64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		sums[id] = money.Amount(sum)
	}
	return sums, rows.Err()
}

func (r *txRepository) SetLedgerBalances(ctx context.Context, updates []LedgerBalanceUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ids := make([]string, len(updates))
	ledgers := make([]int64, len(updates))
	for i, u := range updates {
		ids[i] = u.AccountID
		ledgers[i] = int64(u.Ledger)
	}
	_, err := r.tx.Exec(ctx, `UPDATE accounts AS a SET ledger_balance = u.l
FROM unnest($1::text[], $2::bigint[]) AS u(id, l)
WHERE a.id = u.id`, ids, ledgers)
	return err
}

func (r *txRepository) ListAccountIDs(ctx context.Context, activeOnly bool) ([]string, error) {
	rows, err := r.tx.Query(ctx, `SELECT id FROM accounts WHERE NOT $1 OR status = 'ACTIVE' ORDER BY id`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CaptureSnapshot copies the account's current ledger balance. Snapshots
// are idempotent per (account, timestamp); a duplicate reports false.
func (r *txRepository) CaptureSnapshot(ctx context.Context, snap BalanceSnapshot) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `INSERT INTO balance_snapshots (id, account_id, balance, created_at)
SELECT $1, id, ledger_balance, $2 FROM accounts WHERE id=$3
ON CONFLICT (account_id, created_at) DO NOTHING`, snap.ID, snap.CreatedAt, snap.AccountID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, sql string, args ...any) ([]Line, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Amount, &line.BalanceAfter, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var key *string
	var meta []byte
	err := row.Scan(&e.ID, &e.Description, &e.Status, &e.PostedAt, &e.CreatedAt, &key,
		&e.ExternalRef, &e.CorrelationID, &e.ValueDate, &meta, &e.Hash, &e.PreviousHash, &e.Sequence)
	if err != nil {
		return Entry{}, err
	}
	if key != nil {
		e.IdempotencyKey = *key
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

func marshalMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
