package seal

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saldo-ledger/saldo/internal/ledger/posting"
)

// Repository is the sealer/verifier storage port. It reads entries with
// their lines and writes only the hash columns.
type Repository interface {
	// TailHash returns the hash and sequence of the highest sealed entry;
	// ok is false when nothing is sealed yet.
	TailHash(ctx context.Context) (hash string, sequence int64, ok bool, err error)
	// ListUnsealed returns unsealed entries after the given sequence, in
	// ascending sequence order, lines included.
	ListUnsealed(ctx context.Context, afterSequence int64, limit int) ([]posting.Entry, error)
	// CountUnsealedBelow reports unsealed entries at or below the given
	// sequence. A tail-resuming sealer never visits those; a non-zero
	// count means sequence assignment raced commit visibility.
	CountUnsealedBelow(ctx context.Context, sequence int64) (int64, error)
	// ListFromSequence returns all entries after the given sequence in
	// ascending order, lines included.
	ListFromSequence(ctx context.Context, afterSequence int64, limit int) ([]posting.Entry, error)
	StoreHash(ctx context.Context, entryID, hash, previousHash string) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) TailHash(ctx context.Context) (string, int64, bool, error) {
	var hash string
	var seq int64
	err := r.db.QueryRow(ctx, `SELECT hash, sequence FROM journal_entries WHERE hash IS NOT NULL ORDER BY sequence DESC LIMIT 1`).Scan(&hash, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return hash, seq, true, nil
}

func (r *repository) ListUnsealed(ctx context.Context, afterSequence int64, limit int) ([]posting.Entry, error) {
	return r.list(ctx, `SELECT id, description, status, posted_at, created_at, hash, previous_hash, sequence
FROM journal_entries WHERE hash IS NULL AND sequence > $1 ORDER BY sequence LIMIT $2`, afterSequence, limit)
}

func (r *repository) CountUnsealedBelow(ctx context.Context, sequence int64) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM journal_entries WHERE hash IS NULL AND sequence <= $1`, sequence).Scan(&n)
	return n, err
}

func (r *repository) ListFromSequence(ctx context.Context, afterSequence int64, limit int) ([]posting.Entry, error) {
	return r.list(ctx, `SELECT id, description, status, posted_at, created_at, hash, previous_hash, sequence
FROM journal_entries WHERE sequence > $1 ORDER BY sequence LIMIT $2`, afterSequence, limit)
}

func (r *repository) StoreHash(ctx context.Context, entryID, hash, previousHash string) error {
	_, err := r.db.Exec(ctx, `UPDATE journal_entries SET hash=$2, previous_hash=$3 WHERE id=$1 AND hash IS NULL`, entryID, hash, previousHash)
	return err
}

func (r *repository) list(ctx context.Context, sql string, afterSequence int64, limit int) ([]posting.Entry, error) {
	rows, err := r.db.Query(ctx, sql, afterSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []posting.Entry
	index := make(map[string]int)
	ids := make([]string, 0)
	for rows.Next() {
		var e posting.Entry
		if err := rows.Scan(&e.ID, &e.Description, &e.Status, &e.PostedAt, &e.CreatedAt, &e.Hash, &e.PreviousHash, &e.Sequence); err != nil {
			return nil, err
		}
		index[e.ID] = len(entries)
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	lineRows, err := r.db.Query(ctx, `SELECT id, entry_id, account_id, amount, balance_after, created_at
FROM journal_lines WHERE entry_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var line posting.Line
		if err := lineRows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Amount, &line.BalanceAfter, &line.CreatedAt); err != nil {
			return nil, err
		}
		if i, ok := index[line.EntryID]; ok {
			entries[i].Lines = append(entries[i].Lines, line)
		}
	}
	return entries, lineRows.Err()
}
