// Package seal maintains the asynchronous SHA-256 hash chain over journal
// entries and verifies it by recomputation. Sealing is deliberately out of
// the commit path: the jobs here only read entries and write the hash
// columns, which commits never touch.
package seal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/saldo-ledger/saldo/internal/ledger/posting"
)

// GenesisHash seeds the chain before any entry is sealed.
const GenesisHash = "GENESIS"

const defaultBatchSize = 200

// ComputeHash derives an entry's chain hash from the previous hash, the
// entry identity and its lines. Lines are sorted by account id so the hash
// is independent of insertion order.
func ComputeHash(previous string, e posting.Entry) string {
	var b strings.Builder
	b.WriteString(previous)
	b.WriteByte('|')
	b.WriteString(e.ID)
	b.WriteByte('|')
	if e.PostedAt != nil {
		b.WriteString(e.PostedAt.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte('|')
	b.WriteString(e.Description)
	sorted := make([]posting.Line, len(e.Lines))
	copy(sorted, e.Lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AccountID < sorted[j].AccountID })
	for _, line := range sorted {
		b.WriteByte('|')
		b.WriteString(line.AccountID)
		b.WriteByte('=')
		b.WriteString(strconv.FormatInt(int64(line.Amount), 10))
	}
	digest := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(digest[:])
}

// SealOptions tunes a sealer run.
type SealOptions struct {
	BatchSize int
	// StopOnPending halts at the first unsealed PENDING entry instead of
	// sealing it, keeping the chain limited to settled entries.
	StopOnPending bool
}

// SealResult reports one sealer run. SkippedBelowTail counts unsealed
// entries stranded below the chain tail; the sealer cannot reach them
// without breaking the chain, so they are surfaced instead of silently
// ignored.
type SealResult struct {
	Sealed           int
	Stopped          bool
	SkippedBelowTail int64
}

// Sealer extends the hash chain over unsealed entries in sequence order.
type Sealer struct {
	repo   Repository
	logger *slog.Logger
}

func NewSealer(repo Repository, logger *slog.Logger) *Sealer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sealer{repo: repo, logger: logger}
}

func (s *Sealer) Run(ctx context.Context, opts SealOptions) (SealResult, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	previous, tailSeq, sealedBefore, err := s.repo.TailHash(ctx)
	if err != nil {
		return SealResult{}, err
	}
	var result SealResult
	if !sealedBefore {
		previous = GenesisHash
	} else {
		skipped, err := s.repo.CountUnsealedBelow(ctx, tailSeq)
		if err != nil {
			return SealResult{}, err
		}
		result.SkippedBelowTail = skipped
		if skipped > 0 {
			s.logger.Warn("unsealed entries stranded below chain tail",
				slog.Int64("count", skipped),
				slog.Int64("tail_sequence", tailSeq),
			)
		}
	}
	for {
		entries, err := s.repo.ListUnsealed(ctx, tailSeq, batch)
		if err != nil {
			return result, err
		}
		if len(entries) == 0 {
			return result, nil
		}
		for _, entry := range entries {
			if opts.StopOnPending && entry.Status == posting.EntryStatusPending {
				result.Stopped = true
				return result, nil
			}
			hash := ComputeHash(previous, entry)
			if err := s.repo.StoreHash(ctx, entry.ID, hash, previous); err != nil {
				return result, err
			}
			previous = hash
			tailSeq = entry.Sequence
			result.Sealed++
		}
		if len(entries) < batch {
			return result, nil
		}
	}
}

// VerifyOptions tunes a verifier run.
type VerifyOptions struct {
	BatchSize int
	// StopAtUnsealed ends the walk at the first entry without a hash; when
	// false, unsealed entries are skipped without breaking the chain walk.
	StopAtUnsealed bool
}

// VerifyResult reports a verification walk. A mismatch means an entry's
// recomputed hash differs from the stored one (tamper); a broken link
// means a stored previous-hash pointer disagrees with the actual chain.
type VerifyResult struct {
	Checked          int
	Mismatches       int
	BrokenLinks      int
	FirstBadSequence int64
	Stopped          bool
	OK               bool
}

// Verifier recomputes the chain and reports divergences as counts rather
// than errors, so one tampered entry does not abort the scan.
type Verifier struct {
	repo   Repository
	logger *slog.Logger
}

func NewVerifier(repo Repository, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{repo: repo, logger: logger}
}

func (v *Verifier) Run(ctx context.Context, opts VerifyOptions) (VerifyResult, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	result := VerifyResult{}
	previous := GenesisHash
	var afterSeq int64
	for {
		entries, err := v.repo.ListFromSequence(ctx, afterSeq, batch)
		if err != nil {
			return result, err
		}
		if len(entries) == 0 {
			break
		}
		for _, entry := range entries {
			afterSeq = entry.Sequence
			if entry.Hash == nil {
				if opts.StopAtUnsealed {
					result.Stopped = true
					result.OK = result.Mismatches == 0 && result.BrokenLinks == 0
					return result, nil
				}
				continue
			}
			result.Checked++
			if entry.PreviousHash == nil || *entry.PreviousHash != previous {
				result.BrokenLinks++
				v.recordBad(&result, entry)
			}
			if recomputed := ComputeHash(previous, entry); recomputed != *entry.Hash {
				result.Mismatches++
				v.recordBad(&result, entry)
			}
			previous = *entry.Hash
		}
		if len(entries) < batch {
			break
		}
	}
	result.OK = result.Mismatches == 0 && result.BrokenLinks == 0
	return result, nil
}

func (v *Verifier) recordBad(result *VerifyResult, entry posting.Entry) {
	if result.FirstBadSequence == 0 || entry.Sequence < result.FirstBadSequence {
		result.FirstBadSequence = entry.Sequence
	}
	v.logger.Warn("hash chain divergence",
		slog.String("entry_id", entry.ID),
		slog.Int64("sequence", entry.Sequence),
	)
}
