package posting

import (
	"context"
	"log/slog"

	"github.com/saldo-ledger/saldo/internal/ledger/money"
)

// EventLine mirrors a posted line for downstream reactors.
type EventLine struct {
	AccountID string       `json:"account_id"`
	Amount    money.Amount `json:"amount"`
}

// EntryPostedEvent is emitted after an entry reaches POSTED state and its
// transaction has committed.
type EntryPostedEvent struct {
	EntryID     string      `json:"entry_id"`
	Description string      `json:"description"`
	ExternalRef string      `json:"external_ref"`
	Lines       []EventLine `json:"lines"`
}

// Notifier receives entry-posted events. The platform subscribes by
// handing an implementation to the engine; delivery failures must not
// affect the committed entry, so implementations log rather than error.
type Notifier interface {
	EntryPosted(ctx context.Context, event EntryPostedEvent)
}

// SlogNotifier writes events to structured logs. It is the default sink
// when the platform has not attached its own.
type SlogNotifier struct {
	Logger *slog.Logger
}

func (n SlogNotifier) EntryPosted(ctx context.Context, event EntryPostedEvent) {
	if n.Logger == nil {
		return
	}
	n.Logger.Info("entry posted",
		slog.String("entry_id", event.EntryID),
		slog.String("external_ref", event.ExternalRef),
		slog.Int("lines", len(event.Lines)),
	)
}
