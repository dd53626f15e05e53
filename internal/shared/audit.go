package shared

import (
	"context"
	"log/slog"
	"time"
)

// AuditFact describes a single auditable action on the ledger. Facts are
// emitted by the ledger facade; persisting them is the caller's concern.
type AuditFact struct {
	Action   string         `json:"action"`
	TargetID string         `json:"targetId"`
	ActorID  string         `json:"actorId,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       time.Time      `json:"at"`
}

// AuditSink receives audit facts. Implementations must not block the caller
// for long; slow sinks should buffer internally.
type AuditSink interface {
	Record(ctx context.Context, fact AuditFact)
}

// SlogSink writes audit facts to a structured logger.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Record(ctx context.Context, fact AuditFact) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit",
		"action", fact.Action,
		"target_id", fact.TargetID,
		"actor_id", fact.ActorID,
		"at", fact.At,
	)
}
