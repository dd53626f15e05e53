package ledger

import (
	"time"
)

// TransferLeg is one side of a transfer. Amount is a positive decimal
// string with at most two fraction digits, e.g. "100" or "99.95".
type TransferLeg struct {
	AccountID string `json:"accountId" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

// TransferRequest describes a balanced movement of value. The sum of the
// debit legs must equal the sum of the credit legs.
type TransferRequest struct {
	Description    string         `json:"description" validate:"required"`
	Debits         []TransferLeg  `json:"debits" validate:"required,min=1,dive"`
	Credits        []TransferLeg  `json:"credits" validate:"required,min=1,dive"`
	Pending        bool           `json:"pending"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	ExternalRef    string         `json:"externalRef,omitempty"`
	CorrelationID  string         `json:"correlationId,omitempty"`
	ValueDate      *time.Time     `json:"valueDate,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
}

// CreateAccountRequest opens a new account. MinBalance is a decimal string;
// empty means zero.
type CreateAccountRequest struct {
	ID             string  `json:"id" validate:"required"`
	Code           string  `json:"code" validate:"required"`
	Type           string  `json:"type" validate:"required"`
	ParentID       *string `json:"parentId,omitempty"`
	IsHeader       bool    `json:"isHeader"`
	AllowOverdraft bool    `json:"allowOverdraft"`
	MinBalance     string  `json:"minBalance,omitempty"`
	ActorID        string  `json:"actorId,omitempty"`
}

// UpdateAccountRequest patches account attributes. Nil fields stay
// untouched; balances are never updatable.
type UpdateAccountRequest struct {
	Status         *string `json:"status,omitempty"`
	Type           *string `json:"type,omitempty"`
	AllowOverdraft *bool   `json:"allowOverdraft,omitempty"`
	MinBalance     *string `json:"minBalance,omitempty"`
	ActorID        string  `json:"actorId,omitempty"`
}

// SearchAccountsRequest narrows a paged account listing.
type SearchAccountsRequest struct {
	Code   string `json:"code,omitempty"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// AccountView is the presentation shape of an account. Balance fields are
// decimal strings sign-normalized to the account's normal side.
type AccountView struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	ParentID       *string   `json:"parentId,omitempty"`
	IsHeader       bool      `json:"isHeader"`
	AllowOverdraft bool      `json:"allowOverdraft"`
	MinBalance     string    `json:"minBalance"`
	LedgerBalance  string    `json:"ledgerBalance"`
	PendingBalance string    `json:"pendingBalance"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BalanceView reports an account's balances as display-normalized decimal
// strings.
type BalanceView struct {
	AccountID string `json:"accountId"`
	Ledger    string `json:"ledger"`
	Pending   string `json:"pending"`
}

// LineView is the presentation shape of an entry line.
type LineView struct {
	AccountID    string `json:"accountId"`
	Amount       string `json:"amount"`
	BalanceAfter string `json:"balanceAfter"`
}

// EntryView is the presentation shape of a journal entry.
type EntryView struct {
	ID             string         `json:"id"`
	Description    string         `json:"description"`
	Status         string         `json:"status"`
	PostedAt       *time.Time     `json:"postedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	ExternalRef    string         `json:"externalRef,omitempty"`
	CorrelationID  string         `json:"correlationId,omitempty"`
	ValueDate      *time.Time     `json:"valueDate,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Sequence       int64          `json:"sequence"`
	Sealed         bool           `json:"sealed"`
	Lines          []LineView     `json:"lines"`
}
