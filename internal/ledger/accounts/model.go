package accounts

import (
	"time"

	"github.com/saldo-ledger/saldo/internal/ledger/money"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	AccountTypeAsset      AccountType = "ASSET"
	AccountTypeLiability  AccountType = "LIABILITY"
	AccountTypeEquity     AccountType = "EQUITY"
	AccountTypeIncome     AccountType = "INCOME"
	AccountTypeExpense    AccountType = "EXPENSE"
	AccountTypeOffBalance AccountType = "OFF_BALANCE"
)

// AccountStatus enumerates account movement restrictions.
type AccountStatus string

const (
	AccountStatusActive        AccountStatus = "ACTIVE"
	AccountStatusFrozen        AccountStatus = "FROZEN"
	AccountStatusLockedInflow  AccountStatus = "LOCKED_INFLOW"
	AccountStatusLockedOutflow AccountStatus = "LOCKED_OUTFLOW"
)

// NormalSide is the debit/credit convention under which an account type's
// balance is conventionally positive.
type NormalSide string

const (
	NormalSideDebit  NormalSide = "DEBIT"
	NormalSideCredit NormalSide = "CREDIT"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity,
		AccountTypeIncome, AccountTypeExpense, AccountTypeOffBalance:
		return true
	}
	return false
}

// NormalSide maps the account type to its normal balance side.
func (t AccountType) NormalSide() NormalSide {
	switch t {
	case AccountTypeLiability, AccountTypeEquity, AccountTypeIncome:
		return NormalSideCredit
	default:
		return NormalSideDebit
	}
}

// IsInflow reports whether a line amount moves value into the account,
// relative to its normal side. Line amounts use the debit convention:
// positive increases the stored ledger balance.
func (t AccountType) IsInflow(amount money.Amount) bool {
	if t.NormalSide() == NormalSideDebit {
		return amount > 0
	}
	return amount < 0
}

// IsOutflow reports whether a line amount moves value out of the account.
func (t AccountType) IsOutflow(amount money.Amount) bool {
	if t.NormalSide() == NormalSideDebit {
		return amount < 0
	}
	return amount > 0
}

// DisplayBalance sign-normalizes a stored balance for presentation: the
// balance of a credit-normal account reads positive when it is in credit.
func (t AccountType) DisplayBalance(stored money.Amount) money.Amount {
	if t.NormalSide() == NormalSideCredit {
		return -stored
	}
	return stored
}

// Valid reports whether s is a known account status.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusFrozen, AccountStatusLockedInflow, AccountStatusLockedOutflow:
		return true
	}
	return false
}

// Account models a ledger account row. Balances are only ever changed by
// entry commit/post/void, never by direct account update.
type Account struct {
	ID             string
	Code           string
	Type           AccountType
	Status         AccountStatus
	ParentID       *string
	IsHeader       bool
	AllowOverdraft bool
	MinBalance     money.Amount
	LedgerBalance  money.Amount
	PendingBalance money.Amount
	CreatedAt      time.Time
}
