package accounts

import (
	"testing"

	"github.com/saldo-ledger/saldo/internal/ledger/money"
)

func TestNormalSide(t *testing.T) {
	debitNormal := []AccountType{AccountTypeAsset, AccountTypeExpense, AccountTypeOffBalance}
	creditNormal := []AccountType{AccountTypeLiability, AccountTypeEquity, AccountTypeIncome}
	for _, typ := range debitNormal {
		if typ.NormalSide() != NormalSideDebit {
			t.Fatalf("%s: expected debit normal side", typ)
		}
	}
	for _, typ := range creditNormal {
		if typ.NormalSide() != NormalSideCredit {
			t.Fatalf("%s: expected credit normal side", typ)
		}
	}
}

func TestInflowOutflowFollowsNormalSide(t *testing.T) {
	if !AccountTypeAsset.IsInflow(100) || AccountTypeAsset.IsInflow(-100) {
		t.Fatal("asset inflow should be a positive amount")
	}
	if !AccountTypeAsset.IsOutflow(-100) || AccountTypeAsset.IsOutflow(100) {
		t.Fatal("asset outflow should be a negative amount")
	}
	if !AccountTypeLiability.IsInflow(-100) || AccountTypeLiability.IsInflow(100) {
		t.Fatal("liability inflow should be a negative amount")
	}
	if !AccountTypeLiability.IsOutflow(100) || AccountTypeLiability.IsOutflow(-100) {
		t.Fatal("liability outflow should be a positive amount")
	}
	if AccountTypeAsset.IsInflow(0) || AccountTypeAsset.IsOutflow(0) {
		t.Fatal("zero amount is neither inflow nor outflow")
	}
}

func TestDisplayBalance(t *testing.T) {
	if got := AccountTypeAsset.DisplayBalance(money.Amount(500)); got != 500 {
		t.Fatalf("asset display = %d", got)
	}
	if got := AccountTypeLiability.DisplayBalance(money.Amount(-500)); got != 500 {
		t.Fatalf("liability display = %d", got)
	}
	if got := AccountTypeIncome.DisplayBalance(money.Amount(200)); got != -200 {
		t.Fatalf("income display = %d", got)
	}
}
