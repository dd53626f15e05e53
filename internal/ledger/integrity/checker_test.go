package integrity

import (
	"context"
	"errors"
	"testing"
)

type stubCounts struct {
	unbalanced int
	drifted    int
	broken     int
	empty      int
	err        error
}

func (s stubCounts) CountUnbalancedEntries(ctx context.Context) (int, error) {
	return s.unbalanced, s.err
}

func (s stubCounts) CountDriftedAccounts(ctx context.Context) (int, error) {
	return s.drifted, nil
}

func (s stubCounts) CountBrokenRunningBalance(ctx context.Context) (int, error) {
	return s.broken, nil
}

func (s stubCounts) CountEmptyEntries(ctx context.Context) (int, error) {
	return s.empty, nil
}

func TestCheckerReportsOKOnCleanLedger(t *testing.T) {
	result, err := NewChecker(stubCounts{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.OK {
		t.Fatalf("result = %+v", result)
	}
}

func TestCheckerCollectsEveryCount(t *testing.T) {
	result, err := NewChecker(stubCounts{unbalanced: 1, drifted: 2, broken: 3, empty: 4}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.OK {
		t.Fatal("OK despite findings")
	}
	if result.UnbalancedEntries != 1 || result.DriftedAccounts != 2 ||
		result.BrokenRunningBalance != 3 || result.EmptyEntries != 4 {
		t.Fatalf("result = %+v", result)
	}
}

func TestCheckerPropagatesQueryErrors(t *testing.T) {
	wantErr := errors.New("query failed")
	if _, err := NewChecker(stubCounts{err: wantErr}, nil).Run(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
}
