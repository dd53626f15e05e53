package lockorder

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestAccountsSortsAndDeduplicates(t *testing.T) {
	got := Accounts([]string{"m1:cash", "p9:fees", "m1:cash", "a0:escrow"})
	want := []string{"a0:escrow", "m1:cash", "p9:fees"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Accounts = %v, want %v", got, want)
	}
}

func TestAccountsEmpty(t *testing.T) {
	if got := Accounts(nil); len(got) != 0 {
		t.Fatalf("Accounts(nil) = %v", got)
	}
}

func TestAccountsOrderIndependentOfInput(t *testing.T) {
	base := []string{"acc:1", "acc:2", "acc:3", "acc:4", "acc:5"}
	want := Accounts(base)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := Accounts(shuffled); !reflect.DeepEqual(got, want) {
			t.Fatalf("order not total: %v vs %v", got, want)
		}
	}
}
