// Package lockorder fixes the global account lock acquisition order.
// Every transaction that locks a set of account rows sorts the set with
// Accounts first, so no two concurrent transactions can hold locks in
// conflicting order.
package lockorder

import "sort"

// Accounts returns the deduplicated input ids sorted lexicographically.
// The result is the order in which rows must be fetched and locked.
func Accounts(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
