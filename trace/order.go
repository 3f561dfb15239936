package trace

import (
	"cmp"

	"golang.org/x/exp/slices"
)

// Sort sorts events by timestamp. Events with equal timestamps keep their original stream order.
func Sort(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := cmp.Compare(a.Ts, b.Ts); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// IsSorted reports whether events are in the order established by Sort.
func IsSorted(events []Event) bool {
	return slices.IsSortedFunc(events, func(a, b Event) int {
		if c := cmp.Compare(a.Ts, b.Ts); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}
