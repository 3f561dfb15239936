// Package slices contains stack and sorted-queue helpers used by graph traversals.
package slices

import "golang.org/x/exp/slices"

// Pop removes the last element of s.
func Pop[E any, S ~[]E](s S) (E, S, bool) {
	if len(s) == 0 {
		var zero E
		return zero, s, false
	}
	return s[len(s)-1], s[:len(s)-1], true
}

// PopFront removes the first element of s.
func PopFront[E any, S ~[]E](s S) (E, S, bool) {
	if len(s) == 0 {
		var zero E
		return zero, s, false
	}
	return s[0], s[1:], true
}

// InsertSorted inserts e into s, which must be sorted by cmp. Equal elements keep their insertion order.
func InsertSorted[E any, S ~[]E](s S, e E, cmp func(a, b E) int) S {
	i, found := slices.BinarySearchFunc(s, e, cmp)
	for found && i < len(s) && cmp(s[i], e) == 0 {
		i++
	}
	return slices.Insert(s, i, e)
}
