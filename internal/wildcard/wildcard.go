// Package wildcard provides a per-field "don't care" marker. A Value is either
// unconstrained (Any) or holds a concrete value, and the zero Value is Any, so
// legitimate zero values such as "" or 0 are never mistaken for a wildcard.
package wildcard

import "fmt"

type Value[T comparable] struct {
	v   T
	set bool
}

// Any returns the unconstrained value.
func Any[T comparable]() Value[T] {
	return Value[T]{}
}

// Of returns a value constrained to v.
func Of[T comparable](v T) Value[T] {
	return Value[T]{v: v, set: true}
}

func (w Value[T]) IsAny() bool {
	return !w.set
}

// Get returns the held value and whether there is one.
func (w Value[T]) Get() (T, bool) {
	return w.v, w.set
}

// Interface exposes the held value as any, for query building.
func (w Value[T]) Interface() (any, bool) {
	if !w.set {
		return nil, false
	}
	return w.v, true
}

// Matches reports whether the two values can describe the same field: a
// wildcard on either side matches anything.
func (w Value[T]) Matches(other Value[T]) bool {
	if !w.set || !other.set {
		return true
	}
	return w.v == other.v
}

// MatchesValue reports whether v satisfies w.
func (w Value[T]) MatchesValue(v T) bool {
	return !w.set || w.v == v
}

// Or returns w if it is set and fallback otherwise.
func (w Value[T]) Or(fallback Value[T]) Value[T] {
	if w.set {
		return w
	}
	return fallback
}

func (w Value[T]) String() string {
	if !w.set {
		return "*"
	}
	return fmt.Sprint(w.v)
}
