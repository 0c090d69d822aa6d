package core

import (
	"golang.org/x/exp/constraints"
)

// Series is an ordered sequence of samples, oldest first
type Series[T constraints.Ordered] []T

// Values returns the underlying slice of values
func (s Series[T]) Values() []T {
	return s
}

// Length returns the number of values in the series
func (s Series[T]) Length() int {
	return len(s)
}

// Last returns the value at a position counted from the end,
// 0 being the most recent sample
func (s Series[T]) Last(position int) T {
	return s[len(s)-1-position]
}

// LastValues returns the trailing window of the given size.
// The whole series is returned when it is shorter than size.
func (s Series[T]) LastValues(size int) Series[T] {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}

// Reversed returns a copy with the sample order inverted
func (s Series[T]) Reversed() Series[T] {
	out := make(Series[T], len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
