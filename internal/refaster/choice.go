package refaster

import "iter"

// Choice is a lazy sequence of alternatives. Pulling from it explores one
// branch at a time; a consumer that stops early never pays for the rest.
// A Choice can be ranged over again, which recomputes it: alternatives are
// not memoized.
type Choice[T any] iter.Seq[T]

// None yields nothing.
func None[T any]() Choice[T] {
	return func(func(T) bool) {}
}

// Of yields the given values in order.
func Of[T any](vs ...T) Choice[T] {
	return func(yield func(T) bool) {
		for _, v := range vs {
			if !yield(v) {
				return
			}
		}
	}
}

// Condition yields v when ok holds.
func Condition[T any](ok bool, v T) Choice[T] {
	if !ok {
		return None[T]()
	}
	return Of(v)
}

// Concat yields the alternatives of each choice in turn.
func Concat[T any](cs ...Choice[T]) Choice[T] {
	return func(yield func(T) bool) {
		for _, c := range cs {
			for v := range c {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Lazily defers building the choice until it is pulled.
func Lazily[T any](build func() Choice[T]) Choice[T] {
	return func(yield func(T) bool) {
		build()(yield)
	}
}

// FlatMap continues every alternative of c with f. When a continuation runs
// dry the next alternative of c is tried, which is what makes unification
// backtrack.
func FlatMap[T, U any](c Choice[T], f func(T) Choice[U]) Choice[U] {
	return func(yield func(U) bool) {
		for v := range c {
			for u := range f(v) {
				if !yield(u) {
					return
				}
			}
		}
	}
}

// Map transforms each alternative.
func Map[T, U any](c Choice[T], f func(T) U) Choice[U] {
	return func(yield func(U) bool) {
		for v := range c {
			if !yield(f(v)) {
				return
			}
		}
	}
}

// Filter keeps the alternatives accepted by keep.
func (c Choice[T]) Filter(keep func(T) bool) Choice[T] {
	return func(yield func(T) bool) {
		for v := range c {
			if keep(v) && !yield(v) {
				return
			}
		}
	}
}

// First pulls one alternative.
func (c Choice[T]) First() (T, bool) {
	for v := range c {
		return v, true
	}
	var zero T
	return zero, false
}

// Take pulls at most n alternatives.
func (c Choice[T]) Take(n int) []T {
	if n <= 0 {
		return nil
	}
	out := make([]T, 0, n)
	for v := range c {
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

// Seq exposes the choice as a plain iterator.
func (c Choice[T]) Seq() iter.Seq[T] {
	return iter.Seq[T](c)
}
