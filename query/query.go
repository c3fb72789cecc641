// Package query evaluates filters, pagination and projections in memory over
// a materialized table snapshot. Every operation costs O(rows) regardless of
// how selective the predicates are.
package query

import (
	"context"
	"iter"
	"slices"
)

// Predicate is a named row filter. The tag identifies the filter in logs and
// tests; it carries no semantics.
type Predicate[T any] struct {
	Tag   string
	Match func(T) bool
}

// Projection maps a stream of public descriptors to arbitrary results. Stores
// hand it every row they hold, already converted.
type Projection[T any] func(iter.Seq[T]) iter.Seq[any]

// Query is an immutable filter and pagination plan over a materialized
// snapshot. Builder methods return a new Query and never modify the receiver.
type Query[T any] struct {
	items []T
	preds []Predicate[T]
	skip  int
	take  int
}

// From materializes seq. Later changes to the underlying table do not affect
// the returned Query.
func From[T any](seq iter.Seq[T]) *Query[T] {
	return Of(slices.Collect(seq))
}

// Of wraps an already materialized slice.
func Of[T any](items []T) *Query[T] {
	return &Query[T]{items: items, take: -1}
}

func (q *Query[T]) clone() *Query[T] {
	c := *q
	c.preds = slices.Clone(q.preds)
	return &c
}

// Where adds a predicate. Predicates are combined with AND and evaluated in
// the order they were added.
func (q *Query[T]) Where(tag string, match func(T) bool) *Query[T] {
	c := q.clone()
	c.preds = append(c.preds, Predicate[T]{Tag: tag, Match: match})
	return c
}

// Skip drops the first n matching rows. Negative values are treated as zero.
func (q *Query[T]) Skip(n int) *Query[T] {
	c := q.clone()
	c.skip = max(n, 0)
	return c
}

// Take limits the result to n matching rows. A negative n removes the limit.
func (q *Query[T]) Take(n int) *Query[T] {
	c := q.clone()
	c.take = n
	return c
}

// Tags returns the tags of the predicates in evaluation order.
func (q *Query[T]) Tags() []string {
	tags := make([]string, 0, len(q.preds))
	for _, p := range q.preds {
		tags = append(tags, p.Tag)
	}
	return tags
}

func (q *Query[T]) matches(item T) bool {
	for _, p := range q.preds {
		if !p.Match(item) {
			return false
		}
	}
	return true
}

// Seq yields the matching rows after pagination. The sequence can be ranged
// over any number of times.
func (q *Query[T]) Seq() iter.Seq[T] {
	return func(yield func(T) bool) {
		skipped, taken := 0, 0
		for _, item := range q.items {
			if q.take >= 0 && taken >= q.take {
				return
			}
			if !q.matches(item) {
				continue
			}
			if skipped < q.skip {
				skipped++
				continue
			}
			taken++
			if !yield(item) {
				return
			}
		}
	}
}

// Count returns the number of rows Seq would yield.
func (q *Query[T]) Count() int {
	n := 0
	for range q.Seq() {
		n++
	}
	return n
}

// First returns the first row Seq would yield.
func (q *Query[T]) First() (T, bool) {
	for item := range q.Seq() {
		return item, true
	}
	var zero T
	return zero, false
}

// Slice collects the rows Seq would yield.
func (q *Query[T]) Slice() []T {
	return slices.Collect(q.Seq())
}

// Map converts every element of seq with fn.
func Map[T, U any](seq iter.Seq[T], fn func(T) U) iter.Seq[U] {
	return func(yield func(U) bool) {
		for item := range seq {
			if !yield(fn(item)) {
				return
			}
		}
	}
}

// Stream yields the elements of seq, checking ctx before each one. When ctx
// is done the stream yields the context error once and stops.
func Stream[T any](ctx context.Context, seq iter.Seq[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for item := range seq {
			if err := ctx.Err(); err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Fail returns a stream that yields err once.
func Fail[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}

// Collect drains a stream, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}
