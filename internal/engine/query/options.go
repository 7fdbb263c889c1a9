package query

import "reflect"

// config holds per-query (and per-input) tuning. The zero value compares
// with reflect.DeepEqual, keeps every memo and never treats equal results
// as changed.
type config[V any] struct {
	equal         func(a, b V) bool
	alwaysChanged bool
	lruCapacity   int
	onEvict       func(V)
}

type Option[V any] func(*config[V])

// WithEquals sets the equality used for change cutoff. Give every hot query
// a cheap comparison (hash fields, ids) instead of the DeepEqual default.
func WithEquals[V any](eq func(a, b V) bool) Option[V] {
	return func(c *config[V]) { c.equal = eq }
}

// WithAlwaysChanged opts a query out of equality-based cutoff: every
// recomputation counts as a change and propagates to dependents. For results
// too expensive or meaningless to compare.
func WithAlwaysChanged[V any]() Option[V] {
	return func(c *config[V]) { c.alwaysChanged = true }
}

// WithLRU bounds how many memoized values the query retains. Evicted memos
// keep their dependency metadata, so a later read recomputes the value
// without treating it as changed when its inputs are unchanged.
func WithLRU[V any](capacity int) Option[V] {
	return func(c *config[V]) { c.lruCapacity = capacity }
}

// WithEvict is called with each value dropped by the LRU, for values that
// hold external resources.
func WithEvict[V any](fn func(V)) Option[V] {
	return func(c *config[V]) { c.onEvict = fn }
}

func buildConfig[V any](opts []Option[V]) config[V] {
	var c config[V]
	for _, opt := range opts {
		opt(&c)
	}
	if c.equal == nil {
		c.equal = func(a, b V) bool { return reflect.DeepEqual(a, b) }
	}
	return c
}
