package query

import (
	"context"
	"sync"

	"pyscope/internal/core/errors"
)

// Query is a memoized derived computation keyed by K. Results are cached
// together with the dependencies read while computing them; a read of a
// potentially-stale memo re-verifies those dependencies in recorded order
// and only recomputes when one of them actually changed.
//
// Concurrent Gets for different keys proceed independently. Concurrent Gets
// for the same key share one computation: late arrivals block on that key
// only, and never observe a partially-computed result.
type Query[K comparable, V any] struct {
	engine  *Engine
	name    string
	compute func(*Ctx, K) (V, error)
	cfg     config[V]

	mu      sync.Mutex
	cells   map[K]*cell[V]
	tracker *lruTracker[K]
}

// cell holds one memo. pending is non-nil while some goroutine verifies or
// recomputes the cell; others wait on it. A cell with computed set but
// hasValue cleared was evicted by the LRU and keeps only its metadata.
type cell[V any] struct {
	mu         sync.Mutex
	pending    chan struct{}
	computed   bool
	hasValue   bool
	value      V
	changedAt  Revision
	verifiedAt Revision
	deps       []verifiable
}

type cellSnapshot[V any] struct {
	computed   bool
	hasValue   bool
	verifiedAt Revision
	deps       []verifiable
}

func NewQuery[K comparable, V any](e *Engine, name string, compute func(*Ctx, K) (V, error), opts ...Option[V]) *Query[K, V] {
	q := &Query[K, V]{
		engine:  e,
		name:    name,
		compute: compute,
		cfg:     buildConfig(opts),
		cells:   make(map[K]*cell[V]),
	}
	if q.cfg.lruCapacity > 0 {
		q.tracker = newLRUTracker[K](q.cfg.lruCapacity)
	}
	return q
}

// Get returns the up-to-date value for key, computing or re-verifying it as
// needed, and records the read as a dependency of the computation in ctx.
// Errors (including cancellation) are never memoized; the next Get retries.
func (q *Query[K, V]) Get(ctx context.Context, key K) (V, error) {
	c := q.cellFor(key)
	value, err := q.ensureCell(ctx, c, key, frameOf(ctx))
	if err != nil {
		var zero V
		return zero, err
	}
	recordDep(ctx, queryRef[K, V]{q: q, key: key})
	q.noteUse(key)
	return value, nil
}

func (q *Query[K, V]) cellFor(key K) *cell[V] {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.cells[key]
	if !ok {
		c = &cell[V]{}
		q.cells[key] = c
	}
	return c
}

func (q *Query[K, V]) ensureCell(ctx context.Context, c *cell[V], key K, parent *frame) (V, error) {
	var zero V
	label := keyLabel(q.name, key)

	if parent.contains(label) {
		err := errors.New(errors.CodeCycle, "query cycle: "+parent.chain(label))
		if q.engine.debug {
			panic(err)
		}
		return zero, err
	}

	for {
		c.mu.Lock()
		if c.pending != nil {
			wait := c.pending
			c.mu.Unlock()
			q.engine.stats.waits.Add(1)
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
		rev := q.engine.Revision()
		if c.computed && c.hasValue && c.verifiedAt >= rev {
			value := c.value
			c.mu.Unlock()
			return value, nil
		}
		pending := make(chan struct{})
		c.pending = pending
		snap := cellSnapshot[V]{
			computed:   c.computed,
			hasValue:   c.hasValue,
			verifiedAt: c.verifiedAt,
			deps:       c.deps,
		}
		c.mu.Unlock()

		// The pending channel must be released even if the computation
		// panics, or every waiter on this key would hang.
		value, err := func() (V, error) {
			defer func() {
				c.mu.Lock()
				c.pending = nil
				c.mu.Unlock()
				close(pending)
			}()
			return q.update(ctx, c, key, parent, label, rev, snap)
		}()
		return value, err
	}
}

// update brings a claimed cell up to date: deep-verify first, recompute only
// when a dependency actually changed, and keep the old value (and its
// changedAt stamp) when the recomputed result is equal.
func (q *Query[K, V]) update(ctx context.Context, c *cell[V], key K, parent *frame, label string, rev Revision, snap cellSnapshot[V]) (V, error) {
	var zero V

	if snap.computed {
		self := &frame{label: label, parent: parent}
		depChanged := false
		for _, d := range snap.deps {
			at, err := d.ensure(ctx, self)
			if err != nil {
				return zero, err
			}
			if at > snap.verifiedAt {
				depChanged = true
				break
			}
		}
		if !depChanged {
			q.engine.stats.cutoffs.Add(1)
			if snap.hasValue {
				c.mu.Lock()
				if c.verifiedAt < rev {
					c.verifiedAt = rev
				}
				value := c.value
				c.mu.Unlock()
				return value, nil
			}
			// The value was evicted but its inputs are unchanged:
			// recompute it without counting the result as a change.
			value, deps, err := q.runCompute(ctx, key, parent, label)
			if err != nil {
				return zero, err
			}
			c.mu.Lock()
			c.value = value
			c.hasValue = true
			c.deps = deps
			if c.verifiedAt < rev {
				c.verifiedAt = rev
			}
			c.mu.Unlock()
			return value, nil
		}
	}

	value, deps, err := q.runCompute(ctx, key, parent, label)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	changed := true
	if snap.computed && snap.hasValue && !q.cfg.alwaysChanged {
		changed = !q.cfg.equal(c.value, value)
	}
	if changed {
		c.value = value
		c.changedAt = rev
	}
	c.computed = true
	c.hasValue = true
	c.deps = deps
	if c.verifiedAt < rev {
		c.verifiedAt = rev
	}
	return c.value, nil
}

func (q *Query[K, V]) runCompute(ctx context.Context, key K, parent *frame, label string) (V, []verifiable, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, nil, err
	}
	child := &Ctx{
		Context: ctx,
		engine:  q.engine,
		frame:   &frame{label: label, parent: parent},
	}
	value, err := q.compute(child, key)
	if err != nil {
		return zero, nil, err
	}
	// A computation that raced cancellation may be torn; discard it rather
	// than memoize it.
	if err := ctx.Err(); err != nil {
		return zero, nil, err
	}
	q.engine.stats.computations.Add(1)
	return value, dedupeDeps(child.deps), nil
}

// noteUse feeds the LRU tracker and strips the value of whichever memo fell
// off the end. Metadata stays so the stripped memo still verifies cheaply.
func (q *Query[K, V]) noteUse(key K) {
	if q.tracker == nil {
		return
	}
	evicted, ok := q.tracker.touch(key)
	if !ok {
		return
	}
	q.mu.Lock()
	c := q.cells[evicted]
	q.mu.Unlock()
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.pending != nil || !c.hasValue {
		c.mu.Unlock()
		return
	}
	old := c.value
	var zero V
	c.value = zero
	c.hasValue = false
	c.mu.Unlock()
	if q.cfg.onEvict != nil {
		q.cfg.onEvict(old)
	}
}

// queryRef is the recorded dependency on one derived-query key.
type queryRef[K comparable, V any] struct {
	q   *Query[K, V]
	key K
}

func (r queryRef[K, V]) ensure(ctx context.Context, parent *frame) (Revision, error) {
	c := r.q.cellFor(r.key)
	if _, err := r.q.ensureCell(ctx, c, r.key, parent); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changedAt, nil
}

func (r queryRef[K, V]) label() string { return keyLabel(r.q.name, r.key) }
