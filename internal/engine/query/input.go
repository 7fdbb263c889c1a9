package query

import (
	"context"
	"fmt"
	"sync"

	"pyscope/internal/core/errors"
)

// Input is a keyed store of externally supplied facts. Setting a key to a
// value unequal to its current one bumps the engine revision and marks every
// transitive reader potentially stale; setting an equal value is a no-op, so
// redundant refreshes never trigger recomputation downstream.
type Input[K comparable, V any] struct {
	engine *Engine
	name   string
	cfg    config[V]

	mu    sync.Mutex
	cells map[K]*inputCell[V]
}

type inputCell[V any] struct {
	value     V
	changedAt Revision
}

func NewInput[K comparable, V any](e *Engine, name string, opts ...Option[V]) *Input[K, V] {
	return &Input[K, V]{
		engine: e,
		name:   name,
		cfg:    buildConfig(opts),
		cells:  make(map[K]*inputCell[V]),
	}
}

// Set installs the value for key. The revision advances only when the value
// actually differs from the current one.
func (in *Input[K, V]) Set(key K, value V) {
	in.mu.Lock()
	defer in.mu.Unlock()

	cell, ok := in.cells[key]
	if ok && in.cfg.equal(cell.value, value) {
		return
	}
	rev := in.engine.bump()
	if !ok {
		cell = &inputCell[V]{}
		in.cells[key] = cell
	}
	cell.value = value
	cell.changedAt = rev
}

// Get reads the value for key and records the read as a dependency of the
// computation in ctx. Reading a key that was never set is a programming
// error and reported as such.
func (in *Input[K, V]) Get(ctx context.Context, key K) (V, error) {
	in.mu.Lock()
	cell, ok := in.cells[key]
	var value V
	if ok {
		value = cell.value
	}
	in.mu.Unlock()

	if !ok {
		return value, errors.New(errors.CodeInternal,
			fmt.Sprintf("input %s read before it was set", keyLabel(in.name, key)))
	}
	recordDep(ctx, inputRef[K, V]{in: in, key: key})
	return value, nil
}

// Lookup peeks at the current value without recording a dependency.
func (in *Input[K, V]) Lookup(key K) (V, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	cell, ok := in.cells[key]
	if !ok {
		var zero V
		return zero, false
	}
	return cell.value, true
}

// inputRef is the recorded dependency on one input key.
type inputRef[K comparable, V any] struct {
	in  *Input[K, V]
	key K
}

func (r inputRef[K, V]) ensure(_ context.Context, _ *frame) (Revision, error) {
	r.in.mu.Lock()
	defer r.in.mu.Unlock()
	cell, ok := r.in.cells[r.key]
	if !ok {
		return 0, errors.New(errors.CodeInternal,
			fmt.Sprintf("input %s vanished from under a memo", keyLabel(r.in.name, r.key)))
	}
	return cell.changedAt, nil
}

func (r inputRef[K, V]) label() string {
	return keyLabel(r.in.name, r.key)
}
