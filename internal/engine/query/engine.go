// Package query is the incremental computation runtime: memoized derived
// queries over externally-set inputs, with dependency tracking, lazy
// invalidation and equality-based early cutoff.
//
// Inputs (NewInput) are the only way new facts enter the system; setting one
// bumps the engine's revision. Derived queries (NewQuery) record every input
// and query they read while computing. A read of a potentially-stale memo
// first re-verifies its recorded dependencies in order; if none actually
// changed the memo is revalidated without recomputation, and if recomputation
// yields an equal value the change does not propagate to dependents.
package query

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Revision is the engine's internal change counter. It orders mutations
// within one Engine and has no meaning across engines or process restarts.
type Revision uint64

// Engine owns every memoized value for one analysis session. It is a plain
// handle: construct one per project/workspace and pass it where needed.
// All methods are safe for concurrent use.
type Engine struct {
	revision atomic.Uint64
	debug    bool
	stats    engineStats
}

type engineStats struct {
	computations atomic.Uint64
	cutoffs      atomic.Uint64
	waits        atomic.Uint64
}

// Stats is a point-in-time snapshot of engine activity, for metrics export.
type Stats struct {
	Revision     Revision
	Computations uint64 // compute functions actually run
	EarlyCutoffs uint64 // stale memos revalidated without recomputation
	Waits        uint64 // same-key waits behind another goroutine's work
}

type EngineOption func(*Engine)

// WithDebugChecks makes programming errors (query cycles) panic instead of
// returning an error, so they surface immediately in tests and debug runs.
func WithDebugChecks(enabled bool) EngineOption {
	return func(e *Engine) { e.debug = enabled }
}

func New(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Revision returns the current global revision. It advances exactly when an
// input value actually changes.
func (e *Engine) Revision() Revision {
	return Revision(e.revision.Load())
}

func (e *Engine) bump() Revision {
	return Revision(e.revision.Add(1))
}

func (e *Engine) Stats() Stats {
	return Stats{
		Revision:     e.Revision(),
		Computations: e.stats.computations.Load(),
		EarlyCutoffs: e.stats.cutoffs.Load(),
		Waits:        e.stats.waits.Load(),
	}
}

// Ctx is the context handed to a derived query's compute function. It is a
// context.Context (cancellation flows through) plus the dependency recorder
// for the invocation in progress: reads made through it are remembered as the
// memo's dependency set. Pass it to nested Get calls as-is.
type Ctx struct {
	context.Context
	engine *Engine
	frame  *frame
	deps   []verifiable
}

// Engine returns the engine this computation runs on.
func (c *Ctx) Engine() *Engine { return c.engine }

// frame is one entry of the active-query chain, used for cycle detection.
// Frames link parent-ward only; each compute invocation gets a fresh frame.
type frame struct {
	label  string
	parent *frame
}

func (f *frame) contains(label string) bool {
	for cur := f; cur != nil; cur = cur.parent {
		if cur.label == label {
			return true
		}
	}
	return false
}

func (f *frame) chain(label string) string {
	out := label
	for cur := f; cur != nil; cur = cur.parent {
		out = cur.label + " -> " + out
	}
	return out
}

// verifiable is one recorded dependency: something that can bring itself up
// to date and report the revision at which its value last actually changed.
type verifiable interface {
	ensure(ctx context.Context, parent *frame) (Revision, error)
	label() string
}

// recordDep remembers d as a dependency of the computation running in ctx,
// if any. Reads from outside the engine (a plain context) record nothing.
func recordDep(ctx context.Context, d verifiable) {
	if qc, ok := ctx.(*Ctx); ok {
		qc.deps = append(qc.deps, d)
	}
}

// frameOf extracts the active-query chain from ctx, nil for root reads.
func frameOf(ctx context.Context) *frame {
	if qc, ok := ctx.(*Ctx); ok {
		return qc.frame
	}
	return nil
}

// dedupeDeps keeps the first occurrence of each dependency, preserving read
// order. Deep verification walks this list and stops at the first change.
func dedupeDeps(deps []verifiable) []verifiable {
	if len(deps) < 2 {
		return deps
	}
	seen := make(map[string]struct{}, len(deps))
	out := deps[:0]
	for _, d := range deps {
		key := d.label()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}
	return out
}

func keyLabel(name string, key any) string {
	return fmt.Sprintf("%s(%v)", name, key)
}
