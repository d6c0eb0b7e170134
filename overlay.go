// Package overlay implements scoped, goroutine-confined method overlays
// for embedding runtimes.
//
// An overlay temporarily extends the method set recognized for existing
// types. A unit of work activates one or more overlay provider types via
// [Runtime.Use] or [Runtime.UseAll]; the methods those providers declare
// become visible to lookups on the activating goroutine for exactly the
// dynamic extent of the body callback, then disappear again. Scopes nest
// reentrantly, unwind fully on error and panic alike, and are invisible
// to every other goroutine.
//
// The package deliberately stops at bookkeeping. Enumerating a provider
// type's eligible methods is the job of an [Enumerator] (the meta
// subpackage supplies a reflection-based one), and deciding whether an
// overlay method beats a built-in method for a given call site is the
// job of whatever dispatch engine consumes [Runtime.Lookup] results.
package overlay

import (
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Type is one node in the ancestor relation overlays are ordered by.
// Provider registration walks a type's lineage from the most general
// ancestor down to the type itself, and specificity ordering compares
// chains of Parent edges. Implementations must be comparable (the
// ancestor walk uses interface equality) and Parent must return nil,
// not a typed nil, at the top of a lineage.
type Type interface {
	Name() string
	Parent() Type
}

// Descriptor is the opaque callable payload carried for each overlay
// method. The overlay runtime never invokes it; it is produced by the
// enumerator and handed through to the dispatch engine untouched.
type Descriptor = any

// Candidate is one overlay method as reported by an enumerator: the
// overlay name it registers under, the receiver type it targets, and
// the callable payload.
type Candidate struct {
	Name   string
	Target Type
	Fn     Descriptor
}

// Enumerator reports the overlay-eligible methods declared directly on
// a type. Registration walks lineages itself, so an enumerator must not
// include inherited methods.
type Enumerator interface {
	EligibleMethods(t Type) ([]Candidate, error)
}

// Runtime holds all overlay state: one scope stack per goroutine, the
// per-name usage counters shared across goroutines, and the global
// active-scope tally. A single Runtime is meant to live for the process
// lifetime of the embedding interpreter.
type Runtime struct {
	enum   Enumerator
	stacks stackRegistry
	usage  usageRegistry

	// active counts scope entries (including nested ones) across all
	// goroutines. Advisory only: readers may observe a transient value
	// mid-entry on another goroutine.
	active atomic.Int32
}

// New creates a Runtime that consults enum during scope entry.
func New(enum Enumerator) *Runtime {
	return &Runtime{enum: enum}
}

// Use activates the overlays declared by a single provider type for the
// duration of body. See UseAll.
func (r *Runtime) Use(t Type, body func() error) error {
	return r.UseAll([]Type{t}, body)
}

// UseAll activates the overlays declared by the given provider types,
// in order, runs body, and restores the previous overlay state of the
// calling goroutine on every exit path. The body's error is returned
// unchanged; a panic in the body propagates after the scope has been
// fully unwound. Calls nest: an inner UseAll shadows the outer scope's
// chains and leaves them bit-for-bit intact on exit.
//
// An enumerator failure aborts the call before body runs; the partially
// registered level is unwound like any other exit.
func (r *Runtime) UseAll(types []Type, body func() error) error {
	s := r.stacks.acquire(goid.Get())
	r.active.Add(1)
	defer func() {
		s.unwind()
		r.active.Add(-1)
		r.stacks.lower(s)
	}()
	for _, t := range types {
		if err := s.register(r, t); err != nil {
			return err
		}
	}
	return body()
}

// Lookup returns the chain of overlay methods currently registered
// under name on the calling goroutine, most specific target first, or
// nil if the goroutine has no active scope or no active scope registered
// the name. The returned chain is a snapshot; it is never mutated after
// being handed out.
func (r *Runtime) Lookup(name string) *Chain {
	s := r.stacks.current(goid.Get())
	if s == nil || s.level == 0 {
		return nil
	}
	return s.chains[name]
}

// HasScopeInCurrentGoroutine reports whether the calling goroutine is
// inside at least one overlay scope. The global tally provides a cheap
// negative fast path before any per-goroutine state is consulted.
func (r *Runtime) HasScopeInCurrentGoroutine() bool {
	if r.active.Load() == 0 {
		return false
	}
	s := r.stacks.current(goid.Get())
	return s != nil && s.level > 0
}

// HasScopeInAnyGoroutine reports whether any goroutine is inside an
// overlay scope at this instant.
func (r *Runtime) HasScopeInAnyGoroutine() bool {
	return r.active.Load() != 0
}

// ActiveScopes returns the current global scope tally, counting nested
// entries individually. Transient values from in-flight entries on
// other goroutines may be observed.
func (r *Runtime) ActiveScopes() int32 {
	return r.active.Load()
}

// NameUsage returns the process-wide registration counter for an
// overlay name, creating it on first access. The counter is a pure
// fast-path signal: dispatch code may skip overlay lookup entirely
// while it reads zero. Counters are never deleted; an idle one simply
// reads zero.
func (r *Runtime) NameUsage(name string) *atomic.Int32 {
	return r.usage.counter(name)
}

// EvictIdle discards scope stacks retained for goroutines that are not
// currently inside a scope, returning how many were dropped. Stacks
// with an active scope are pinned and never evicted; a goroutine whose
// idle stack was evicted gets a fresh empty one on next use. Intended
// as a memory-pressure hook for embedding runtimes.
func (r *Runtime) EvictIdle() int {
	return r.stacks.evictIdle()
}
