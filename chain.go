package overlay

import (
	"sort"
	"sync/atomic"
)

// Entry is one overlay method candidate handed to the dispatch engine:
// the receiver type it targets and the opaque callable payload.
// Entries are immutable once created.
type Entry struct {
	Target Type
	Fn     Descriptor
}

// Cacheable reports whether the dispatch engine may cache a resolution
// built from this entry. Always false: an overlay entry's validity is a
// property of the active scope, not of the call site.
func (Entry) Cacheable() bool { return false }

// Chain is the ordered list of entries registered under one overlay
// name on one goroutine. A chain is stamped with the nesting level that
// created it and back-references the chain it shadows, so leaving a
// scope restores the shadowed chain untouched. Every chain in a shadow
// lineage shares one usage counter.
//
// Chains are only ever mutated by the owning goroutine during scope
// entry, before the scope's body runs; a chain obtained from
// [Runtime.Lookup] is never mutated afterwards.
type Chain struct {
	entries  []Entry
	level    int
	previous *Chain
	usage    *atomic.Int32
}

// newChain creates the chain for one name at one nesting level. A chain
// shadowing a previous one copies its entries verbatim and shares its
// counter; the first chain ever created for a name on this goroutine
// adopts the name's registry counter instead.
func newChain(level int, previous *Chain, usage *atomic.Int32) *Chain {
	c := &Chain{level: level, previous: previous}
	if previous != nil {
		c.entries = append([]Entry(nil), previous.entries...)
		c.usage = previous.usage
	} else {
		c.usage = usage
	}
	return c
}

// add appends an entry and restores specificity order. The shared
// counter is bumped for every insertion, mirroring the teardown
// adjustment in scopeStack.unwind.
func (c *Chain) add(e Entry) {
	c.usage.Add(1)
	c.entries = append(c.entries, e)
	sortBySpecificity(c.entries)
}

// Entries returns the chain's candidates, most specific target first.
// Callers must not modify the returned slice.
func (c *Chain) Entries() []Entry { return c.entries }

// Len returns the number of entries in the chain.
func (c *Chain) Len() int { return len(c.entries) }

// Level returns the nesting level that created the chain.
func (c *Chain) Level() int { return c.level }

// sortBySpecificity orders entries so that an entry whose target is a
// strict descendant of another entry's target always precedes it. The
// rule says nothing about unrelated targets; the stable sort leaves
// those in insertion order, which the registration walk (most general
// ancestor first) already arranged. That insertion-order tie behavior
// is deliberate and relied upon.
func sortBySpecificity(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return descendantOf(entries[i].Target, entries[j].Target)
	})
}

// descendantOf reports whether a is a strict descendant of b in the
// ancestor relation, walking a's Parent chain.
func descendantOf(a, b Type) bool {
	for p := a.Parent(); p != nil; p = p.Parent() {
		if p == b {
			return true
		}
	}
	return false
}
