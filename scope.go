package overlay

import "sync"

// scopeStack is the per-goroutine overlay state: the current nesting
// level and the mapping from overlay name to its innermost chain. Only
// the owning goroutine ever touches chains. Writes to level happen
// under mu because level doubles as the pin in the eviction handshake
// (see stackRegistry); the owner reads its own level without locking.
//
// Invariant: every mapped chain has chain.level <= level, and exactly
// the chains with chain.level == level belong to the innermost scope
// and are undone by unwind.
type scopeStack struct {
	level  int
	chains map[string]*Chain

	mu      sync.Mutex
	evicted bool
}

func newScopeStack() *scopeStack {
	return &scopeStack{chains: make(map[string]*Chain)}
}

// register walks t's lineage from its most general ancestor down to t
// itself and inserts every method the enumerator declares along the
// way. An enumerator failure stops the walk; whatever this level had
// already registered is left for unwind, which is robust against a
// partially populated level.
func (s *scopeStack) register(r *Runtime, t Type) error {
	for _, node := range lineage(t) {
		candidates, err := r.enum.EligibleMethods(node)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			s.insert(r, c)
		}
	}
	return nil
}

// insert adds one candidate to its name's chain, shadowing the chain
// from an outer level on first touch. The shadow copy shares the outer
// chain's usage counter; a name first seen on this goroutine gets the
// process-wide counter for that name.
func (s *scopeStack) insert(r *Runtime, c Candidate) {
	chain := s.chains[c.Name]
	if chain == nil {
		chain = newChain(s.level, nil, r.usage.counter(c.Name))
		s.chains[c.Name] = chain
	} else if chain.level != s.level {
		chain = newChain(s.level, chain, nil)
		s.chains[c.Name] = chain
	}
	chain.add(Entry{Target: c.Target, Fn: c.Fn})
}

// unwind undoes exactly the chains created at the current level:
// first-ever chains are unmapped and their full length subtracted from
// the shared counter, shadow chains are replaced by the chain they
// shadow with the counter adjusted by the length delta. Chains from
// outer levels are left untouched, so the outer scope's visible state
// is restored bit for bit.
func (s *scopeStack) unwind() {
	for name, chain := range s.chains {
		if chain.level != s.level {
			continue
		}
		if prev := chain.previous; prev == nil {
			delete(s.chains, name)
			chain.usage.Add(int32(-len(chain.entries)))
		} else {
			s.chains[name] = prev
			chain.usage.Add(int32(len(prev.entries) - len(chain.entries)))
		}
	}
}

// lineage collects t and its ancestors, most general first, stopping at
// the top of the lineage (nil parent).
func lineage(t Type) []Type {
	var nodes []Type
	for node := t; node != nil; node = node.Parent() {
		nodes = append(nodes, node)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	return nodes
}
