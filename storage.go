package overlay

import "sync"

// stackRegistry binds one scopeStack to each goroutine, keyed by
// goroutine id. Stacks are created lazily on first scope entry and
// retained between uses so a goroutine entering scopes repeatedly
// reuses its stack; evictIdle is the reclamation hook for embedders.
//
// A stack's level doubles as its pin: acquire raises it under the
// stack's lock and evictIdle only discards stacks it observes at level
// zero under that same lock, so a stack can never disappear while a
// scope on it is active. A goroutine that loses the race for its own
// idle stack simply starts over with a fresh one.
type stackRegistry struct {
	stacks sync.Map // goroutine id -> *scopeStack
}

// acquire returns the calling goroutine's stack with its nesting level
// already raised.
func (g *stackRegistry) acquire(id int64) *scopeStack {
	for {
		v, ok := g.stacks.Load(id)
		if !ok {
			v, _ = g.stacks.LoadOrStore(id, newScopeStack())
		}
		s := v.(*scopeStack)
		s.mu.Lock()
		if s.evicted {
			s.mu.Unlock()
			continue
		}
		s.level++
		s.mu.Unlock()
		return s
	}
}

// lower drops the stack's nesting level after a scope has unwound,
// unpinning it once the level reaches zero.
func (g *stackRegistry) lower(s *scopeStack) {
	s.mu.Lock()
	s.level--
	s.mu.Unlock()
}

// current returns the calling goroutine's stack without creating one.
func (g *stackRegistry) current(id int64) *scopeStack {
	v, ok := g.stacks.Load(id)
	if !ok {
		return nil
	}
	return v.(*scopeStack)
}

// evictIdle discards every stack not currently inside a scope and
// returns how many were dropped.
func (g *stackRegistry) evictIdle() int {
	evicted := 0
	g.stacks.Range(func(key, v any) bool {
		s := v.(*scopeStack)
		s.mu.Lock()
		if s.level == 0 && !s.evicted {
			g.stacks.Delete(key)
			s.evicted = true
			evicted++
		}
		s.mu.Unlock()
		return true
	})
	return evicted
}
