package overlay

import (
	"sync"
	"sync/atomic"
)

// usageRegistry maps overlay names to their process-wide registration
// counters. Entries are created lazily and never deleted; every chain
// in a name's shadow lineage, on every goroutine, shares the same
// counter. The counters carry no correctness weight: they exist so
// dispatch fast paths can skip overlay lookup while a name reads zero.
type usageRegistry struct {
	counters sync.Map // overlay name -> *atomic.Int32
}

// counter returns the shared counter for name, creating it atomically
// on first access.
func (u *usageRegistry) counter(name string) *atomic.Int32 {
	if v, ok := u.counters.Load(name); ok {
		return v.(*atomic.Int32)
	}
	v, _ := u.counters.LoadOrStore(name, new(atomic.Int32))
	return v.(*atomic.Int32)
}
