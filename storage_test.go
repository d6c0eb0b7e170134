package overlay

import (
	"sync"
	"testing"

	"github.com/petermattis/goid"
)

func TestStackRetainedAndReusedBetweenScopes(t *testing.T) {
	enum := newTestEnum()
	provider := &testType{name: "P"}
	enum.declare(provider, "m", &testType{name: "T"}, "impl")
	rt := New(enum)
	id := goid.Get()

	if err := rt.Use(provider, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	first := rt.stacks.current(id)
	if first == nil {
		t.Fatal("stack released after scope exit; want retained for reuse")
	}
	if first.level != 0 {
		t.Fatalf("idle stack level = %d, want 0", first.level)
	}

	if err := rt.Use(provider, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if rt.stacks.current(id) != first {
		t.Error("second scope did not reuse the retained stack")
	}
}

func TestEvictIdleReapsOnlyIdleStacks(t *testing.T) {
	enum := newTestEnum()
	provider := &testType{name: "P"}
	enum.declare(provider, "m", &testType{name: "T"}, "impl")
	rt := New(enum)
	id := goid.Get()

	err := rt.Use(provider, func() error {
		// Our stack is pinned at level 1.
		if n := rt.EvictIdle(); n != 0 {
			t.Errorf("EvictIdle inside scope evicted %d, want 0", n)
		}
		if rt.Lookup("m") == nil {
			t.Error("eviction pass broke the active scope's lookup")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if n := rt.EvictIdle(); n != 1 {
		t.Errorf("EvictIdle after scope evicted %d, want 1", n)
	}
	if rt.stacks.current(id) != nil {
		t.Error("stack still registered after eviction")
	}
	if n := rt.EvictIdle(); n != 0 {
		t.Errorf("second EvictIdle evicted %d, want 0", n)
	}
}

func TestScopeWorksAfterEviction(t *testing.T) {
	enum := newTestEnum()
	provider := &testType{name: "P"}
	enum.declare(provider, "m", &testType{name: "T"}, "impl")
	rt := New(enum)

	if err := rt.Use(provider, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	rt.EvictIdle()

	err := rt.Use(provider, func() error {
		if rt.Lookup("m") == nil {
			t.Error("Lookup failed on a recreated stack")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := rt.NameUsage("m").Load(); got != 0 {
		t.Errorf("usage = %d after recreated scope, want 0", got)
	}
}

// Hammers scope entry on many goroutines against a concurrent eviction
// loop; meant to run under the race detector. Every lookup must see
// exactly the caller's own registration no matter how eviction
// interleaves with stack creation.
func TestConcurrentScopesWithEviction(t *testing.T) {
	enum := newTestEnum()
	provider := &testType{name: "P"}
	enum.declare(provider, "m", &testType{name: "T"}, "impl")
	rt := New(enum)

	const goroutines = 8
	const iterations = 200

	stop := make(chan struct{})
	var evictor sync.WaitGroup
	evictor.Add(1)
	go func() {
		defer evictor.Done()
		for {
			select {
			case <-stop:
				return
			default:
				rt.EvictIdle()
			}
		}
	}()

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				err := rt.Use(provider, func() error {
					chain := rt.Lookup("m")
					if chain == nil || chain.Len() != 1 {
						t.Error("lookup lost the active scope's chain")
					}
					return nil
				})
				if err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	evictor.Wait()

	if rt.HasScopeInAnyGoroutine() {
		t.Error("global tally nonzero after stress run")
	}
	if got := rt.NameUsage("m").Load(); got != 0 {
		t.Errorf("usage = %d after stress run, want 0", got)
	}
}
