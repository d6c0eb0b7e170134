// Package meta maintains the type metadata the overlay runtime
// consults: a named type hierarchy (the ancestor table behind
// specificity ordering and registration walks) and the enumeration of
// overlay-eligible methods per provider type. Methods are either
// declared explicitly with [Hierarchy.Declare] or extracted from a Go
// provider value via reflection, where an exported method's first
// parameter designates the receiver type it extends.
package meta

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/funvibe/overlay"
)

// Type is one node of a Hierarchy. It implements overlay.Type; nodes
// are compared by identity, so a node must only ever be defined once.
type Type struct {
	name   string
	parent *Type

	provider reflect.Value       // inspected provider value, zero until BindProvider
	declared []overlay.Candidate // explicitly declared overlay methods
}

// Name returns the node's registered name.
func (t *Type) Name() string { return t.name }

// Parent returns the node's parent, or nil at the top of a lineage.
func (t *Type) Parent() overlay.Type {
	if t.parent == nil {
		return nil
	}
	return t.parent
}

func (t *Type) String() string { return t.name }

// Hierarchy is a registry of type nodes with parent edges, plus the
// bindings that let runtime values and reflected method parameters
// resolve to nodes. Registration is expected at interpreter start-up;
// enumeration happens on every scope entry, possibly from many
// goroutines, so the two sides are separated by a read-write lock.
type Hierarchy struct {
	mu     sync.RWMutex
	byName map[string]*Type
	byGo   map[reflect.Type]*Type
}

func NewHierarchy() *Hierarchy {
	return &Hierarchy{
		byName: make(map[string]*Type),
		byGo:   make(map[reflect.Type]*Type),
	}
}

// Define registers a new node under parent (nil for a lineage root).
// Defining a name twice is an error.
func (h *Hierarchy) Define(name string, parent *Type) (*Type, error) {
	if name == "" {
		return nil, fmt.Errorf("type name is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byName[name]; ok {
		return nil, fmt.Errorf("type %q is already defined", name)
	}
	t := &Type{name: name, parent: parent}
	h.byName[name] = t
	return t, nil
}

// Bind associates the dynamic Go type of specimen with node t, letting
// TypeFor resolve runtime values and the inspector recognize receiver
// parameters of that type.
func (h *Hierarchy) Bind(t *Type, specimen any) error {
	goType := reflect.TypeOf(specimen)
	if goType == nil {
		return fmt.Errorf("type %s: cannot bind an untyped nil", t.name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.byGo[goType]; ok && prev != t {
		return fmt.Errorf("type %s: %s is already bound to %s", t.name, goType, prev.name)
	}
	h.byGo[goType] = t
	return nil
}

// BindProvider sets the Go value whose exported methods are inspected
// when t's eligible methods are enumerated. Only methods whose first
// parameter's type is bound in this hierarchy become candidates; the
// rest are ignored.
func (h *Hierarchy) BindProvider(t *Type, provider any) error {
	v := reflect.ValueOf(provider)
	if !v.IsValid() {
		return fmt.Errorf("type %s: provider must not be nil", t.name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	t.provider = v
	return nil
}

// Declare adds an explicitly constructed overlay method to t, for
// runtimes that build their candidates without reflection. Declared
// methods are enumerated before inspected ones, in declaration order.
func (h *Hierarchy) Declare(t *Type, name string, target *Type, fn overlay.Descriptor) error {
	if name == "" {
		return fmt.Errorf("type %s: overlay method name is required", t.name)
	}
	if target == nil {
		return fmt.Errorf("type %s: overlay method %q needs a target type", t.name, name)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	t.declared = append(t.declared, overlay.Candidate{Name: name, Target: target, Fn: fn})
	return nil
}

// Lookup returns the node registered under name.
func (h *Hierarchy) Lookup(name string) (*Type, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.byName[name]
	return t, ok
}

// TypeFor resolves the node bound to v's dynamic Go type.
func (h *Hierarchy) TypeFor(v any) (*Type, bool) {
	goType := reflect.TypeOf(v)
	if goType == nil {
		return nil, false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.byGo[goType]
	return t, ok
}

// EligibleMethods implements overlay.Enumerator: the overlay methods
// declared directly on t, explicit declarations first, then provider
// methods in reflect's method order (sorted by name). Inherited
// methods are never included; the runtime walks lineages itself.
func (h *Hierarchy) EligibleMethods(t overlay.Type) ([]overlay.Candidate, error) {
	node, ok := t.(*Type)
	if !ok {
		return nil, fmt.Errorf("type %s was not defined in this hierarchy", t.Name())
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := append([]overlay.Candidate(nil), node.declared...)
	if node.provider.IsValid() {
		out = append(out, h.inspect(node.provider)...)
	}
	return out, nil
}

// inspect enumerates the provider's exported methods that take at
// least one parameter and whose first parameter's type is bound to a
// node. The bound method value is the candidate's callable payload.
// Callers hold h.mu.
func (h *Hierarchy) inspect(provider reflect.Value) []overlay.Candidate {
	var out []overlay.Candidate
	pt := provider.Type()
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		mt := m.Type
		if mt.NumIn() < 2 { // receiver plus the extended type
			continue
		}
		target, ok := h.byGo[mt.In(1)]
		if !ok {
			continue
		}
		out = append(out, overlay.Candidate{
			Name:   m.Name,
			Target: target,
			Fn:     provider.Method(i),
		})
	}
	return out
}
