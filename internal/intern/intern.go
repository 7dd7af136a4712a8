// Package intern provides the bidirectional name<->handle mapping used for
// entity types and field types (spec.md §4.1). Handles are assigned on
// first use and are never reused or renumbered for the lifetime of the
// owning engine.
package intern

import "sync"

// handle is the constraint satisfied by both types.EntityTypeHandle and
// types.FieldTypeHandle: both are plain uint32 wrappers.
type handle interface {
	~uint32
}

// Table is a generic bidirectional name<->handle interner. It is safe for
// concurrent use.
type Table[H handle] struct {
	mu       sync.RWMutex
	byName   map[string]H
	byHandle []string // index 0 unused; handle N lives at byHandle[N]
	next     uint32
}

// New creates an empty interner. Handle 0 is reserved as "invalid" so a
// zero-value handle never resolves to a name.
func New[H handle]() *Table[H] {
	return &Table[H]{
		byName:   make(map[string]H),
		byHandle: []string{""},
		next:     1,
	}
}

// Intern returns the handle for name, assigning a fresh one on first sight.
func (t *Table[H]) Intern(name string) H {
	t.mu.RLock()
	if h, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return h
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	// Re-check under the write lock in case another goroutine interned it
	// between the RUnlock above and here.
	if h, ok := t.byName[name]; ok {
		return h
	}
	h := H(t.next)
	t.next++
	t.byName[name] = h
	t.byHandle = append(t.byHandle, name)
	return h
}

// Lookup returns the handle for name without assigning one, if it exists.
func (t *Table[H]) Lookup(name string) (H, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byName[name]
	return h, ok
}

// Resolve returns the name for a handle, or "" if the handle was never
// assigned by this table.
func (t *Table[H]) Resolve(h H) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx := uint32(h)
	if idx == 0 || int(idx) >= len(t.byHandle) {
		return "", false
	}
	return t.byHandle[idx], true
}

// Names returns every interned name in handle-assignment order.
func (t *Table[H]) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byHandle)-1)
	out = append(out, t.byHandle[1:]...)
	return out
}
