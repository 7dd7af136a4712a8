package schema

import (
	"sort"
	"sync"

	"github.com/matthewbaird/eavdb/internal/types"
)

// Registry holds every registered single schema and memoizes the complete
// schema closure for each type (spec.md §4.2). It is safe for concurrent
// use; callers that need update_schema and complete_schema to observe a
// consistent snapshot should hold their own higher-level lock across both
// (the executor does, see internal/executor).
type Registry struct {
	mu sync.RWMutex

	single   map[types.EntityTypeHandle]*SingleSchema
	complete map[types.EntityTypeHandle]*CompleteSchema
	// children is the reverse edge of Parents: children[p] lists every type
	// that currently names p as a parent, used to invalidate and recompute
	// descendants on update_schema.
	children map[types.EntityTypeHandle]map[types.EntityTypeHandle]bool
}

func NewRegistry() *Registry {
	return &Registry{
		single:   make(map[types.EntityTypeHandle]*SingleSchema),
		complete: make(map[types.EntityTypeHandle]*CompleteSchema),
		children: make(map[types.EntityTypeHandle]map[types.EntityTypeHandle]bool),
	}
}

// HasType reports whether a single schema is registered for t.
func (r *Registry) HasType(t types.EntityTypeHandle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.single[t]
	return ok
}

// Single returns the currently registered single schema for t, if any. The
// pointer is the registry's own stored value, not a copy.
func (r *Registry) Single(t types.EntityTypeHandle) (*SingleSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.single[t]
	return s, ok
}

// UpdateSchema validates and installs a new single schema for s.Type,
// returning one Diff per affected type (s.Type and every transitive
// descendant) describing how live entities of that type must change
// (spec.md §4.2, "the schema-evolution contract"). On any validation
// failure no state is modified (§7, "Schema-update failures are
// all-or-nothing").
func (r *Registry) UpdateSchema(s SingleSchema) ([]Diff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range s.Parents {
		if _, ok := r.single[p]; !ok && p != s.Type {
			return nil, types.NewErrorf(types.ErrSchemaUnknownParent, "parent type %d is not registered", p)
		}
	}

	if err := r.checkCycle(s); err != nil {
		return nil, err
	}

	if err := r.checkOverrideCompatibility(s); err != nil {
		return nil, err
	}

	// Snapshot the old complete schema (if any) for every type this update
	// will affect, before touching any registry state, so the diff below
	// compares true before/after.
	affected := r.affectedTypes(s)
	oldComplete := make(map[types.EntityTypeHandle]*CompleteSchema, len(affected))
	for _, t := range affected {
		oldComplete[t], _ = r.completeLocked(t)
	}

	// Update reverse child edges: drop s.Type from any former parent's
	// child set, add it to every new parent's child set.
	if old, ok := r.single[s.Type]; ok {
		for _, p := range old.Parents {
			delete(r.children[p], s.Type)
		}
	}
	for _, p := range s.Parents {
		if r.children[p] == nil {
			r.children[p] = make(map[types.EntityTypeHandle]bool)
		}
		r.children[p][s.Type] = true
	}

	stored := cloneSingle(s)
	r.single[s.Type] = &stored

	// Invalidate cached complete schemas for every affected type so the
	// diff loop below recomputes from scratch.
	for _, t := range affected {
		delete(r.complete, t)
	}

	diffs := make([]Diff, 0, len(affected))
	for _, t := range affected {
		newC, err := r.completeLocked(t)
		if err != nil {
			// A descendant's parent chain is guaranteed valid by the cycle
			// and unknown-parent checks above; this would indicate a bug.
			return nil, err
		}
		diffs = append(diffs, computeDiff(t, oldComplete[t], newC))
	}
	return diffs, nil
}

// affectedTypes returns s.Type followed by every transitive descendant,
// using the *current* (pre-update) children edges plus the proposed
// schema's effect on s.Type's own descendants (s.Type's descendants don't
// change as a result of updating s.Type itself, only s.Type's own field set
// does, so the current children graph is the right one to walk).
func (r *Registry) affectedTypes(s SingleSchema) []types.EntityTypeHandle {
	seen := map[types.EntityTypeHandle]bool{s.Type: true}
	order := []types.EntityTypeHandle{s.Type}
	queue := []types.EntityTypeHandle{s.Type}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for child := range r.children[t] {
			if !seen[child] {
				seen[child] = true
				order = append(order, child)
				queue = append(queue, child)
			}
		}
	}
	return order
}

// checkCycle runs a depth-bounded DFS over parent lists (spec.md §4.2)
// using the proposed schema s in place of any existing registration for
// s.Type, to reject introducing a cycle.
func (r *Registry) checkCycle(s SingleSchema) error {
	parentsOf := func(t types.EntityTypeHandle) []types.EntityTypeHandle {
		if t == s.Type {
			return s.Parents
		}
		if single, ok := r.single[t]; ok {
			return single.Parents
		}
		return nil
	}

	maxDepth := len(r.single) + 2
	var visit func(t types.EntityTypeHandle, path map[types.EntityTypeHandle]bool, depth int) error
	visit = func(t types.EntityTypeHandle, path map[types.EntityTypeHandle]bool, depth int) error {
		if depth > maxDepth {
			return types.NewError(types.ErrSchemaCycle, "parent chain exceeds registry size; cycle suspected")
		}
		if path[t] {
			return types.NewErrorf(types.ErrSchemaCycle, "schema cycle through type %d", t)
		}
		path[t] = true
		defer delete(path, t)
		for _, p := range parentsOf(t) {
			if err := visit(p, path, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(s.Type, map[types.EntityTypeHandle]bool{}, 0)
}

// checkOverrideCompatibility requires that any field s redeclares which is
// already inherited from an ancestor keeps that ancestor's value variant
// (spec.md §4.2).
func (r *Registry) checkOverrideCompatibility(s SingleSchema) error {
	for _, p := range s.Parents {
		parentComplete, err := r.completeLocked(p)
		if err != nil {
			continue // unknown-parent already rejected above
		}
		for _, pf := range parentComplete.Fields {
			nf, ok := s.Fields[pf.Name]
			if !ok {
				continue
			}
			if nf.Variant != pf.Variant {
				return types.NewErrorf(types.ErrSchemaVariantMismatch,
					"field %q overrides variant %s with incompatible variant %s", pf.Name, pf.Variant, nf.Variant)
			}
		}
	}
	return nil
}

// CompleteSchema returns the memoized closure for t, computing and caching
// it on first request.
func (r *Registry) CompleteSchema(t types.EntityTypeHandle) (*CompleteSchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completeLocked(t)
}

func (r *Registry) completeLocked(t types.EntityTypeHandle) (*CompleteSchema, error) {
	if c, ok := r.complete[t]; ok {
		return c, nil
	}
	single, ok := r.single[t]
	if !ok {
		return nil, types.NewErrorf(types.ErrEntityTypeNotFound, "no schema registered for type %d", t)
	}

	fields := make(map[types.FieldTypeHandle]FieldSchema)
	for _, p := range single.Parents {
		parentComplete, err := r.completeLocked(p)
		if err != nil {
			return nil, err
		}
		for h, f := range parentComplete.Fields {
			fields[h] = f // later parent in the loop wins over earlier ones
		}
	}
	for _, f := range single.Fields {
		fields[f.Handle] = f // child's own fields win over every parent
	}

	order := make([]types.FieldTypeHandle, 0, len(fields))
	for h := range fields {
		order = append(order, h)
	}
	sort.Slice(order, func(i, j int) bool {
		fi, fj := fields[order[i]], fields[order[j]]
		if fi.Rank != fj.Rank {
			return fi.Rank < fj.Rank
		}
		return fi.Name < fj.Name
	})

	c := &CompleteSchema{Type: t, Fields: fields, Order: order}
	r.complete[t] = c
	return c, nil
}

// FieldSchemaFor returns the winning FieldSchema for (type, field) in the
// complete schema, or FieldNotFound.
func (r *Registry) FieldSchemaFor(t types.EntityTypeHandle, field types.FieldTypeHandle) (FieldSchema, error) {
	c, err := r.CompleteSchema(t)
	if err != nil {
		return FieldSchema{}, err
	}
	f, ok := c.Fields[field]
	if !ok {
		return FieldSchema{}, types.NewErrorf(types.ErrFieldNotFound, "field %d not declared on type %d", field, t)
	}
	return f, nil
}

func computeDiff(t types.EntityTypeHandle, oldC, newC *CompleteSchema) Diff {
	d := Diff{Type: t}
	oldFields := map[types.FieldTypeHandle]FieldSchema{}
	if oldC != nil {
		oldFields = oldC.Fields
	}
	for h, f := range newC.Fields {
		if _, existed := oldFields[h]; !existed {
			d.Added = append(d.Added, f)
		}
	}
	for h := range oldFields {
		if _, stillExists := newC.Fields[h]; !stillExists {
			d.Removed = append(d.Removed, h)
		}
	}
	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Name < d.Added[j].Name })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i] < d.Removed[j] })
	return d
}

func cloneSingle(s SingleSchema) SingleSchema {
	parents := make([]types.EntityTypeHandle, len(s.Parents))
	copy(parents, s.Parents)
	fields := make(map[string]FieldSchema, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = v
	}
	return SingleSchema{Type: s.Type, Parents: parents, Fields: fields}
}
