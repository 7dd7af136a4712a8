// Package store implements the entity store from spec.md §4.3: per-entity
// field maps, existence/type invariants, and type-bucket listings. Store
// knows nothing about schema inheritance, relationship invariants, or
// indirection — those live in internal/schema, internal/relation, and
// internal/indirect respectively; the executor composes them.
package store

import (
	"time"

	"github.com/matthewbaird/eavdb/internal/types"
)

type record struct {
	typ    types.EntityTypeHandle
	fields map[types.FieldTypeHandle]types.FieldCell
}

// Store owns every live entity's field storage and the per-type bucket
// listings (spec.md §4.3, invariant 5).
type Store struct {
	entities map[types.EntityId]*record

	// bucket holds live ids in insertion order (spec.md §4.6 FindEntities:
	// "order is by insertion, stable"). index tracks each id's current slot
	// so removal can find it without a scan.
	bucket map[types.EntityTypeHandle][]types.EntityId
	index  map[types.EntityId]int

	seq map[types.EntityTypeHandle]uint32
}

func New() *Store {
	return &Store{
		entities: make(map[types.EntityId]*record),
		bucket:   make(map[types.EntityTypeHandle][]types.EntityId),
		index:    make(map[types.EntityId]int),
		seq:      make(map[types.EntityTypeHandle]uint32),
	}
}

// CreateEntity allocates a fresh id for t and stores fields verbatim; the
// caller (the executor) is responsible for having already materialized
// every schema field with its default or supplied value (spec.md §4.3
// steps 2-3).
func (s *Store) CreateEntity(t types.EntityTypeHandle, fields map[types.FieldTypeHandle]types.FieldCell) types.EntityId {
	s.seq[t]++
	id := types.NewEntityId(t, s.seq[t])

	stored := make(map[types.FieldTypeHandle]types.FieldCell, len(fields))
	for h, c := range fields {
		stored[h] = c
	}
	s.entities[id] = &record{typ: t, fields: stored}

	s.index[id] = len(s.bucket[t])
	s.bucket[t] = append(s.bucket[t], id)
	return id
}

// DeleteEntity removes id's storage and bucket entry. The caller is
// responsible for relationship/inbound-link cleanup before calling this
// (spec.md §4.3 step 3).
func (s *Store) DeleteEntity(id types.EntityId) error {
	rec, ok := s.entities[id]
	if !ok {
		return types.NewErrorf(types.ErrEntityNotFound, "entity %d does not exist", id)
	}
	t := rec.typ
	idx := s.index[id]
	bucket := s.bucket[t]
	copy(bucket[idx:], bucket[idx+1:])
	bucket = bucket[:len(bucket)-1]
	for i := idx; i < len(bucket); i++ {
		s.index[bucket[i]] = i
	}
	s.bucket[t] = bucket
	delete(s.index, id)
	delete(s.entities, id)
	return nil
}

func (s *Store) EntityExists(id types.EntityId) bool {
	_, ok := s.entities[id]
	return ok
}

func (s *Store) TypeOf(id types.EntityId) (types.EntityTypeHandle, bool) {
	rec, ok := s.entities[id]
	if !ok {
		return types.InvalidEntityType, false
	}
	return rec.typ, true
}

// ListEntitiesOfType returns the live ids of type t in insertion order. The
// returned slice is a fresh copy safe to range over while the store
// mutates.
func (s *Store) ListEntitiesOfType(t types.EntityTypeHandle) []types.EntityId {
	src := s.bucket[t]
	out := make([]types.EntityId, len(src))
	copy(out, src)
	return out
}

// ListAllTypes returns every type handle that currently owns a (possibly
// empty) bucket, useful for inbound-link scans when no back-index is kept
// for a given reference field.
func (s *Store) ListAllTypes() []types.EntityTypeHandle {
	out := make([]types.EntityTypeHandle, 0, len(s.bucket))
	for t := range s.bucket {
		out = append(out, t)
	}
	return out
}

func (s *Store) ReadCell(id types.EntityId, field types.FieldTypeHandle) (types.FieldCell, error) {
	rec, ok := s.entities[id]
	if !ok {
		return types.FieldCell{}, types.NewErrorf(types.ErrEntityNotFound, "entity %d does not exist", id)
	}
	cell, ok := rec.fields[field]
	if !ok {
		return types.FieldCell{}, types.NewErrorf(types.ErrFieldNotFound, "field %d not present on entity %d", field, id)
	}
	return cell, nil
}

func (s *Store) WriteCell(id types.EntityId, field types.FieldTypeHandle, cell types.FieldCell) error {
	rec, ok := s.entities[id]
	if !ok {
		return types.NewErrorf(types.ErrEntityNotFound, "entity %d does not exist", id)
	}
	if _, ok := rec.fields[field]; !ok {
		return types.NewErrorf(types.ErrFieldNotFound, "field %d not present on entity %d", field, id)
	}
	rec.fields[field] = cell
	return nil
}

// Fields returns a copy of every field currently stored for id, used by the
// snapshot export and by relation.Cells implementations.
func (s *Store) Fields(id types.EntityId) (map[types.FieldTypeHandle]types.FieldCell, error) {
	rec, ok := s.entities[id]
	if !ok {
		return nil, types.NewErrorf(types.ErrEntityNotFound, "entity %d does not exist", id)
	}
	out := make(map[types.FieldTypeHandle]types.FieldCell, len(rec.fields))
	for h, c := range rec.fields {
		out[h] = c
	}
	return out, nil
}

// ApplyDiff materializes added fields (with their schema default, stamped
// at now, attributed to writer) and discards removed fields on every live
// entity of t (spec.md §4.2, the schema-evolution contract). The caller
// (the executor) derives added/removed from a schema.Diff.
func (s *Store) ApplyDiff(t types.EntityTypeHandle, added map[types.FieldTypeHandle]types.Value, removed []types.FieldTypeHandle, now time.Time, writer string) {
	for _, id := range s.bucket[t] {
		rec := s.entities[id]
		for h, def := range added {
			rec.fields[h] = types.FieldCell{Value: def, Timestamp: now, Writer: writer}
		}
		for _, h := range removed {
			delete(rec.fields, h)
		}
	}
}
