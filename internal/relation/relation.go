// Package relation keeps reference and reference-list fields bidirectionally
// consistent (spec.md §4.4): the builtin Parent/Children pair, plus any
// field a schema declares as the inverse of another.
package relation

import (
	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/types"
)

// Cells is the subset of store.Store's surface the relationship manager
// needs; declared as an interface so tests can substitute a fake store.
type Cells interface {
	ReadCell(id types.EntityId, field types.FieldTypeHandle) (types.FieldCell, error)
	WriteCell(id types.EntityId, field types.FieldTypeHandle, cell types.FieldCell) error
	TypeOf(id types.EntityId) (types.EntityTypeHandle, bool)
	ListEntitiesOfType(t types.EntityTypeHandle) []types.EntityId
	ListAllTypes() []types.EntityTypeHandle
	Fields(id types.EntityId) (map[types.FieldTypeHandle]types.FieldCell, error)
}

// Manager resolves, for a given (type, field), which field on the
// referenced entity's type must be kept symmetric, and performs that
// symmetric update.
type Manager struct {
	registry *schema.Registry
	cells    Cells

	// parentField and childrenField are the interned handles for the
	// builtin "Parent"/"Children" names, resolved once at construction.
	parentField   types.FieldTypeHandle
	childrenField types.FieldTypeHandle
}

func NewManager(registry *schema.Registry, cells Cells, parentField, childrenField types.FieldTypeHandle) *Manager {
	return &Manager{registry: registry, cells: cells, parentField: parentField, childrenField: childrenField}
}

// OnReferenceWrite is invoked by the executor immediately after a reference
// field's cell is overwritten with newVal, with oldVal the value the cell
// held beforehand. It restores invariant 4 (builtin Parent/Children) and
// any schema-declared InverseOf pairing by symmetrically updating the
// target entity's inverse field. Each induced write is performed through
// stamp, which the caller must also run through notification dispatch.
func (m *Manager) OnReferenceWrite(entity types.EntityId, field types.FieldTypeHandle, oldVal, newVal types.Value, stamp func(types.EntityId, types.FieldTypeHandle, types.Value) error) error {
	inverse, ok := m.inverseOf(entity, field)
	if !ok {
		return nil
	}

	if oldTarget, has := oldVal.Reference(); has && oldTarget != types.NoEntity {
		if err := m.removeFromInverse(oldTarget, inverse, entity, stamp); err != nil {
			return err
		}
	}
	if newTarget, has := newVal.Reference(); has && newTarget != types.NoEntity {
		if err := m.addToInverse(newTarget, inverse, entity, stamp); err != nil {
			return err
		}
	}
	return nil
}

// OnListWrite is the EntityList analogue of OnReferenceWrite: every element
// removed from the list loses entity from its inverse field; every element
// added gains it.
func (m *Manager) OnListWrite(entity types.EntityId, field types.FieldTypeHandle, oldVal, newVal types.Value, stamp func(types.EntityId, types.FieldTypeHandle, types.Value) error) error {
	inverse, ok := m.inverseOf(entity, field)
	if !ok {
		return nil
	}

	oldSet := toSet(oldVal.List())
	newSet := toSet(newVal.List())
	for id := range oldSet {
		if !newSet[id] {
			if err := m.removeFromReferenceOrList(id, inverse, entity, stamp); err != nil {
				return err
			}
		}
	}
	for id := range newSet {
		if !oldSet[id] {
			if err := m.addToReferenceOrList(id, inverse, entity, stamp); err != nil {
				return err
			}
		}
	}
	return nil
}

// DetachInbound is called when entity is about to be deleted: every other
// live entity holding a reference/list field that contains entity has that
// field rewritten (reference cleared, list element removed). Each rewrite
// is reported via stamp so the caller can dispatch notifications for it
// (spec.md §4.4, "inbound link cleanup").
func (m *Manager) DetachInbound(victim types.EntityId, stamp func(types.EntityId, types.FieldTypeHandle, types.Value) error) error {
	for _, t := range m.cells.ListAllTypes() {
		complete, err := m.registry.CompleteSchema(t)
		if err != nil {
			continue
		}
		for _, fh := range complete.Order {
			fs := complete.Fields[fh]
			if fs.Variant != types.VariantEntityReference && fs.Variant != types.VariantEntityList {
				continue
			}
			for _, holder := range m.cells.ListEntitiesOfType(t) {
				cell, err := m.cells.ReadCell(holder, fh)
				if err != nil {
					continue
				}
				switch fs.Variant {
				case types.VariantEntityReference:
					if ref, has := cell.Value.Reference(); has && ref == victim {
						if err := stamp(holder, fh, types.NullReference()); err != nil {
							return err
						}
					}
				case types.VariantEntityList:
					list := cell.Value.List()
					if !containsID(list, victim) {
						continue
					}
					filtered := make([]types.EntityId, 0, len(list))
					for _, id := range list {
						if id != victim {
							filtered = append(filtered, id)
						}
					}
					if err := stamp(holder, fh, types.ListValue(filtered)); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// inverseOf reports the field handle, on the type referenced by (entity's
// type, field), that must be kept symmetric with it, and whether one
// exists. Parent/Children are the builtin pairing; anything else comes
// from FieldSchema.InverseOf.
func (m *Manager) inverseOf(entity types.EntityId, field types.FieldTypeHandle) (types.FieldTypeHandle, bool) {
	if field == m.parentField {
		return m.childrenField, true
	}
	if field == m.childrenField {
		return m.parentField, true
	}

	t, ok := m.cells.TypeOf(entity)
	if !ok {
		return types.InvalidFieldType, false
	}
	complete, err := m.registry.CompleteSchema(t)
	if err != nil {
		return types.InvalidFieldType, false
	}
	fs, ok := complete.Fields[field]
	if !ok || fs.InverseOf == "" {
		return types.InvalidFieldType, false
	}
	// InverseOf names a field by name on the referenced entity's type; the
	// referenced entity's complete schema is resolved lazily by the caller
	// (addToInverse/removeFromInverse), since it may differ per target.
	inverseHandle, ok := m.lookupInverseHandle(field, fs.InverseOf)
	return inverseHandle, ok
}

// lookupInverseHandle resolves fs.InverseOf to a handle by scanning the
// complete schema of every type that owns a store bucket for a field with
// that name. This is O(types)
// but InverseOf resolution only happens on reference/list writes, not on
// every read.
func (m *Manager) lookupInverseHandle(_ types.FieldTypeHandle, name string) (types.FieldTypeHandle, bool) {
	for _, t := range m.cells.ListAllTypes() {
		complete, err := m.registry.CompleteSchema(t)
		if err != nil {
			continue
		}
		for h, fs := range complete.Fields {
			if fs.Name == name {
				return h, true
			}
		}
	}
	return types.InvalidFieldType, false
}

func (m *Manager) removeFromInverse(target types.EntityId, inverse types.FieldTypeHandle, self types.EntityId, stamp func(types.EntityId, types.FieldTypeHandle, types.Value) error) error {
	return m.removeFromReferenceOrList(target, inverse, self, stamp)
}

func (m *Manager) addToInverse(target types.EntityId, inverse types.FieldTypeHandle, self types.EntityId, stamp func(types.EntityId, types.FieldTypeHandle, types.Value) error) error {
	return m.addToReferenceOrList(target, inverse, self, stamp)
}

func (m *Manager) removeFromReferenceOrList(target types.EntityId, inverse types.FieldTypeHandle, self types.EntityId, stamp func(types.EntityId, types.FieldTypeHandle, types.Value) error) error {
	cell, err := m.cells.ReadCell(target, inverse)
	if err != nil {
		return nil // target may have been deleted already; nothing to clean up
	}
	switch cell.Value.Variant() {
	case types.VariantEntityReference:
		if ref, has := cell.Value.Reference(); has && ref == self {
			return stamp(target, inverse, types.NullReference())
		}
	case types.VariantEntityList:
		list := cell.Value.List()
		if !containsID(list, self) {
			return nil
		}
		filtered := make([]types.EntityId, 0, len(list))
		for _, id := range list {
			if id != self {
				filtered = append(filtered, id)
			}
		}
		return stamp(target, inverse, types.ListValue(filtered))
	}
	return nil
}

func (m *Manager) addToReferenceOrList(target types.EntityId, inverse types.FieldTypeHandle, self types.EntityId, stamp func(types.EntityId, types.FieldTypeHandle, types.Value) error) error {
	cell, err := m.cells.ReadCell(target, inverse)
	if err != nil {
		return nil
	}
	switch cell.Value.Variant() {
	case types.VariantEntityReference:
		return stamp(target, inverse, types.ReferenceValue(self))
	case types.VariantEntityList:
		list := cell.Value.List()
		if containsID(list, self) {
			return nil
		}
		return stamp(target, inverse, types.ListValue(append(append([]types.EntityId{}, list...), self)))
	}
	return nil
}

func containsID(list []types.EntityId, id types.EntityId) bool {
	for _, x := range list {
		if x == id {
			return true
		}
	}
	return false
}

func toSet(list []types.EntityId) map[types.EntityId]bool {
	out := make(map[types.EntityId]bool, len(list))
	for _, id := range list {
		out[id] = true
	}
	return out
}
