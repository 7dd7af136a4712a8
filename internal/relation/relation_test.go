package relation

import (
	"testing"

	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCells is a minimal in-memory Cells implementation for exercising the
// relationship manager without pulling in internal/store.
type fakeCells struct {
	typeOf map[types.EntityId]types.EntityTypeHandle
	fields map[types.EntityId]map[types.FieldTypeHandle]types.FieldCell
}

func newFakeCells() *fakeCells {
	return &fakeCells{
		typeOf: make(map[types.EntityId]types.EntityTypeHandle),
		fields: make(map[types.EntityId]map[types.FieldTypeHandle]types.FieldCell),
	}
}

func (f *fakeCells) put(id types.EntityId, t types.EntityTypeHandle, field types.FieldTypeHandle, v types.Value) {
	f.typeOf[id] = t
	if f.fields[id] == nil {
		f.fields[id] = make(map[types.FieldTypeHandle]types.FieldCell)
	}
	f.fields[id][field] = types.FieldCell{Value: v}
}

func (f *fakeCells) ReadCell(id types.EntityId, field types.FieldTypeHandle) (types.FieldCell, error) {
	cell, ok := f.fields[id][field]
	if !ok {
		return types.FieldCell{}, types.NewError(types.ErrFieldNotFound, "no such field")
	}
	return cell, nil
}

func (f *fakeCells) WriteCell(id types.EntityId, field types.FieldTypeHandle, cell types.FieldCell) error {
	if f.fields[id] == nil {
		f.fields[id] = make(map[types.FieldTypeHandle]types.FieldCell)
	}
	f.fields[id][field] = cell
	return nil
}

func (f *fakeCells) TypeOf(id types.EntityId) (types.EntityTypeHandle, bool) {
	t, ok := f.typeOf[id]
	return t, ok
}

func (f *fakeCells) ListEntitiesOfType(t types.EntityTypeHandle) []types.EntityId {
	var out []types.EntityId
	for id, typ := range f.typeOf {
		if typ == t {
			out = append(out, id)
		}
	}
	return out
}

func (f *fakeCells) ListAllTypes() []types.EntityTypeHandle {
	seen := map[types.EntityTypeHandle]bool{}
	var out []types.EntityTypeHandle
	for _, t := range f.typeOf {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeCells) Fields(id types.EntityId) (map[types.FieldTypeHandle]types.FieldCell, error) {
	return f.fields[id], nil
}

const (
	typePerson   types.EntityTypeHandle = 1
	fieldParent  types.FieldTypeHandle  = 1
	fieldChild   types.FieldTypeHandle  = 2
	fieldFriend  types.FieldTypeHandle  = 3
	fieldFriends types.FieldTypeHandle  = 4
)

func newRegistryWithInverse() *schema.Registry {
	r := schema.NewRegistry()
	_, _ = r.UpdateSchema(schema.SingleSchema{
		Type: typePerson,
		Fields: map[string]schema.FieldSchema{
			"parent":  {Handle: fieldParent, Name: "parent", Variant: types.VariantEntityReference},
			"child":   {Handle: fieldChild, Name: "child", Variant: types.VariantEntityList},
			"friend":  {Handle: fieldFriend, Name: "friend", Variant: types.VariantEntityReference, InverseOf: "friend"},
			"friends": {Handle: fieldFriends, Name: "friends", Variant: types.VariantEntityList, InverseOf: "friends"},
		},
	})
	return r
}

func applyStamp(cells *fakeCells) func(types.EntityId, types.FieldTypeHandle, types.Value) error {
	return func(id types.EntityId, field types.FieldTypeHandle, v types.Value) error {
		return cells.WriteCell(id, field, types.FieldCell{Value: v})
	}
}

func TestManager_OnReferenceWriteBuiltinParentChildren(t *testing.T) {
	cells := newFakeCells()
	a := types.NewEntityId(typePerson, 1)
	b := types.NewEntityId(typePerson, 2)
	cells.put(a, typePerson, fieldChild, types.ListValue(nil))
	cells.put(b, typePerson, fieldParent, types.NullReference())

	m := NewManager(newRegistryWithInverse(), cells, fieldParent, fieldChild)
	err := m.OnReferenceWrite(b, fieldParent, types.NullReference(), types.ReferenceValue(a), applyStamp(cells))
	require.NoError(t, err)

	cell, err := cells.ReadCell(a, fieldChild)
	require.NoError(t, err)
	assert.Equal(t, []types.EntityId{b}, cell.Value.List())
}

func TestManager_OnReferenceWriteRemovesOldParentChild(t *testing.T) {
	cells := newFakeCells()
	oldParent := types.NewEntityId(typePerson, 1)
	newParent := types.NewEntityId(typePerson, 2)
	child := types.NewEntityId(typePerson, 3)
	cells.put(oldParent, typePerson, fieldChild, types.ListValue([]types.EntityId{child}))
	cells.put(newParent, typePerson, fieldChild, types.ListValue(nil))
	cells.put(child, typePerson, fieldParent, types.ReferenceValue(oldParent))

	m := NewManager(newRegistryWithInverse(), cells, fieldParent, fieldChild)
	err := m.OnReferenceWrite(child, fieldParent, types.ReferenceValue(oldParent), types.ReferenceValue(newParent), applyStamp(cells))
	require.NoError(t, err)

	oldCell, _ := cells.ReadCell(oldParent, fieldChild)
	assert.Empty(t, oldCell.Value.List())

	newCell, _ := cells.ReadCell(newParent, fieldChild)
	assert.Equal(t, []types.EntityId{child}, newCell.Value.List())
}

func TestManager_OnReferenceWriteDeclaredInverse(t *testing.T) {
	cells := newFakeCells()
	a := types.NewEntityId(typePerson, 1)
	b := types.NewEntityId(typePerson, 2)
	cells.put(a, typePerson, fieldFriend, types.NullReference())
	cells.put(b, typePerson, fieldFriend, types.NullReference())

	m := NewManager(newRegistryWithInverse(), cells, fieldParent, fieldChild)
	err := m.OnReferenceWrite(a, fieldFriend, types.NullReference(), types.ReferenceValue(b), applyStamp(cells))
	require.NoError(t, err)

	cell, err := cells.ReadCell(b, fieldFriend)
	require.NoError(t, err)
	ref, has := cell.Value.Reference()
	require.True(t, has)
	assert.Equal(t, a, ref)
}

func TestManager_OnListWriteAddAndRemove(t *testing.T) {
	cells := newFakeCells()
	a := types.NewEntityId(typePerson, 1)
	x := types.NewEntityId(typePerson, 2)
	y := types.NewEntityId(typePerson, 3)
	cells.put(a, typePerson, fieldFriends, types.ListValue(nil))
	cells.put(x, typePerson, fieldFriends, types.ListValue(nil))
	cells.put(y, typePerson, fieldFriends, types.ListValue([]types.EntityId{a}))

	m := NewManager(newRegistryWithInverse(), cells, fieldParent, fieldChild)

	// a's friends list changes from [y] to [x]: y loses a, x gains a.
	err := m.OnListWrite(a, fieldFriends, types.ListValue([]types.EntityId{y}), types.ListValue([]types.EntityId{x}), applyStamp(cells))
	require.NoError(t, err)

	xCell, _ := cells.ReadCell(x, fieldFriends)
	assert.Equal(t, []types.EntityId{a}, xCell.Value.List())

	yCell, _ := cells.ReadCell(y, fieldFriends)
	assert.Empty(t, yCell.Value.List())
}

func TestManager_DetachInboundClearsReferenceAndList(t *testing.T) {
	cells := newFakeCells()
	victim := types.NewEntityId(typePerson, 1)
	holder := types.NewEntityId(typePerson, 2)
	listHolder := types.NewEntityId(typePerson, 3)
	cells.put(holder, typePerson, fieldParent, types.ReferenceValue(victim))
	cells.put(listHolder, typePerson, fieldChild, types.ListValue([]types.EntityId{victim}))

	registry := newRegistryWithInverse()
	m := NewManager(registry, cells, fieldParent, fieldChild)

	err := m.DetachInbound(victim, applyStamp(cells))
	require.NoError(t, err)

	holderCell, _ := cells.ReadCell(holder, fieldParent)
	_, has := holderCell.Value.Reference()
	assert.False(t, has)

	listCell, _ := cells.ReadCell(listHolder, fieldChild)
	assert.Empty(t, listCell.Value.List())
}

func TestManager_NoInverseIsNoOp(t *testing.T) {
	cells := newFakeCells()
	a := types.NewEntityId(typePerson, 1)
	registry := schema.NewRegistry()
	_, _ = registry.UpdateSchema(schema.SingleSchema{
		Type: typePerson,
		Fields: map[string]schema.FieldSchema{
			"plain": {Handle: 99, Name: "plain", Variant: types.VariantEntityReference},
		},
	})
	cells.put(a, typePerson, 99, types.NullReference())

	m := NewManager(registry, cells, fieldParent, fieldChild)
	err := m.OnReferenceWrite(a, 99, types.NullReference(), types.ReferenceValue(a), applyStamp(cells))
	require.NoError(t, err)
}
