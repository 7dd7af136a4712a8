package store

import (
	"testing"
	"time"

	"github.com/matthewbaird/eavdb/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	typePerson types.EntityTypeHandle = 1
	fieldName  types.FieldTypeHandle  = 10
	fieldAge   types.FieldTypeHandle  = 11
)

func TestStore_CreateAssignsIncrementingSeq(t *testing.T) {
	s := New()
	a := s.CreateEntity(typePerson, nil)
	b := s.CreateEntity(typePerson, nil)

	assert.Equal(t, typePerson, a.Type())
	assert.Equal(t, uint32(1), a.Seq())
	assert.Equal(t, uint32(2), b.Seq())
}

func TestStore_CreateAndReadCell(t *testing.T) {
	s := New()
	id := s.CreateEntity(typePerson, map[types.FieldTypeHandle]types.FieldCell{
		fieldName: {Value: types.StringValue("ada")},
	})

	cell, err := s.ReadCell(id, fieldName)
	require.NoError(t, err)
	assert.True(t, cell.Value.Equal(types.StringValue("ada")))
}

func TestStore_ReadCellUnknownEntity(t *testing.T) {
	s := New()
	_, err := s.ReadCell(types.NewEntityId(typePerson, 99), fieldName)
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrEntityNotFound, typedErr.Kind)
}

func TestStore_ReadCellUnknownField(t *testing.T) {
	s := New()
	id := s.CreateEntity(typePerson, nil)
	_, err := s.ReadCell(id, fieldName)
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrFieldNotFound, typedErr.Kind)
}

func TestStore_WriteCellRequiresExistingField(t *testing.T) {
	s := New()
	id := s.CreateEntity(typePerson, nil)
	err := s.WriteCell(id, fieldName, types.FieldCell{Value: types.StringValue("x")})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrFieldNotFound, typedErr.Kind)
}

func TestStore_WriteCellOverwrites(t *testing.T) {
	s := New()
	id := s.CreateEntity(typePerson, map[types.FieldTypeHandle]types.FieldCell{
		fieldName: {Value: types.StringValue("ada")},
	})
	require.NoError(t, s.WriteCell(id, fieldName, types.FieldCell{Value: types.StringValue("grace")}))

	cell, err := s.ReadCell(id, fieldName)
	require.NoError(t, err)
	assert.True(t, cell.Value.Equal(types.StringValue("grace")))
}

func TestStore_DeleteEntityRemovesFromBucket(t *testing.T) {
	s := New()
	a := s.CreateEntity(typePerson, nil)
	b := s.CreateEntity(typePerson, nil)
	c := s.CreateEntity(typePerson, nil)

	require.NoError(t, s.DeleteEntity(b))

	assert.False(t, s.EntityExists(b))
	assert.True(t, s.EntityExists(a))
	assert.True(t, s.EntityExists(c))
	assert.ElementsMatch(t, []types.EntityId{a, c}, s.ListEntitiesOfType(typePerson))
}

func TestStore_DeleteUnknownEntity(t *testing.T) {
	s := New()
	err := s.DeleteEntity(types.NewEntityId(typePerson, 1))
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrEntityNotFound, typedErr.Kind)
}

func TestStore_ListEntitiesOfTypeIsInsertionOrdered(t *testing.T) {
	s := New()
	a := s.CreateEntity(typePerson, nil)
	b := s.CreateEntity(typePerson, nil)
	c := s.CreateEntity(typePerson, nil)

	assert.Equal(t, []types.EntityId{a, b, c}, s.ListEntitiesOfType(typePerson))
}

func TestStore_ListEntitiesOfTypeReturnsCopy(t *testing.T) {
	s := New()
	s.CreateEntity(typePerson, nil)
	list := s.ListEntitiesOfType(typePerson)
	list[0] = 0
	assert.NotEqual(t, types.EntityId(0), s.ListEntitiesOfType(typePerson)[0])
}

func TestStore_FieldsReturnsIndependentCopy(t *testing.T) {
	s := New()
	id := s.CreateEntity(typePerson, map[types.FieldTypeHandle]types.FieldCell{
		fieldName: {Value: types.StringValue("ada")},
	})
	fields, err := s.Fields(id)
	require.NoError(t, err)
	fields[fieldName] = types.FieldCell{Value: types.StringValue("mutated")}

	cell, err := s.ReadCell(id, fieldName)
	require.NoError(t, err)
	assert.True(t, cell.Value.Equal(types.StringValue("ada")))
}

func TestStore_ApplyDiffMaterializesAndDiscards(t *testing.T) {
	s := New()
	id := s.CreateEntity(typePerson, map[types.FieldTypeHandle]types.FieldCell{
		fieldName: {Value: types.StringValue("ada")},
	})
	now := time.Unix(1000, 0)
	s.ApplyDiff(typePerson, map[types.FieldTypeHandle]types.Value{
		fieldAge: types.IntValue(0),
	}, []types.FieldTypeHandle{fieldName}, now, "migrator")

	_, err := s.ReadCell(id, fieldName)
	require.Error(t, err)

	cell, err := s.ReadCell(id, fieldAge)
	require.NoError(t, err)
	assert.True(t, cell.Value.Equal(types.IntValue(0)))
	assert.Equal(t, "migrator", cell.Writer)
	assert.True(t, now.Equal(cell.Timestamp))
}

func TestStore_TypeOfUnknownEntity(t *testing.T) {
	s := New()
	_, ok := s.TypeOf(types.NewEntityId(typePerson, 1))
	assert.False(t, ok)
}

func TestStore_ListAllTypes(t *testing.T) {
	s := New()
	s.CreateEntity(typePerson, nil)
	s.CreateEntity(2, nil)
	assert.ElementsMatch(t, []types.EntityTypeHandle{typePerson, 2}, s.ListAllTypes())
}
