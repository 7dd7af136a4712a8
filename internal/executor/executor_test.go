package executor

import (
	"testing"

	"github.com/matthewbaird/eavdb/internal/filter"
	"github.com/matthewbaird/eavdb/internal/indirect"
	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, types.EntityTypeHandle, map[string]types.FieldTypeHandle) {
	t.Helper()
	e := New(filter.NewEvaluator())

	in := e.Interner()
	personType := in.InternEntityType("Person")
	ageField := in.InternFieldType("Age")
	nameField := e.NameField()
	friendsField := in.InternFieldType("Friends")

	_, err := e.SchemaUpdate(schema.SingleSchema{
		Type: personType,
		Fields: map[string]schema.FieldSchema{
			"Name": {Handle: nameField, Name: "Name", Variant: types.VariantString, Default: types.StringValue("")},
			"Age":  {Handle: ageField, Name: "Age", Variant: types.VariantInt, Default: types.IntValue(0)},
			"Parent": {Handle: e.ParentField(), Name: "Parent", Variant: types.VariantEntityReference, Default: types.NullReference()},
			"Children": {Handle: e.ChildrenField(), Name: "Children", Variant: types.VariantEntityList, Default: types.ListValue(nil)},
			"Friends": {Handle: friendsField, Name: "Friends", Variant: types.VariantEntityList, Default: types.ListValue(nil)},
		},
	})
	require.NoError(t, err)

	return e, personType, map[string]types.FieldTypeHandle{
		"age":     ageField,
		"name":    nameField,
		"friends": friendsField,
	}
}

func TestEngine_CreateAppliesDefaultsAndName(t *testing.T) {
	e, personType, fields := newTestEngine(t)

	id, err := e.Create(personType, CreateOpts{Name: "Ada", HasName: true, Writer: "tester"})
	require.NoError(t, err)

	val, _, writer, err := e.Read(id, []indirect.Token{indirect.FieldToken(fields["name"])})
	require.NoError(t, err)
	assert.Equal(t, "Ada", val.String())
	assert.Equal(t, "tester", writer)
}

func TestEngine_CreateWithParentUpdatesChildren(t *testing.T) {
	e, personType, _ := newTestEngine(t)

	parent, err := e.Create(personType, CreateOpts{Writer: "tester"})
	require.NoError(t, err)
	child, err := e.Create(personType, CreateOpts{Parent: parent, HasParent: true, Writer: "tester"})
	require.NoError(t, err)

	val, _, _, err := e.Read(parent, []indirect.Token{indirect.FieldToken(e.ChildrenField())})
	require.NoError(t, err)
	assert.Equal(t, []types.EntityId{child}, val.List())
}

func TestEngine_WriteAdjustAdd(t *testing.T) {
	e, personType, fields := newTestEngine(t)
	id, err := e.Create(personType, CreateOpts{Writer: "tester"})
	require.NoError(t, err)

	err = e.Write(id, []indirect.Token{indirect.FieldToken(fields["age"])}, types.IntValue(5), WriteOpts{})
	require.NoError(t, err)
	err = e.Write(id, []indirect.Token{indirect.FieldToken(fields["age"])}, types.IntValue(3), WriteOpts{Adjust: types.AdjustAdd})
	require.NoError(t, err)

	val, _, _, err := e.Read(id, []indirect.Token{indirect.FieldToken(fields["age"])})
	require.NoError(t, err)
	assert.Equal(t, int64(8), val.Int())
}

func TestEngine_WriteAdjustAddOverflowDetected(t *testing.T) {
	e, personType, fields := newTestEngine(t)
	id, err := e.Create(personType, CreateOpts{Writer: "tester"})
	require.NoError(t, err)

	err = e.Write(id, []indirect.Token{indirect.FieldToken(fields["age"])}, types.IntValue(9223372036854775807), WriteOpts{})
	require.NoError(t, err)

	err = e.Write(id, []indirect.Token{indirect.FieldToken(fields["age"])}, types.IntValue(1), WriteOpts{Adjust: types.AdjustAdd})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrArithmeticOverflow, typedErr.Kind)
}

func TestEngine_WriteRejectsWrongVariant(t *testing.T) {
	e, personType, fields := newTestEngine(t)
	id, err := e.Create(personType, CreateOpts{Writer: "tester"})
	require.NoError(t, err)

	err = e.Write(id, []indirect.Token{indirect.FieldToken(fields["age"])}, types.StringValue("nope"), WriteOpts{})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrValueVariantMismatch, typedErr.Kind)
}

func TestEngine_ParentCannotBecomeOwnDescendant(t *testing.T) {
	e, personType, _ := newTestEngine(t)

	grandparent, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)
	parent, err := e.Create(personType, CreateOpts{Parent: grandparent, HasParent: true, Writer: "t"})
	require.NoError(t, err)
	child, err := e.Create(personType, CreateOpts{Parent: parent, HasParent: true, Writer: "t"})
	require.NoError(t, err)

	// Attempt to make grandparent a child of its own grandchild: cycle.
	err = e.Write(grandparent, []indirect.Token{indirect.FieldToken(e.ParentField())}, types.ReferenceValue(child), WriteOpts{})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrInvalidArguments, typedErr.Kind)
}

func TestEngine_ParentCannotBeSelf(t *testing.T) {
	e, personType, _ := newTestEngine(t)
	id, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)

	err = e.Write(id, []indirect.Token{indirect.FieldToken(e.ParentField())}, types.ReferenceValue(id), WriteOpts{})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrInvalidArguments, typedErr.Kind)
}

func TestEngine_ReassigningParentToUnrelatedEntitySucceeds(t *testing.T) {
	e, personType, _ := newTestEngine(t)
	p1, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)
	p2, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)
	child, err := e.Create(personType, CreateOpts{Parent: p1, HasParent: true, Writer: "t"})
	require.NoError(t, err)

	err = e.Write(child, []indirect.Token{indirect.FieldToken(e.ParentField())}, types.ReferenceValue(p2), WriteOpts{})
	require.NoError(t, err)

	val, _, _, err := e.Read(p2, []indirect.Token{indirect.FieldToken(e.ChildrenField())})
	require.NoError(t, err)
	assert.Equal(t, []types.EntityId{child}, val.List())

	val, _, _, err = e.Read(p1, []indirect.Token{indirect.FieldToken(e.ChildrenField())})
	require.NoError(t, err)
	assert.Empty(t, val.List())
}

func TestEngine_DeleteCascadesToChildren(t *testing.T) {
	e, personType, _ := newTestEngine(t)
	parent, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)
	child, err := e.Create(personType, CreateOpts{Parent: parent, HasParent: true, Writer: "t"})
	require.NoError(t, err)
	grandchild, err := e.Create(personType, CreateOpts{Parent: child, HasParent: true, Writer: "t"})
	require.NoError(t, err)

	require.NoError(t, e.Delete(parent, "t"))

	_, _, _, err = e.Read(parent, []indirect.Token{indirect.FieldToken(e.NameField())})
	require.Error(t, err)
	_, _, _, err = e.Read(child, []indirect.Token{indirect.FieldToken(e.NameField())})
	require.Error(t, err)
	_, _, _, err = e.Read(grandchild, []indirect.Token{indirect.FieldToken(e.NameField())})
	require.Error(t, err)
}

func TestEngine_DeleteClearsInboundReferencesFromSurvivors(t *testing.T) {
	e, personType, fields := newTestEngine(t)
	a, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)
	b, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)

	require.NoError(t, e.Write(a, []indirect.Token{indirect.FieldToken(fields["friends"])}, types.ListValue([]types.EntityId{b}), WriteOpts{Push: types.PushReplaceAll}))

	require.NoError(t, e.Delete(b, "t"))

	val, _, _, err := e.Read(a, []indirect.Token{indirect.FieldToken(fields["friends"])})
	require.NoError(t, err)
	assert.Empty(t, val.List())
}

func TestEngine_FindEntitiesWithFilter(t *testing.T) {
	e, personType, fields := newTestEngine(t)
	_, err := e.Create(personType, CreateOpts{Name: "young", HasName: true, Writer: "t"})
	require.NoError(t, err)
	old, err := e.Create(personType, CreateOpts{Name: "old", HasName: true, Writer: "t"})
	require.NoError(t, err)
	require.NoError(t, e.Write(old, []indirect.Token{indirect.FieldToken(fields["age"])}, types.IntValue(80), WriteOpts{}))

	ids, err := e.FindEntities(personType, "Age > 50")
	require.NoError(t, err)
	assert.Equal(t, []types.EntityId{old}, ids)
}

func TestEngine_FindEntitiesPaginated(t *testing.T) {
	e, personType, _ := newTestEngine(t)
	for i := 0; i < 5; i++ {
		_, err := e.Create(personType, CreateOpts{Writer: "t"})
		require.NoError(t, err)
	}

	page, total, totalPages, pageNumber, err := e.FindEntitiesPaginated(personType, types.PageOpts{PageSize: 2, PageNumber: 2}, "")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, totalPages)
	assert.Equal(t, 2, pageNumber)
	assert.Len(t, page, 2)
}

func TestEngine_FindEntitiesPaginatedOutOfRange(t *testing.T) {
	e, personType, _ := newTestEngine(t)
	_, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)

	page, total, _, _, err := e.FindEntitiesPaginated(personType, types.PageOpts{PageSize: 10, PageNumber: 99}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, page)
}

func TestEngine_ListPushAlwaysRejectsDuplicate(t *testing.T) {
	e, personType, fields := newTestEngine(t)
	a, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)
	b, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)

	require.NoError(t, e.Write(a, []indirect.Token{indirect.FieldToken(fields["friends"])}, types.ListValue([]types.EntityId{b}), WriteOpts{Push: types.PushAlways}))

	err = e.Write(a, []indirect.Token{indirect.FieldToken(fields["friends"])}, types.ListValue([]types.EntityId{b}), WriteOpts{Push: types.PushAlways})
	require.Error(t, err)
	var typedErr *types.Error
	require.ErrorAs(t, err, &typedErr)
	assert.Equal(t, types.ErrInvalidArguments, typedErr.Kind)
}

func TestEngine_ListPushAddIfMissingIsIdempotent(t *testing.T) {
	e, personType, fields := newTestEngine(t)
	a, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)
	b, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, e.Write(a, []indirect.Token{indirect.FieldToken(fields["friends"])}, types.ListValue([]types.EntityId{b}), WriteOpts{Push: types.PushAddIfMissing}))
	}

	val, _, _, err := e.Read(a, []indirect.Token{indirect.FieldToken(fields["friends"])})
	require.NoError(t, err)
	assert.Equal(t, []types.EntityId{b}, val.List())
}

func TestEngine_ExportAndRestoreConfiguration(t *testing.T) {
	e := New(filter.NewEvaluator())
	in := e.Interner()
	personType := in.InternEntityType("Person")
	cfgField := in.InternFieldType("APIKey")

	_, err := e.SchemaUpdate(schema.SingleSchema{
		Type: personType,
		Fields: map[string]schema.FieldSchema{
			"APIKey": {Handle: cfgField, Name: "APIKey", Variant: types.VariantString, Scope: types.ScopeConfiguration},
		},
	})
	require.NoError(t, err)

	id, err := e.Create(personType, CreateOpts{Writer: "t"})
	require.NoError(t, err)
	require.NoError(t, e.Write(id, []indirect.Token{indirect.FieldToken(cfgField)}, types.StringValue("secret"), WriteOpts{}))

	snaps, err := e.ExportConfiguration()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "secret", snaps[0].Fields[cfgField].String())

	require.NoError(t, e.Write(id, []indirect.Token{indirect.FieldToken(cfgField)}, types.StringValue("overwritten"), WriteOpts{}))
	require.NoError(t, e.RestoreConfiguration(snaps, "restorer"))

	val, _, writer, err := e.Read(id, []indirect.Token{indirect.FieldToken(cfgField)})
	require.NoError(t, err)
	assert.Equal(t, "secret", val.String())
	assert.Equal(t, "restorer", writer)
}
