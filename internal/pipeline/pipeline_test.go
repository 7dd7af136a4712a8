package pipeline

import (
	"testing"

	"github.com/matthewbaird/eavdb/internal/executor"
	"github.com/matthewbaird/eavdb/internal/filter"
	"github.com/matthewbaird/eavdb/internal/indirect"
	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngineWithPerson(t *testing.T) (*executor.Engine, types.EntityTypeHandle, types.FieldTypeHandle) {
	t.Helper()
	eng := executor.New(filter.NewEvaluator())
	in := eng.Interner()
	personType := in.InternEntityType("Person")
	ageField := in.InternFieldType("Age")
	_, err := eng.SchemaUpdate(schema.SingleSchema{
		Type: personType,
		Fields: map[string]schema.FieldSchema{
			"Age": {Handle: ageField, Name: "Age", Variant: types.VariantInt},
		},
	})
	require.NoError(t, err)
	return eng, personType, ageField
}

func TestPipeline_RunExecutesInOrderNonTransactionally(t *testing.T) {
	eng, personType, ageField := newEngineWithPerson(t)

	ops := NewBuilder().
		Create(personType, executor.CreateOpts{Writer: "t"}).
		Read(types.NewEntityId(personType, 999), []indirect.Token{indirect.FieldToken(ageField)}). // fails: unknown entity
		Find(personType, "").
		Build()

	results := Run(eng, ops)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.NotEqual(t, types.NoEntity, results[0].EntityID)

	require.Error(t, results[1].Err, "a failing op must not abort the rest of the pipeline")

	require.NoError(t, results[2].Err)
	assert.Len(t, results[2].Entities, 1, "the Create from op 0 must be visible to the Find in op 2")
}

func TestPipeline_WriteThenReadSeesWrittenValue(t *testing.T) {
	eng, personType, ageField := newEngineWithPerson(t)
	id, err := eng.Create(personType, executor.CreateOpts{Writer: "t"})
	require.NoError(t, err)

	ops := NewBuilder().
		Write(id, []indirect.Token{indirect.FieldToken(ageField)}, types.IntValue(21), executor.WriteOpts{}).
		Read(id, []indirect.Token{indirect.FieldToken(ageField)}).
		Build()

	results := Run(eng, ops)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Equal(t, int64(21), results[1].Value.Int())
}

func TestPipeline_DeleteThenFindOmitsDeletedEntity(t *testing.T) {
	eng, personType, _ := newEngineWithPerson(t)
	id, err := eng.Create(personType, executor.CreateOpts{Writer: "t"})
	require.NoError(t, err)

	ops := NewBuilder().
		Delete(id, "t").
		Find(personType, "").
		Build()

	results := Run(eng, ops)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Empty(t, results[1].Entities)
}

func TestPipeline_SchemaUpdateOpReturnsDiffs(t *testing.T) {
	eng, personType, _ := newEngineWithPerson(t)
	nameField := eng.Interner().InternFieldType("Name")

	ops := NewBuilder().
		SchemaUpdate(schema.SingleSchema{
			Type: personType,
			Fields: map[string]schema.FieldSchema{
				"Name": {Handle: nameField, Name: "Name", Variant: types.VariantString},
				"Age":  {Handle: eng.Interner().InternFieldType("Age"), Name: "Age", Variant: types.VariantInt},
			},
		}).
		Build()

	results := Run(eng, ops)
	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Diffs, 1)
}

func TestPipeline_UnknownKindIsRejected(t *testing.T) {
	eng, _, _ := newEngineWithPerson(t)
	results := Run(eng, []Op{{Kind: Kind(99)}})
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	var typedErr *types.Error
	require.ErrorAs(t, results[0].Err, &typedErr)
	assert.Equal(t, types.ErrInvalidArguments, typedErr.Kind)
}

func TestBuilder_AccumulatesOpsInCallOrder(t *testing.T) {
	b := NewBuilder()
	b.Create(1, executor.CreateOpts{}).Find(1, "")
	ops := b.Build()
	require.Len(t, ops, 2)
	assert.Equal(t, KindCreate, ops[0].Kind)
	assert.Equal(t, KindFind, ops[1].Kind)
}
