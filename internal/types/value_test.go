package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_EqualScalars(t *testing.T) {
	assert.True(t, IntValue(5).Equal(IntValue(5)))
	assert.False(t, IntValue(5).Equal(IntValue(6)))
	assert.False(t, IntValue(5).Equal(FloatValue(5)))
	assert.True(t, StringValue("a").Equal(StringValue("a")))
	assert.True(t, BoolValue(true).Equal(BoolValue(true)))
}

func TestValue_EqualNaNIsCanonical(t *testing.T) {
	a := FloatValue(math.NaN())
	b := FloatValue(math.NaN())
	assert.True(t, a.Equal(b), "two NaN floats must compare equal under canonical-NaN semantics")
}

func TestValue_EqualReference(t *testing.T) {
	assert.True(t, NullReference().Equal(NullReference()))
	assert.True(t, ReferenceValue(7).Equal(ReferenceValue(7)))
	assert.False(t, ReferenceValue(7).Equal(ReferenceValue(8)))
	assert.False(t, NullReference().Equal(ReferenceValue(7)))
}

func TestValue_EqualList(t *testing.T) {
	a := ListValue([]EntityId{1, 2, 3})
	b := ListValue([]EntityId{1, 2, 3})
	c := ListValue([]EntityId{1, 2})
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestValue_CloneIsIndependent(t *testing.T) {
	orig := BlobValue([]byte{1, 2, 3})
	cloned := orig.Clone()
	cloned.Blob()[0] = 99
	assert.Equal(t, byte(1), orig.Blob()[0], "mutating a clone's backing array must not affect the original")

	origList := ListValue([]EntityId{1, 2})
	clonedList := origList.Clone()
	clonedList.List()[0] = 99
	assert.Equal(t, EntityId(1), origList.List()[0])
}

func TestValue_CloneScalarIsCheap(t *testing.T) {
	v := IntValue(42)
	c := v.Clone()
	require.True(t, v.Equal(c))
}

func TestValue_Variants(t *testing.T) {
	require.Equal(t, VariantInt, IntValue(1).Variant())
	require.Equal(t, VariantString, StringValue("x").Variant())
	require.Equal(t, VariantEntityReference, NullReference().Variant())
	require.Equal(t, VariantEntityList, ListValue(nil).Variant())
}
