package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_TagMapping(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		tag  string
	}{
		{ErrEntityNotFound, "NOENT"},
		{ErrFieldNotFound, "NOENT"},
		{ErrEntityTypeNotFound, "NOENT"},
		{ErrFieldTypeNotFound, "NOENT"},
		{ErrBadIndirection, "BADIND"},
		{ErrSchemaCycle, "SCHEMA"},
		{ErrSchemaVariantMismatch, "SCHEMA"},
		{ErrSchemaUnknownParent, "SCHEMA"},
		{ErrValueVariantMismatch, "WRONGTYPE"},
		{ErrAdjustInapplicable, "WRONGTYPE"},
		{ErrArithmeticOverflow, "OVERFLOW"},
		{ErrAuthRequired, "AUTH"},
		{ErrAuthFailed, "AUTH"},
		{ErrPermissionDenied, "AUTH"},
		{ErrInvalidArguments, "ARGS"},
		{ErrUnknown, "ARGS"},
	}
	for _, c := range cases {
		err := NewError(c.kind, "boom")
		assert.Equal(t, c.tag, err.Tag())
	}
}

func TestError_IsMatchesOnKindOnly(t *testing.T) {
	a := NewErrorf(ErrEntityNotFound, "entity %d missing", 5)
	b := NewError(ErrEntityNotFound, "different message entirely")
	assert.True(t, errors.Is(a, b), "errors with the same Kind must match regardless of Message")

	c := NewError(ErrFieldNotFound, "entity %d missing")
	assert.False(t, errors.Is(a, c))
}

func TestError_UnwrapThroughFmtErrorf(t *testing.T) {
	base := NewError(ErrQueueFull, "queue overflow")
	wrapped := fmt.Errorf("dispatch: %w", base)

	var target *Error
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, ErrQueueFull, target.Kind)
}

func TestError_MessageFormatting(t *testing.T) {
	err := NewError(ErrInvalidArguments, "bad arg")
	assert.Contains(t, err.Error(), "ARGS")
	assert.Contains(t, err.Error(), "bad arg")
}
