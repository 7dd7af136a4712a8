// Package indirect implements the indirection path resolver from spec.md
// §4.5: a sequence of field handles and list indices is walked from a
// starting entity down to a terminal (entity, field) pair.
package indirect

import (
	"github.com/matthewbaird/eavdb/internal/types"
)

// Token is one element of an indirection path: either a field handle or a
// non-negative list index, never both.
type Token struct {
	Field types.FieldTypeHandle
	Index int
	IsIndex bool
}

func FieldToken(f types.FieldTypeHandle) Token { return Token{Field: f} }
func IndexToken(i int) Token                   { return Token{Index: i, IsIndex: true} }

// Terminal is the resolved (entity, field) pair a path names.
type Terminal struct {
	Entity types.EntityId
	Field  types.FieldTypeHandle
}

// CellReader is the minimal store surface the resolver needs.
type CellReader interface {
	ReadCell(id types.EntityId, field types.FieldTypeHandle) (types.FieldCell, error)
}

// Resolve walks path from start per spec.md §4.5. The last token must be a
// field handle (BadIndirection otherwise).
func Resolve(cells CellReader, start types.EntityId, path []Token) (Terminal, error) {
	if len(path) == 0 {
		return Terminal{}, types.NewError(types.ErrBadIndirection, "indirection path must not be empty")
	}

	curEntity := start
	var curField types.FieldTypeHandle
	haveField := false
	// pendingList holds the EntityList read when a field token produced a
	// list value; the *next* token must be an index selecting into it.
	var pendingList []types.EntityId
	havePendingList := false

	for i, tok := range path {
		last := i == len(path)-1

		if tok.IsIndex {
			if !havePendingList {
				return Terminal{}, types.NewError(types.ErrBadIndirection, "index token without a preceding list field")
			}
			if tok.Index < 0 || tok.Index >= len(pendingList) {
				return Terminal{}, types.NewErrorf(types.ErrBadIndirection, "list index %d out of bounds (len %d)", tok.Index, len(pendingList))
			}
			curEntity = pendingList[tok.Index]
			haveField = false
			havePendingList = false
			if last {
				return Terminal{}, types.NewError(types.ErrBadIndirection, "path must terminate on a field, not an index")
			}
			continue
		}

		if havePendingList {
			return Terminal{}, types.NewError(types.ErrBadIndirection, "list field must be followed by an index")
		}
		curField = tok.Field
		haveField = true
		havePendingList = false

		if last {
			break
		}

		cell, err := cells.ReadCell(curEntity, curField)
		if err != nil {
			return Terminal{}, err
		}
		switch cell.Value.Variant() {
		case types.VariantEntityReference:
			ref, has := cell.Value.Reference()
			if !has || ref == types.NoEntity {
				return Terminal{}, types.NewError(types.ErrBadIndirection, "null reference mid-path")
			}
			curEntity = ref
			haveField = false
		case types.VariantEntityList:
			pendingList = cell.Value.List()
			havePendingList = true
			// cur_entity/cur_field stay as-is; the next token must be an
			// index, checked at the top of the next iteration.
		default:
			return Terminal{}, types.NewErrorf(types.ErrBadIndirection, "field of variant %s cannot be traversed mid-path", cell.Value.Variant())
		}
	}

	if !haveField {
		return Terminal{}, types.NewError(types.ErrBadIndirection, "path must terminate on a field")
	}
	return Terminal{Entity: curEntity, Field: curField}, nil
}
