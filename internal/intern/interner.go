package intern

import "github.com/matthewbaird/eavdb/internal/types"

// Interner owns the entity-type and field-type name tables for one engine.
// Interners are engine-scoped (spec.md §9): two Interner values never share
// handle numbering, so multiple engines may coexist in one process.
type Interner struct {
	entityTypes *Table[types.EntityTypeHandle]
	fieldTypes  *Table[types.FieldTypeHandle]
}

func NewInterner() *Interner {
	return &Interner{
		entityTypes: New[types.EntityTypeHandle](),
		fieldTypes:  New[types.FieldTypeHandle](),
	}
}

func (in *Interner) InternEntityType(name string) types.EntityTypeHandle {
	return in.entityTypes.Intern(name)
}

func (in *Interner) InternFieldType(name string) types.FieldTypeHandle {
	return in.fieldTypes.Intern(name)
}

func (in *Interner) LookupEntityType(name string) (types.EntityTypeHandle, bool) {
	return in.entityTypes.Lookup(name)
}

func (in *Interner) LookupFieldType(name string) (types.FieldTypeHandle, bool) {
	return in.fieldTypes.Lookup(name)
}

func (in *Interner) ResolveEntityType(h types.EntityTypeHandle) (string, bool) {
	return in.entityTypes.Resolve(h)
}

func (in *Interner) ResolveFieldType(h types.FieldTypeHandle) (string, bool) {
	return in.fieldTypes.Resolve(h)
}

// ListEntityTypes returns every interned entity type name, in
// first-interned order.
func (in *Interner) ListEntityTypes() []string {
	return in.entityTypes.Names()
}
