// Package schema implements the schema registry from spec.md §4.2: single
// schemas keyed by entity type, memoized "complete" schema closure over
// ancestry, and the diff computation schema updates need to retroactively
// materialize or discard per-entity field storage.
package schema

import "github.com/matthewbaird/eavdb/internal/types"

// FieldSchema describes one field of a (single or complete) entity schema
// (spec.md §3).
type FieldSchema struct {
	Handle     types.FieldTypeHandle
	Name       string
	Variant    types.Variant
	Default    types.Value
	Rank       int
	Scope      types.StorageScope
	Permission any // opaque; carried with the schema, read by neither the executor nor the authenticator

	// InverseOf names the field, on the type this field references, that
	// should be kept symmetric with it (spec.md §9 Open Questions —
	// schema-level inverse pairing, this repository's resolution). Empty
	// means no declared inverse beyond the builtin Parent/Children pair.
	InverseOf string
}

// SingleSchema is the schema an operator registers directly for one type:
// its own fields plus an ordered parent list (spec.md §3, "EntitySchema
// (single)"). Later parents override earlier ones; Fields overrides every
// parent.
type SingleSchema struct {
	Type    types.EntityTypeHandle
	Parents []types.EntityTypeHandle
	Fields  map[string]FieldSchema
}

// CompleteSchema is the closure over a type's ancestry (spec.md §3,
// "EntitySchema (complete)").
type CompleteSchema struct {
	Type types.EntityTypeHandle
	// Fields maps field handle to the winning FieldSchema for that field.
	Fields map[types.FieldTypeHandle]FieldSchema
	// Order lists field handles sorted by (Rank, Name) for deterministic
	// listings (spec.md §3, FieldSchema.rank).
	Order []types.FieldTypeHandle
}

// FieldNames returns the names of every field in the complete schema, in
// Order.
func (c *CompleteSchema) FieldNames() []string {
	out := make([]string, 0, len(c.Order))
	for _, h := range c.Order {
		out = append(out, c.Fields[h].Name)
	}
	return out
}

// Diff is the field-set delta spec.md §4.2 requires update_schema to apply
// to every live entity of the affected type: new fields materialized with
// their default, removed fields discarded.
type Diff struct {
	Type    types.EntityTypeHandle
	Added   []FieldSchema
	Removed []types.FieldTypeHandle
}

func (d Diff) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }
