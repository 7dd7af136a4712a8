// Package cueload loads entity-type schemas from CUE ontology definitions
// and applies them to an executor.Engine via SchemaUpdate, the CUE-based
// counterpart to the teacher's Ent-schema generator: instead of emitting Go
// source for a compile-time ORM, it builds schema.SingleSchema values for
// the in-memory EAV engine directly, at process startup.
//
// Ontology source shape (one definition per entity type):
//
//	#User: {
//		parents: ["#Principal"]
//		fields: {
//			Name: {variant: "String", default: "", rank: 0}
//			Age:  {variant: "Int", default: 0, rank: 1, scope: "Runtime"}
//			Boss: {variant: "EntityReference", inverse_of: "Reports"}
//		}
//	}
package cueload

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/matthewbaird/eavdb/internal/executor"
	"github.com/matthewbaird/eavdb/internal/intern"
	"github.com/matthewbaird/eavdb/internal/schema"
	"github.com/matthewbaird/eavdb/internal/types"
)

// LoadDir loads every `#TypeName` definition from the CUE package rooted at
// dir and returns one schema.SingleSchema per definition, with Type/parent
// type handles interned against in. Parent types are resolved by name and
// must themselves be `#`-prefixed definitions in the same package (either
// loaded in this same call or already known to in from a prior load).
func LoadDir(in *intern.Interner, dir string) ([]schema.SingleSchema, error) {
	ctx := cuecontext.New()

	insts := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(insts) == 0 {
		return nil, fmt.Errorf("cueload: no CUE instances found in %s", dir)
	}
	if insts[0].Err != nil {
		return nil, fmt.Errorf("cueload: loading CUE package: %w", insts[0].Err)
	}

	val := ctx.BuildInstance(insts[0])
	if val.Err() != nil {
		return nil, fmt.Errorf("cueload: building CUE value: %w", val.Err())
	}

	iter, err := val.Fields(cue.Definitions(true))
	if err != nil {
		return nil, fmt.Errorf("cueload: iterating definitions: %w", err)
	}

	var out []schema.SingleSchema
	for iter.Next() {
		label := iter.Selector().String()
		if len(label) == 0 || label[0] != '#' {
			continue
		}
		single, err := parseEntityDef(in, label[1:], iter.Value())
		if err != nil {
			return nil, fmt.Errorf("cueload: %s: %w", label, err)
		}
		out = append(out, single)
	}
	return out, nil
}

func parseEntityDef(in *intern.Interner, name string, defVal cue.Value) (schema.SingleSchema, error) {
	single := schema.SingleSchema{
		Type:   in.InternEntityType(name),
		Fields: map[string]schema.FieldSchema{},
	}

	if parentsVal := defVal.LookupPath(cue.ParsePath("parents")); parentsVal.Exists() {
		piter, err := parentsVal.List()
		if err != nil {
			return single, fmt.Errorf("parents: %w", err)
		}
		for piter.Next() {
			pname, err := piter.Value().String()
			if err != nil {
				return single, fmt.Errorf("parents: %w", err)
			}
			pname = trimHash(pname)
			single.Parents = append(single.Parents, in.InternEntityType(pname))
		}
	}

	fieldsVal := defVal.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return single, nil
	}
	fiter, err := fieldsVal.Fields()
	if err != nil {
		return single, fmt.Errorf("fields: %w", err)
	}
	for fiter.Next() {
		fieldName := fiter.Selector().String()
		fs, err := parseFieldDef(in, fieldName, fiter.Value())
		if err != nil {
			return single, fmt.Errorf("field %s: %w", fieldName, err)
		}
		single.Fields[fieldName] = fs
	}
	return single, nil
}

func parseFieldDef(in *intern.Interner, name string, fieldVal cue.Value) (schema.FieldSchema, error) {
	variantVal := fieldVal.LookupPath(cue.ParsePath("variant"))
	variantName, err := variantVal.String()
	if err != nil {
		return schema.FieldSchema{}, fmt.Errorf("variant: %w", err)
	}
	variant, err := variantFromName(variantName)
	if err != nil {
		return schema.FieldSchema{}, err
	}

	fs := schema.FieldSchema{
		Handle:  in.InternFieldType(name),
		Name:    name,
		Variant: variant,
		Default: zeroValue(variant),
	}

	if dv := fieldVal.LookupPath(cue.ParsePath("default")); dv.Exists() {
		def, err := decodeDefault(in, variant, dv)
		if err != nil {
			return schema.FieldSchema{}, fmt.Errorf("default: %w", err)
		}
		fs.Default = def
	}
	if rv := fieldVal.LookupPath(cue.ParsePath("rank")); rv.Exists() {
		rank, err := rv.Int64()
		if err != nil {
			return schema.FieldSchema{}, fmt.Errorf("rank: %w", err)
		}
		fs.Rank = int(rank)
	}
	if sv := fieldVal.LookupPath(cue.ParsePath("scope")); sv.Exists() {
		scopeName, err := sv.String()
		if err != nil {
			return schema.FieldSchema{}, fmt.Errorf("scope: %w", err)
		}
		if scopeName == "Configuration" {
			fs.Scope = types.ScopeConfiguration
		}
	}
	if iv := fieldVal.LookupPath(cue.ParsePath("inverse_of")); iv.Exists() {
		inverse, err := iv.String()
		if err != nil {
			return schema.FieldSchema{}, fmt.Errorf("inverse_of: %w", err)
		}
		fs.InverseOf = inverse
	}

	return fs, nil
}

func variantFromName(name string) (types.Variant, error) {
	switch name {
	case "Bool":
		return types.VariantBool, nil
	case "Int":
		return types.VariantInt, nil
	case "Float":
		return types.VariantFloat, nil
	case "String":
		return types.VariantString, nil
	case "Blob":
		return types.VariantBlob, nil
	case "Timestamp":
		return types.VariantTimestamp, nil
	case "Choice":
		return types.VariantChoice, nil
	case "EntityReference":
		return types.VariantEntityReference, nil
	case "EntityList":
		return types.VariantEntityList, nil
	default:
		return 0, fmt.Errorf("unknown variant %q", name)
	}
}

func zeroValue(variant types.Variant) types.Value {
	switch variant {
	case types.VariantBool:
		return types.BoolValue(false)
	case types.VariantInt:
		return types.IntValue(0)
	case types.VariantFloat:
		return types.FloatValue(0)
	case types.VariantString:
		return types.StringValue("")
	case types.VariantBlob:
		return types.BlobValue(nil)
	case types.VariantTimestamp:
		return types.TimestampValue(0)
	case types.VariantChoice:
		return types.ChoiceValue("")
	case types.VariantEntityReference:
		return types.NullReference()
	case types.VariantEntityList:
		return types.ListValue(nil)
	default:
		return types.Value{}
	}
}

func decodeDefault(in *intern.Interner, variant types.Variant, v cue.Value) (types.Value, error) {
	switch variant {
	case types.VariantBool:
		b, err := v.Bool()
		return types.BoolValue(b), err
	case types.VariantInt:
		n, err := v.Int64()
		return types.IntValue(n), err
	case types.VariantFloat:
		f, err := v.Float64()
		return types.FloatValue(f), err
	case types.VariantString, types.VariantChoice:
		s, err := v.String()
		if err != nil {
			return types.Value{}, err
		}
		if variant == types.VariantChoice {
			return types.ChoiceValue(s), nil
		}
		return types.StringValue(s), nil
	case types.VariantTimestamp:
		n, err := v.Int64()
		return types.TimestampValue(n), err
	case types.VariantBlob, types.VariantEntityReference, types.VariantEntityList:
		// these variants have no meaningful CUE literal default; the
		// zero value (empty blob / null reference / empty list) always
		// applies regardless of what the ontology source names.
		return zeroValue(variant), nil
	default:
		return types.Value{}, fmt.Errorf("unsupported default for variant %v", variant)
	}
}

func trimHash(s string) string {
	if len(s) > 0 && s[0] == '#' {
		return s[1:]
	}
	return s
}

// Apply loads the ontology package at dir and registers every parsed type
// with eng's schema registry in the order LoadDir returns them. Types are
// not reordered by parent dependency; SchemaUpdate rejects any type whose
// parent is not yet registered.
func Apply(eng *executor.Engine, dir string) ([]schema.Diff, error) {
	singles, err := LoadDir(eng.Interner(), dir)
	if err != nil {
		return nil, err
	}
	var diffs []schema.Diff
	for _, single := range singles {
		d, err := eng.SchemaUpdate(single)
		if err != nil {
			return diffs, fmt.Errorf("cueload: registering %s: %w", single.Type, err)
		}
		diffs = append(diffs, d...)
	}
	return diffs, nil
}
