package wireproto

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/matthewbaird/eavdb/internal/indirect"
	"github.com/matthewbaird/eavdb/internal/intern"
	"github.com/matthewbaird/eavdb/internal/types"
)

// EncodeValue renders a types.Value as the permissive ASCII wire form
// spec.md §4.9 requires ("numeric values are serialized as ASCII bulk
// strings; the codec parses them permissively"). Non-numeric variants use
// a short type-tag prefix so the wire form round-trips exactly.
func EncodeValue(v types.Value) string {
	switch v.Variant() {
	case types.VariantBool:
		return "bool:" + strconv.FormatBool(v.Bool())
	case types.VariantInt:
		return strconv.FormatInt(v.Int(), 10)
	case types.VariantFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case types.VariantString:
		return "s:" + v.String()
	case types.VariantBlob:
		return "b:" + base64.StdEncoding.EncodeToString(v.Blob())
	case types.VariantTimestamp:
		return "t:" + strconv.FormatInt(v.TimestampNanos(), 10)
	case types.VariantChoice:
		return "choice:" + v.Choice()
	case types.VariantEntityReference:
		if ref, has := v.Reference(); has {
			return "ref:" + strconv.FormatUint(uint64(ref), 10)
		}
		return "ref:null"
	case types.VariantEntityList:
		ids := v.List()
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatUint(uint64(id), 10)
		}
		return "list:" + strings.Join(parts, ",")
	default:
		return ""
	}
}

// DecodeValue parses EncodeValue's wire form back into a types.Value,
// given the declared variant it must conform to (the schema already
// pins the expected variant; a tag prefix is optional and stripped when
// present, and is not checked against want).
func DecodeValue(wire string, want types.Variant) (types.Value, error) {
	switch want {
	case types.VariantBool:
		s := strings.TrimPrefix(wire, "bool:")
		b, err := strconv.ParseBool(s)
		if err != nil {
			return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "bad bool literal %q", wire)
		}
		return types.BoolValue(b), nil
	case types.VariantInt:
		s := strings.TrimPrefix(wire, "+")
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "bad int literal %q", wire)
		}
		return types.IntValue(n), nil
	case types.VariantFloat:
		s := strings.TrimPrefix(wire, "+")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "bad float literal %q", wire)
		}
		return types.FloatValue(f), nil
	case types.VariantString:
		return types.StringValue(strings.TrimPrefix(wire, "s:")), nil
	case types.VariantBlob:
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(wire, "b:"))
		if err != nil {
			return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "bad blob literal: %v", err)
		}
		return types.BlobValue(b), nil
	case types.VariantTimestamp:
		n, err := strconv.ParseInt(strings.TrimPrefix(wire, "t:"), 10, 64)
		if err != nil {
			return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "bad timestamp literal %q", wire)
		}
		return types.TimestampValue(n), nil
	case types.VariantChoice:
		return types.ChoiceValue(strings.TrimPrefix(wire, "choice:")), nil
	case types.VariantEntityReference:
		s := strings.TrimPrefix(wire, "ref:")
		if s == "null" || s == "" {
			return types.NullReference(), nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "bad entity reference %q", wire)
		}
		return types.ReferenceValue(types.EntityId(n)), nil
	case types.VariantEntityList:
		s := strings.TrimPrefix(wire, "list:")
		if s == "" {
			return types.ListValue(nil), nil
		}
		parts := strings.Split(s, ",")
		ids := make([]types.EntityId, len(parts))
		for i, p := range parts {
			n, err := strconv.ParseUint(p, 10, 64)
			if err != nil {
				return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "bad entity id %q in list", p)
			}
			ids[i] = types.EntityId(n)
		}
		return types.ListValue(ids), nil
	default:
		return types.Value{}, types.NewErrorf(types.ErrInvalidArguments, "unknown variant %s", want)
	}
}

// ParsePath parses a comma-separated indirection path such as
// "Children,1,Name" into indirect.Tokens, interning field names on first
// use (spec.md §4.5).
func ParsePath(in *intern.Interner, wire string) ([]indirect.Token, error) {
	if wire == "" {
		return nil, types.NewError(types.ErrInvalidArguments, "indirection path must not be empty")
	}
	parts := strings.Split(wire, ",")
	tokens := make([]indirect.Token, len(parts))
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil && n >= 0 {
			tokens[i] = indirect.IndexToken(n)
			continue
		}
		h := in.InternFieldType(p)
		tokens[i] = indirect.FieldToken(h)
	}
	return tokens, nil
}

// FormatPath is the inverse of ParsePath, for admin/debug surfaces that
// display a path back to a human.
func FormatPath(in *intern.Interner, tokens []indirect.Token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		if t.IsIndex {
			parts[i] = strconv.Itoa(t.Index)
			continue
		}
		name, ok := in.ResolveFieldType(t.Field)
		if !ok {
			name = fmt.Sprintf("field#%d", t.Field)
		}
		parts[i] = name
	}
	return strings.Join(parts, ",")
}
