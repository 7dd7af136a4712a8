package types

import (
	"bytes"
	"math"
	"time"
)

// Variant identifies which alternative of the Value tagged union is
// populated.
type Variant int

const (
	VariantBool Variant = iota
	VariantInt
	VariantFloat
	VariantString
	VariantBlob
	VariantTimestamp
	VariantEntityReference
	VariantEntityList
	VariantChoice
)

// String returns the wire/diagnostic name of the variant.
func (v Variant) String() string {
	switch v {
	case VariantBool:
		return "bool"
	case VariantInt:
		return "int"
	case VariantFloat:
		return "float"
	case VariantString:
		return "string"
	case VariantBlob:
		return "blob"
	case VariantTimestamp:
		return "timestamp"
	case VariantEntityReference:
		return "entity_reference"
	case VariantEntityList:
		return "entity_list"
	case VariantChoice:
		return "choice"
	default:
		return "unknown"
	}
}

// Value is the tagged union carried by every field cell. Only the field(s)
// belonging to Variant are meaningful; constructors below are the only
// supported way to build one.
type Value struct {
	variant Variant

	b     bool
	i     int64
	f     float64
	s     string // also backs Choice
	blob  []byte
	ts    int64 // nanoseconds since epoch
	ref   EntityId
	hasRef bool
	list  []EntityId
}

func (v Value) Variant() Variant { return v.variant }

func BoolValue(b bool) Value { return Value{variant: VariantBool, b: b} }
func IntValue(i int64) Value { return Value{variant: VariantInt, i: i} }
func FloatValue(f float64) Value { return Value{variant: VariantFloat, f: f} }
func StringValue(s string) Value { return Value{variant: VariantString, s: s} }

// BlobValue copies b so the caller's slice may be reused or mutated freely.
func BlobValue(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{variant: VariantBlob, blob: cp}
}

// TimestampValue wraps nanoseconds-since-epoch.
func TimestampValue(nanos int64) Value { return Value{variant: VariantTimestamp, ts: nanos} }

// TimeValue is a convenience wrapper around TimestampValue.
func TimeValue(t time.Time) Value { return TimestampValue(t.UnixNano()) }

// NullReference is the "no entity" reference value.
func NullReference() Value { return Value{variant: VariantEntityReference} }

// ReferenceValue wraps a live-or-not-yet-validated target id.
func ReferenceValue(id EntityId) Value {
	return Value{variant: VariantEntityReference, ref: id, hasRef: true}
}

// ListValue copies ids; duplicates are the caller's responsibility to avoid
// (the executor's list merge rejects them on Write).
func ListValue(ids []EntityId) Value {
	cp := make([]EntityId, len(ids))
	copy(cp, ids)
	return Value{variant: VariantEntityList, list: cp}
}

func ChoiceValue(tag string) Value { return Value{variant: VariantChoice, s: tag} }

func (v Value) Bool() bool { return v.b }
func (v Value) Int() int64 { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) String() string { return v.s }
func (v Value) Blob() []byte { return v.blob }
func (v Value) TimestampNanos() int64 { return v.ts }
func (v Value) Choice() string { return v.s }

// Reference returns the referenced id and whether the reference is non-null.
func (v Value) Reference() (EntityId, bool) { return v.ref, v.hasRef }

// List returns the ordered element ids. The returned slice is owned by the
// Value; callers must not mutate it.
func (v Value) List() []EntityId { return v.list }

// canonicalFloat normalizes every NaN bit pattern to a single canonical one
// so float equality (per spec.md §3) is well defined.
func canonicalFloat(f float64) uint64 {
	if math.IsNaN(f) {
		return math.Float64bits(math.NaN())
	}
	return math.Float64bits(f)
}

// Equal reports whether two values of the same variant are identical for
// the purpose of notification change-detection (spec.md §3, §4.8). Values
// of differing variants are never equal.
func (v Value) Equal(o Value) bool {
	if v.variant != o.variant {
		return false
	}
	switch v.variant {
	case VariantBool:
		return v.b == o.b
	case VariantInt:
		return v.i == o.i
	case VariantFloat:
		return canonicalFloat(v.f) == canonicalFloat(o.f)
	case VariantString, VariantChoice:
		return v.s == o.s
	case VariantBlob:
		return bytes.Equal(v.blob, o.blob)
	case VariantTimestamp:
		return v.ts == o.ts
	case VariantEntityReference:
		return v.hasRef == o.hasRef && (!v.hasRef || v.ref == o.ref)
	case VariantEntityList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy safe to store independently of v (relevant only
// for the reference-type variants, Blob and EntityList).
func (v Value) Clone() Value {
	switch v.variant {
	case VariantBlob:
		return BlobValue(v.blob)
	case VariantEntityList:
		return ListValue(v.list)
	default:
		return v
	}
}
