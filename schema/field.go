// Package schema implements the template/field/record/list/schemamap
// engine from spec.md section 4.5: ordered field tuples that freeze
// into byte-offset-addressable record layouts, bound to a session for
// IPFIX-style template ids, with a generated transcoding program
// between any two frozen schemas.
//
// Semantics (freeze lifecycle, varlen descriptor, computed fields,
// template map collision handling, the schemamap op taxonomy) are
// grounded on original_source/skschema.c. The Go *shape* — a frozen,
// fixed-offset struct with typed accessors layered over a byte
// buffer — is grounded on arloliu-mebo/blob's NumericBlob plus
// section.NumericIndexEntry, which already do exactly this for a
// two-column time series; schema generalizes it to an arbitrary
// ordered field list.
package schema

import (
	"fmt"

	"github.com/flowrec/silkio/errs"
)

// DataType enumerates the field types spec.md section 3 lists under
// "Schema / Template".
type DataType uint8

const (
	TypeUint8 DataType = iota
	TypeUint16
	TypeUint32
	TypeUint64
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeIPv4
	TypeIPv6
	TypeString  // VARLEN
	TypeOctets  // VARLEN
	TypeBoolean
	TypeMAC
	TypeDateTimeSeconds
	TypeDateTimeMilli
	TypeDateTimeMicro
	TypeDateTimeNano
	TypeBasicList
	TypeSubTemplateList
	TypeSubTemplateMultiList
)

// VarlenLength is the sentinel Field.Length uses for variable-length
// types (string, octets, and the three list kinds).
const VarlenLength = -1

// FixedSize returns t's on-disk size for fixed-width types, or
// VarlenLength for the varlen-family types.
func (t DataType) FixedSize() int {
	switch t {
	case TypeUint8, TypeInt8, TypeBoolean:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32, TypeIPv4, TypeDateTimeSeconds:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64, TypeDateTimeMilli, TypeDateTimeMicro, TypeDateTimeNano:
		return 8
	case TypeIPv6:
		return 16
	case TypeMAC:
		return 6
	default:
		return VarlenLength
	}
}

// IsVarlen reports whether t is stored via an inline descriptor into
// a separately managed heap rather than inline bytes.
func (t DataType) IsVarlen() bool { return t.FixedSize() == VarlenLength }

// IsList reports whether t is one of the three list kinds.
func (t DataType) IsList() bool {
	return t == TypeBasicList || t == TypeSubTemplateList || t == TypeSubTemplateMultiList
}

// Ident identifies an information element by enterprise number + id,
// matching skschema.c's SK_FIELD_IDENT_CREATE(ent, id) packing.
type Ident struct {
	PEN uint32 // private enterprise number, 0 for IANA-registered elements
	ID  uint16
}

func (id Ident) String() string { return fmt.Sprintf("(%d/%d)", id.PEN, id.ID) }

// Ops bundles the optional per-field callbacks spec.md section 3
// describes: "copy-context, teardown, merge, compare, to-text, and a
// compute callback for derived fields".
type Ops struct {
	Compute func(rec *Record) error
	Compare func(a, b []byte) int
	ToText  func(data []byte) string
	// Merge combines src into dst in place; see Ops.Merge's caller,
	// schema.MergeInto, for the generic integer-sum fallback used when
	// this is nil.
	Merge func(dst, src []byte)
}

// Field describes one column of a schema: identity, name, type,
// length, and byte offset once the owning schema is frozen.
type Field struct {
	Ident    Ident
	Name     string
	Type     DataType
	Length   int // byte width, or VarlenLength
	Semantic string
	Units    string

	Ops *Ops

	offset int // valid only once the owning schema is frozen
}

// Offset returns the field's byte offset within a frozen record. Only
// meaningful after the owning Schema has been frozen.
func (f *Field) Offset() int { return f.offset }

// IsComputed reports whether the field derives its value from Ops.Compute
// rather than being stored directly.
func (f *Field) IsComputed() bool { return f.Ops != nil && f.Ops.Compute != nil }

func newField(ident Ident, name string, t DataType, length int) (*Field, error) {
	if t.IsVarlen() {
		if length != VarlenLength && length != 0 {
			return nil, fmt.Errorf("%w: varlen field %q given a fixed length", errs.ErrBadSize, name)
		}
		length = VarlenLength
	} else if length == 0 {
		length = t.FixedSize()
	} else if length != t.FixedSize() {
		return nil, fmt.Errorf("%w: field %q length %d does not match type width %d", errs.ErrBadSize, name, length, t.FixedSize())
	}

	return &Field{Ident: ident, Name: name, Type: t, Length: length}, nil
}
