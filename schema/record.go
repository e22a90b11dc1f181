package schema

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/netip"

	"github.com/flowrec/silkio/errs"
)

// bufferKind distinguishes the three FixedRecord storage variants
// spec.md section 3 names: a record that owns its own heap-allocated
// buffer, one borrowing a caller-owned buffer it must not free, and
// one whose varlen payloads also live entirely inside that borrowed
// buffer (libfixbuf's "vardata" convention, hence FixbufVardata).
type bufferKind uint8

const (
	Allocated bufferKind = iota
	ForeignData
	FixbufVardata
)

// Record is a schema-bound fixed-length byte buffer plus a side heap
// for varlen and list field payloads. It mirrors record::init /
// create / clear / destroy from spec.md section 4.5, generalizing
// blob.NumericBlob's "frozen struct with typed accessors over a byte
// slice" shape from two fixed columns to an arbitrary field list.
type Record struct {
	schema *Schema
	kind   bufferKind
	buf    []byte

	// heap holds one entry per varlen/list field, indexed by the
	// field's position in schema.fields. Entries the record does not
	// own (FixbufVardata, or a field never set) are nil.
	heap   [][]byte
	owns   []bool
	lists  map[int]*List
	engine binary.ByteOrder
}

// GetList returns the list bound to a list-typed field, if any.
func (r *Record) GetList(ident Ident) (*List, error) {
	i, f, err := r.fieldIndex(ident)
	if err != nil {
		return nil, err
	}
	if !f.Type.IsList() {
		return nil, fmt.Errorf("%w: field %q is not a list", errs.ErrBadType, f.Name)
	}

	return r.lists[i], nil
}

// SetList binds l to a list-typed field, replacing any previous list.
func (r *Record) SetList(ident Ident, l *List) error {
	i, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}
	if !f.Type.IsList() {
		return fmt.Errorf("%w: field %q is not a list", errs.ErrBadType, f.Name)
	}
	if r.lists == nil {
		r.lists = make(map[int]*List)
	}
	r.lists[i] = l

	return nil
}

// New allocates a record bound to s with its own owned buffer.
func New(s *Schema) (*Record, error) {
	if s.LockState() != Frozen {
		return nil, errs.ErrNotFrozen
	}

	return &Record{
		schema: s,
		kind:   Allocated,
		buf:    make([]byte, s.recordLen),
		heap:   make([][]byte, len(s.fields)),
		owns:   make([]bool, len(s.fields)),
		engine: binary.BigEndian,
	}, nil
}

// Wrap binds a caller-owned buffer of exactly schema.RecordLength()
// bytes without copying it; Clear will not attempt to free it.
func Wrap(s *Schema, buf []byte, vardataInline bool) (*Record, error) {
	if s.LockState() != Frozen {
		return nil, errs.ErrNotFrozen
	}
	if len(buf) != s.recordLen {
		return nil, fmt.Errorf("%w: buffer is %d bytes, schema wants %d", errs.ErrBadSize, len(buf), s.recordLen)
	}

	kind := ForeignData
	if vardataInline {
		kind = FixbufVardata
	}

	return &Record{
		schema: s,
		kind:   kind,
		buf:    buf,
		heap:   make([][]byte, len(s.fields)),
		owns:   make([]bool, len(s.fields)),
		engine: binary.BigEndian,
	}, nil
}

// Schema returns the record's owning schema.
func (r *Record) Schema() *Schema { return r.schema }

// RawBytes returns the record's fixed-length buffer, excluding any
// varlen/list heap payload. Callers that need the full varlen-aware
// wire form should use a SchemaMap-driven codec instead; this is the
// narrow escape hatch collaborator codecs (sidecar.SchemaCodec) use
// for fields declared entirely fixed-width.
func (r *Record) RawBytes() []byte { return r.buf }

// LoadRawBytes overwrites the record's fixed-length buffer with data,
// which must be exactly schema.RecordLength() bytes.
func (r *Record) LoadRawBytes(data []byte) error {
	if len(data) != len(r.buf) {
		return fmt.Errorf("%w: got %d bytes, schema wants %d", errs.ErrBadSize, len(data), len(r.buf))
	}
	copy(r.buf, data)

	return nil
}

func (r *Record) fieldIndex(ident Ident) (int, *Field, error) {
	for i, f := range r.schema.fields {
		if f.Ident == ident {
			return i, f, nil
		}
	}

	return -1, nil, fmt.Errorf("%w: %s", errs.ErrFieldNotFound, ident)
}

func (r *Record) checkType(f *Field, want DataType) error {
	if f.Type != want {
		return fmt.Errorf("%w: field %q is %v, not %v", errs.ErrBadType, f.Name, f.Type, want)
	}

	return nil
}

// Clear zeroes the fixed buffer and releases every varlen/list heap
// entry the record owns, per record::clear's "frees only vardata that
// the record owns" rule.
func (r *Record) Clear() {
	for i := range r.buf {
		r.buf[i] = 0
	}
	for i, owned := range r.owns {
		if owned {
			r.heap[i] = nil
			r.owns[i] = false
		}
	}
}

// --- fixed-width scalar accessors ---

func (r *Record) GetUint64(ident Ident) (uint64, error) {
	i, f, err := r.fieldIndex(ident)
	if err != nil {
		return 0, err
	}
	switch f.Type {
	case TypeUint64, TypeDateTimeMilli, TypeDateTimeMicro, TypeDateTimeNano:
		return r.engine.Uint64(r.buf[f.offset:]), nil
	case TypeUint32, TypeDateTimeSeconds, TypeIPv4:
		return uint64(r.engine.Uint32(r.buf[f.offset:])), nil
	case TypeUint16:
		return uint64(r.engine.Uint16(r.buf[f.offset:])), nil
	case TypeUint8, TypeBoolean:
		return uint64(r.buf[f.offset]), nil
	default:
		_ = i

		return 0, fmt.Errorf("%w: field %q is %v, not an unsigned integer", errs.ErrBadType, f.Name, f.Type)
	}
}

func (r *Record) SetUint64(ident Ident, v uint64) error {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}
	switch f.Type {
	case TypeUint64, TypeDateTimeMilli, TypeDateTimeMicro, TypeDateTimeNano:
		r.engine.PutUint64(r.buf[f.offset:], v)
	case TypeUint32, TypeDateTimeSeconds, TypeIPv4:
		if v > 0xFFFFFFFF {
			return fmt.Errorf("%w: %d overflows field %q", errs.ErrBadSize, v, f.Name)
		}
		r.engine.PutUint32(r.buf[f.offset:], uint32(v))
	case TypeUint16:
		if v > 0xFFFF {
			return fmt.Errorf("%w: %d overflows field %q", errs.ErrBadSize, v, f.Name)
		}
		r.engine.PutUint16(r.buf[f.offset:], uint16(v))
	case TypeUint8, TypeBoolean:
		if v > 0xFF {
			return fmt.Errorf("%w: %d overflows field %q", errs.ErrBadSize, v, f.Name)
		}
		r.buf[f.offset] = byte(v)
	default:
		return fmt.Errorf("%w: field %q is %v, not an unsigned integer", errs.ErrBadType, f.Name, f.Type)
	}

	return nil
}

func (r *Record) GetInt64(ident Ident) (int64, error) {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return 0, err
	}
	switch f.Type {
	case TypeInt64:
		return int64(r.engine.Uint64(r.buf[f.offset:])), nil
	case TypeInt32:
		return int64(int32(r.engine.Uint32(r.buf[f.offset:]))), nil
	case TypeInt16:
		return int64(int16(r.engine.Uint16(r.buf[f.offset:]))), nil
	case TypeInt8:
		return int64(int8(r.buf[f.offset])), nil
	default:
		return 0, fmt.Errorf("%w: field %q is %v, not a signed integer", errs.ErrBadType, f.Name, f.Type)
	}
}

func (r *Record) SetInt64(ident Ident, v int64) error {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}
	switch f.Type {
	case TypeInt64:
		r.engine.PutUint64(r.buf[f.offset:], uint64(v))
	case TypeInt32:
		if v < -(1<<31) || v > (1<<31-1) {
			return fmt.Errorf("%w: %d overflows field %q", errs.ErrBadSize, v, f.Name)
		}
		r.engine.PutUint32(r.buf[f.offset:], uint32(int32(v)))
	case TypeInt16:
		if v < -(1<<15) || v > (1<<15-1) {
			return fmt.Errorf("%w: %d overflows field %q", errs.ErrBadSize, v, f.Name)
		}
		r.engine.PutUint16(r.buf[f.offset:], uint16(int16(v)))
	case TypeInt8:
		if v < -128 || v > 127 {
			return fmt.Errorf("%w: %d overflows field %q", errs.ErrBadSize, v, f.Name)
		}
		r.buf[f.offset] = byte(int8(v))
	default:
		return fmt.Errorf("%w: field %q is %v, not a signed integer", errs.ErrBadType, f.Name, f.Type)
	}

	return nil
}

func (r *Record) GetFloat64(ident Ident) (float64, error) {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return 0, err
	}
	switch f.Type {
	case TypeFloat64:
		return math.Float64frombits(r.engine.Uint64(r.buf[f.offset:])), nil
	case TypeFloat32:
		return float64(math.Float32frombits(r.engine.Uint32(r.buf[f.offset:]))), nil
	default:
		return 0, fmt.Errorf("%w: field %q is %v, not a float", errs.ErrBadType, f.Name, f.Type)
	}
}

func (r *Record) SetFloat64(ident Ident, v float64) error {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}
	switch f.Type {
	case TypeFloat64:
		r.engine.PutUint64(r.buf[f.offset:], math.Float64bits(v))
	case TypeFloat32:
		r.engine.PutUint32(r.buf[f.offset:], math.Float32bits(float32(v)))
	default:
		return fmt.Errorf("%w: field %q is %v, not a float", errs.ErrBadType, f.Name, f.Type)
	}

	return nil
}

func (r *Record) GetBool(ident Ident) (bool, error) {
	if err := r.typeMustBe(ident, TypeBoolean); err != nil {
		return false, err
	}
	v, err := r.GetUint64(ident)
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %d", errs.ErrUnknownBool, v)
	}
}

func (r *Record) SetBool(ident Ident, v bool) error {
	if err := r.typeMustBe(ident, TypeBoolean); err != nil {
		return err
	}
	if v {
		return r.SetUint64(ident, 1)
	}

	return r.SetUint64(ident, 0)
}

func (r *Record) typeMustBe(ident Ident, want DataType) error {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}

	return r.checkType(f, want)
}

// --- addresses ---

func (r *Record) GetIPv4(ident Ident) (netip.Addr, error) {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return netip.Addr{}, err
	}
	if err := r.checkType(f, TypeIPv4); err != nil {
		return netip.Addr{}, err
	}
	var a [4]byte
	copy(a[:], r.buf[f.offset:f.offset+4])

	return netip.AddrFrom4(a), nil
}

func (r *Record) SetIPv4(ident Ident, addr netip.Addr) error {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}
	if err := r.checkType(f, TypeIPv4); err != nil {
		return err
	}
	if !addr.Is4() {
		return errs.ErrNotIpv4
	}
	a4 := addr.As4()
	copy(r.buf[f.offset:f.offset+4], a4[:])

	return nil
}

func (r *Record) GetIPv6(ident Ident) (netip.Addr, error) {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return netip.Addr{}, err
	}
	if err := r.checkType(f, TypeIPv6); err != nil {
		return netip.Addr{}, err
	}
	var a [16]byte
	copy(a[:], r.buf[f.offset:f.offset+16])

	return netip.AddrFrom16(a), nil
}

func (r *Record) SetIPv6(ident Ident, addr netip.Addr) error {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}
	if err := r.checkType(f, TypeIPv6); err != nil {
		return err
	}
	a16 := addr.As16()
	copy(r.buf[f.offset:f.offset+16], a16[:])

	return nil
}

// GetMAC returns a 6-byte MAC address field's raw bytes.
func (r *Record) GetMAC(ident Ident) ([6]byte, error) {
	var mac [6]byte
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return mac, err
	}
	if err := r.checkType(f, TypeMAC); err != nil {
		return mac, err
	}
	copy(mac[:], r.buf[f.offset:f.offset+6])

	return mac, nil
}

func (r *Record) SetMAC(ident Ident, mac [6]byte) error {
	_, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}
	if err := r.checkType(f, TypeMAC); err != nil {
		return err
	}
	copy(r.buf[f.offset:f.offset+6], mac[:])

	return nil
}

// --- ICMP helpers, aliasing the destination-port field per spec.md's
// "icmp type/code helpers that alias dport" note. ---

func (r *Record) GetICMPTypeCode(dportIdent Ident) (icmpType, icmpCode uint8, err error) {
	v, err := r.GetUint64(dportIdent)
	if err != nil {
		return 0, 0, err
	}

	return uint8(v >> 8), uint8(v), nil
}

func (r *Record) SetICMPTypeCode(dportIdent Ident, icmpType, icmpCode uint8) error {
	return r.SetUint64(dportIdent, uint64(icmpType)<<8|uint64(icmpCode))
}

// --- varlen (string/octets) ---

func (r *Record) GetOctets(ident Ident) ([]byte, error) {
	i, f, err := r.fieldIndex(ident)
	if err != nil {
		return nil, err
	}
	if !f.Type.IsVarlen() {
		return nil, fmt.Errorf("%w: field %q is not varlen", errs.ErrBadType, f.Name)
	}

	return r.heap[i], nil
}

func (r *Record) GetString(ident Ident) (string, error) {
	b, err := r.GetOctets(ident)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// SetOctets stores data in the record's side heap, copying it so the
// caller's slice may be reused; the record takes ownership and will
// release it on Clear.
func (r *Record) SetOctets(ident Ident, data []byte) error {
	i, f, err := r.fieldIndex(ident)
	if err != nil {
		return err
	}
	if !f.Type.IsVarlen() {
		return fmt.Errorf("%w: field %q is not varlen", errs.ErrBadType, f.Name)
	}
	if f.Length != VarlenLength && len(data) > f.Length {
		return fmt.Errorf("%w: %d bytes exceeds field %q's %d-byte cap", errs.ErrBadSize, len(data), f.Name, f.Length)
	}

	cp := append([]byte(nil), data...)
	r.heap[i] = cp
	r.owns[i] = true
	binary.BigEndian.PutUint16(r.buf[f.offset:], uint16(len(cp)))

	return nil
}

func (r *Record) SetString(ident Ident, s string) error {
	return r.SetOctets(ident, []byte(s))
}

// --- computed fields ---

// UpdateComputed evaluates every field carrying a compute callback, in
// schema order, per record::update_computed.
func (r *Record) UpdateComputed() error {
	for _, f := range r.schema.fields {
		if f.IsComputed() {
			if err := f.Ops.Compute(r); err != nil {
				return fmt.Errorf("field %q compute: %w", f.Name, err)
			}
		}
	}

	return nil
}

// CopyFlags chooses copy_into's behavior per spec.md section 4.5.
type CopyFlags uint8

const (
	CopyFixedOnly           CopyFlags = 1 << 0 // ignore sidecar/varlen heap
	CopyUninitializedDest   CopyFlags = 1 << 1 // dst has no prior heap to release
	CopyMove                CopyFlags = 1 << 2 // transfer heap ownership from src to dst
)

// CopyInto copies src's fixed buffer and, unless CopyFixedOnly is set,
// its varlen/list heap into dst. dst and src must share an identical
// field layout (same schema, or schemas built from the same model
// with the same field order); use SchemaMap.Apply to transcode
// between differing schemas.
func CopyInto(dst, src *Record, flags CopyFlags) error {
	if !sameFieldSet(dst.schema, src.schema) {
		return fmt.Errorf("%w: CopyInto requires identical field layouts", errs.ErrIncompatible)
	}

	if flags&CopyUninitializedDest == 0 {
		for i, owned := range dst.owns {
			if owned {
				dst.heap[i] = nil
				dst.owns[i] = false
			}
		}
	}

	copy(dst.buf, src.buf)

	if flags&CopyFixedOnly != 0 {
		return nil
	}

	for i := range src.heap {
		if src.heap[i] == nil {
			continue
		}
		if flags&CopyMove != 0 {
			dst.heap[i] = src.heap[i]
			dst.owns[i] = src.owns[i]
			src.heap[i] = nil
			src.owns[i] = false
		} else {
			dst.heap[i] = append([]byte(nil), src.heap[i]...)
			dst.owns[i] = true
		}
	}

	return nil
}

// Compare compares a and b field by field in schema order, using each
// field's custom Ops.Compare when present and a generic
// datatype-driven comparison otherwise (ints numerically, strings
// stop-at-shorter-length, IPs via netip.Addr.Compare, times in
// canonical milliseconds).
func Compare(a, b *Record) (int, error) {
	if !sameFieldSet(a.schema, b.schema) {
		return 0, fmt.Errorf("%w: Compare requires identical field layouts", errs.ErrIncompatible)
	}

	for i, f := range a.schema.fields {
		if f.Ops != nil && f.Ops.Compare != nil {
			if c := f.Ops.Compare(fieldBytes(a, i, f), fieldBytes(b, i, f)); c != 0 {
				return c, nil
			}

			continue
		}

		c, err := compareGeneric(a, b, f)
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return c, nil
		}
	}

	return 0, nil
}

// MergeInto combines src's fields into dst in place, field by field in
// schema order: a field's custom Ops.Merge runs when present, else the
// generic fallback adds signed/unsigned integer fields (dst += src)
// and rejects every other type with ErrIncompatible. Grounded on
// skschema.c's sk_fixrec_data_merge, which the same generic-switch
// pattern uses for its own default implementation.
func MergeInto(dst, src *Record) error {
	if !sameFieldSet(dst.schema, src.schema) {
		return fmt.Errorf("%w: Merge requires identical field layouts", errs.ErrIncompatible)
	}

	for i, f := range dst.schema.fields {
		if f.Ops != nil && f.Ops.Merge != nil {
			f.Ops.Merge(fieldBytes(dst, i, f), fieldBytes(src, i, f))

			continue
		}

		if err := mergeGeneric(dst, src, f); err != nil {
			return err
		}
	}

	return nil
}

func mergeGeneric(dst, src *Record, f *Field) error {
	switch f.Type {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64:
		a, err := dst.GetUint64(f.Ident)
		if err != nil {
			return err
		}
		b, err := src.GetUint64(f.Ident)
		if err != nil {
			return err
		}

		return dst.SetUint64(f.Ident, a+b)
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		a, err := dst.GetInt64(f.Ident)
		if err != nil {
			return err
		}
		b, err := src.GetInt64(f.Ident)
		if err != nil {
			return err
		}

		return dst.SetInt64(f.Ident, a+b)
	default:
		return fmt.Errorf("%w: field %q type %v has no merge operation", errs.ErrIncompatible, f.Name, f.Type)
	}
}

func fieldBytes(r *Record, i int, f *Field) []byte {
	if f.Type.IsVarlen() {
		return r.heap[i]
	}

	return r.buf[f.offset : f.offset+f.Length]
}

func compareGeneric(a, b *Record, f *Field) (int, error) {
	switch f.Type {
	case TypeString, TypeOctets:
		sa, _ := a.GetOctets(f.Ident)
		sb, _ := b.GetOctets(f.Ident)
		n := min(len(sa), len(sb))
		for i := 0; i < n; i++ {
			if sa[i] != sb[i] {
				return int(sa[i]) - int(sb[i]), nil
			}
		}

		return len(sa) - len(sb), nil
	case TypeIPv4, TypeIPv6:
		var va, vb netip.Addr
		var err error
		if f.Type == TypeIPv4 {
			va, err = a.GetIPv4(f.Ident)
			if err == nil {
				vb, err = b.GetIPv4(f.Ident)
			}
		} else {
			va, err = a.GetIPv6(f.Ident)
			if err == nil {
				vb, err = b.GetIPv6(f.Ident)
			}
		}
		if err != nil {
			return 0, err
		}

		return va.Compare(vb), nil
	case TypeFloat32, TypeFloat64:
		va, err := a.GetFloat64(f.Ident)
		if err != nil {
			return 0, err
		}
		vb, err := b.GetFloat64(f.Ident)
		if err != nil {
			return 0, err
		}
		switch {
		case va < vb:
			return -1, nil
		case va > vb:
			return 1, nil
		default:
			return 0, nil
		}
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		va, err := a.GetInt64(f.Ident)
		if err != nil {
			return 0, err
		}
		vb, err := b.GetInt64(f.Ident)
		if err != nil {
			return 0, err
		}

		return int(va - vb), nil
	default:
		va, err := a.GetUint64(f.Ident)
		if err != nil {
			return 0, err
		}
		vb, err := b.GetUint64(f.Ident)
		if err != nil {
			return 0, err
		}
		switch {
		case va < vb:
			return -1, nil
		case va > vb:
			return 1, nil
		default:
			return 0, nil
		}
	}
}

// ToText renders every field as "name=value" in schema order, using
// each field's custom Ops.ToText when present.
func ToText(r *Record) string {
	out := ""
	for i, f := range r.schema.fields {
		if i > 0 {
			out += "|"
		}
		out += f.Name + "="
		if f.Ops != nil && f.Ops.ToText != nil {
			out += f.Ops.ToText(fieldBytes(r, i, f))

			continue
		}
		out += toTextGeneric(r, f)
	}

	return out
}

func toTextGeneric(r *Record, f *Field) string {
	switch f.Type {
	case TypeString, TypeOctets:
		s, _ := r.GetString(f.Ident)

		return s
	case TypeIPv4:
		a, _ := r.GetIPv4(f.Ident)

		return a.String()
	case TypeIPv6:
		a, _ := r.GetIPv6(f.Ident)

		return a.String()
	case TypeBoolean:
		v, _ := r.GetBool(f.Ident)

		return fmt.Sprintf("%t", v)
	case TypeFloat32, TypeFloat64:
		v, _ := r.GetFloat64(f.Ident)

		return fmt.Sprintf("%g", v)
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		v, _ := r.GetInt64(f.Ident)

		return fmt.Sprintf("%d", v)
	default:
		v, _ := r.GetUint64(f.Ident)

		return fmt.Sprintf("%d", v)
	}
}
