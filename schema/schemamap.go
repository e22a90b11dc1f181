package schema

import (
	"sort"

	"github.com/flowrec/silkio/errs"
)

// SchemaMapOp is one step of a precomputed transcoding program,
// grounded on original_source/skschema.c's sk_schemamap_op_en /
// sk_schemamap_copy_t / sk_schemamap_range_t / sk_schemamap_dt_t
// trio: the C enum's twelve data-moving ops plus its terminator map
// directly onto spec.md section 4.5.3's op list.
type SchemaMapOp uint8

const (
	OpDone SchemaMapOp = iota
	OpCopy
	OpCopyToVarlen
	OpCopyFromVarlen
	OpCopyVarlenToVarlen
	OpCopyF32ToF64
	OpCopyF64ToF32
	OpCopyDateTime
	OpZero
	OpCopyBasicList
	OpCopySubTemplateList
	OpCopySubTemplateMultiList
	OpRecordCopyInto
)

// dtSubtype tags the granularity of a datetime field for CopyDateTime,
// matching sk_schemamap_dt_t's from_type/to_type bytes.
type dtSubtype uint8

const (
	dtSeconds dtSubtype = iota
	dtMilli
	dtMicro
	dtNano
)

func dtSubtypeOf(t DataType) (dtSubtype, bool) {
	switch t {
	case TypeDateTimeSeconds:
		return dtSeconds, true
	case TypeDateTimeMilli:
		return dtMilli, true
	case TypeDateTimeMicro:
		return dtMicro, true
	case TypeDateTimeNano:
		return dtNano, true
	default:
		return 0, false
	}
}

// SchemaMapStep is one emitted op plus the operands needed to execute
// it: source/destination byte ranges for the Copy family, list kind
// and field pointers for the list family.
type SchemaMapStep struct {
	Op SchemaMapOp

	SrcOffset, DstOffset int
	Length               int // Copy/Zero family: byte width moved/zeroed

	DstTruncated bool // CopyFromVarlen, or an int narrowing: builder should report Truncated

	FromDT, ToDT dtSubtype

	SrcField, DstField *Field // list family and anything needing identity
}

// SchemaMap is a flat, ordered program built once per (dst, src)
// schema pair and applied to every record transcoded between them.
type SchemaMap struct {
	dst, src  *Schema
	steps     []SchemaMapStep
	truncated bool
}

// Truncated reports whether building this map had to narrow any
// integer or varlen field, per spec.md's "return Truncated from the
// builder".
func (m *SchemaMap) Truncated() bool { return m.truncated }

// FieldPair is one explicit (src, dst) alignment for
// BuildFromFieldPairs.
type FieldPair struct {
	Src, Dst *Field
}

// Build aligns dst's and src's fields by ordered ident match — src
// scanned left to right, each src field consumed at most once — then
// delegates to the shared op-emission pipeline.
func Build(dst, src *Schema) (*SchemaMap, error) {
	if dst == src {
		return &SchemaMap{dst: dst, src: src, steps: []SchemaMapStep{{Op: OpRecordCopyInto}, {Op: OpDone}}}, nil
	}

	used := make([]bool, len(src.fields))
	var pairs []FieldPair
	for _, df := range dst.fields {
		for i, sf := range src.fields {
			if used[i] || sf.Ident != df.Ident {
				continue
			}
			pairs = append(pairs, FieldPair{Src: sf, Dst: df})
			used[i] = true

			break
		}
	}

	return buildFromPairs(dst, src, pairs)
}

// BuildFromFieldPairs builds a map from caller-supplied alignments
// instead of ident matching.
func BuildFromFieldPairs(dst, src *Schema, pairs []FieldPair) (*SchemaMap, error) {
	return buildFromPairs(dst, src, pairs)
}

func buildFromPairs(dst, src *Schema, pairs []FieldPair) (*SchemaMap, error) {
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Dst.offset < pairs[j].Dst.offset })

	m := &SchemaMap{dst: dst, src: src}

	for _, p := range pairs {
		emitted, err := emitOp(p.Src, p.Dst)
		if err != nil {
			return nil, err
		}
		for _, step := range emitted {
			if step.DstTruncated {
				m.truncated = true
			}
			m.steps = append(m.steps, step)
		}
	}

	m.steps = mergeAdjacentCopies(m.steps)
	m.steps = append(m.steps, SchemaMapStep{Op: OpDone})

	return m, nil
}

func emitOp(src, dst *Field) ([]SchemaMapStep, error) {
	base := SchemaMapStep{SrcOffset: src.offset, DstOffset: dst.offset, SrcField: src, DstField: dst}

	if src.Type.IsList() || dst.Type.IsList() {
		if src.Type != dst.Type {
			return nil, errs.ErrIncompatible
		}
		switch src.Type {
		case TypeBasicList:
			base.Op = OpCopyBasicList
		case TypeSubTemplateList:
			base.Op = OpCopySubTemplateList
		case TypeSubTemplateMultiList:
			base.Op = OpCopySubTemplateMultiList
		}

		return []SchemaMapStep{base}, nil
	}

	if fdt, ok1 := dtSubtypeOf(src.Type); ok1 {
		if tdt, ok2 := dtSubtypeOf(dst.Type); ok2 {
			if fdt == tdt {
				base.Op = OpCopy
				base.Length = src.Length
			} else {
				base.Op = OpCopyDateTime
				base.FromDT, base.ToDT = fdt, tdt
			}

			return []SchemaMapStep{base}, nil
		}
	}

	switch {
	case src.Type == TypeFloat32 && dst.Type == TypeFloat64:
		base.Op = OpCopyF32ToF64
	case src.Type == TypeFloat64 && dst.Type == TypeFloat32:
		base.Op = OpCopyF64ToF32
	case src.Type.IsVarlen() && dst.Type.IsVarlen():
		base.Op = OpCopyVarlenToVarlen
		base.Length = src.Length
	case !src.Type.IsVarlen() && dst.Type.IsVarlen():
		base.Op = OpCopyToVarlen
		base.Length = src.Length
	case src.Type.IsVarlen() && !dst.Type.IsVarlen():
		base.Op = OpCopyFromVarlen
		base.Length = dst.Length
		base.DstTruncated = true
	case src.Type == dst.Type && src.Length == dst.Length:
		base.Op = OpCopy
		base.Length = src.Length
	case isIntLike(src.Type) && isIntLike(dst.Type) && dst.Length < src.Length:
		base.Op = OpCopy
		base.Length = dst.Length
		base.SrcOffset += src.Length - dst.Length // big-endian: keep the low-order bytes
		base.DstTruncated = true
	case isIntLike(src.Type) && isIntLike(dst.Type) && dst.Length > src.Length:
		// zero the whole destination width, then copy the narrower
		// source value into its low-order bytes.
		zero := SchemaMapStep{Op: OpZero, DstOffset: dst.offset, Length: dst.Length}
		cp := SchemaMapStep{
			Op: OpCopy, SrcOffset: src.offset, Length: src.Length,
			DstOffset: dst.offset + (dst.Length - src.Length),
			SrcField:  src, DstField: dst,
		}

		return []SchemaMapStep{zero, cp}, nil
	default:
		base.Op = OpCopy
		base.Length = min(src.Length, dst.Length)
	}

	return []SchemaMapStep{base}, nil
}

func isIntLike(t DataType) bool {
	switch t {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64, TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return true
	default:
		return false
	}
}

// mergeAdjacentCopies coalesces consecutive Copy ops whose source and
// destination ranges are both contiguous, per spec.md step 4.
func mergeAdjacentCopies(steps []SchemaMapStep) []SchemaMapStep {
	if len(steps) == 0 {
		return steps
	}

	out := steps[:1]
	for _, s := range steps[1:] {
		last := &out[len(out)-1]
		if last.Op == OpCopy && s.Op == OpCopy &&
			last.SrcOffset+last.Length == s.SrcOffset &&
			last.DstOffset+last.Length == s.DstOffset {
			last.Length += s.Length

			continue
		}
		out = append(out, s)
	}

	return out
}

// Apply runs m against src, writing into dst. tm collects any list
// templates encountered so the caller can Replay them into the
// destination session afterward.
func (m *SchemaMap) Apply(dst, src *Record, tm *TemplateMap) error {
	for _, step := range m.steps {
		if err := applyStep(step, dst, src, tm); err != nil {
			return err
		}
	}

	return nil
}

func applyStep(step SchemaMapStep, dst, src *Record, tm *TemplateMap) error {
	switch step.Op {
	case OpDone:
		return nil
	case OpRecordCopyInto:
		return CopyInto(dst, src, 0)
	case OpZero:
		for i := 0; i < step.Length; i++ {
			dst.buf[step.DstOffset+i] = 0
		}

		return nil
	case OpCopy:
		copy(dst.buf[step.DstOffset:step.DstOffset+step.Length], src.buf[step.SrcOffset:step.SrcOffset+step.Length])

		return nil
	case OpCopyF32ToF64:
		v, err := src.GetFloat64(step.SrcField.Ident)
		if err != nil {
			return err
		}

		return dst.SetFloat64(step.DstField.Ident, v)
	case OpCopyF64ToF32:
		v, err := src.GetFloat64(step.SrcField.Ident)
		if err != nil {
			return err
		}

		return dst.SetFloat64(step.DstField.Ident, v)
	case OpCopyDateTime:
		v, err := src.GetUint64(step.SrcField.Ident)
		if err != nil {
			return err
		}

		return dst.SetUint64(step.DstField.Ident, convertDateTime(v, step.FromDT, step.ToDT))
	case OpCopyToVarlen:
		return dst.SetOctets(step.DstField.Ident, src.buf[step.SrcOffset:step.SrcOffset+step.Length])
	case OpCopyFromVarlen:
		data, err := src.GetOctets(step.SrcField.Ident)
		if err != nil {
			return err
		}
		if len(data) > step.Length {
			data = data[:step.Length]
		}
		copy(dst.buf[step.DstOffset:step.DstOffset+step.Length], data)

		return nil
	case OpCopyVarlenToVarlen:
		data, err := src.GetOctets(step.SrcField.Ident)
		if err != nil {
			return err
		}

		return dst.SetOctets(step.DstField.Ident, data)
	case OpCopyBasicList, OpCopySubTemplateList, OpCopySubTemplateMultiList:
		return applyListCopy(step, dst, src, tm)
	default:
		return errs.ErrIncompatible
	}
}

func applyListCopy(step SchemaMapStep, dst, src *Record, tm *TemplateMap) error {
	// free the destination list slot first, per spec.md's application
	// rule for the Copy*List* family.
	if err := dst.SetList(step.DstField.Ident, nil); err != nil {
		return err
	}

	l, err := src.GetList(step.SrcField.Ident)
	if err != nil {
		return err
	}
	if l == nil {
		return nil
	}

	cp, err := deepCopyList(l)
	if err != nil {
		return err
	}

	if tm != nil {
		for _, e := range cp.flatten() {
			tm.Add(e.schema, e.schema.TemplateID())
		}
	}

	return dst.SetList(step.DstField.Ident, cp)
}

// deepCopyList materializes an independent copy of l with freshly
// copied entry records, per spec.md's "materialize the source list
// into it" application rule.
func deepCopyList(l *List) (*List, error) {
	switch l.kind {
	case ListBasic:
		cp := NewBasicList(l.session, l.elementField)
		for _, e := range l.entries {
			if err := cp.AppendBasic(e); err != nil {
				return nil, err
			}
		}

		return cp, nil
	case ListSubTemplate:
		cp := NewSubTemplateList(l.session, l.schema)
		for _, e := range l.entries {
			if err := cp.AppendSubTemplate(e); err != nil {
				return nil, err
			}
		}

		return cp, nil
	default:
		cp := NewSubTemplateMultiList(l.session)
		for _, g := range l.groups {
			for _, e := range g.entries {
				if err := cp.AppendSubTemplateMulti(e); err != nil {
					return nil, err
				}
			}
		}

		return cp, nil
	}
}

// convertDateTime rescales a value between datetime subtypes; seconds,
// milli, micro and nano are each a factor of 1000 apart. The value
// pivots through milliseconds, matching spec.md's millisecond pivot
// description, so sub-millisecond precision is dropped.
func convertDateTime(v uint64, from, to dtSubtype) uint64 {
	scale := [...]uint64{dtSeconds: 1, dtMilli: 1000, dtMicro: 1_000_000, dtNano: 1_000_000_000}
	var ms uint64
	if scale[from] >= scale[dtMilli] {
		ms = v / (scale[from] / scale[dtMilli])
	} else {
		ms = v * (scale[dtMilli] / scale[from])
	}
	if scale[to] >= scale[dtMilli] {
		return ms * (scale[to] / scale[dtMilli])
	}

	return ms / (scale[dtMilli] / scale[to])
}
