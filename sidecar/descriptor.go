package sidecar

import (
	"encoding/binary"
	"fmt"

	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/schema"
)

// recordBytes returns rec's raw fixed-width payload. The reference
// codec only supports sidecar schemas built entirely from fixed-width
// fields; varlen sidecar payloads belong to a richer codec a caller
// can swap in, per the collaborator boundary spec.md section 6 draws.
func recordBytes(rec *schema.Record, s *schema.Schema) ([]byte, error) {
	for _, f := range s.Fields() {
		if f.Type.IsVarlen() {
			return nil, fmt.Errorf("%w: reference sidecar codec does not support varlen fields (%q)", errs.ErrIncompatible, f.Name)
		}
	}

	return rec.RawBytes(), nil
}

func fillRecordFromBytes(rec *schema.Record, s *schema.Schema, data []byte) error {
	if len(data) != s.RecordLength() {
		return fmt.Errorf("%w: sidecar payload is %d bytes, schema wants %d", errs.ErrBadSize, len(data), s.RecordLength())
	}

	return rec.LoadRawBytes(data)
}

// encodeSchemaDescriptor serializes a field list as a flat sequence of
// (pen:u32, id:u16, type:u8, length:u16) tuples, the minimum needed to
// rebuild an identical frozen schema via decodeSchemaDescriptor. This
// is the EntrySidecarSchema blob header.AddEntry stores.
func encodeSchemaDescriptor(s *schema.Schema) ([]byte, error) {
	fields := s.Fields()
	buf := make([]byte, 2, 2+len(fields)*9)
	binary.BigEndian.PutUint16(buf, uint16(len(fields)))

	for _, f := range fields {
		var rec [9]byte
		binary.BigEndian.PutUint32(rec[0:4], f.Ident.PEN)
		binary.BigEndian.PutUint16(rec[4:6], f.Ident.ID)
		rec[6] = byte(f.Type)
		length := f.Length
		if length < 0 {
			length = 0
		}
		binary.BigEndian.PutUint16(rec[7:9], uint16(length))
		buf = append(buf, rec[:]...)
	}

	return buf, nil
}

func decodeSchemaDescriptor(blob []byte, model *schema.InformationModel) ([]*schema.Field, error) {
	if len(blob) < 2 {
		return nil, errs.ErrReadShort
	}
	n := int(binary.BigEndian.Uint16(blob))
	blob = blob[2:]
	if len(blob) < n*9 {
		return nil, errs.ErrReadShort
	}

	fields := make([]*schema.Field, 0, n)
	for i := 0; i < n; i++ {
		rec := blob[i*9 : i*9+9]
		ident := schema.Ident{PEN: binary.BigEndian.Uint32(rec[0:4]), ID: binary.BigEndian.Uint16(rec[4:6])}

		f, err := model.ByIdent(ident)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	return fields, nil
}
