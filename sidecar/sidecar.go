// Package sidecar defines the opaque per-record side-channel
// collaborator a FlowStream hands off to on every read and write, and
// ships one reference implementation: a schema-typed record sidecar
// that stores its payload as an additional fixed-record keyed by the
// same session as the flow records it rides alongside.
//
// The collaborator shape is grounded on spec.md section 6's
// "Sidecar codec" interface; the reference implementation's "typed
// record bolted onto another record" idea is grounded on
// arloliu-mebo/blob's pattern of keeping a side index
// (indexMaps[section.NumericIndexEntry]) alongside the primary
// payload rather than inlining everything into one struct.
package sidecar

import (
	"fmt"

	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/header"
	"github.com/flowrec/silkio/schema"
)

// State is an opaque per-stream handle a Codec may use to cache
// anything it needs across calls (a schema built once from the
// header, a scratch buffer, and so on). The core never inspects it.
type State any

// Codec is the sidecar collaborator interface: spec.md section 6 lists
// serialize/deserialize/skip plus the two header round-trip hooks.
type Codec interface {
	// Serialize appends ref's encoding to buf, returning the new
	// slice. FlowStream does not call it: WriteRecord writes the bytes
	// already held in FlowRecord.Sidecar, flushing the current block
	// first when they do not fit.
	Serialize(state State, ref any, buf []byte) ([]byte, error)

	// Deserialize decodes one sidecar entry from the front of buf,
	// returning the decoded reference and the number of bytes
	// consumed.
	Deserialize(state State, buf []byte) (ref any, consumed int, err error)

	// Skip advances past one sidecar entry without decoding it,
	// returning the number of bytes consumed.
	Skip(state State, buf []byte) (consumed int, err error)

	// AddToHeader serializes whatever header entry this codec's
	// current schema needs (an EntrySidecarSchema blob) so a reader
	// can reconstruct State via CreateFromHeader without having seen
	// any records yet.
	AddToHeader(state State, h *header.Header) error

	// CreateFromHeader builds a fresh State by reading the sidecar
	// schema entry (if any) out of h.
	CreateFromHeader(h *header.Header) (State, error)
}

// SchemaCodec is the reference Codec: every sidecar entry is a
// schema.Record built against a single schema fixed for the lifetime
// of the stream (announced once via AddToHeader / recovered once via
// CreateFromHeader).
type SchemaCodec struct {
	model *schema.InformationModel
}

// NewSchemaCodec returns a Codec whose records are all built against
// information elements registered in model.
func NewSchemaCodec(model *schema.InformationModel) *SchemaCodec {
	return &SchemaCodec{model: model}
}

type schemaState struct {
	schema *schema.Schema
}

// NewState builds the State a writer uses: s must already be frozen.
func (c *SchemaCodec) NewState(s *schema.Schema) (State, error) {
	if s.LockState() != schema.Frozen {
		return nil, errs.ErrNotFrozen
	}

	return &schemaState{schema: s}, nil
}

func (c *SchemaCodec) mustState(state State) (*schemaState, error) {
	st, ok := state.(*schemaState)
	if !ok || st == nil {
		return nil, fmt.Errorf("%w: sidecar state was not created by SchemaCodec", errs.ErrIncompatible)
	}

	return st, nil
}

// Serialize writes ref's (must be *schema.Record, built against
// st.schema) fixed record bytes length-prefixed by a 16-bit length,
// matching the varlen descriptor convention the rest of the package
// uses for self-delimiting payloads.
func (c *SchemaCodec) Serialize(state State, ref any, buf []byte) ([]byte, error) {
	st, err := c.mustState(state)
	if err != nil {
		return nil, err
	}
	rec, ok := ref.(*schema.Record)
	if !ok || rec.Schema() != st.schema {
		return nil, fmt.Errorf("%w: sidecar record does not match the stream's sidecar schema", errs.ErrIncompatible)
	}

	raw, err := recordBytes(rec, st.schema)
	if err != nil {
		return nil, err
	}
	if len(raw) > 0xFFFF {
		return nil, fmt.Errorf("%w: sidecar record exceeds 64KiB", errs.ErrBadSize)
	}

	out := append(buf, byte(len(raw)>>8), byte(len(raw)))
	out = append(out, raw...)

	return out, nil
}

func (c *SchemaCodec) Deserialize(state State, buf []byte) (any, int, error) {
	st, err := c.mustState(state)
	if err != nil {
		return nil, 0, err
	}
	if len(buf) < 2 {
		return nil, 0, errs.ErrReadShort
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n {
		return nil, 0, errs.ErrReadShort
	}

	rec, err := schema.New(st.schema)
	if err != nil {
		return nil, 0, err
	}
	if err := fillRecordFromBytes(rec, st.schema, buf[2:2+n]); err != nil {
		return nil, 0, err
	}

	return rec, 2 + n, nil
}

func (c *SchemaCodec) Skip(state State, buf []byte) (int, error) {
	if _, err := c.mustState(state); err != nil {
		return 0, err
	}
	if len(buf) < 2 {
		return 0, errs.ErrReadShort
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n {
		return 0, errs.ErrReadShort
	}

	return 2 + n, nil
}

func (c *SchemaCodec) AddToHeader(state State, h *header.Header) error {
	st, err := c.mustState(state)
	if err != nil {
		return err
	}

	blob, err := encodeSchemaDescriptor(st.schema)
	if err != nil {
		return err
	}

	return h.AddEntry(header.NewSidecarSchemaEntry(blob))
}

func (c *SchemaCodec) CreateFromHeader(h *header.Header) (State, error) {
	entry, ok := h.FirstEntry(header.EntrySidecarSchema)
	if !ok {
		return nil, nil
	}

	fields, err := decodeSchemaDescriptor(entry.Body, c.model)
	if err != nil {
		return nil, err
	}

	sess := schema.NewSession()
	s, err := schema.WrapTemplate(c.model, fields, 256, sess)
	if err != nil {
		return nil, err
	}

	return &schemaState{schema: s}, nil
}
