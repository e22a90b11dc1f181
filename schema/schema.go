package schema

import (
	"fmt"
	"sync"

	"github.com/flowrec/silkio/errs"
)

// LockState mirrors header.LockState's two-phase freeze pattern:
// a schema accepts field inserts only before Freeze, and exposes
// offsets, session binding, and a template id only after.
type LockState uint8

const (
	Unfrozen LockState = iota
	Frozen
)

func (s LockState) String() string {
	if s == Frozen {
		return "frozen"
	}

	return "unfrozen"
}

// varlenDescSize is the in-record width of the {len, buf} descriptor
// spec.md section 4.5 documents for varlen and list fields: a 16-bit
// length plus an 8-byte pointer-sized slot big enough to hold a slice
// header index into the record's side heap.
const varlenDescSize = 10

// Schema is the runtime, reference-counted wrapper around an ordered
// field tuple. It starts Unfrozen (fields may be appended) and
// becomes Frozen once offsets are assigned and it is attached to a
// Session under a template id.
type Schema struct {
	model *InformationModel

	mu       sync.Mutex
	refCount int

	lock   LockState
	fields []*Field
	byName map[uint64]int // name hash -> index into fields; never populated, FieldByName scans fields

	recordLen int // total byte size of a frozen fixed record

	session    *Session
	templateID uint16

	ctx map[int]schemaCtxEntry
}

type schemaCtxEntry struct {
	value any
	free  func(any)
}

// Create builds a new unfrozen schema against model. spec mirrors
// schema::create's optional field list: each entry names a
// previously-defined information element, with an optional length
// override (0 means "use the element's declared length").
func Create(model *InformationModel, spec []FieldSpec) (*Schema, error) {
	s := &Schema{model: model, refCount: 1, ctx: make(map[int]schemaCtxEntry)}

	for _, fs := range spec {
		if err := s.InsertFieldByName(fs.Name, fs.Length); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// FieldSpec is one entry of the optional spec list schema::create
// accepts: an element name plus an optional fixed-length override (0
// keeps the element's declared width).
type FieldSpec struct {
	Name   string
	Length int
}

// WrapTemplate builds an already-Frozen schema from an externally
// owned template — the path block-buffer template decode and
// sidecar-schema-from-header use, where the field list and template
// id are already fixed by the data being read.
func WrapTemplate(model *InformationModel, fields []*Field, templateID uint16, sess *Session) (*Schema, error) {
	s := &Schema{model: model, refCount: 1, ctx: make(map[int]schemaCtxEntry)}
	for _, f := range fields {
		s.fields = append(s.fields, cloneField(f))
	}
	if err := s.assignOffsets(); err != nil {
		return nil, err
	}
	s.lock = Frozen
	s.templateID = templateID

	if sess != nil {
		if err := sess.adopt(s, templateID); err != nil {
			return nil, err
		}
		s.session = sess
	}

	return s, nil
}

// InsertFieldByName appends a field looked up by name in the owning
// model. Rejected once the schema is frozen.
func (s *Schema) InsertFieldByName(name string, length int) error {
	f, err := s.model.ByName(name)
	if err != nil {
		return err
	}

	return s.InsertField(f, length)
}

// InsertFieldByIdent appends a field looked up by (PEN, id).
func (s *Schema) InsertFieldByIdent(ident Ident, length int) error {
	f, err := s.model.ByIdent(ident)
	if err != nil {
		return err
	}

	return s.InsertField(f, length)
}

// InsertFieldByID appends a field looked up by its bare IANA element
// id (PEN 0). Equivalent to InsertFieldByIdent(Ident{ID: id}, length).
func (s *Schema) InsertFieldByID(id uint16, length int) error {
	return s.InsertFieldByIdent(Ident{ID: id}, length)
}

// InsertField appends a copy of f, optionally overriding its length
// (only meaningful for varlen-capable types such as octets/string).
func (s *Schema) InsertField(f *Field, lengthOverride int) error {
	if s.lock == Frozen {
		return errs.ErrFrozen
	}

	cp := cloneField(f)
	if lengthOverride != 0 {
		if !cp.Type.IsVarlen() {
			return fmt.Errorf("%w: field %q is not varlen, cannot override length", errs.ErrBadSize, f.Name)
		}
		cp.Length = lengthOverride
	}

	s.fields = append(s.fields, cp)

	return nil
}

// Fields returns the schema's field list in declared order. The
// returned slice must not be mutated.
func (s *Schema) Fields() []*Field { return s.fields }

// FieldByIdent returns the field matching ident, if any.
func (s *Schema) FieldByIdent(ident Ident) (*Field, bool) {
	for _, f := range s.fields {
		if f.Ident == ident {
			return f, true
		}
	}

	return nil, false
}

// FieldByName returns the field matching name, if any.
func (s *Schema) FieldByName(name string) (*Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}

	return nil, false
}

// LockState reports whether the schema still accepts field inserts.
func (s *Schema) LockState() LockState { return s.lock }

// RecordLength returns the frozen fixed-record size. Zero before
// Freeze.
func (s *Schema) RecordLength() int { return s.recordLen }

// TemplateID returns the schema's registered template id. Only valid
// once attached to a Session (Freeze with a non-nil session, or
// WrapTemplate).
func (s *Schema) TemplateID() uint16 { return s.templateID }

func (s *Schema) assignOffsets() error {
	off := 0
	for _, f := range s.fields {
		f.offset = off
		if f.Type.IsVarlen() {
			off += varlenDescSize
		} else {
			off += f.Length
		}
	}
	s.recordLen = off

	return nil
}

// Freeze assigns byte offsets to every field (taking varlen and list
// fields' in-record descriptor size into account) and — if sess is
// non-nil — attaches the schema to the session under templateID (0
// requests auto-assignment). It does not resolve computed-field
// inputs: Ops.Compute receives the whole record and reads whatever
// fields it needs.
func (s *Schema) Freeze(sess *Session, templateID uint16) error {
	if s.lock == Frozen {
		return errs.ErrFrozen
	}

	if err := s.assignOffsets(); err != nil {
		return err
	}

	s.lock = Frozen

	if sess != nil {
		tid, err := sess.register(s, templateID)
		if err != nil {
			return err
		}
		s.templateID = tid
		s.session = sess
	}

	return nil
}

// Retain increments the schema's reference count, mirroring
// skschema.c's "cloning adds a reference" rule for schemas shared
// across records and lists.
func (s *Schema) Retain() *Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refCount++

	return s
}

// Release decrements the reference count and runs per-context free
// functions once it reaches zero.
func (s *Schema) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refCount--
	if s.refCount > 0 {
		return
	}
	for id, e := range s.ctx {
		if e.free != nil {
			e.free(e.value)
		}
		delete(s.ctx, id)
	}
}

// SetContext stores a value under an integer ident the schema owns
// and will run free(value) against on Release, per spec.md's "schema
// contexts are keyed by integer idents; each ident maps to (pointer,
// free_fn) owned by the schema".
func (s *Schema) SetContext(id int, value any, free func(any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx[id] = schemaCtxEntry{value: value, free: free}
}

// Context retrieves a previously stored context value.
func (s *Schema) Context(id int) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.ctx[id]

	return e.value, ok
}
