package schema

import (
	"fmt"

	"github.com/flowrec/silkio/errs"
)

// ListKind distinguishes the three IPFIX list structures spec.md
// section 4.5.1 describes.
type ListKind uint8

const (
	ListBasic ListKind = iota
	ListSubTemplate
	ListSubTemplateMulti
)

// List is a growable, schema-aware sequence of sub-records, backed by
// the owning Session so that every template a list (or a nested list)
// references ends up registered before a block buffer serializes it.
type List struct {
	kind    ListKind
	session *Session

	elementField *Field // ListBasic: the single element's declared identity

	schema *Schema // ListSubTemplate: every entry's required schema

	groups []listGroup // ListSubTemplateMulti: runs of same-template entries

	entries []*Record // ListBasic / ListSubTemplate backing store

	iterPos int
}

type listGroup struct {
	schema  *Schema
	entries []*Record
}

// NewBasicList returns a list whose elements must all carry element's
// identity (ent/num, type, length).
func NewBasicList(sess *Session, element *Field) *List {
	return &List{kind: ListBasic, session: sess, elementField: element}
}

// NewSubTemplateList returns a list whose elements must all be built
// against schema exactly.
func NewSubTemplateList(sess *Session, schema *Schema) *List {
	return &List{kind: ListSubTemplate, session: sess, schema: schema}
}

// NewSubTemplateMultiList returns a list whose elements may belong to
// any schema; consecutive same-schema entries are grouped.
func NewSubTemplateMultiList(sess *Session) *List {
	return &List{kind: ListSubTemplateMulti, session: sess}
}

// Kind reports the list's structural kind.
func (l *List) Kind() ListKind { return l.kind }

// Len returns the total element count across every group.
func (l *List) Len() int {
	if l.kind != ListSubTemplateMulti {
		return len(l.entries)
	}
	n := 0
	for _, g := range l.groups {
		n += len(g.entries)
	}

	return n
}

// AppendBasic appends a single field value to a ListBasic, validating
// the value record's matching field identity.
func (l *List) AppendBasic(value *Record) error {
	if l.kind != ListBasic {
		return fmt.Errorf("%w: AppendBasic called on a %v list", errs.ErrIncompatible, l.kind)
	}
	f, ok := value.schema.FieldByIdent(l.elementField.Ident)
	if !ok || f.Type != l.elementField.Type || f.Length != l.elementField.Length {
		return fmt.Errorf("%w: element identity does not match the list's declared element", errs.ErrIncompatible)
	}

	l.entries = append(l.entries, value)

	return l.ensureRegistered(value.schema)
}

// AppendSubTemplate deep-copies rec into a freshly grown entry; rec's
// schema must match the list's declared schema exactly.
func (l *List) AppendSubTemplate(rec *Record) error {
	if l.kind != ListSubTemplate {
		return fmt.Errorf("%w: AppendSubTemplate called on a %v list", errs.ErrIncompatible, l.kind)
	}
	if !sameFieldSet(rec.schema, l.schema) {
		return fmt.Errorf("%w: record schema does not match the list's schema", errs.ErrIncompatible)
	}

	cp, err := New(l.schema)
	if err != nil {
		return err
	}
	if err := CopyInto(cp, rec, 0); err != nil {
		return err
	}

	l.entries = append(l.entries, cp)

	return l.ensureRegistered(l.schema)
}

// AppendSubTemplateMulti appends rec, deep-copied, to the group whose
// template equals rec's schema; if the most recent group has a
// different template (or there is none yet) a new group is started,
// per spec.md's "if the most recent entry's template equals the
// incoming record's template, append to it; otherwise add a new entry
// group".
func (l *List) AppendSubTemplateMulti(rec *Record) error {
	if l.kind != ListSubTemplateMulti {
		return fmt.Errorf("%w: AppendSubTemplateMulti called on a %v list", errs.ErrIncompatible, l.kind)
	}

	cp, err := New(rec.schema)
	if err != nil {
		return err
	}
	if err := CopyInto(cp, rec, 0); err != nil {
		return err
	}

	if n := len(l.groups); n > 0 && sameFieldSet(l.groups[n-1].schema, rec.schema) {
		l.groups[n-1].entries = append(l.groups[n-1].entries, cp)
	} else {
		l.groups = append(l.groups, listGroup{schema: rec.schema, entries: []*Record{cp}})
	}

	return l.ensureRegistered(rec.schema)
}

func (l *List) ensureRegistered(s *Schema) error {
	if l.session == nil || s.LockState() != Frozen {
		return nil
	}
	if _, ok := l.session.Lookup(s.TemplateID()); ok {
		return nil
	}
	_, err := l.session.register(s, s.TemplateID())

	return err
}

// ResetIter rewinds iteration to the first element.
func (l *List) ResetIter() { l.iterPos = 0 }

// NextElement returns the next element in iteration order, or
// (nil, false) once exhausted. The returned reference is only valid
// until the next NextElement or GetElement call on lists that
// internally reuse a single element record; this List variant returns
// stable per-entry records instead, since they are already deep
// copies.
func (l *List) NextElement() (*Record, bool) {
	flat := l.flatten()
	if l.iterPos >= len(flat) {
		return nil, false
	}
	e := flat[l.iterPos]
	l.iterPos++

	return e, true
}

// GetElement returns the element at idx, or (nil, false) if out of
// range.
func (l *List) GetElement(idx int) (*Record, bool) {
	flat := l.flatten()
	if idx < 0 || idx >= len(flat) {
		return nil, false
	}

	return flat[idx], true
}

func (l *List) flatten() []*Record {
	if l.kind != ListSubTemplateMulti {
		return l.entries
	}
	var out []*Record
	for _, g := range l.groups {
		out = append(out, g.entries...)
	}

	return out
}
