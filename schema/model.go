package schema

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/flowrec/silkio/errs"
)

// InformationModel is a registry of known information elements, keyed
// both by name and by Ident, mirroring skschema.c's sk_schema_ctx /
// element-name lookup used by schema::create and
// insert_field_by_name. Lookup by name is hashed with xxhash, the
// same ported-from-mebo hashing arloliu-mebo/internal/hash uses for
// its metric-name index.
type InformationModel struct {
	byName  map[uint64]*Field
	byIdent map[Ident]*Field
}

// NewInformationModel returns an empty model. Elements are added with
// Define before any schema built against the model can reference them
// by name.
func NewInformationModel() *InformationModel {
	return &InformationModel{
		byName:  make(map[uint64]*Field),
		byIdent: make(map[Ident]*Field),
	}
}

func nameHash(name string) uint64 { return xxhash.Sum64String(name) }

// Define registers a new information element. The returned *Field is
// a template: insertField copies it rather than aliasing it, since
// distinct schemas must own distinct offset/ops state.
func (m *InformationModel) Define(ident Ident, name string, t DataType, length int) (*Field, error) {
	f, err := newField(ident, name, t, length)
	if err != nil {
		return nil, err
	}

	h := nameHash(name)
	if _, exists := m.byName[h]; exists {
		return nil, fmt.Errorf("%w: element %q already defined", errs.ErrIncompatible, name)
	}
	if _, exists := m.byIdent[ident]; exists {
		return nil, fmt.Errorf("%w: ident %s already defined", errs.ErrIncompatible, ident)
	}

	m.byName[h] = f
	m.byIdent[ident] = f

	return f, nil
}

// ByName looks up a previously Define-d element.
func (m *InformationModel) ByName(name string) (*Field, error) {
	f, ok := m.byName[nameHash(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownIE, name)
	}

	return f, nil
}

// ByIdent looks up a previously Define-d element by (PEN, id).
func (m *InformationModel) ByIdent(ident Ident) (*Field, error) {
	f, ok := m.byIdent[ident]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnknownIE, ident)
	}

	return f, nil
}

func cloneField(src *Field) *Field {
	cp := *src
	cp.offset = 0

	return &cp
}
