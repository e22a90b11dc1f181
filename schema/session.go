package schema

import (
	"fmt"

	"github.com/flowrec/silkio/errs"
)

// firstAutoTemplateID is IPFIX's convention for the first
// caller-assignable template id; 0-255 are reserved.
const firstAutoTemplateID = 256

// maxTemplateID bounds auto-assignment; Open Question 2 in DESIGN.md
// decided template id exhaustion is fatal, matching spec.md's own
// suggestion, so nextFree panics rather than returning an error once
// every id in [firstAutoTemplateID, maxTemplateID] is taken.
const maxTemplateID = 0xFFFF

// Session owns the live template id -> Schema bindings a stream reads
// and writes templates against, plus the data needed to resolve
// sidecar and list sub-templates referenced by records flowing
// through it.
type Session struct {
	byID map[uint16]*Schema
	next uint16
}

// NewSession returns an empty session with auto-assignment starting
// at the first caller-assignable template id.
func NewSession() *Session {
	return &Session{byID: make(map[uint16]*Schema), next: firstAutoTemplateID}
}

// register binds s to id (or an auto-chosen id when id == 0) and
// returns the id actually used.
func (sess *Session) register(s *Schema, id uint16) (uint16, error) {
	if id == 0 {
		id = sess.nextFree()
	} else if _, taken := sess.byID[id]; taken {
		return 0, fmt.Errorf("%w: template id %d already registered", errs.ErrIncompatible, id)
	}

	sess.byID[id] = s

	return id, nil
}

// adopt registers an already-frozen schema (the WrapTemplate path)
// under a caller-known id without re-running Freeze.
func (sess *Session) adopt(s *Schema, id uint16) error {
	if _, taken := sess.byID[id]; taken {
		return fmt.Errorf("%w: template id %d already registered", errs.ErrIncompatible, id)
	}
	sess.byID[id] = s

	return nil
}

func (sess *Session) nextFree() uint16 {
	for {
		id := sess.next
		if id < firstAutoTemplateID {
			// next wrapped to 0 after maxTemplateID was handed out.
			panic("schema: template id space exhausted")
		}
		sess.next++
		if _, taken := sess.byID[id]; !taken {
			return id
		}
	}
}

// Lookup returns the schema registered under id, if any.
func (sess *Session) Lookup(id uint16) (*Schema, bool) {
	s, ok := sess.byID[id]

	return s, ok
}

// Find returns a previously registered schema whose field list
// matches candidate's exactly (same idents, types, and lengths in
// order), used by TemplateMap's "id was auto, scan the session for an
// existing match" replay step.
func (sess *Session) Find(candidate *Schema) (*Schema, bool) {
	for _, s := range sess.byID {
		if sameFieldSet(s, candidate) {
			return s, true
		}
	}

	return nil, false
}

func sameFieldSet(a, b *Schema) bool {
	if len(a.fields) != len(b.fields) {
		return false
	}
	for i, fa := range a.fields {
		fb := b.fields[i]
		if fa.Ident != fb.Ident || fa.Type != fb.Type || fa.Length != fb.Length {
			return false
		}
	}

	return true
}

// TemplateMap collects (template, declared-id) pairs while
// deep-copying a record that contains list fields, per spec.md
// section 4.5.2. It is built against a source session and replayed
// against a destination session so every template a copied list
// references ends up registered at a valid id in the destination.
type TemplateMap struct {
	declared map[*Schema]uint16
	auto     map[*Schema]bool
	order    []*Schema
}

// NewTemplateMap returns an empty map.
func NewTemplateMap() *TemplateMap {
	return &TemplateMap{declared: make(map[*Schema]uint16), auto: make(map[*Schema]bool)}
}

// Add records that s was seen with declared template id id. A second
// Add for the same id with a different schema marks that id as a
// collision, forcing it to auto-assignment on Replay.
func (tm *TemplateMap) Add(s *Schema, id uint16) {
	if _, seen := tm.declared[s]; seen {
		return
	}
	tm.order = append(tm.order, s)

	for other, otherID := range tm.declared {
		if other != s && otherID == id {
			tm.auto[s] = true
			tm.auto[other] = true
		}
	}

	tm.declared[s] = id
}

// Replay installs every collected template into dst: declared,
// non-colliding ids are installed as-is; colliding or auto-marked
// schemas are matched against dst's existing templates or added under
// a freshly assigned id. It returns the mapping from the original
// schema to its id in dst.
func (tm *TemplateMap) Replay(dst *Session) (map[*Schema]uint16, error) {
	result := make(map[*Schema]uint16, len(tm.order))

	for _, s := range tm.order {
		if tm.auto[s] {
			if existing, ok := dst.Find(s); ok {
				result[s] = existing.templateID

				continue
			}
			id, err := dst.register(s, 0)
			if err != nil {
				return nil, err
			}
			result[s] = id

			continue
		}

		id := tm.declared[s]
		if _, taken := dst.byID[id]; taken {
			autoID, err := dst.register(s, 0)
			if err != nil {
				return nil, err
			}
			result[s] = autoID

			continue
		}

		if err := dst.adopt(s, id); err != nil {
			return nil, err
		}
		result[s] = id
	}

	return result, nil
}
