package header

import (
	"fmt"

	"github.com/flowrec/silkio/endian"
	"github.com/flowrec/silkio/errs"
)

// EntryType identifies the kind of a header entry (spec.md section 3:
// "packedfile hour/sensor/flowtype, probename, annotation, invocation,
// sidecar-schema, etc.").
type EntryType uint32

const (
	EntryTerminator    EntryType = 0
	EntryPackedfile    EntryType = 1
	EntryProbename     EntryType = 2
	EntryAnnotation    EntryType = 3
	EntryInvocation    EntryType = 4
	EntrySidecarSchema EntryType = 5
)

func (t EntryType) String() string {
	switch t {
	case EntryTerminator:
		return "terminator"
	case EntryPackedfile:
		return "packedfile"
	case EntryProbename:
		return "probename"
	case EntryAnnotation:
		return "annotation"
	case EntryInvocation:
		return "invocation"
	case EntrySidecarSchema:
		return "sidecar-schema"
	default:
		return fmt.Sprintf("entry(%d)", uint32(t))
	}
}

// entryChainHeaderSize is the on-disk size of an entry's
// {entry_type, entry_length} prefix, per spec.md section 6.
const entryChainHeaderSize = 8

// Entry is one link of the header's typed entry chain.
type Entry struct {
	Type EntryType
	Body []byte
}

func (e Entry) bytes(engine endian.Engine) []byte {
	b := make([]byte, entryChainHeaderSize+len(e.Body))
	engine.PutUint32(b[0:4], uint32(e.Type))
	engine.PutUint32(b[4:8], uint32(len(e.Body)))
	copy(b[8:], e.Body)

	return b
}

func parseEntry(data []byte, engine endian.Engine) (Entry, int, error) {
	if len(data) < entryChainHeaderSize {
		return Entry{}, 0, fmt.Errorf("%w: entry chain truncated", errs.ErrBlockShortHeader)
	}

	entryType := EntryType(engine.Uint32(data[0:4]))
	length := engine.Uint32(data[4:8])
	total := entryChainHeaderSize + int(length)
	if total > len(data) {
		return Entry{}, 0, fmt.Errorf("%w: entry body of %d bytes exceeds remaining header", errs.ErrBlockShortHeader, length)
	}

	e := Entry{Type: entryType}
	if length > 0 {
		e.Body = append([]byte(nil), data[entryChainHeaderSize:total]...)
	}

	return e, total, nil
}

// PackedfileEntry records the hour boundary, sensor id, and flowtype
// id a file was packed for, used to resolve each record's 12-bit
// hour-relative start-time offset (spec.md section 4.2).
type PackedfileEntry struct {
	HourBoundaryMs int64 // unix ms, truncated to the hour
	SensorID       uint16
	FlowtypeID     uint8
}

// Bytes serializes a PackedfileEntry body.
func (p PackedfileEntry) Bytes(engine endian.Engine) []byte {
	b := make([]byte, 11)
	engine.PutUint64(b[0:8], uint64(p.HourBoundaryMs))
	engine.PutUint16(b[8:10], p.SensorID)
	b[10] = p.FlowtypeID

	return b
}

// ParsePackedfileEntry decodes a PackedfileEntry body.
func ParsePackedfileEntry(body []byte, engine endian.Engine) (PackedfileEntry, error) {
	if len(body) < 11 {
		return PackedfileEntry{}, fmt.Errorf("%w: packedfile entry body too short", errs.ErrBadSize)
	}

	return PackedfileEntry{
		HourBoundaryMs: int64(engine.Uint64(body[0:8])),
		SensorID:       engine.Uint16(body[8:10]),
		FlowtypeID:     body[10],
	}, nil
}

// NewProbenameEntry wraps a probe name as a header entry body.
func NewProbenameEntry(name string) Entry {
	return Entry{Type: EntryProbename, Body: []byte(name)}
}

// NewAnnotationEntry wraps a free-text annotation (e.g. operator notes
// attached by rwfileinfo-style tooling) as a header entry.
func NewAnnotationEntry(text string) Entry {
	return Entry{Type: EntryAnnotation, Body: []byte(text)}
}

// NewInvocationEntry records the command line that produced the file.
func NewInvocationEntry(argv []string) Entry {
	body := make([]byte, 0, 64)
	for _, a := range argv {
		body = append(body, []byte(a)...)
		body = append(body, 0)
	}

	return Entry{Type: EntryInvocation, Body: body}
}

// NewSidecarSchemaEntry wraps an opaque, already-serialized sidecar
// schema blob as produced by a sidecar.Codec's AddToHeader, per the
// collaborator contract in spec.md section 6.
func NewSidecarSchemaEntry(blob []byte) Entry {
	return Entry{Type: EntrySidecarSchema, Body: blob}
}
