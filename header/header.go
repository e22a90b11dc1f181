// Package header implements the file header and typed entry chain from
// spec.md section 6: a fixed 13-byte prefix followed by a chain of
// `{entry_type:u32, entry_length:u32, entry_body:bytes}` records
// terminated by entry_type == 0.
//
// The fixed-size Bytes()/Parse() struct pattern is grounded on
// arloliu-mebo's section.NumericHeader; the lock state machine below
// generalizes the header's Modifiable -> EntryOk -> Fixed lifecycle
// described in spec.md section 3.
package header

import (
	"fmt"

	"github.com/flowrec/silkio/endian"
	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
)

// Magic is the fixed 4-byte prefix of every file header.
const Magic uint32 = 0xDEADBEEF

// FixedSize is the size in bytes of the fields preceding the entry
// chain: magic(4) + byte_order(1) + file_version(1) + compression(1) +
// format_id(1) + record_version(1) + header_length(2) + record_length(2).
const FixedSize = 13

// LockState tracks where in its lifecycle a Header is, per spec.md
// section 3 ("Header is locked after write; reading transitions
// Modifiable -> EntryOk -> Fixed").
type LockState int

const (
	Modifiable LockState = iota
	EntryOk
	Fixed
)

func (s LockState) String() string {
	switch s {
	case Modifiable:
		return "modifiable"
	case EntryOk:
		return "entry-ok"
	case Fixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// Header is the fixed-prefix portion of a SiLK-style file header plus
// its chain of typed entries. The chain is kept in insertion order;
// lookups by type return the first match, matching how packedfile
// sensor/hour entries are looked up by the stream layer.
type Header struct {
	ByteOrder     endian.HeaderByte
	FileVersion   format.FileVersion
	Compression   format.CompressionMethod
	FormatID      format.FormatID
	RecordVersion uint8
	HeaderLength  uint16
	RecordLength  uint16

	entries []Entry
	lock    LockState
}

// New creates a fresh, modifiable header for the given format. Callers
// fill in RecordVersion/RecordLength once the record codec has been
// selected, then call Freeze before serializing.
func New(formatID format.FormatID, compression format.CompressionMethod) *Header {
	return &Header{
		ByteOrder:   endian.ToHeaderByte(endian.Native()),
		FileVersion: format.FileVersionLegacy,
		Compression: compression,
		FormatID:    formatID,
		lock:        Modifiable,
	}
}

// LockState reports the header's current lifecycle stage.
func (h *Header) LockState() LockState { return h.lock }

// AddEntry appends a header entry. Returns ErrPrevBound (wrapped) once
// the header has left Modifiable; entries may only be added while
// Modifiable.
func (h *Header) AddEntry(e Entry) error {
	if h.lock != Modifiable {
		return fmt.Errorf("%w: header entries are immutable once locked", errs.ErrPrevBound)
	}
	h.entries = append(h.entries, e)

	return nil
}

// Entries returns all header entries of the given type, in the order
// they were added or parsed.
func (h *Header) Entries(entryType EntryType) []Entry {
	var out []Entry
	for _, e := range h.entries {
		if e.Type == entryType {
			out = append(out, e)
		}
	}

	return out
}

// FirstEntry returns the first header entry of the given type.
func (h *Header) FirstEntry(entryType EntryType) (Entry, bool) {
	for _, e := range h.entries {
		if e.Type == entryType {
			return e, true
		}
	}

	return Entry{}, false
}

// Freeze locks the header against further entry additions and
// computes HeaderLength from the fixed prefix, the serialized entry
// chain, and the zero-type terminator. Mirrors the write-side "lock
// the header to Fixed, serialize to disk" step in spec.md section 4.1.
func (h *Header) Freeze() error {
	if h.lock == Fixed {
		return nil
	}

	total := FixedSize
	for _, e := range h.entries {
		total += entryChainHeaderSize + len(e.Body)
	}
	total += entryChainHeaderSize // zero-type terminator

	if total > 0xFFFF {
		return fmt.Errorf("%w: header length %d exceeds 16-bit field", errs.ErrBadSize, total)
	}

	h.HeaderLength = uint16(total)
	h.lock = Fixed

	return nil
}

// Bytes serializes the full header, including its entry chain and
// terminator, once Freeze has been called.
func (h *Header) Bytes() ([]byte, error) {
	if h.lock != Fixed {
		return nil, fmt.Errorf("%w: header must be frozen before serialization", errs.ErrNotFrozen)
	}

	engine, err := h.engine()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, h.HeaderLength)
	var prefix [FixedSize]byte
	endian.Big.PutUint32(prefix[0:4], Magic)
	prefix[4] = byte(h.ByteOrder)
	prefix[5] = byte(h.FileVersion)
	prefix[6] = byte(h.Compression)
	prefix[7] = byte(h.FormatID)
	prefix[8] = h.RecordVersion
	engine.PutUint16(prefix[9:11], h.HeaderLength)
	engine.PutUint16(prefix[11:13], h.RecordLength)
	buf = append(buf, prefix[:]...)

	for _, e := range h.entries {
		buf = append(buf, e.bytes(engine)...)
	}
	buf = append(buf, Entry{Type: EntryTerminator}.bytes(engine)...)

	return buf, nil
}

// Parse reads the fixed prefix and verifies the magic number, moving
// the header's lock from Modifiable to EntryOk. It does not consume
// the entry chain; call ParseEntries with the remaining bytes.
func Parse(data []byte) (*Header, error) {
	if len(data) < FixedSize {
		return nil, fmt.Errorf("%w: got %d bytes", errs.ErrBlockShortHeader, len(data))
	}

	// Magic is always written big-endian regardless of the file's
	// declared byte order, so it can be checked before the order byte
	// is even read.
	magic := endian.Big.Uint32(data[0:4])
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", errs.ErrUnsupportedFormat, magic)
	}

	hb := endian.HeaderByte(data[4])
	engine, ok := endian.FromHeaderByte(hb)
	if !ok {
		return nil, fmt.Errorf("%w: byte order byte 0x%02x", errs.ErrUnsupportedFormat, hb)
	}

	h := &Header{
		ByteOrder:     hb,
		FileVersion:   format.FileVersion(data[5]),
		Compression:   format.CompressionMethod(data[6]),
		FormatID:      format.FormatID(data[7]),
		RecordVersion: data[8],
		HeaderLength:  engine.Uint16(data[9:11]),
		RecordLength:  engine.Uint16(data[11:13]),
		lock:          EntryOk,
	}

	return h, nil
}

// ParseEntries decodes the typed entry chain following the fixed
// prefix, stopping at the zero-type terminator, and transitions the
// lock to Fixed.
func (h *Header) ParseEntries(data []byte) error {
	if h.lock != EntryOk {
		return fmt.Errorf("%w: entries must be parsed exactly once after the fixed prefix", errs.ErrPrevData)
	}

	engine, err := h.engine()
	if err != nil {
		return err
	}

	off := 0
	for {
		e, n, err := parseEntry(data[off:], engine)
		if err != nil {
			return err
		}
		off += n
		if e.Type == EntryTerminator {
			break
		}
		h.entries = append(h.entries, e)
	}

	h.lock = Fixed

	return nil
}

func (h *Header) engine() (endian.Engine, error) {
	e, ok := endian.FromHeaderByte(h.ByteOrder)
	if !ok {
		return nil, fmt.Errorf("%w: byte order byte 0x%02x", errs.ErrUnsupportedFormat, h.ByteOrder)
	}

	return e, nil
}
