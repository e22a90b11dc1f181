// Package blockio implements the block buffer framing from spec.md
// section 4.3: a 16-byte header per block, two independent logical
// streams (DATA and SIDECAR) multiplexed into one file, and the
// legacy (pre-block-header) {comp_length,uncomp_length} framing for
// older file versions.
//
// The per-block struct shape — a fixed-size header with Bytes()/Parse()
// driven by an endian.Engine — is grounded on arloliu-mebo's
// section.NumericHeader and section.NumericIndexEntry, which use
// exactly this pattern for their own fixed-size framing structs.
package blockio

import (
	"fmt"

	"github.com/flowrec/silkio/endian"
	"github.com/flowrec/silkio/errs"
)

// BlockID identifies which logical stream a block belongs to.
type BlockID uint32

const (
	BlockIDData    BlockID = 0x80000001
	BlockIDSidecar BlockID = 0x80000002
	BlockIDEnd     BlockID = 0xFEEBDAED
)

func (b BlockID) String() string {
	switch b {
	case BlockIDData:
		return "DATA"
	case BlockIDSidecar:
		return "SIDECAR"
	case BlockIDEnd:
		return "END"
	default:
		return fmt.Sprintf("UNKNOWN(0x%08x)", uint32(b))
	}
}

// HeaderSize is the on-disk size of a Header.
const HeaderSize = 16

// MaxUncompressedLength is the hard cap this implementation enforces
// on a block's advertised uncompressed length (Open Question 3 in
// spec.md section 9: a resizable limit vs a hard cap — decided as a
// hard cap, see DESIGN.md, since a reader must be able to pre-size a
// buffer before trusting attacker-controlled framing).
const MaxUncompressedLength = 64 << 20

// Header is the 16-byte block header from spec.md section 4.3/6.
type Header struct {
	BlockID             BlockID
	BlockLength         uint32 // on-disk bytes including this header
	PrevBlockLength     uint32 // the same field of the previous block in the file
	UncompressedLength  uint32 // payload bytes after decompression
}

// Bytes serializes h using engine's byte order. FlowStream passes the
// host's byte order when writing and the file header's declared byte
// order when reading, so block headers are big-endian only in files
// written in big-endian order.
func (h Header) Bytes(engine endian.Engine) []byte {
	b := make([]byte, HeaderSize)
	engine.PutUint32(b[0:4], uint32(h.BlockID))
	engine.PutUint32(b[4:8], h.BlockLength)
	engine.PutUint32(b[8:12], h.PrevBlockLength)
	engine.PutUint32(b[12:16], h.UncompressedLength)

	return b
}

// ParseHeader parses a Header from exactly HeaderSize bytes.
func ParseHeader(data []byte, engine endian.Engine) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", errs.ErrBlockShortHeader, len(data))
	}

	h := Header{
		BlockID:            BlockID(engine.Uint32(data[0:4])),
		BlockLength:        engine.Uint32(data[4:8]),
		PrevBlockLength:    engine.Uint32(data[8:12]),
		UncompressedLength: engine.Uint32(data[12:16]),
	}

	if h.BlockLength < HeaderSize {
		return Header{}, fmt.Errorf("%w: block_length %d < header size", errs.ErrBlockInvalidLen, h.BlockLength)
	}
	if h.UncompressedLength > MaxUncompressedLength {
		return Header{}, fmt.Errorf("%w: %d > %d", errs.ErrBadCompressionSize, h.UncompressedLength, MaxUncompressedLength)
	}

	return h, nil
}

// LegacyHeader is the two-u32 framing used by files whose version
// predates BlockHeader but still enable per-block compression
// (spec.md section 6, "Legacy block framing").
type LegacyHeader struct {
	CompLength   uint32
	UncompLength uint32
}

const LegacyHeaderSize = 8

// IsEOF reports the well-defined EOF marker: a zero comp_length.
func (h LegacyHeader) IsEOF() bool { return h.CompLength == 0 }

func (h LegacyHeader) Bytes(engine endian.Engine) []byte {
	b := make([]byte, LegacyHeaderSize)
	engine.PutUint32(b[0:4], h.CompLength)
	engine.PutUint32(b[4:8], h.UncompLength)

	return b
}

func ParseLegacyHeader(data []byte, engine endian.Engine) (LegacyHeader, error) {
	if len(data) < LegacyHeaderSize {
		return LegacyHeader{}, fmt.Errorf("%w: got %d bytes", errs.ErrBlockShortHeader, len(data))
	}

	return LegacyHeader{
		CompLength:   engine.Uint32(data[0:4]),
		UncompLength: engine.Uint32(data[4:8]),
	}, nil
}
