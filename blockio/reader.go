package blockio

import (
	"fmt"
	"io"

	"github.com/flowrec/silkio/compress"
	"github.com/flowrec/silkio/endian"
	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
)

// byteReader is the minimal surface Reader needs from iohelp.BasicBuffer
// or iohelp.GzipBuffer.
type byteReader interface {
	Read(p []byte) (int, error)
}

// Reader consumes the block stream produced by Writer, dispatching
// DATA and SIDECAR blocks per spec.md section 4.3.
type Reader struct {
	in     byteReader
	engine endian.Engine
	method format.CompressionMethod
}

func NewReader(in byteReader, engine endian.Engine, method format.CompressionMethod) *Reader {
	return &Reader{in: in, engine: engine, method: method}
}

// PeekHeader reads and validates the next block header without
// consuming its payload. An unrecognized block id is fatal per
// spec.md section 4.3 ("BlockUnknownId on an unrecognized id is
// fatal") and is returned without attempting to skip the payload,
// since the stream is no longer trustworthy.
func (r *Reader) PeekHeader() (Header, error) {
	var raw [HeaderSize]byte
	if err := readFull(r.in, raw[:]); err != nil {
		return Header{}, err
	}

	h, err := ParseHeader(raw[:], r.engine)
	if err != nil {
		return Header{}, err
	}

	switch h.BlockID {
	case BlockIDData, BlockIDSidecar, BlockIDEnd:
		return h, nil
	default:
		return Header{}, fmt.Errorf("%w: %s", errs.ErrBlockUnknownID, h.BlockID)
	}
}

// SkipPayload discards h's payload bytes, letting the caller retry
// PeekHeader for the next block. This is how a reader that doesn't
// want sidecar data skips SIDECAR blocks (spec.md section 4.3).
func (r *Reader) SkipPayload(h Header) error {
	n := int(h.BlockLength) - HeaderSize
	if n < 0 {
		return fmt.Errorf("%w: block_length %d underflows header", errs.ErrBlockInvalidLen, h.BlockLength)
	}

	buf := make([]byte, 32*1024)
	for n > 0 {
		chunk := len(buf)
		if n < chunk {
			chunk = n
		}
		if err := readFull(r.in, buf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}

	return nil
}

// ReadPayload reads and decompresses h's payload.
func (r *Reader) ReadPayload(h Header) ([]byte, error) {
	n := int(h.BlockLength) - HeaderSize
	if n < 0 {
		return nil, fmt.Errorf("%w: block_length %d underflows header", errs.ErrBlockInvalidLen, h.BlockLength)
	}

	raw := make([]byte, n)
	if err := readFull(r.in, raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBlockIncomplete, err)
	}

	codec, err := compress.Get(r.method)
	if err != nil {
		return nil, err
	}

	payload, err := codec.Decompress(raw, int(h.UncompressedLength))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrBlockUncompress, err)
	}

	return payload, nil
}

func readFull(r byteReader, p []byte) error {
	total := 0
	for total < len(p) {
		n, err := r.Read(p[total:])
		total += n
		if err != nil {
			if err == io.EOF && total == 0 {
				return errs.ErrEOF
			}
			if err == io.EOF {
				return fmt.Errorf("%w: wanted %d got %d", errs.ErrReadShort, len(p), total)
			}

			return err
		}
	}

	return nil
}
