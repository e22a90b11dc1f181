package blockio

import (
	"fmt"

	"github.com/flowrec/silkio/compress"
	"github.com/flowrec/silkio/endian"
	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
)

// byteWriter is the minimal surface Writer needs from iohelp.
type byteWriter interface {
	Write(p []byte) (int, error)
}

// DefaultCapacity is the size of each of the data/sidecar accumulation
// buffers before a flush is forced.
const DefaultCapacity = 64 * 1024

// Writer accumulates records into a data buffer and their sidecars
// into a parallel buffer, flushing each as an independently compressed
// block, data first then sidecar, per spec.md section 4.3.
type Writer struct {
	out      byteWriter
	engine   endian.Engine
	method   format.CompressionMethod
	codec    compress.Codec
	capacity int

	dataBuf    []byte
	sidecarBuf []byte

	prevBlockLength uint32
	hasSidecar      bool
}

// NewWriter creates a Writer. hasSidecar controls whether a SIDECAR
// block is ever emitted; when false, AppendSidecar is a no-op and
// Flush only ever writes a DATA block.
func NewWriter(out byteWriter, engine endian.Engine, method format.CompressionMethod, hasSidecar bool) (*Writer, error) {
	codec, err := compress.Get(method)
	if err != nil {
		return nil, err
	}
	if !codec.Available() {
		return nil, fmt.Errorf("%w: %s", errs.ErrCompressUnavailable, method)
	}

	return &Writer{
		out:        out,
		engine:     engine,
		method:     method,
		codec:      codec,
		capacity:   DefaultCapacity,
		dataBuf:    make([]byte, 0, DefaultCapacity),
		sidecarBuf: make([]byte, 0, DefaultCapacity),
		hasSidecar: hasSidecar,
	}, nil
}

// Remaining reports free bytes left in the data and sidecar buffers,
// so callers can decide whether a record (plus its sidecar) fits
// before ever writing part of it, enforcing the "never straddle block
// boundaries" invariant in spec.md section 4.3.
func (w *Writer) Remaining() (data int, sidecar int) {
	return w.capacity - len(w.dataBuf), w.capacity - len(w.sidecarBuf)
}

// Fits reports whether a record of recLen bytes and a sidecar of
// scLen bytes can be appended without exceeding capacity.
func (w *Writer) Fits(recLen, scLen int) bool {
	d, s := w.Remaining()

	return recLen <= d && scLen <= s
}

// AppendRecord appends a packed record to the data buffer. The caller
// must have already checked Fits and flushed if necessary.
func (w *Writer) AppendRecord(rec []byte) error {
	if len(rec) > w.capacity {
		return fmt.Errorf("%w: record of %d bytes exceeds block capacity %d", errs.ErrBlockInvalidLen, len(rec), w.capacity)
	}
	w.dataBuf = append(w.dataBuf, rec...)

	return nil
}

// AppendSidecar appends a record's serialized sidecar blob to the
// sidecar buffer. No-op when the writer has no sidecar schema.
func (w *Writer) AppendSidecar(sc []byte) error {
	if !w.hasSidecar {
		return nil
	}
	if len(sc) > w.capacity {
		return fmt.Errorf("%w: sidecar of %d bytes exceeds block capacity %d", errs.ErrBlockInvalidLen, len(sc), w.capacity)
	}
	w.sidecarBuf = append(w.sidecarBuf, sc...)

	return nil
}

// Flush writes the current data block, then the current sidecar block
// (if any bytes are pending), in that order, per spec.md section 4.3.
func (w *Writer) Flush() error {
	if len(w.dataBuf) > 0 {
		if err := w.writeBlock(BlockIDData, w.dataBuf); err != nil {
			return err
		}
		w.dataBuf = w.dataBuf[:0]
	}

	if w.hasSidecar && len(w.sidecarBuf) > 0 {
		if err := w.writeBlock(BlockIDSidecar, w.sidecarBuf); err != nil {
			return err
		}
		w.sidecarBuf = w.sidecarBuf[:0]
	}

	return nil
}

func (w *Writer) writeBlock(id BlockID, payload []byte) error {
	compressed, err := w.codec.Compress(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBlockUncompress, err)
	}

	h := Header{
		BlockID:            id,
		BlockLength:        uint32(HeaderSize + len(compressed)),
		PrevBlockLength:    w.prevBlockLength,
		UncompressedLength: uint32(len(payload)),
	}

	if _, err := w.out.Write(h.Bytes(w.engine)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}
	if _, err := w.out.Write(compressed); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}

	w.prevBlockLength = h.BlockLength

	return nil
}

// Close writes the terminal END block and flushes any pending data.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	end := Header{BlockID: BlockIDEnd, BlockLength: HeaderSize, PrevBlockLength: w.prevBlockLength}
	if _, err := w.out.Write(end.Bytes(w.engine)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}
	w.prevBlockLength = end.BlockLength

	return nil
}

// PrevBlockLength returns the most recently written block's length,
// used by callers that want to verify the testable "prefix-sum of
// block_length values" property from spec.md section 8.
func (w *Writer) PrevBlockLength() uint32 { return w.prevBlockLength }
