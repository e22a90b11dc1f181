package iohelp

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"

	"github.com/flowrec/silkio/errs"
)

// GzipMagic is the two-byte prefix that triggers whole-stream gzip mode
// on read, independent of the per-block compression selected by the
// file header (spec.md section 4.1 header-read algorithm).
var GzipMagic = [2]byte{0x1f, 0x8b}

// GzipBuffer wraps a BasicBuffer's file with klauspost/pgzip, the same
// whole-stream gzip transport distr1-distri depends on for producing
// general-purpose gzip archives. pgzip's reader decodes both
// single-stream and multistream gzip and its writer parallelizes the
// deflate work across blocks, which is the right trade for the large,
// highly-compressible flow files this format targets.
type GzipBuffer struct {
	f  *os.File
	gr *pgzip.Reader
	gw *pgzip.Writer
}

// NewGzipReader opens f for gzip-decompressed reading.
func NewGzipReader(f *os.File) (*GzipBuffer, error) {
	gr, err := pgzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrRead, err)
	}

	return &GzipBuffer{f: f, gr: gr}, nil
}

// NewGzipWriter opens f for gzip-compressed writing.
func NewGzipWriter(f *os.File) *GzipBuffer {
	return &GzipBuffer{f: f, gw: pgzip.NewWriter(f)}
}

func (g *GzipBuffer) Read(p []byte) (int, error) {
	if g.gr == nil {
		return 0, errs.ErrNotOpen
	}

	n, err := g.gr.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: %v", errs.ErrRead, err)
	}

	return n, err
}

func (g *GzipBuffer) Write(p []byte) (int, error) {
	if g.gw == nil {
		return 0, errs.ErrNotOpen
	}

	n, err := g.gw.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}

	return n, nil
}

// Close flushes the writer with a Z_FINISH-equivalent Close call (per
// spec.md section 4.4: "on close emits a Z_FINISH for writers") or
// closes the reader, then closes the underlying file.
func (g *GzipBuffer) Close() error {
	if g.gw != nil {
		if err := g.gw.Close(); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrWrite, err)
		}
	}
	if g.gr != nil {
		if err := g.gr.Close(); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrRead, err)
		}
	}

	return g.f.Close()
}

// PeekGzipMagic reports whether header, the first two bytes the caller
// has already read from the stream, is the gzip magic.
func PeekGzipMagic(header [2]byte) bool {
	return header == GzipMagic
}
