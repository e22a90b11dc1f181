package stream

import (
	"errors"
	"fmt"
	"io"

	"github.com/flowrec/silkio/blockio"
	"github.com/flowrec/silkio/codec"
	"github.com/flowrec/silkio/compress"
	"github.com/flowrec/silkio/endian"
	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
	"github.com/flowrec/silkio/header"
	"github.com/flowrec/silkio/iohelp"
)

// openForRead implements the header-read algorithm from spec.md
// section 4.1: peek the gzip magic, read the fixed header prefix,
// parse the entry chain, bind a record codec, and — for BlockHeader
// files or any per-block compression — stand up a block reader.
func (fs *FlowStream) openForRead() error {
	// The gzip-magic peek reads straight off the fd, bypassing
	// BasicBuffer's read-ahead: once bytes land in BasicBuffer's
	// internal buffer a fresh pgzip.Reader opened on the same fd
	// would skip over them, since pgzip reads from the current fd
	// offset rather than through our buffer.
	var first2 [2]byte
	n, err := readRaw(fs.file, first2[:])
	if n < 2 || err != nil {
		if fs.content == format.ContentSilkFlow || fs.content == format.ContentSilk {
			return fs.setFailed(fmt.Errorf("%w: %v", errs.ErrRead, err))
		}
		// empty non-flow stream: nothing to negotiate.
		return nil
	}

	if iohelp.PeekGzipMagic(first2) {
		gr, err := iohelp.NewGzipReader(fs.file)
		if err != nil {
			return fs.setFailed(err)
		}
		fs.gzip = gr
		fs.io = gr
	} else {
		fs.basic = iohelp.NewBasicBuffer(fs.file)
		fs.io = &prefixReader{first: first2, rest: fs.basic}
	}

	if fs.content != format.ContentSilkFlow && fs.content != format.ContentSilk {
		return nil
	}

	prefix := make([]byte, header.FixedSize)
	if err := readFullFrom(fs.io, prefix); err != nil {
		return fs.setFailed(err)
	}

	h, err := header.Parse(prefix)
	if err != nil {
		return fs.setFailed(err)
	}

	engine, err := headerEngine(h)
	if err != nil {
		return fs.setFailed(err)
	}
	fs.engine = engine

	entryData := make([]byte, int(h.HeaderLength)-header.FixedSize)
	if err := readFullFrom(fs.io, entryData); err != nil {
		return fs.setFailed(err)
	}
	if err := h.ParseEntries(entryData); err != nil {
		return fs.setFailed(err)
	}
	fs.hdr = h

	rc, err := codec.Get(h.FormatID, h.RecordVersion)
	if err != nil {
		return fs.setFailed(err)
	}
	if err := codec.Prepare(rc, &h.RecordLength); err != nil {
		return fs.setFailed(err)
	}
	fs.rc = rc
	fs.recBuf = make([]byte, rc.RecordLength())

	if fs.sidecarC != nil {
		st, err := fs.sidecarC.CreateFromHeader(h)
		if err != nil {
			return fs.setFailed(err)
		}
		fs.sidecarS = st
	}

	if h.FileVersion == format.FileVersionBlockHeader {
		fs.blocks = blockio.NewReader(fs.io, engine, h.Compression)
	}

	return nil
}

// openForWrite implements the header-write algorithm from spec.md
// section 4.1.
func (fs *FlowStream) openForWrite() error {
	if isGzipPath(fs.path) {
		if fs.mode == format.IOModeAppend || fs.content == format.ContentText {
			return fs.setFailed(fmt.Errorf("%w: .gz path rejected for append/text-write", errs.ErrUnsupportedContent))
		}
		fs.gzip = iohelp.NewGzipWriter(fs.file)
		fs.io = fs.gzip
	}

	if fs.content != format.ContentSilkFlow && fs.content != format.ContentSilk {
		return nil
	}

	if fs.hdr == nil {
		fs.hdr = header.New(format.FormatGeneric, 0)
	}
	if fs.hdr.Compression == 0 {
		fs.hdr.Compression = fs.resolveCompression()
	}

	version := fs.hdr.RecordVersion
	if version == 0 {
		v, err := codec.DefaultVersion(fs.hdr.FormatID)
		if err != nil {
			return fs.setFailed(err)
		}
		version = v
		fs.hdr.RecordVersion = v
	}

	rc, err := codec.Get(fs.hdr.FormatID, version)
	if err != nil {
		return fs.setFailed(err)
	}
	if err := codec.Prepare(rc, &fs.hdr.RecordLength); err != nil {
		return fs.setFailed(err)
	}
	fs.rc = rc
	fs.recBuf = make([]byte, rc.RecordLength())
	fs.engine = endian.Native()

	hasSidecar := fs.sidecarC != nil
	if hasSidecar {
		fs.hdr.FileVersion = format.FileVersionBlockHeader
		if err := fs.sidecarC.AddToHeader(fs.sidecarS, fs.hdr); err != nil {
			return fs.setFailed(err)
		}
	}

	if err := fs.hdr.Freeze(); err != nil {
		return fs.setFailed(err)
	}

	raw, err := fs.hdr.Bytes()
	if err != nil {
		return fs.setFailed(err)
	}
	if _, err := fs.io.Write(raw); err != nil {
		return fs.setFailed(fmt.Errorf("%w: %v", errs.ErrWrite, err))
	}

	if fs.hdr.FileVersion == format.FileVersionBlockHeader {
		bw, err := blockio.NewWriter(fs.io, fs.engine, fs.hdr.Compression, hasSidecar)
		if err != nil {
			return fs.setFailed(err)
		}
		fs.blockW = bw
	} else if fs.hdr.Compression != format.CompressionNone {
		cc, err := compress.Get(fs.hdr.Compression)
		if err != nil {
			return fs.setFailed(err)
		}
		if !cc.Available() {
			return fs.setFailed(fmt.Errorf("%w: %s", errs.ErrCompressUnavailable, fs.hdr.Compression))
		}
		fs.legacyW = &legacyWriter{out: fs.io, engine: fs.engine, codec: cc}
	}

	return nil
}

// resolveCompression implements "Resolve Compression::Default/Best
// against the destination's seekability (non-seekable -> None)".
func (fs *FlowStream) resolveCompression() format.CompressionMethod {
	if fs.basic != nil {
		// Pipes and terminals reject Seek; only a seekable destination
		// gets the default per-block compression.
		if _, err := fs.file.Seek(0, io.SeekCurrent); err == nil {
			return compress.DefaultMethod()
		}
	}

	return format.CompressionNone
}

func headerEngine(h *header.Header) (endian.Engine, error) {
	e, ok := endian.FromHeaderByte(h.ByteOrder)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized byte-order byte %q", errs.ErrUnsupportedFormat, h.ByteOrder)
	}

	return e, nil
}

func readFullFrom(r rawIO, p []byte) error {
	off := 0
	for off < len(p) {
		n, err := r.Read(p[off:])
		off += n
		if off >= len(p) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) && off == 0 {
				return errs.ErrEOF
			}

			return fmt.Errorf("%w: %v", errs.ErrRead, err)
		}
	}

	return nil
}

// readRaw reads directly from f, bypassing any buffering layer.
func readRaw(f interface{ Read([]byte) (int, error) }, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := f.Read(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// prefixReader replays two already-consumed bytes ahead of the
// underlying reader, used after the gzip-magic peek when the stream
// turns out not to be gzipped.
type prefixReader struct {
	first [2]byte
	pos   int
	rest  rawIO
}

func (p *prefixReader) Read(buf []byte) (int, error) {
	n := 0
	for p.pos < 2 && n < len(buf) {
		buf[n] = p.first[p.pos]
		p.pos++
		n++
	}
	if n > 0 {
		return n, nil
	}

	return p.rest.Read(buf)
}

func (p *prefixReader) Write(buf []byte) (int, error) {
	return 0, errs.ErrUnsupportedIoMode
}

