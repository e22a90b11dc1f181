package stream

import (
	"fmt"
	"net/netip"

	"go.uber.org/zap"

	"github.com/flowrec/silkio/blockio"
	"github.com/flowrec/silkio/compress"
	"github.com/flowrec/silkio/endian"
	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
	"github.com/flowrec/silkio/silkconfig"
)

// legacyBlock is a small decompress-ahead buffer: the current block's
// payload plus a cursor. Used both for FileVersionLegacy's
// {comp_length, uncomp_length} framing and, in stream.go, for the two
// logical block-framed streams (data, sidecar) once FileVersionBlockHeader
// is in play — a block's payload packs many records end to end, so a
// buffer with a cursor is needed either way.
type legacyBlock struct {
	data []byte
	pos  int
}

func (b *legacyBlock) exhausted(want int) bool {
	return b == nil || b.pos+want > len(b.data)
}

func (fs *FlowStream) needsLegacyFraming() bool {
	return fs.hdr != nil && fs.hdr.FileVersion != format.FileVersionBlockHeader && fs.hdr.Compression != format.CompressionNone
}

// legacyWriter accumulates packed records and flushes them as a single
// compressed block framed by blockio.LegacyHeader, for files whose
// version predates BlockHeader but still compress per spec.md section 6.
type legacyWriter struct {
	out    rawIO
	engine endian.Engine
	codec  compress.Codec
	buf    []byte
}

const legacyWriterCapacity = 64 * 1024

func (w *legacyWriter) append(rec []byte) error {
	w.buf = append(w.buf, rec...)
	if len(w.buf) >= legacyWriterCapacity {
		return w.Flush()
	}

	return nil
}

func (w *legacyWriter) Flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	compressed, err := w.codec.Compress(w.buf)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBlockUncompress, err)
	}

	lh := blockio.LegacyHeader{CompLength: uint32(len(compressed)), UncompLength: uint32(len(w.buf))}
	if _, err := w.out.Write(lh.Bytes(w.engine)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}
	if _, err := w.out.Write(compressed); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}

	w.buf = w.buf[:0]

	return nil
}

// Close flushes any pending records and writes the zero-length EOF marker.
func (w *legacyWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	end := blockio.LegacyHeader{}
	if _, err := w.out.Write(end.Bytes(w.engine)); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}

	return nil
}

// ReadRecord decodes the next record into rec, forwards it to a
// copy-input stream if attached, applies ICMP repair, and filters it
// against the configured IPv6 policy. Returns errs.ErrEOF once the
// stream is exhausted.
func (fs *FlowStream) ReadRecord(rec *format.FlowRecord) error {
	if fs.mode != format.IOModeRead {
		return errs.ErrUnsupportedIoMode
	}
	if fs.hdr == nil {
		return errs.ErrNotOpen
	}

	for {
		if err := fs.readOneRecord(rec); err != nil {
			return fs.setFailed(err)
		}
		fs.recordsIO++

		if fs.copyInput != nil {
			if err := fs.copyInput.WriteRecord(rec); err != nil {
				return fs.setFailed(err)
			}
		}

		if fs.cfg.ICMPSportHandler != silkconfig.ICMPSportNone {
			repairICMP(rec)
		}

		ok, err := applyIPv6Policy(rec, fs.ipv6Policy)
		if err != nil {
			return fs.setFailed(err)
		}
		if ok {
			return nil
		}
		// policy dropped this record; loop around for the next one.
	}
}

func (fs *FlowStream) readOneRecord(rec *format.FlowRecord) error {
	buf := fs.recBuf

	switch {
	case fs.blocks != nil:
		if err := fs.readFromBlockStream(buf); err != nil {
			return err
		}
	case fs.needsLegacyFraming():
		if err := fs.readFromLegacyStream(buf); err != nil {
			return err
		}
	default:
		if err := readFullFrom(fs.io, buf); err != nil {
			return err
		}
	}

	if !endian.IsNative(fs.engine) {
		fs.rc.Swap(buf)
	}
	if err := fs.rc.Unpack(buf, rec); err != nil {
		return err
	}

	if fs.sidecarC != nil {
		sc, err := fs.readSidecarPayload()
		if err != nil {
			return err
		}
		rec.Sidecar = sc
	}

	return nil
}

// ensureBlock refills whichever logical stream (data or sidecar) is
// currently exhausted, buffering blocks of the other kind it runs
// into along the way, until want has fresh bytes or the stream ends.
func (fs *FlowStream) ensureBlock(want blockio.BlockID) error {
	for {
		var buf **legacyBlock
		switch want {
		case blockio.BlockIDData:
			buf = &fs.blockData
		case blockio.BlockIDSidecar:
			buf = &fs.blockSidecar
		}
		if !(*buf).exhausted(1) {
			return nil
		}

		h, err := fs.blocks.PeekHeader()
		if err != nil {
			return err
		}
		if h.BlockID == blockio.BlockIDEnd {
			return errs.ErrEOF
		}

		payload, err := fs.blocks.ReadPayload(h)
		if err != nil {
			return err
		}

		switch h.BlockID {
		case blockio.BlockIDData:
			fs.blockData = &legacyBlock{data: payload}
		case blockio.BlockIDSidecar:
			fs.blockSidecar = &legacyBlock{data: payload}
		default:
			return fmt.Errorf("%w: %s", errs.ErrBlockUnknownID, h.BlockID)
		}
	}
}

func (fs *FlowStream) readFromBlockStream(buf []byte) error {
	if err := fs.ensureBlock(blockio.BlockIDData); err != nil {
		return err
	}
	if fs.blockData.exhausted(len(buf)) {
		return fmt.Errorf("%w: data block holds a partial record", errs.ErrBlockIncomplete)
	}
	copy(buf, fs.blockData.data[fs.blockData.pos:fs.blockData.pos+len(buf)])
	fs.blockData.pos += len(buf)

	return nil
}

func (fs *FlowStream) readSidecarPayload() ([]byte, error) {
	if err := fs.ensureBlock(blockio.BlockIDSidecar); err != nil {
		if err == errs.ErrEOF {
			return nil, nil
		}

		return nil, err
	}

	rest := fs.blockSidecar.data[fs.blockSidecar.pos:]
	consumed, err := fs.sidecarC.Skip(fs.sidecarS, rest)
	if err != nil {
		return nil, err
	}

	sc := append([]byte(nil), rest[:consumed]...)
	fs.blockSidecar.pos += consumed

	return sc, nil
}

func (fs *FlowStream) readFromLegacyStream(buf []byte) error {
	if fs.legacy.exhausted(len(buf)) {
		if err := fs.fillLegacyBlock(); err != nil {
			return err
		}
	}
	copy(buf, fs.legacy.data[fs.legacy.pos:fs.legacy.pos+len(buf)])
	fs.legacy.pos += len(buf)

	return nil
}

func (fs *FlowStream) fillLegacyBlock() error {
	var hdr [blockio.LegacyHeaderSize]byte
	if err := readFullFrom(fs.io, hdr[:]); err != nil {
		return err
	}

	lh, err := blockio.ParseLegacyHeader(hdr[:], fs.engine)
	if err != nil {
		return err
	}
	if lh.IsEOF() {
		return errs.ErrEOF
	}

	comp := make([]byte, lh.CompLength)
	if err := readFullFrom(fs.io, comp); err != nil {
		return err
	}

	cc, err := compress.Get(fs.hdr.Compression)
	if err != nil {
		return err
	}

	raw, err := cc.Decompress(comp, int(lh.UncompLength))
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBlockUncompress, err)
	}

	fs.legacy = &legacyBlock{data: raw}

	return nil
}

// WriteRecord encodes rec, appends it (and its sidecar, if any) to
// the stream, flushing the current block first if rec wouldn't fit.
func (fs *FlowStream) WriteRecord(rec *format.FlowRecord) error {
	if fs.mode == format.IOModeRead {
		return errs.ErrUnsupportedIoMode
	}
	if fs.hdr == nil {
		return errs.ErrNotOpen
	}

	buf := fs.recBuf
	if err := fs.rc.Pack(rec, buf); err != nil {
		return fs.setFailed(err)
	}

	switch {
	case fs.blockW != nil:
		if !fs.blockW.Fits(len(buf), len(rec.Sidecar)) {
			if err := fs.blockW.Flush(); err != nil {
				return fs.setFailed(err)
			}
		}
		if err := fs.blockW.AppendRecord(buf); err != nil {
			return fs.setFailed(err)
		}
		if fs.sidecarC != nil && len(rec.Sidecar) > 0 {
			if err := fs.blockW.AppendSidecar(rec.Sidecar); err != nil {
				return fs.setFailed(err)
			}
		}
	case fs.legacyW != nil:
		if err := fs.legacyW.append(buf); err != nil {
			return fs.setFailed(err)
		}
	default:
		if _, err := fs.io.Write(buf); err != nil {
			return fs.setFailed(fmt.Errorf("%w: %v", errs.ErrWrite, err))
		}
	}

	fs.recordsIO++

	return nil
}

// Read reads raw bytes. Permitted on non-flow content; on flow
// content it is restricted to header read/write, i.e. before the
// first ReadRecord/WriteRecord.
func (fs *FlowStream) Read(p []byte) (int, error) {
	if fs.io == nil {
		return 0, errs.ErrNotOpen
	}
	if fs.content == format.ContentSilkFlow && fs.recordsIO > 0 {
		return 0, errs.ErrPrevData
	}

	n, err := fs.io.Read(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", errs.ErrRead, err)
	}

	return n, nil
}

// Write writes raw bytes under the same restriction as Read.
func (fs *FlowStream) Write(p []byte) (int, error) {
	if fs.io == nil {
		return 0, errs.ErrNotOpen
	}
	if fs.content == format.ContentSilkFlow && fs.recordsIO > 0 {
		return 0, errs.ErrPrevData
	}

	n, err := fs.io.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}

	return n, nil
}

// SkipRecords advances past n records. Each one is still read (and,
// if a copy-input stream is attached, forwarded) rather than skipped
// at the byte level, since block-framed files pack records too
// tightly to skip without decoding the codec's length.
func (fs *FlowStream) SkipRecords(n int) error {
	var rec format.FlowRecord
	for i := 0; i < n; i++ {
		if err := fs.ReadRecord(&rec); err != nil {
			return err
		}
	}

	return nil
}

// Flush pushes any buffered, unwritten block data to the underlying
// fd. Idempotent; a no-op for stream without a block writer.
func (fs *FlowStream) Flush() error {
	switch {
	case fs.blockW != nil:
		return fs.blockW.Flush()
	case fs.legacyW != nil:
		return fs.legacyW.Flush()
	default:
		return nil
	}
}

// Close flushes and releases the stream's resources. Idempotent.
func (fs *FlowStream) Close() error {
	if fs.state == stateClosed {
		return nil
	}
	fs.state = stateClosed

	var firstErr error
	if fs.blockW != nil {
		if err := fs.blockW.Close(); err != nil {
			firstErr = err
		}
	}
	if fs.legacyW != nil {
		if err := fs.legacyW.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if fs.gzip != nil {
		if err := fs.gzip.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		return firstErr
	}
	if fs.file != nil {
		if err := fs.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", errs.ErrWrite, err)
		}
	}

	if firstErr != nil {
		fs.log.Error("stream close failed", zap.String("path", fs.path), zap.Error(firstErr))
	} else {
		fs.log.Debug("stream closed", zap.String("path", fs.path), zap.Int("records", fs.recordsIO))
	}

	return firstErr
}

// repairICMP moves the ICMP type/code from sport to dport on read,
// per the rule: proto in {1,58}, dport == 0, sport != 0.
func repairICMP(rec *format.FlowRecord) {
	if !rec.IsICMP() || rec.DstPort != 0 || rec.SrcPort == 0 {
		return
	}
	rec.DstPort = rec.SrcPort
	rec.SrcPort = 0
}

// applyIPv6Policy reconciles rec's address family with policy,
// returning false when the record should be dropped.
func applyIPv6Policy(rec *format.FlowRecord, policy format.IPv6Policy) (bool, error) {
	switch policy {
	case format.IPv6PolicyMix:
		return true, nil
	case format.IPv6PolicyIgnore:
		return !rec.IsIPv6(), nil
	case format.IPv6PolicyAsV4:
		if !rec.IsIPv6() {
			return true, nil
		}
		v4, ok := mappedV4(rec.SrcAddr)
		if !ok {
			return false, nil
		}
		d4, ok := mappedV4(rec.DstAddr)
		if !ok {
			return false, nil
		}
		rec.SrcAddr, rec.DstAddr = v4, d4

		return true, nil
	case format.IPv6PolicyForce:
		if !rec.IsIPv6() {
			rec.SrcAddr = netip.AddrFrom16(rec.SrcAddr.As16())
			rec.DstAddr = netip.AddrFrom16(rec.DstAddr.As16())
		}

		return true, nil
	case format.IPv6PolicyOnly:
		return rec.IsIPv6(), nil
	default:
		return true, nil
	}
}

func mappedV4(a netip.Addr) (netip.Addr, bool) {
	if a.Is4() {
		return a, true
	}
	if a.Is4In6() {
		return a.Unmap(), true
	}

	return netip.Addr{}, false
}
