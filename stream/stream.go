// Package stream implements the FlowStream facade from spec.md
// section 4.1: the single entry point that binds a path, negotiates
// the file header, wires a record codec and (when needed) a block
// buffer, and exposes read_record/write_record plus the raw
// read/write escape hatch.
//
// The lifecycle (Create -> Bind -> Open -> Read/WriteRecord -> Close)
// and the idea of an explicit, struct-held "last error" alongside Go
// error returns are grounded on arloliu-mebo's NumericEncoder /
// NumericDecoder construction pattern (options-free constructor,
// explicit Finish/Close). The fd and gzip plumbing is new — mebo never
// touches a file descriptor — so it is grounded on iohelp (this
// module's own package) and on distr1-distri's use of go-isatty and
// golang.org/x/sys/unix at exactly this layer.
package stream

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/flowrec/silkio/blockio"
	"github.com/flowrec/silkio/codec"
	"github.com/flowrec/silkio/compress"
	"github.com/flowrec/silkio/endian"
	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
	"github.com/flowrec/silkio/header"
	"github.com/flowrec/silkio/iohelp"
	"github.com/flowrec/silkio/sidecar"
	"github.com/flowrec/silkio/silkconfig"
)

type lockState uint8

const (
	stateCreated lockState = iota
	stateBound
	stateOpen
	stateClosed
)

type rawIO interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// FlowStream is the single binary/text/flow stream type. Construct
// with Create, then Bind a path, then Open before any record I/O.
type FlowStream struct {
	mode    format.IOMode
	content format.Content
	cfg     silkconfig.Config

	state lockState
	path  string
	file  *os.File

	gzip  *iohelp.GzipBuffer
	basic *iohelp.BasicBuffer
	io    rawIO

	hdr      *header.Header
	engine   endian.Engine
	rc       codec.Codec
	blocks   *blockio.Reader
	blockW   *blockio.Writer
	sidecarC sidecar.Codec
	sidecarS sidecar.State

	ipv6Policy format.IPv6Policy

	copyInput *FlowStream
	recordsIO int // records read or written so far; guards PrevCopyInput

	recBuf []byte

	// legacy buffers the current decompressed block for pre-BlockHeader
	// files that still carry per-block compression. blockData and
	// blockSidecar do the same job for the two logical block-framed
	// streams once FileVersionBlockHeader is in play.
	legacy       *legacyBlock
	blockData    *legacyBlock
	blockSidecar *legacyBlock
	legacyW      *legacyWriter

	log *zap.Logger

	lastErr error
}

// Create returns a fresh, unbound stream. Append is rejected for Text
// and OtherBinary content, matching spec.md's content/mode matrix.
func Create(mode format.IOMode, content format.Content, cfg silkconfig.Config) (*FlowStream, error) {
	if mode == format.IOModeAppend && (content == format.ContentText || content == format.ContentOtherBinary) {
		return nil, fmt.Errorf("%w: append is not supported for %v content", errs.ErrUnsupportedIoMode, content)
	}

	return &FlowStream{mode: mode, content: content, cfg: cfg, state: stateCreated, log: zap.NewNop()}, nil
}

// SetLogger attaches a structured logger for open/close/record-framing
// diagnostics. Passing nil restores the no-op logger.
func (fs *FlowStream) SetLogger(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	fs.log = log
}

// Bind attaches path to the stream. One-shot: calling it twice fails
// with ErrPrevBound. "-"/"stdin"/"stdout"/"stderr" resolve to the
// corresponding OS standard stream.
func (fs *FlowStream) Bind(path string) error {
	if fs.state != stateCreated {
		return errs.ErrPrevBound
	}

	fs.path = path
	fs.state = stateBound

	return nil
}

// SetIPv6Policy configures the read-side policy spec.md section 4.1
// describes. Must be called before the first ReadRecord.
func (fs *FlowStream) SetIPv6Policy(p format.IPv6Policy) { fs.ipv6Policy = p }

// SetSidecarCodec attaches the collaborator used to read or write the
// stream's sidecar logical block. On a write stream state must already
// describe the sidecar schema (e.g. via (*sidecar.SchemaCodec).NewState);
// on a read stream state is ignored and overwritten by the codec's
// CreateFromHeader during Open. Must be called before Open.
func (fs *FlowStream) SetSidecarCodec(c sidecar.Codec, state sidecar.State) error {
	if fs.state != stateCreated && fs.state != stateBound {
		return errs.ErrPrevOpen
	}
	fs.sidecarC = c
	fs.sidecarS = state

	return nil
}

// SetCopyInput attaches a second stream every successfully-read
// record is forwarded to before IPv6 filtering. Rejected once any
// record has been read.
func (fs *FlowStream) SetCopyInput(other *FlowStream) error {
	if fs.recordsIO > 0 {
		return errs.ErrPrevCopyInput
	}
	fs.copyInput = other

	return nil
}

func resolveStdPath(path string) (*os.File, bool) {
	switch path {
	case "-", "stdin":
		return os.Stdin, true
	case "stdout":
		return os.Stdout, true
	case "stderr":
		return os.Stderr, true
	default:
		return nil, false
	}
}

// Open creates or opens the bound path, wiring raw I/O and — for
// SilkFlow content — the file header and record codec.
func (fs *FlowStream) Open() error {
	if fs.state != stateBound {
		return errs.ErrPrevOpen
	}

	f, isStd := resolveStdPath(fs.path)
	if !isStd {
		var err error
		f, err = fs.openFile()
		if err != nil {
			return err
		}
	}
	fs.file = f

	if fs.content != format.ContentText && fs.content != format.ContentOtherBinary {
		if iohelp.NewBasicBuffer(f).IsTerminal() {
			return errs.ErrIsTerminal
		}
	}

	fs.state = stateOpen

	if fs.mode == format.IOModeRead {
		if err := fs.openForRead(); err != nil {
			fs.log.Error("open for read failed", zap.String("path", fs.path), zap.Error(err))

			return err
		}
		fs.log.Debug("stream opened for read", zap.String("path", fs.path), zap.Stringer("content", fs.content))

		return nil
	}

	fs.basic = iohelp.NewBasicBuffer(f)
	fs.io = fs.basic

	if err := fs.openForWrite(); err != nil {
		fs.log.Error("open for write failed", zap.String("path", fs.path), zap.Error(err))

		return err
	}
	fs.log.Debug("stream opened for write", zap.String("path", fs.path), zap.Stringer("content", fs.content))

	return nil
}

func (fs *FlowStream) openFile() (*os.File, error) {
	switch fs.mode {
	case format.IOModeRead:
		f, err := os.Open(fs.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrSysOpen, err)
		}

		return f, nil
	case format.IOModeAppend:
		f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrSysOpen, err)
		}

		return f, nil
	default:
		flags := os.O_WRONLY | os.O_CREATE
		if !fs.cfg.Clobber {
			flags |= os.O_EXCL
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(fs.path, flags, 0o644)
		if err != nil {
			if os.IsExist(err) {
				return nil, errs.ErrFileExists
			}

			return nil, fmt.Errorf("%w: %v", errs.ErrSysOpen, err)
		}

		return f, nil
	}
}

// isGzipPath reports whether path implies whole-stream gzip by
// filename policy, per spec.md's ".gz-suffixed paths imply
// whole-stream gzip".
func isGzipPath(path string) bool {
	return len(path) > 3 && path[len(path)-3:] == ".gz"
}

func (fs *FlowStream) setFailed(err error) error {
	fs.lastErr = err

	return err
}

// LastError returns the most recent operation's error, mirroring the
// original library's errno-style last-error slot for callers that
// inspect it independently of a returned error value.
func (fs *FlowStream) LastError() error { return fs.lastErr }
