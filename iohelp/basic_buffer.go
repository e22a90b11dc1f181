// Package iohelp implements the byte-level buffered I/O facility from
// spec.md section 4.4: a single-buffer read/write wrapper over a file
// descriptor (BasicBuffer), and a whole-stream gzip variant
// (GzipBuffer) that the flow stream selects by peeking the first two
// bytes on read or by filename policy on write.
//
// Neither type exists in the teacher (mebo is a pure in-memory blob
// codec with no fd layer); the package follows the teacher's idiom —
// a small struct built by a plain constructor, explicit error returns,
// no hidden goroutines — using libraries the rest of the retrieval
// pack reaches for at this exact layer: mattn/go-isatty for terminal
// detection and golang.org/x/sys/unix for seek/advisory-lock syscalls
// (both depended on by distr1-distri).
package iohelp

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"

	"github.com/flowrec/silkio/errs"
)

const defaultBufSize = 64 * 1024

// BasicBuffer is a single-buffer read/write facility over an *os.File,
// matching spec.md section 4.4.
type BasicBuffer struct {
	f        *os.File
	buf      []byte
	pos      int // read cursor within buf
	n        int // valid bytes in buf
	seekable bool
}

// NewBasicBuffer wraps f. Seekability is probed lazily on first Skip
// call, matching the original's "fall back on ESPIPE" behavior rather
// than assuming based on file type.
func NewBasicBuffer(f *os.File) *BasicBuffer {
	return &BasicBuffer{f: f, buf: make([]byte, defaultBufSize), seekable: true}
}

// IsTerminal reports whether the wrapped descriptor is attached to a
// terminal, used by FlowStream.Open to reject binary streams per spec.md
// section 4.1.
func (b *BasicBuffer) IsTerminal() bool {
	return isatty.IsTerminal(b.f.Fd()) || isatty.IsCygwinTerminal(b.f.Fd())
}

// Read reads up to len(p) bytes, serving them from the internal buffer
// while it holds any. When the buffer is empty, a read of at least the
// buffer's size goes straight from the fd into p; a smaller read
// refills the buffer first.
func (b *BasicBuffer) Read(p []byte) (int, error) {
	if b.pos >= b.n {
		if len(p) >= len(b.buf) {
			nRead, err := b.f.Read(p)
			if err != nil && !errors.Is(err, io.EOF) {
				return nRead, fmt.Errorf("%w: %v", errs.ErrRead, err)
			}

			return nRead, err
		}

		nFilled, err := b.f.Read(b.buf)
		b.pos, b.n = 0, nFilled
		if nFilled == 0 {
			if err != nil && !errors.Is(err, io.EOF) {
				return 0, fmt.Errorf("%w: %v", errs.ErrRead, err)
			}

			return 0, io.EOF
		}
	}

	nCopied := copy(p, b.buf[b.pos:b.n])
	b.pos += nCopied

	return nCopied, nil
}

// ReadFull reads exactly len(p) bytes or returns ErrReadShort/EOF.
func (b *BasicBuffer) ReadFull(p []byte) error {
	total := 0
	for total < len(p) {
		n, err := b.Read(p[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) && total == 0 {
				return errs.ErrEOF
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: wanted %d got %d", errs.ErrReadShort, len(p), total)
			}

			return err
		}
	}

	return nil
}

// ReadToChar reads into p until stop is seen (inclusive) or p fills,
// supporting the text-mode line-reading use case from spec.md
// section 4.4. Returns the number of bytes written and whether stop
// was found.
func (b *BasicBuffer) ReadToChar(p []byte, stop byte) (int, bool, error) {
	for i := range p {
		var one [1]byte
		n, err := b.Read(one[:])
		if n == 0 {
			if errors.Is(err, io.EOF) {
				return i, false, nil
			}

			return i, false, err
		}
		p[i] = one[0]
		if one[0] == stop {
			return i + 1, true, nil
		}
	}

	return len(p), false, errs.ErrLongLine
}

// Write writes p. Passing a zero-length p forces a flush of any
// internally staged bytes (BasicBuffer stages nothing beyond the OS
// file buffer today, so this is a direct passthrough kept for
// interface parity with spec.md section 4.4).
func (b *BasicBuffer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, b.f.Sync()
	}

	n, err := b.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", errs.ErrWrite, err)
	}

	return n, nil
}

// Skip advances n bytes, using lseek when the descriptor is seekable
// and falling back to a read-and-discard loop when lseek reports
// ESPIPE, per spec.md section 4.4. Once ESPIPE is observed the buffer
// remembers it is not seekable for the rest of its life.
func (b *BasicBuffer) Skip(n int64) error {
	if buffered := int64(b.n - b.pos); buffered > 0 {
		consume := buffered
		if n < consume {
			consume = n
		}
		b.pos += int(consume)
		n -= consume
	}
	if n == 0 {
		return nil
	}

	if b.seekable {
		if _, err := b.f.Seek(n, io.SeekCurrent); err != nil {
			if errors.Is(err, unix.ESPIPE) {
				b.seekable = false
			} else {
				return fmt.Errorf("%w: %v", errs.ErrSysLseek, err)
			}
		} else {
			return nil
		}
	}

	// Non-seekable fallback: silent read-and-discard.
	discard := make([]byte, 32*1024)
	for n > 0 {
		chunk := int64(len(discard))
		if n < chunk {
			chunk = n
		}
		read, err := b.Read(discard[:chunk])
		n -= int64(read)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errs.ErrEOF
			}

			return err
		}
	}

	return nil
}

// Lock takes an advisory F_SETLKW write lock on the whole file, per
// the file-descriptor-layer collaborator contract in spec.md section 6.
func (b *BasicBuffer) Lock() error {
	lock := unix.Flock_t{Type: unix.F_WRLCK, Whence: io.SeekStart, Start: 0, Len: 0}

	return unix.FcntlFlock(b.f.Fd(), unix.F_SETLKW, &lock)
}

// Unlock releases the advisory lock taken by Lock.
func (b *BasicBuffer) Unlock() error {
	lock := unix.Flock_t{Type: unix.F_UNLCK, Whence: io.SeekStart, Start: 0, Len: 0}

	return unix.FcntlFlock(b.f.Fd(), unix.F_SETLKW, &lock)
}

// Close closes the underlying file.
func (b *BasicBuffer) Close() error {
	return b.f.Close()
}

// File returns the wrapped *os.File for callers that need raw access.
func (b *BasicBuffer) File() *os.File { return b.f }
