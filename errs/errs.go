// Package errs defines the sentinel error taxonomy shared by every
// silkio package. Call sites wrap these with fmt.Errorf("%w: ...", ErrX, ...)
// so callers can still errors.Is against the stable sentinel.
package errs

import "errors"

// Argument / state-machine violations.
var (
	ErrNullArgument   = errors.New("null argument")
	ErrClosed         = errors.New("stream closed")
	ErrNotOpen        = errors.New("stream not open")
	ErrPrevOpen       = errors.New("stream already opened")
	ErrPrevBound      = errors.New("stream already bound to a path")
	ErrPrevData       = errors.New("data already read or written on stream")
	ErrPrevCopyInput  = errors.New("copy-input already set after records were read")
	ErrFileExists     = errors.New("file exists and clobber is disabled")
	ErrIsTerminal     = errors.New("binary stream cannot be attached to a terminal")
	ErrNotSeekable    = errors.New("file descriptor is not seekable")
	ErrLongLine       = errors.New("text line exceeds buffer capacity")
	ErrNoPager        = errors.New("no pager available")
)

// Codec / stream capability mismatches.
var (
	ErrUnsupportedIoMode   = errors.New("unsupported io mode")
	ErrUnsupportedContent  = errors.New("unsupported stream content")
	ErrUnsupportedFormat   = errors.New("unsupported file format")
	ErrUnsupportedVersion  = errors.New("unsupported record format version")
	ErrUnsupportedIpv6     = errors.New("codec does not support ipv6 records")
)

// OS-level failures (errno-bearing in the original; here wrapped Go errors).
var (
	ErrSysOpen        = errors.New("open failed")
	ErrSysLseek       = errors.New("lseek failed")
	ErrSysFdopen      = errors.New("fdopen failed")
	ErrSysMkdir       = errors.New("mkdir failed")
	ErrSysMkstemp     = errors.New("mkstemp failed")
	ErrSysFcntlGetfl  = errors.New("fcntl(F_GETFL) failed")
	ErrSysPipe        = errors.New("pipe failed")
	ErrSysFork        = errors.New("fork failed")
	ErrSysFtruncate   = errors.New("ftruncate failed")
)

// Basic/gzip buffer I/O.
var (
	ErrRead      = errors.New("read failed")
	ErrWrite     = errors.New("write failed")
	ErrReadShort = errors.New("short read")
	ErrEOF       = errors.New("end of stream")
)

// Block framing.
var (
	ErrBlockShortHeader  = errors.New("block header truncated")
	ErrBlockIncomplete   = errors.New("block payload truncated")
	ErrBlockInvalidLen   = errors.New("block length invalid")
	ErrBlockUnknownID    = errors.New("unknown block id")
	ErrBlockWantedID     = errors.New("block id does not match the wanted id")
	ErrBlockUncompress   = errors.New("block decompression failed")
	ErrBadCompressionSize = errors.New("compressed block advertises an unacceptable uncompressed size")
)

// Compression.
var (
	ErrCompressInvalid     = errors.New("invalid compression method")
	ErrCompressUnavailable = errors.New("compression method not available")
	ErrZlib                = errors.New("zlib error")
)

// Record codec range violations.
var (
	ErrPktsZero          = errors.New("packet count is zero")
	ErrPktsOverflow      = errors.New("packet count overflow")
	ErrBytesOverflow     = errors.New("byte count overflow")
	ErrSnmpOverflow      = errors.New("snmp interface index overflow")
	ErrSensorIDOverflow  = errors.New("sensor id overflow")
	ErrElapsedOverflow   = errors.New("elapsed time overflow")
	ErrStartTimeUnderflow = errors.New("start time underflows the file hour boundary")
	ErrStartTimeOverflow  = errors.New("start time overflows the file hour boundary")
	ErrBppOverflow       = errors.New("bytes-per-packet ratio overflow")
	ErrTruncated         = errors.New("value truncated during transcoding")
)

// Schema / record failures.
var (
	ErrUnknownIE     = errors.New("unknown information element")
	ErrFieldNotFound = errors.New("field not found")
	ErrBadType       = errors.New("field accessed with the wrong type")
	ErrBadSize       = errors.New("value has an invalid size for its field")
	ErrNotIpv4       = errors.New("address is not an ipv4 address")
	ErrUnknownBool   = errors.New("value is not a valid boolean encoding")
	ErrIncompatible  = errors.New("records are not compatible for this operation")
)

// Schema lifecycle.
var (
	ErrFrozen    = errors.New("schema is frozen")
	ErrNotFrozen = errors.New("schema is not frozen")
	ErrNoSchema  = errors.New("record has no schema")
)

// Resource exhaustion.
var ErrAlloc = errors.New("allocation failed")
