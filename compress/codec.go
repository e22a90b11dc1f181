// Package compress implements the four block-payload compression
// methods from spec.md section 4.3: None, Zlib, Lzo1x, and Snappy.
//
// The interface shape (Compressor/Decompressor/Codec, a registry keyed
// by the method enum) is carried over from the teacher's
// arloliu-mebo/compress package, generalized from mebo's 4-member
// timestamp/value compression enum to SiLK's 4-member block
// compression enum.
package compress

import (
	"fmt"

	"github.com/flowrec/silkio/errs"
	"github.com/flowrec/silkio/format"
)

// Compressor compresses a block payload before it is framed and
// written to disk.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses Compressor, given the original uncompressed
// length recorded in the block header (spec.md section 4.3).
type Decompressor interface {
	Decompress(data []byte, uncompressedLen int) ([]byte, error)
}

// Codec combines both directions.
type Codec interface {
	Compressor
	Decompressor
	// Available reports whether this method is usable on the running
	// binary. A codec registered but unavailable (Lzo1x; see DESIGN.md)
	// still satisfies Codec so the registry stays a flat map, but every
	// call returns errs.ErrCompressUnavailable.
	Available() bool
}

var registry = map[format.CompressionMethod]Codec{
	format.CompressionNone:   noopCodec{},
	format.CompressionZlib:   zlibCodec{},
	format.CompressionSnappy: snappyCodec{},
	format.CompressionLzo1x:  lzo1xCodec{},
}

// Get returns the Codec registered for method, or ErrCompressInvalid if
// the method isn't one of the four spec.md enum members.
func Get(method format.CompressionMethod) (Codec, error) {
	c, ok := registry[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrCompressInvalid, method)
	}

	return c, nil
}

// Available reports whether method is usable on the running binary,
// per spec.md section 4.3's "check availability" step on open-for-write.
func Available(method format.CompressionMethod) bool {
	c, err := Get(method)
	if err != nil {
		return false
	}

	return c.Available()
}

// DefaultMethod is the method chosen by Compression::Default against a
// seekable destination.
func DefaultMethod() format.CompressionMethod { return format.CompressionZlib }

// BestMethod is the method chosen by Compression::Best.
func BestMethod() format.CompressionMethod { return format.CompressionZlib }
