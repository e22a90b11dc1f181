package compress

import "github.com/flowrec/silkio/errs"

// lzo1xCodec represents format.CompressionLzo1x. No LZO implementation
// exists in the retrieval pack or the cgo-free Go ecosystem, so this
// method is registered but permanently unavailable. This is exactly
// the "method is not compiled in" case spec.md section 4.3 describes:
// opening a stream for write with this method fails with
// ErrCompressUnavailable (blockio.NewWriter and the stream's
// openForWrite check Available), and reading data compressed with it
// fails because Decompress returns ErrCompressUnavailable rather than
// treating the bytes as None.
type lzo1xCodec struct{}

func (lzo1xCodec) Available() bool { return false }

func (lzo1xCodec) Compress(data []byte) ([]byte, error) {
	return nil, errs.ErrCompressUnavailable
}

func (lzo1xCodec) Decompress(data []byte, uncompressedLen int) ([]byte, error) {
	return nil, errs.ErrCompressUnavailable
}
