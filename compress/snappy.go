package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"

	"github.com/flowrec/silkio/errs"
)

// snappyCodec implements format.CompressionSnappy using
// klauspost/compress/s2, which is wire-compatible with the Snappy
// block format on decode (s2.Decode accepts both s2 and plain snappy
// streams) and the pack's only Snappy-family codec (arloliu-mebo
// depends on it for exactly this purpose).
type snappyCodec struct{}

func (snappyCodec) Available() bool { return true }

func (snappyCodec) Compress(data []byte) ([]byte, error) {
	return s2.EncodeSnappy(nil, data), nil
}

func (snappyCodec) Decompress(data []byte, uncompressedLen int) ([]byte, error) {
	dst := make([]byte, 0, uncompressedLen)
	out, err := s2.Decode(dst, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrCompressUnavailable, err)
	}

	return out, nil
}
