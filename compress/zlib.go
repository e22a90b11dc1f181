package compress

import (
	"bytes"
	"fmt"
	"hash/adler32"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/flowrec/silkio/errs"
)

// zlibCodec implements format.CompressionZlib using klauspost/compress's
// flate implementation for the deflate stream, framed with the 2-byte
// zlib header and 4-byte Adler-32 trailer (RFC 1950) by hand. The pack
// carries klauspost/compress as a fast drop-in for flate/gzip/s2/zstd
// but not a ready-made zlib wrapper, so the RFC 1950 framing itself is
// the one bit of glue code this package owns; the actual compression
// work is klauspost's, not stdlib's.
type zlibCodec struct{}

func (zlibCodec) Available() bool { return true }

const zlibHeaderCMFFLG = 0x78 // CM=8 (deflate), CINFO=7 (32K window)

func (zlibCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 8)
	buf.WriteByte(zlibHeaderCMFFLG)
	// FLEVEL=2 (default), no preset dictionary, FCHECK makes the
	// 16-bit header value a multiple of 31.
	buf.WriteByte(flagByteFor(zlibHeaderCMFFLG))

	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrZlib, err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrZlib, err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrZlib, err)
	}

	var trailer [4]byte
	checksum := adler32.Checksum(data)
	trailer[0] = byte(checksum >> 24)
	trailer[1] = byte(checksum >> 16)
	trailer[2] = byte(checksum >> 8)
	trailer[3] = byte(checksum)
	buf.Write(trailer[:])

	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(data []byte, uncompressedLen int) ([]byte, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("%w: zlib stream too short", errs.ErrZlib)
	}

	body := data[2 : len(data)-4]
	fr := flate.NewReader(bytes.NewReader(body))
	defer fr.Close()

	out := make([]byte, 0, uncompressedLen)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, fr); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrZlib, err)
	}

	want := data[len(data)-4:]
	got := adler32.Checksum(buf.Bytes())
	if byte(got>>24) != want[0] || byte(got>>16) != want[1] || byte(got>>8) != want[2] || byte(got) != want[3] {
		return nil, fmt.Errorf("%w: adler32 checksum mismatch", errs.ErrZlib)
	}

	return buf.Bytes(), nil
}

// flagByteFor computes the FCHECK bits so that (cmf<<8|flg) % 31 == 0,
// with FDICT=0 and FLEVEL=2, matching RFC 1950.
func flagByteFor(cmf byte) byte {
	flg := byte(0x80) // FLEVEL=2 in bits 6-7 (0x80 == 0b1000_0000 -> level 2)
	sum := (int(cmf)<<8 | int(flg)) % 31
	if sum != 0 {
		flg += byte(31 - sum)
	}

	return flg
}
