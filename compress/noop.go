package compress

// noopCodec implements format.CompressionNone: payload passes through
// unchanged. Grounded on arloliu-mebo/compress/noop.go's NoOpCompressor.
type noopCodec struct{}

func (noopCodec) Available() bool { return true }

func (noopCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (noopCodec) Decompress(data []byte, uncompressedLen int) ([]byte, error) {
	return data, nil
}
