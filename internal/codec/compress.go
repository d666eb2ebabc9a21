package codec

import (
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"

	"github.com/okvist/sevenz/internal/sz"
)

// newDeflateReader decodes the Deflate method. The format stores raw
// deflate bytes with no zlib wrapper.
func newDeflateReader(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
	return flate.NewReader(in[0]), nil
}

// newBZip2Reader decodes the BZip2 method.
func newBZip2Reader(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
	return bzip2.NewReader(in[0]), nil
}

// newZstdReader decodes the Zstandard method. Decoder concurrency is
// pinned to one so an abandoned folder reader leaves no decoder
// goroutines behind.
func newZstdReader(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
	d, err := zstd.NewReader(in[0], zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sz.ErrDecompress, err)
	}
	return d.IOReadCloser(), nil
}
