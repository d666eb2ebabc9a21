package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/okvist/sevenz/internal/sz"
)

// newLZMAReader decodes a classic LZMA stream. The archive stores the
// 5-byte property blob (lc/lp/pb byte + dictionary size) separately
// from the data, so the 13-byte .lzma stream header is rebuilt from the
// blob plus the declared unpacked size.
func newLZMAReader(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
	if len(props) != 5 {
		return nil, fmt.Errorf("%w: lzma properties must be 5 bytes, got %d", sz.ErrDecompress, len(props))
	}

	header := make([]byte, 13)
	copy(header, props)
	binary.LittleEndian.PutUint64(header[5:], unpackSize)

	r, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), in[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sz.ErrDecompress, err)
	}
	return r, nil
}

// newLZMA2Reader decodes an LZMA2 stream. The single property byte
// encodes the dictionary capacity; everything else is self-described by
// the chunk headers.
func newLZMA2Reader(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
	if len(props) != 1 {
		return nil, fmt.Errorf("%w: lzma2 properties must be 1 byte, got %d", sz.ErrDecompress, len(props))
	}

	dictCap, err := lzma2DictCap(props[0])
	if err != nil {
		return nil, err
	}

	cfg := lzma.Reader2Config{DictCap: dictCap}
	r, err := cfg.NewReader2(in[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sz.ErrDecompress, err)
	}
	return r, nil
}

func lzma2DictCap(prop byte) (int, error) {
	if prop > 40 {
		return 0, fmt.Errorf("%w: invalid lzma2 dictionary size property %d", sz.ErrDecompress, prop)
	}
	if prop == 40 {
		return 1<<32 - 1, nil
	}
	return int(2|prop&1) << (prop/2 + 11), nil
}
