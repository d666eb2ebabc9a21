package codec

import (
	"fmt"
	"io"

	"github.com/okvist/sevenz/internal/sz"
)

// newCopyReader passes the packed bytes through unchanged.
func newCopyReader(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
	if len(props) != 0 {
		return nil, fmt.Errorf("%w: copy coder takes no properties", sz.ErrDecompress)
	}
	return in[0], nil
}
