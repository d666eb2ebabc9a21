package codec

import (
	"fmt"
	"io"

	"github.com/okvist/sevenz/internal/sz"
)

// newDeltaReader reverses the delta filter: every output byte is the
// input byte plus the output byte `distance` positions back. The single
// property byte stores distance-1.
func newDeltaReader(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
	if len(props) != 1 {
		return nil, fmt.Errorf("%w: delta properties must be 1 byte, got %d", sz.ErrDecompress, len(props))
	}
	return &deltaReader{
		r:    in[0],
		dist: int(props[0]) + 1,
	}, nil
}

// deltaReader keeps the last `dist` decoded bytes in a ring buffer so
// decoding can stream.
type deltaReader struct {
	r    io.Reader
	dist int
	hist [256]byte
	pos  int
}

func (d *deltaReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	for i := 0; i < n; i++ {
		p[i] += d.hist[d.pos]
		d.hist[d.pos] = p[i]
		d.pos++
		if d.pos == d.dist {
			d.pos = 0
		}
	}
	return n, err
}
