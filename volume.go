package sevenz

import (
	"fmt"
	"io"
	"os"
)

// openVolumes opens a multi-volume set (name.7z.001, name.7z.002, …)
// as one logical byte source. Volumes are plain byte-level splits of a
// single archive, so the parts simply concatenate.
func openVolumes(first string, opts ...Option) (*Archive, error) {
	base := first[:len(first)-4]

	vr := &volumeReader{}
	for i := 1; ; i++ {
		path := fmt.Sprintf("%s.%03d", base, i)
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) && i > 1 {
				break
			}
			vr.Close()
			return nil, fmt.Errorf("failed to open volume %s: %w", path, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			vr.Close()
			return nil, fmt.Errorf("failed to stat volume %s: %w", path, err)
		}
		vr.files = append(vr.files, f)
		vr.sizes = append(vr.sizes, info.Size())
		vr.total += info.Size()
	}

	a, err := OpenReader(vr, opts...)
	if err != nil {
		vr.Close()
		return nil, err
	}
	a.closer = vr
	return a, nil
}

// volumeReader presents a sequence of volume files as one seekable
// stream.
type volumeReader struct {
	files []*os.File
	sizes []int64
	total int64
	pos   int64
}

func (v *volumeReader) Read(p []byte) (int, error) {
	if v.pos >= v.total {
		return 0, io.EOF
	}

	idx, local := v.locate(v.pos)
	remaining := v.sizes[idx] - local
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	if _, err := v.files[idx].Seek(local, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := v.files[idx].Read(p)
	v.pos += int64(n)
	if err == io.EOF && v.pos < v.total {
		// The next volume continues the stream.
		err = nil
	}
	return n, err
}

func (v *volumeReader) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = v.pos + offset
	case io.SeekEnd:
		pos = v.total + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	v.pos = pos
	return pos, nil
}

func (v *volumeReader) Close() error {
	var firstErr error
	for _, f := range v.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	v.files = nil
	return firstErr
}

// locate maps a global offset to a volume index and an offset within
// that volume.
func (v *volumeReader) locate(pos int64) (int, int64) {
	for i, size := range v.sizes {
		if pos < size {
			return i, pos
		}
		pos -= size
	}
	return len(v.files) - 1, v.sizes[len(v.files)-1]
}
