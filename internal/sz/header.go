package sz

import (
	"encoding/hex"
	"io/fs"
	"time"
)

// MethodID identifies one coder method. It is the method's raw ID bytes
// stored in a string so it can key registry maps.
type MethodID string

func (id MethodID) String() string {
	return hex.EncodeToString([]byte(id))
}

// StartHeader locates the footer header relative to the end of the
// 32-byte signature header.
type StartHeader struct {
	NextHeaderOffset uint64
	NextHeaderSize   uint64
	NextHeaderCRC    uint32
}

// Header is the fully parsed archive footer. Immutable after parse.
type Header struct {
	Streams StreamsInfo
	Files   []FileEntry
}

// StreamsInfo describes where the packed bytes live and how they decode.
type StreamsInfo struct {
	Pack       PackInfo
	Folders    []*Folder
	SubStreams SubStreamsInfo
}

// PackInfo records the layout of the raw compressed streams in the
// archive body: a base position plus per-stream sizes, contiguous with
// no delimiters. Trailing alignment padding after the last stream is
// legal and ignored.
type PackInfo struct {
	Pos   uint64
	Sizes []uint64
	CRCs  []uint32
}

// StreamOffset returns the offset of pack stream i relative to Pos.
func (p *PackInfo) StreamOffset(i int) uint64 {
	var off uint64
	for _, s := range p.Sizes[:i] {
		off += s
	}
	return off
}

// Coder is one filter/compression stage of a folder's decode graph.
type Coder struct {
	ID     MethodID
	NumIn  int
	NumOut int
	Props  []byte
}

// BindPair connects one coder output stream to another coder's input
// stream. Indices count streams across all coders of the folder in
// declaration order.
type BindPair struct {
	In  int
	Out int
}

// SubStreamsInfo describes how each folder's decoded output splits into
// per-file byte ranges.
type SubStreamsInfo struct {
	// Counts holds the number of substreams per folder; empty means one
	// substream per folder.
	Counts []int
	// Sizes holds every substream size, flattened in folder order.
	Sizes []uint64
	// CRCs and Defined run parallel to Sizes.
	CRCs    []uint32
	Defined []bool
}

// FileEntry is one archive member in header declaration order.
type FileEntry struct {
	Name       string
	Size       uint64
	CRC        uint32
	HasCRC     bool
	Attributes uint32

	IsDirectory bool
	// IsEmpty marks a zero-byte regular file.
	IsEmpty bool
	// IsAnti marks a deletion record from an incremental backup.
	IsAnti bool

	Created  time.Time
	Accessed time.Time
	Modified time.Time

	// Folder and Stream locate the entry's bytes: the folder index and
	// the substream index within that folder. Both are -1 for entries
	// without a backing substream (directories, empty files, anti
	// files).
	Folder int
	Stream int
}

// HasStream reports whether the entry is backed by decoded bytes.
func (e *FileEntry) HasStream() bool {
	return e.Folder >= 0
}

// Mode derives a POSIX file mode from the stored attributes, honoring
// the p7zip convention of carrying the mode in the high 16 bits.
func (e *FileEntry) Mode() fs.FileMode {
	if e.Attributes&AttrUnixExtension != 0 {
		return unixModeToFS(e.Attributes >> 16)
	}
	var mode fs.FileMode = 0o644
	if e.IsDirectory {
		mode = fs.ModeDir | 0o755
	}
	if e.Attributes&AttrReadOnly != 0 {
		mode &^= 0o222
	}
	return mode
}

// IsSymlink reports whether the attributes mark the entry as a symbolic
// link.
func (e *FileEntry) IsSymlink() bool {
	return e.Attributes&AttrUnixExtension != 0 && e.Mode()&fs.ModeSymlink != 0
}

func unixModeToFS(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0o777)
	switch m & 0o170000 {
	case 0o040000:
		mode |= fs.ModeDir
	case 0o120000:
		mode |= fs.ModeSymlink
	}
	return mode
}

// filetimeEpochDelta is the span between the Windows FILETIME epoch
// (1601-01-01) and the Unix epoch, in seconds.
const filetimeEpochDelta = 11644473600

// TimeFromFiletime converts a 100ns-tick FILETIME value to UTC.
func TimeFromFiletime(ticks uint64) time.Time {
	secs := int64(ticks/10000000) - filetimeEpochDelta
	nsecs := int64(ticks%10000000) * 100
	return time.Unix(secs, nsecs).UTC()
}

// FiletimeFromTime is the inverse of TimeFromFiletime.
func FiletimeFromTime(t time.Time) uint64 {
	return uint64(t.Unix()+filetimeEpochDelta)*10000000 + uint64(t.Nanosecond()/100)
}
