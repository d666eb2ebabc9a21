package sz

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat reports a bad signature or a footer CRC mismatch.
	// Opening fails outright with this error.
	ErrFormat = errors.New("not a 7z archive")

	// ErrTruncated reports that the byte source ended in the middle of
	// a header structure or a packed stream.
	ErrTruncated = errors.New("truncated 7z data")

	// ErrHeaderEncoding reports a footer header stored behind a coder
	// this build cannot decode (typically an encrypted header).
	ErrHeaderEncoding = errors.New("unsupported header encoding")

	// ErrDecompress reports a coder that failed to produce its declared
	// output.
	ErrDecompress = errors.New("decompression failed")

	// ErrClosed reports an operation on a closed archive.
	ErrClosed = errors.New("archive is closed")
)

// UnsupportedMethodError reports a recognized coder method this build
// does not implement. Callers may detect it with errors.As and skip the
// affected folder.
type UnsupportedMethodError struct {
	ID MethodID
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported compression method %s", e.ID)
}

// FolderError reports a malformed coder graph: dangling bind pairs, a
// cycle, or a folder without exactly one final output stream.
type FolderError struct {
	Folder int
	Reason string
}

func (e *FolderError) Error() string {
	return fmt.Sprintf("malformed folder %d: %s", e.Folder, e.Reason)
}

// ChecksumError reports decoded bytes that disagree with the CRC stored
// in the header. It is reported per file and does not abort extraction
// of unrelated files.
type ChecksumError struct {
	Name string
	Want uint32
	Got  uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: header says %08x, decoded %08x", e.Name, e.Want, e.Got)
}
