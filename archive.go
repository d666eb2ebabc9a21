// Package sevenz reads 7z archives: it parses the binary header,
// decodes each folder's coder graph and splits the decoded streams back
// into individual files.
package sevenz

import (
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/okvist/sevenz/internal/extract"
	"github.com/okvist/sevenz/internal/parser"
	"github.com/okvist/sevenz/internal/sz"
)

// FileEntry is one archive member. Entries keep header declaration
// order, which is the archive's canonical name ordering.
type FileEntry = sz.FileEntry

// Sink is a destination for one extracted file.
type Sink = extract.Sink

// Typed failures surfaced by this package.
var (
	ErrFormat         = sz.ErrFormat
	ErrTruncated      = sz.ErrTruncated
	ErrHeaderEncoding = sz.ErrHeaderEncoding
	ErrDecompress     = sz.ErrDecompress
	ErrClosed         = sz.ErrClosed
)

type (
	UnsupportedMethodError = sz.UnsupportedMethodError
	FolderError            = sz.FolderError
	ChecksumError          = sz.ChecksumError
)

// Discard returns a sink that drops everything written to it while the
// worker still verifies checksums.
func Discard() Sink {
	return extract.Discard()
}

// Archive is an open 7z archive. It owns its byte source exclusively
// until Close.
type Archive struct {
	src    io.ReadSeeker
	closer io.Closer
	header *sz.Header
	logger *slog.Logger
	closed bool
}

// Option configures an Archive while it opens.
type Option func(*Archive)

// WithLogger routes the archive's structured logging to l instead of
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) { a.logger = l }
}

// Open opens the archive at path. A path ending in ".001" is treated as
// the first part of a multi-volume set and the remaining parts are
// located next to it.
func Open(path string, opts ...Option) (*Archive, error) {
	if strings.HasSuffix(path, ".001") {
		return openVolumes(path, opts...)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	a, err := OpenReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	return a, nil
}

// OpenReader opens an archive from any seekable byte source. The
// header is parsed eagerly; a bad signature or footer CRC fails with
// ErrFormat. The source stays owned by the caller.
func OpenReader(src io.ReadSeeker, opts ...Option) (*Archive, error) {
	a := &Archive{src: src, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	p := parser.New(src, a.logger)
	if err := p.ReadSignatureHeader(); err != nil {
		return nil, err
	}
	header, err := p.ReadHeader()
	if err != nil {
		return nil, err
	}
	a.header = header

	a.logger.Debug("archive opened",
		"files", len(header.Files),
		"folders", len(header.Streams.Folders),
	)
	return a, nil
}

// List returns the filenames in header declaration order.
func (a *Archive) List() ([]string, error) {
	if a.closed {
		return nil, ErrClosed
	}
	names := make([]string, len(a.header.Files))
	for i := range a.header.Files {
		names[i] = a.header.Files[i].Name
	}
	return names, nil
}

// Entries iterates the file entries lazily in declaration order,
// yielding each entry's id alongside it. The id is what Extract keys
// its sink mapping on. The sequence cannot carry an error, so on a
// closed archive it is empty; callers that need to tell a closed
// archive from an empty one should use List, which reports ErrClosed.
func (a *Archive) Entries() iter.Seq2[int, FileEntry] {
	return func(yield func(int, FileEntry) bool) {
		if a.closed {
			return
		}
		for i := range a.header.Files {
			if !yield(i, a.header.Files[i]) {
				return
			}
		}
	}
}

// Extract decodes the folders owning the given files and writes each
// file's bytes to its sink. Files absent from the mapping, and whole
// folders with no mapped file, are skipped without being decoded.
// Checksum mismatches are reported per file in the joined error and do
// not stop other files from extracting.
func (a *Archive) Extract(sinks map[int]Sink) error {
	if a.closed {
		return ErrClosed
	}

	w := extract.NewWorker(a.header, a.logger)
	for id, sink := range sinks {
		if id < 0 || id >= len(a.header.Files) {
			return fmt.Errorf("no file entry with id %d", id)
		}
		w.Register(id, sink)
	}
	return w.Extract(a.src)
}

// ExtractAll extracts every entry under dir, creating directories and
// empty files as it goes.
func (a *Archive) ExtractAll(dir string) error {
	if a.closed {
		return ErrClosed
	}

	sinks := make(map[int]Sink, len(a.header.Files))
	for id := range a.header.Files {
		entry := &a.header.Files[id]
		if entry.IsAnti {
			continue
		}
		path, err := securePath(dir, entry.Name)
		if err != nil {
			return err
		}
		sinks[id] = &fileSink{path: path, dir: entry.IsDirectory, mode: entry.Mode()}
	}
	return a.Extract(sinks)
}

// Test decodes the whole archive into discard sinks, verifying every
// stored checksum without materializing any output.
func (a *Archive) Test() error {
	if a.closed {
		return ErrClosed
	}

	sinks := make(map[int]Sink, len(a.header.Files))
	for id := range a.header.Files {
		sinks[id] = Discard()
	}
	return a.Extract(sinks)
}

// Close releases the byte source. Every later call on the archive
// fails with ErrClosed.
func (a *Archive) Close() error {
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// securePath joins an archive member name onto dir, rejecting names
// that would escape it.
func securePath(dir, name string) (string, error) {
	name = filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: absolute entry name %q", ErrFormat, name)
	}
	path := filepath.Join(dir, name)
	if rel, err := filepath.Rel(dir, path); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry name %q escapes the destination", ErrFormat, name)
	}
	return path, nil
}

// fileSink writes one extracted file to disk. The file is created
// lazily so directory entries and zero-byte files materialize on the
// Close signal alone.
type fileSink struct {
	path string
	dir  bool
	mode fs.FileMode
	f    *os.File
}

func (s *fileSink) Write(p []byte) (int, error) {
	if s.f == nil {
		if err := s.create(); err != nil {
			return 0, err
		}
	}
	return s.f.Write(p)
}

func (s *fileSink) Close() error {
	if s.dir {
		return os.MkdirAll(s.path, 0o755)
	}
	if s.f == nil {
		if err := s.create(); err != nil {
			return err
		}
	}
	return s.f.Close()
}

func (s *fileSink) create() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	mode := s.mode.Perm()
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	s.f = f
	return nil
}
