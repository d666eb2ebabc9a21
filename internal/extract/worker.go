// Package extract drives folder decoding and fans decoded bytes out to
// per-file destination sinks.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okvist/sevenz/internal/codec"
	"github.com/okvist/sevenz/internal/sz"
)

// Sink is a destination for one file's decoded bytes: a sequence of
// writes followed by a close. Directory and zero-byte entries receive a
// bare Close as their "create empty" signal.
type Sink interface {
	io.Writer
	Close() error
}

// Discard returns a sink that drops everything written to it. Decoded
// bytes routed to it are still checksummed, which makes "verify without
// materializing" runs possible.
func Discard() Sink {
	return discardSink{}
}

type discardSink struct{}

func (discardSink) Write(p []byte) (int, error) { return len(p), nil }
func (discardSink) Close() error                { return nil }

// Worker performs one extraction pass over an archive. It is created
// per call, holds the file-id to sink table, and owns no archive data.
type Worker struct {
	header *sz.Header
	logger *slog.Logger
	sinks  map[int]Sink
}

// NewWorker creates a worker for the given parsed header.
func NewWorker(header *sz.Header, logger *slog.Logger) *Worker {
	return &Worker{
		header: header,
		logger: logger,
		sinks:  make(map[int]Sink),
	}
}

// Register associates file id with a destination sink. Registering the
// same id again replaces the previous sink.
func (w *Worker) Register(id int, sink Sink) {
	w.sinks[id] = sink
}

// Extract decodes every folder owning at least one registered file and
// writes each registered file's bytes to its sink. Folders none of
// whose files are registered are never decoded. Checksum mismatches are
// reported per file and do not stop extraction of other files; the
// returned error joins everything that went wrong.
func (w *Worker) Extract(src io.ReadSeeker) error {
	var (
		mu     sync.Mutex // serializes access to src and to errs
		errs   []error
		report = func(err error) {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	)

	// Entries without a backing substream only need their create
	// signal.
	for id, sink := range w.sinks {
		entry := &w.header.Files[id]
		if entry.HasStream() {
			continue
		}
		if err := sink.Close(); err != nil {
			report(fmt.Errorf("failed to finalize %s: %w", entry.Name, err))
		}
	}

	needed := w.neededFolders()
	if len(needed) == 0 {
		return errors.Join(errs...)
	}

	// Independent folders decode in parallel. Each one slurps its pack
	// streams under the source lock, then decodes purely from memory.
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, fi := range needed {
		g.Go(func() error {
			if err := w.extractFolder(src, fi, &mu, report); err != nil {
				report(fmt.Errorf("folder %d: %w", fi, err))
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines report through report()

	return errors.Join(errs...)
}

// neededFolders returns the indices of folders owning at least one
// registered file, in folder order.
func (w *Worker) neededFolders() []int {
	want := make(map[int]bool)
	for id := range w.sinks {
		if entry := &w.header.Files[id]; entry.HasStream() {
			want[entry.Folder] = true
		}
	}

	needed := make([]int, 0, len(want))
	for fi := range w.header.Streams.Folders {
		if want[fi] {
			needed = append(needed, fi)
		}
	}
	return needed
}

// sinkFor finds the registered file entry for a folder substream, or
// -1 when nobody asked for it.
func (w *Worker) sinkFor(folder, stream int) int {
	for id := range w.sinks {
		entry := &w.header.Files[id]
		if entry.Folder == folder && entry.Stream == stream {
			return id
		}
	}
	return -1
}

func (w *Worker) extractFolder(src io.ReadSeeker, fi int, mu *sync.Mutex, report func(error)) error {
	folder := w.header.Streams.Folders[fi]

	pack, err := w.readPackStreams(src, fi, mu)
	if err != nil {
		return err
	}

	dec, err := codec.FolderReader(folder, pack)
	if err != nil {
		return err
	}

	w.logger.Debug("decoding folder",
		"folder", fi,
		"coders", len(folder.Coders),
		"pack_streams", len(pack),
	)

	return w.splitSubStreams(dec, fi, report)
}

// readPackStreams reads the folder's packed byte ranges into memory
// while holding the source lock. Pack streams are laid out contiguously
// from the pack base position in consumption order; trailing alignment
// padding after the region is simply never read.
func (w *Worker) readPackStreams(src io.ReadSeeker, fi int, mu *sync.Mutex) ([]io.Reader, error) {
	mu.Lock()
	defer mu.Unlock()

	pi := &w.header.Streams.Pack
	first := 0
	for _, f := range w.header.Streams.Folders[:fi] {
		first += len(f.PackedIndices)
	}
	folder := w.header.Streams.Folders[fi]

	base := int64(sz.SignatureHeaderSize) + int64(pi.Pos)
	pack := make([]io.Reader, len(folder.PackedIndices))
	for i := range pack {
		offset := base + int64(pi.StreamOffset(first+i))
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek to pack stream %d: %w", first+i, err)
		}
		raw, err := sz.ReadBytes(src, int(pi.Sizes[first+i]))
		if err != nil {
			return nil, fmt.Errorf("failed to read pack stream %d: %w", first+i, err)
		}
		pack[i] = bytes.NewReader(raw)
	}
	return pack, nil
}

// splitSubStreams walks the folder's decoded output once, carving it
// into the per-file byte ranges and streaming each to its sink with a
// running CRC. Substreams nobody registered are still consumed to keep
// the stream position aligned. Checksum mismatches go through report so
// the remaining files of the folder still extract.
func (w *Worker) splitSubStreams(dec io.Reader, fi int, report func(error)) error {
	ss := &w.header.Streams.SubStreams

	globalSub := 0
	for _, count := range ss.Counts[:fi] {
		globalSub += count
	}

	for stream := 0; stream < ss.Counts[fi]; stream++ {
		size := ss.Sizes[globalSub+stream]

		id := w.sinkFor(fi, stream)
		if id == -1 {
			if _, err := io.CopyN(io.Discard, dec, int64(size)); err != nil {
				return fmt.Errorf("%w: folder output ended early: %v", sz.ErrDecompress, err)
			}
			continue
		}

		entry := &w.header.Files[id]
		sink := w.sinks[id]
		sum := crc32.NewIEEE()

		_, err := io.CopyN(io.MultiWriter(sink, sum), dec, int64(size))
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("%w: failed to write %s: %v", sz.ErrDecompress, entry.Name, err)
		}

		if entry.HasCRC && sum.Sum32() != entry.CRC {
			report(&sz.ChecksumError{Name: entry.Name, Want: entry.CRC, Got: sum.Sum32()})
			continue
		}

		w.logger.Debug("extracted file",
			"name", entry.Name,
			"size", size,
			"crc_checked", entry.HasCRC,
		)
	}
	return nil
}
