package sevenz_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okvist/sevenz"
	"github.com/okvist/sevenz/internal/testutil"
)

const (
	folderContent = "This file is located in a folder."
	rootContent   = "This file is located in the root."

	// 2006-03-15 21:43:36 and 21:43:48 UTC in FILETIME ticks.
	folderMTime = 127869326160000000
	rootMTime   = 127869326280000000
)

func fixture(opts testutil.Options) []byte {
	return testutil.Build([]testutil.Member{
		{Name: "test", Dir: true},
		{Name: "test/test2.txt", Data: []byte(folderContent), MTime: folderMTime},
		{Name: "test1.txt", Data: []byte(rootContent), MTime: rootMTime},
	}, opts)
}

func open(t *testing.T, img []byte) *sevenz.Archive {
	t.Helper()
	a, err := sevenz.OpenReader(bytes.NewReader(img), sevenz.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() }) //nolint:errcheck
	return a
}

// memSink collects one extracted file in memory.
type memSink struct {
	bytes.Buffer
	closed bool
}

func (s *memSink) Close() error {
	s.closed = true
	return nil
}

func TestList(t *testing.T) {
	a := open(t, fixture(testutil.Options{Solid: true}))

	names, err := a.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "test/test2.txt", "test1.txt"}, names)
}

func TestEntries(t *testing.T) {
	a := open(t, fixture(testutil.Options{Solid: true}))

	var ids []int
	var entries []sevenz.FileEntry
	for id, e := range a.Entries() {
		ids = append(ids, id)
		entries = append(entries, e)
	}

	assert.Equal(t, []int{0, 1, 2}, ids)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].IsDirectory)
	assert.Equal(t, uint64(len(folderContent)), entries[1].Size)
	assert.Equal(t, time.Date(2006, 3, 15, 21, 43, 36, 0, time.UTC), entries[1].Modified)
	assert.Equal(t, time.Date(2006, 3, 15, 21, 43, 48, 0, time.UTC), entries[2].Modified)
}

func TestExtractAll(t *testing.T) {
	a := open(t, fixture(testutil.Options{Solid: true}))
	dir := t.TempDir()

	require.NoError(t, a.ExtractAll(dir))

	info, err := os.Stat(filepath.Join(dir, "test"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	got, err := os.ReadFile(filepath.Join(dir, "test", "test2.txt"))
	require.NoError(t, err)
	assert.Equal(t, folderContent, string(got))

	got, err = os.ReadFile(filepath.Join(dir, "test1.txt"))
	require.NoError(t, err)
	assert.Equal(t, rootContent, string(got))

	// A second pass over the same archive must produce the same tree.
	require.NoError(t, a.ExtractAll(dir))
	got, err = os.ReadFile(filepath.Join(dir, "test1.txt"))
	require.NoError(t, err)
	assert.Equal(t, rootContent, string(got))
}

func TestExtractSelected(t *testing.T) {
	a := open(t, fixture(testutil.Options{Solid: true}))

	sink := &memSink{}
	require.NoError(t, a.Extract(map[int]sevenz.Sink{2: sink}))
	assert.Equal(t, rootContent, sink.String())
	assert.True(t, sink.closed)
}

func TestExtractRejectsUnknownID(t *testing.T) {
	a := open(t, fixture(testutil.Options{}))

	err := a.Extract(map[int]sevenz.Sink{99: &memSink{}})
	require.Error(t, err)
}

func TestDuplicateNamesExtractIndependently(t *testing.T) {
	img := testutil.Build([]testutil.Member{
		{Name: "dup.txt", Data: []byte("first version")},
		{Name: "dup.txt", Data: []byte("second version")},
	}, testutil.Options{})
	a := open(t, img)

	names, err := a.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"dup.txt", "dup.txt"}, names)

	first, second := &memSink{}, &memSink{}
	require.NoError(t, a.Extract(map[int]sevenz.Sink{0: first, 1: second}))
	assert.Equal(t, "first version", first.String())
	assert.Equal(t, "second version", second.String())
}

func TestEmptyArchive(t *testing.T) {
	a := open(t, testutil.Build(nil, testutil.Options{}))

	names, err := a.List()
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.NoError(t, a.Test())
}

func TestUseAfterClose(t *testing.T) {
	a := open(t, fixture(testutil.Options{}))
	require.NoError(t, a.Close())

	_, err := a.List()
	assert.ErrorIs(t, err, sevenz.ErrClosed)
	for range a.Entries() {
		t.Fatal("closed archive must yield no entries")
	}
	assert.ErrorIs(t, a.Test(), sevenz.ErrClosed)
	assert.ErrorIs(t, a.Extract(nil), sevenz.ErrClosed)
	assert.ErrorIs(t, a.ExtractAll(t.TempDir()), sevenz.ErrClosed)
	assert.ErrorIs(t, a.Close(), sevenz.ErrClosed)
}

func TestForgedFooterSize(t *testing.T) {
	// A start header declaring an absurd footer size, with its CRC
	// recomputed to match, must fail typed instead of panicking on the
	// allocation.
	img := fixture(testutil.Options{})
	binary.LittleEndian.PutUint64(img[20:], ^uint64(0))
	binary.LittleEndian.PutUint32(img[8:], crc32.ChecksumIEEE(img[12:32]))

	_, err := sevenz.OpenReader(bytes.NewReader(img))
	require.ErrorIs(t, err, sevenz.ErrTruncated)
}

func TestNotAnArchive(t *testing.T) {
	img := fixture(testutil.Options{})
	img[0] ^= 0xFF

	_, err := sevenz.OpenReader(bytes.NewReader(img))
	assert.ErrorIs(t, err, sevenz.ErrFormat)

	_, err = sevenz.OpenReader(bytes.NewReader([]byte("short")))
	assert.ErrorIs(t, err, sevenz.ErrFormat)
}

func TestUnsupportedMethod(t *testing.T) {
	img := fixture(testutil.Options{MethodID: []byte{0x06, 0xF1, 0x07, 0x01}})
	a := open(t, img)

	// Listing never decodes, so it works even with undecodable folders.
	names, err := a.List()
	require.NoError(t, err)
	assert.Len(t, names, 3)

	err = a.Test()
	var ume *sevenz.UnsupportedMethodError
	require.ErrorAs(t, err, &ume)
}

func TestVerifyReportsChecksumMismatch(t *testing.T) {
	img := testutil.Build([]testutil.Member{
		{Name: "bad.txt", Data: []byte("mismatching bytes"), BadCRC: true},
		{Name: "good.txt", Data: []byte("intact bytes")},
	}, testutil.Options{})
	a := open(t, img)

	err := a.Test()
	var ce *sevenz.ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "bad.txt", ce.Name)

	// Extraction still materializes everything, bad bytes included.
	dir := t.TempDir()
	err = a.ExtractAll(dir)
	require.True(t, errors.As(err, &ce))
	got, readErr := os.ReadFile(filepath.Join(dir, "bad.txt"))
	require.NoError(t, readErr)
	assert.Equal(t, "mismatching bytes", string(got))
}

func TestEncodedHeaderArchive(t *testing.T) {
	a := open(t, fixture(testutil.Options{Solid: true, EncodedHeader: true}))

	names, err := a.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "test/test2.txt", "test1.txt"}, names)

	sink := &memSink{}
	require.NoError(t, a.Extract(map[int]sevenz.Sink{1: sink}))
	assert.Equal(t, folderContent, sink.String())
}

func TestPackPaddingTolerated(t *testing.T) {
	a := open(t, fixture(testutil.Options{Solid: true, PadPack: 11}))

	dir := t.TempDir()
	require.NoError(t, a.ExtractAll(dir))
	got, err := os.ReadFile(filepath.Join(dir, "test1.txt"))
	require.NoError(t, err)
	assert.Equal(t, rootContent, string(got))
}

func TestMultiVolume(t *testing.T) {
	img := fixture(testutil.Options{Solid: true})
	dir := t.TempDir()

	split := len(img) / 2
	require.NoError(t, os.WriteFile(filepath.Join(dir, "set.7z.001"), img[:split], 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "set.7z.002"), img[split:], 0o644))

	a, err := sevenz.Open(filepath.Join(dir, "set.7z.001"), sevenz.WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)
	defer a.Close()

	names, err := a.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "test/test2.txt", "test1.txt"}, names)

	out := filepath.Join(dir, "out")
	require.NoError(t, a.ExtractAll(out))
	got, err := os.ReadFile(filepath.Join(out, "test", "test2.txt"))
	require.NoError(t, err)
	assert.Equal(t, folderContent, string(got))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := sevenz.Open(filepath.Join(t.TempDir(), "absent.7z"))
	require.Error(t, err)
}

func TestExtractAllRejectsEscapingNames(t *testing.T) {
	img := testutil.Build([]testutil.Member{
		{Name: "../evil.txt", Data: []byte("outside")},
	}, testutil.Options{})
	a := open(t, img)

	dir := filepath.Join(t.TempDir(), "out")
	err := a.ExtractAll(dir)
	require.ErrorIs(t, err, sevenz.ErrFormat)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "evil.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
