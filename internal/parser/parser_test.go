package parser

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okvist/sevenz/internal/sz"
	"github.com/okvist/sevenz/internal/testutil"
)

const (
	folderContent = "This file is located in a folder."
	rootContent   = "This file is located in the root."

	// 2006-03-15 21:43:36 and 21:43:48 UTC in FILETIME ticks.
	folderMTime = 127869326160000000
	rootMTime   = 127869326280000000
)

func fixtureMembers() []testutil.Member {
	return []testutil.Member{
		{Name: "test", Dir: true},
		{Name: "test/test2.txt", Data: []byte(folderContent), MTime: folderMTime},
		{Name: "test1.txt", Data: []byte(rootContent), MTime: rootMTime},
	}
}

func parse(t *testing.T, img []byte) (*sz.Header, error) {
	t.Helper()
	r := New(bytes.NewReader(img), slog.New(slog.DiscardHandler))
	if err := r.ReadSignatureHeader(); err != nil {
		return nil, err
	}
	return r.ReadHeader()
}

func TestParseSolidArchive(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{Solid: true})

	h, err := parse(t, img)
	require.NoError(t, err)

	require.Len(t, h.Streams.Folders, 1)
	assert.Equal(t, []int{2}, h.Streams.SubStreams.Counts)
	require.Len(t, h.Files, 3)

	dir := h.Files[0]
	assert.Equal(t, "test", dir.Name)
	assert.True(t, dir.IsDirectory)
	assert.False(t, dir.HasStream())

	inner := h.Files[1]
	assert.Equal(t, "test/test2.txt", inner.Name)
	assert.Equal(t, 0, inner.Folder)
	assert.Equal(t, 0, inner.Stream)
	assert.Equal(t, uint64(len(folderContent)), inner.Size)
	require.True(t, inner.HasCRC)
	assert.Equal(t, crc32.ChecksumIEEE([]byte(folderContent)), inner.CRC)
	assert.Equal(t, time.Date(2006, 3, 15, 21, 43, 36, 0, time.UTC), inner.Modified)

	root := h.Files[2]
	assert.Equal(t, "test1.txt", root.Name)
	assert.Equal(t, 0, root.Folder)
	assert.Equal(t, 1, root.Stream)
	assert.Equal(t, time.Date(2006, 3, 15, 21, 43, 48, 0, time.UTC), root.Modified)
}

func TestParseOneFolderPerFile(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{})

	h, err := parse(t, img)
	require.NoError(t, err)

	require.Len(t, h.Streams.Folders, 2)
	assert.Equal(t, []int{1, 1}, h.Streams.SubStreams.Counts)
	assert.Equal(t, []uint64{33, 33}, h.Streams.SubStreams.Sizes)

	assert.Equal(t, 0, h.Files[1].Folder)
	assert.Equal(t, 1, h.Files[2].Folder)
}

func TestParseEmptyArchive(t *testing.T) {
	img := testutil.Build(nil, testutil.Options{})

	h, err := parse(t, img)
	require.NoError(t, err)
	assert.Empty(t, h.Files)
	assert.Empty(t, h.Streams.Folders)
}

func TestParseEmptyFileAndAttributes(t *testing.T) {
	img := testutil.Build([]testutil.Member{
		{Name: "blank.txt"},
		{Name: "locked.txt", Data: []byte("x"), Attrs: sz.AttrReadOnly},
	}, testutil.Options{})

	h, err := parse(t, img)
	require.NoError(t, err)
	require.Len(t, h.Files, 2)

	blank := h.Files[0]
	assert.True(t, blank.IsEmpty)
	assert.False(t, blank.IsDirectory)
	assert.False(t, blank.HasStream())

	locked := h.Files[1]
	assert.Equal(t, uint32(sz.AttrReadOnly), locked.Attributes)
	assert.Zero(t, locked.Mode()&0o222)
}

func TestParseBadSignature(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{})
	img[0] ^= 0xFF

	_, err := parse(t, img)
	require.ErrorIs(t, err, sz.ErrFormat)
}

func TestParseStartHeaderCRCMismatch(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{})
	img[12] ^= 0xFF // inside the CRC-protected start header

	_, err := parse(t, img)
	require.ErrorIs(t, err, sz.ErrFormat)
}

func TestParseForgedStartHeader(t *testing.T) {
	// The start header CRC only proves the fields were written on
	// purpose; the offsets themselves must still be range-checked
	// against the real archive size.
	patch := func(img []byte, offset, size uint64) []byte {
		out := append([]byte(nil), img...)
		binary.LittleEndian.PutUint64(out[12:], offset)
		binary.LittleEndian.PutUint64(out[20:], size)
		binary.LittleEndian.PutUint32(out[8:], crc32.ChecksumIEEE(out[12:32]))
		return out
	}

	img := testutil.Build(fixtureMembers(), testutil.Options{Solid: true})

	tests := []struct {
		name   string
		offset uint64
		size   uint64
	}{
		{name: "absurd footer size", offset: 0, size: ^uint64(0)},
		{name: "absurd footer offset", offset: ^uint64(0), size: 2},
		{name: "footer past the end", offset: uint64(len(img)), size: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, patch(img, tt.offset, tt.size))
			require.ErrorIs(t, err, sz.ErrTruncated)
		})
	}
}

func TestParseTruncatedSignature(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{})

	_, err := parse(t, img[:16])
	require.ErrorIs(t, err, sz.ErrTruncated)
}

func TestParseFooterCRCMismatch(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{})
	img[len(img)-1] ^= 0xFF

	_, err := parse(t, img)
	require.ErrorIs(t, err, sz.ErrFormat)
}

func TestParseTruncatedFooter(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{})

	_, err := parse(t, img[:len(img)-4])
	require.ErrorIs(t, err, sz.ErrTruncated)
}

func TestParseEncodedHeader(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{Solid: true, EncodedHeader: true})

	h, err := parse(t, img)
	require.NoError(t, err)
	require.Len(t, h.Files, 3)
	assert.Equal(t, "test/test2.txt", h.Files[1].Name)
	assert.Equal(t, uint64(len(rootContent)), h.Files[2].Size)
}

func TestParseKeepsUnknownMethod(t *testing.T) {
	// Parsing records the coder ID as-is; method support is only checked
	// when a folder is actually decoded.
	img := testutil.Build(fixtureMembers(), testutil.Options{MethodID: []byte{0x06, 0xF1, 0x07, 0x01}})

	h, err := parse(t, img)
	require.NoError(t, err)
	require.NotEmpty(t, h.Streams.Folders)
	assert.Equal(t, sz.MethodAES256, h.Streams.Folders[0].Coders[0].ID)
}

func TestParsePackPadding(t *testing.T) {
	img := testutil.Build(fixtureMembers(), testutil.Options{Solid: true, PadPack: 9})

	h, err := parse(t, img)
	require.NoError(t, err)
	require.Len(t, h.Files, 3)
	assert.Equal(t, uint64(len(folderContent)), h.Files[1].Size)
}
