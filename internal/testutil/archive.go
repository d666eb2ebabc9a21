// Package testutil builds minimal 7z archives in memory for tests.
// Only the store (copy) coder is ever used for real data, which keeps
// the writer tiny while still exercising every header structure the
// reader knows about.
package testutil

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"unicode/utf16"

	"github.com/okvist/sevenz/internal/sz"
)

// Member describes one archive entry to build.
type Member struct {
	Name string
	Data []byte
	// Dir marks a directory entry; Data must be nil.
	Dir bool
	// MTime is the last-write time in FILETIME ticks; 0 leaves it
	// undefined.
	MTime uint64
	// Attrs is the Windows attribute word; 0 leaves it undefined.
	Attrs uint32
	// BadCRC stores a deliberately wrong checksum for the member.
	BadCRC bool
}

// Options shape the archive layout.
type Options struct {
	// Solid packs every stream-backed member into one folder; the
	// default gives each member its own folder.
	Solid bool
	// MethodID overrides the coder ID written for every folder. The
	// member data is still stored verbatim, so anything but copy
	// produces an archive that parses but cannot decode.
	MethodID []byte
	// PadPack appends zero bytes after the pack region, as alignment
	// padding a reader has to tolerate.
	PadPack int
	// EncodedHeader stores the header itself as a copy-coded blob
	// behind the kEncodedHeader indirection.
	EncodedHeader bool
}

// Build assembles a complete archive image.
func Build(members []Member, opts Options) []byte {
	if opts.MethodID == nil {
		opts.MethodID = []byte{0x00}
	}

	var streamed []Member
	for _, m := range members {
		if len(m.Data) > 0 {
			streamed = append(streamed, m)
		}
	}

	// Folder grouping and the packed bytes.
	var folders [][]Member
	if opts.Solid && len(streamed) > 0 {
		folders = [][]Member{streamed}
	} else {
		for _, m := range streamed {
			folders = append(folders, []Member{m})
		}
	}
	var packData bytes.Buffer
	packSizes := make([]uint64, len(folders))
	for i, fm := range folders {
		for _, m := range fm {
			packData.Write(m.Data)
			packSizes[i] += uint64(len(m.Data))
		}
	}

	header := new(bytes.Buffer)
	header.WriteByte(sz.IDHeader)
	if len(folders) > 0 {
		header.WriteByte(sz.IDMainStreamsInfo)
		writeStreamsInfo(header, folders, packSizes, 0, opts)
	}
	if len(members) > 0 {
		writeFilesInfo(header, members)
	}
	header.WriteByte(sz.IDEnd)

	footer := header.Bytes()
	bodyLen := packData.Len() + opts.PadPack

	if opts.EncodedHeader {
		blob := footer
		enc := new(bytes.Buffer)
		enc.WriteByte(sz.IDEncodedHeader)
		writeEncodedHeaderStreams(enc, uint64(bodyLen), blob)
		footer = enc.Bytes()
		bodyLen += len(blob)
	}

	archive := new(bytes.Buffer)
	archive.Write(sz.Magic[:])
	archive.Write([]byte{0, 4})

	start := new(bytes.Buffer)
	binary.Write(start, binary.LittleEndian, uint64(bodyLen))
	binary.Write(start, binary.LittleEndian, uint64(len(footer)))
	binary.Write(start, binary.LittleEndian, crc32.ChecksumIEEE(footer))

	binary.Write(archive, binary.LittleEndian, crc32.ChecksumIEEE(start.Bytes()))
	archive.Write(start.Bytes())

	archive.Write(packData.Bytes())
	archive.Write(make([]byte, opts.PadPack))
	if opts.EncodedHeader {
		archive.Write(header.Bytes())
	}
	archive.Write(footer)

	return archive.Bytes()
}

func writeStreamsInfo(w *bytes.Buffer, folders [][]Member, packSizes []uint64, packPos uint64, opts Options) {
	w.WriteByte(sz.IDPackInfo)
	writeNumber(w, packPos)
	writeNumber(w, uint64(len(folders)))
	w.WriteByte(sz.IDSize)
	for _, s := range packSizes {
		writeNumber(w, s)
	}
	w.WriteByte(sz.IDEnd)

	w.WriteByte(sz.IDUnpackInfo)
	w.WriteByte(sz.IDFolder)
	writeNumber(w, uint64(len(folders)))
	w.WriteByte(0) // not external
	for range folders {
		writeNumber(w, 1) // one coder
		w.WriteByte(byte(len(opts.MethodID)))
		w.Write(opts.MethodID)
	}
	w.WriteByte(sz.IDCodersUnpackSize)
	for i := range folders {
		writeNumber(w, packSizes[i])
	}
	w.WriteByte(sz.IDEnd)

	w.WriteByte(sz.IDSubStreamsInfo)
	multi := false
	for _, fm := range folders {
		if len(fm) != 1 {
			multi = true
		}
	}
	if multi {
		w.WriteByte(sz.IDNumUnpackStream)
		for _, fm := range folders {
			writeNumber(w, uint64(len(fm)))
		}
		w.WriteByte(sz.IDSize)
		for _, fm := range folders {
			for _, m := range fm[:len(fm)-1] {
				writeNumber(w, uint64(len(m.Data)))
			}
		}
	}
	w.WriteByte(sz.IDCRC)
	w.WriteByte(1) // all defined
	for _, fm := range folders {
		for _, m := range fm {
			sum := crc32.ChecksumIEEE(m.Data)
			if m.BadCRC {
				sum = ^sum
			}
			binary.Write(w, binary.LittleEndian, sum)
		}
	}
	w.WriteByte(sz.IDEnd)

	w.WriteByte(sz.IDEnd)
}

// writeEncodedHeaderStreams writes the streams info describing a
// copy-coded header blob located at packPos in the body.
func writeEncodedHeaderStreams(w *bytes.Buffer, packPos uint64, blob []byte) {
	w.WriteByte(sz.IDPackInfo)
	writeNumber(w, packPos)
	writeNumber(w, 1)
	w.WriteByte(sz.IDSize)
	writeNumber(w, uint64(len(blob)))
	w.WriteByte(sz.IDEnd)

	w.WriteByte(sz.IDUnpackInfo)
	w.WriteByte(sz.IDFolder)
	writeNumber(w, 1)
	w.WriteByte(0)
	writeNumber(w, 1)
	w.WriteByte(1)
	w.WriteByte(0x00) // copy
	w.WriteByte(sz.IDCodersUnpackSize)
	writeNumber(w, uint64(len(blob)))
	w.WriteByte(sz.IDCRC)
	w.WriteByte(1)
	binary.Write(w, binary.LittleEndian, crc32.ChecksumIEEE(blob))
	w.WriteByte(sz.IDEnd)

	w.WriteByte(sz.IDEnd)
}

func writeFilesInfo(w *bytes.Buffer, members []Member) {
	w.WriteByte(sz.IDFilesInfo)
	writeNumber(w, uint64(len(members)))

	empty := make([]bool, len(members))
	anyEmpty := false
	var emptyFileBits []bool
	for i, m := range members {
		if len(m.Data) == 0 {
			empty[i] = true
			anyEmpty = true
			emptyFileBits = append(emptyFileBits, !m.Dir)
		}
	}
	if anyEmpty {
		writeProperty(w, sz.IDEmptyStream, packBits(empty))
		hasEmptyFile := false
		for _, b := range emptyFileBits {
			if b {
				hasEmptyFile = true
			}
		}
		if hasEmptyFile {
			writeProperty(w, sz.IDEmptyFile, packBits(emptyFileBits))
		}
	}

	names := new(bytes.Buffer)
	names.WriteByte(0) // not external
	for _, m := range members {
		for _, u := range utf16.Encode([]rune(m.Name)) {
			binary.Write(names, binary.LittleEndian, u)
		}
		names.Write([]byte{0, 0})
	}
	writeProperty(w, sz.IDName, names.Bytes())

	defined := make([]bool, len(members))
	anyTime := false
	for i, m := range members {
		defined[i] = m.MTime != 0
		anyTime = anyTime || defined[i]
	}
	if anyTime {
		times := new(bytes.Buffer)
		times.WriteByte(0) // not all defined
		times.Write(packBits(defined))
		times.WriteByte(0) // not external
		for _, m := range members {
			if m.MTime != 0 {
				binary.Write(times, binary.LittleEndian, m.MTime)
			}
		}
		writeProperty(w, sz.IDMTime, times.Bytes())
	}

	attrDefined := make([]bool, len(members))
	anyAttr := false
	for i, m := range members {
		attrDefined[i] = m.Attrs != 0
		anyAttr = anyAttr || attrDefined[i]
	}
	if anyAttr {
		attrs := new(bytes.Buffer)
		attrs.WriteByte(0)
		attrs.Write(packBits(attrDefined))
		attrs.WriteByte(0)
		for _, m := range members {
			if m.Attrs != 0 {
				binary.Write(attrs, binary.LittleEndian, m.Attrs)
			}
		}
		writeProperty(w, sz.IDWinAttributes, attrs.Bytes())
	}

	w.WriteByte(sz.IDEnd)
}

func writeProperty(w *bytes.Buffer, id byte, payload []byte) {
	w.WriteByte(id)
	writeNumber(w, uint64(len(payload)))
	w.Write(payload)
}

func packBits(bits []bool) []byte {
	buf := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			buf[i/8] |= 0x80 >> (i % 8)
		}
	}
	return buf
}

// writeNumber emits the 7z variable-length integer encoding.
func writeNumber(w *bytes.Buffer, v uint64) {
	var first byte
	mask := byte(0x80)
	var i int
	for i = 0; i < 8; i++ {
		if v < uint64(1)<<(7*(i+1)) {
			first |= byte(v >> (8 * i))
			break
		}
		first |= mask
		mask >>= 1
	}
	w.WriteByte(first)
	for j := 0; j < i; j++ {
		w.WriteByte(byte(v >> (8 * j)))
	}
}
