// Package parser turns the tag-delimited property stream at the end of
// a 7z archive into a structured header.
package parser

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"

	"golang.org/x/text/encoding/unicode"

	"github.com/okvist/sevenz/internal/codec"
	"github.com/okvist/sevenz/internal/sz"
)

// Reader reads archive metadata from a seekable byte source.
type Reader struct {
	src    io.ReadSeeker
	logger *slog.Logger
	start  sz.StartHeader
	size   int64
}

// New creates a Reader over src. The signature header has not been
// read yet; call ReadSignatureHeader first.
func New(src io.ReadSeeker, logger *slog.Logger) *Reader {
	return &Reader{src: src, logger: logger}
}

// ReadSignatureHeader validates the archive signature and reads the
// start header locating the footer. The start header carries its own
// CRC; a mismatch means this is not a usable 7z archive.
func (r *Reader) ReadSignatureHeader() error {
	if _, err := r.src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to signature: %w", err)
	}

	magic, err := sz.ReadBytes(r.src, 6)
	if err != nil {
		return fmt.Errorf("%w: failed to read signature: %v", sz.ErrFormat, err)
	}
	if !bytes.Equal(magic, sz.Magic[:]) {
		return fmt.Errorf("%w: bad signature %x", sz.ErrFormat, magic)
	}

	version, err := sz.ReadBytes(r.src, 2)
	if err != nil {
		return fmt.Errorf("failed to read version: %w", err)
	}

	startCRC, err := sz.ReadUint32(r.src)
	if err != nil {
		return fmt.Errorf("failed to read start header CRC: %w", err)
	}

	raw, err := sz.ReadBytes(r.src, 20)
	if err != nil {
		return fmt.Errorf("failed to read start header: %w", err)
	}
	if got := crc32.ChecksumIEEE(raw); got != startCRC {
		return fmt.Errorf("%w: start header CRC mismatch (stored %08x, computed %08x)", sz.ErrFormat, startCRC, got)
	}

	br := bytes.NewReader(raw)
	if r.start.NextHeaderOffset, err = sz.ReadUint64(br); err != nil {
		return err
	}
	if r.start.NextHeaderSize, err = sz.ReadUint64(br); err != nil {
		return err
	}
	if r.start.NextHeaderCRC, err = sz.ReadUint32(br); err != nil {
		return err
	}

	if r.size, err = r.src.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to measure archive size: %w", err)
	}

	r.logger.Debug("signature header is valid",
		"version", fmt.Sprintf("%d.%d", version[0], version[1]),
		"next_header_offset", r.start.NextHeaderOffset,
		"next_header_size", r.start.NextHeaderSize,
	)

	return nil
}

// ReadHeader reads, verifies and parses the footer header, following
// the encoded-header indirection when the footer itself is stored as a
// coder-compressed blob.
func (r *Reader) ReadHeader() (*sz.Header, error) {
	if r.start.NextHeaderSize == 0 {
		// Archive with no entries at all.
		return &sz.Header{}, nil
	}

	// The start header is attacker-controlled up to its CRC, so its
	// offsets are checked against the real source size before use.
	body := uint64(r.size) - sz.SignatureHeaderSize
	if r.start.NextHeaderOffset > body || r.start.NextHeaderSize > body-r.start.NextHeaderOffset {
		return nil, fmt.Errorf("%w: footer header extends past the end of the archive", sz.ErrTruncated)
	}

	offset := int64(sz.SignatureHeaderSize) + int64(r.start.NextHeaderOffset)
	if _, err := r.src.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to footer header: %w", err)
	}

	blob, err := sz.ReadBytes(r.src, int(r.start.NextHeaderSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read footer header: %w", err)
	}
	if got := crc32.ChecksumIEEE(blob); got != r.start.NextHeaderCRC {
		return nil, fmt.Errorf("%w: footer header CRC mismatch (stored %08x, computed %08x)", sz.ErrFormat, r.start.NextHeaderCRC, got)
	}

	br := bytes.NewReader(blob)
	tag, err := sz.ReadByte(br)
	if err != nil {
		return nil, err
	}

	if tag == sz.IDEncodedHeader {
		if blob, err = r.decodeHeaderBlob(br); err != nil {
			return nil, err
		}
		br = bytes.NewReader(blob)
		if tag, err = sz.ReadByte(br); err != nil {
			return nil, err
		}
	}
	if tag != sz.IDHeader {
		return nil, fmt.Errorf("%w: unexpected footer tag 0x%02x", sz.ErrFormat, tag)
	}

	return r.parseHeader(br)
}

// decodeHeaderBlob handles the encoded-header indirection: the footer
// is itself a one-folder solid block whose streams info follows the
// kEncodedHeader tag.
func (r *Reader) decodeHeaderBlob(br *bytes.Reader) ([]byte, error) {
	si, err := r.parseStreamsInfo(br)
	if err != nil {
		return nil, fmt.Errorf("failed to parse encoded header streams: %w", err)
	}
	if len(si.Folders) != 1 {
		return nil, fmt.Errorf("%w: encoded header must be a single folder, got %d", sz.ErrFormat, len(si.Folders))
	}
	folder := si.Folders[0]

	for _, c := range folder.Coders {
		if !codec.Supported(c.ID) {
			return nil, fmt.Errorf("%w: header folder uses method %s", sz.ErrHeaderEncoding, c.ID)
		}
	}

	pack := make([]io.Reader, len(folder.PackedIndices))
	base := int64(sz.SignatureHeaderSize) + int64(si.Pack.Pos)
	for i := range pack {
		if _, err := r.src.Seek(base+int64(si.Pack.StreamOffset(i)), io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek to header pack stream %d: %w", i, err)
		}
		raw, err := sz.ReadBytes(r.src, int(si.Pack.Sizes[i]))
		if err != nil {
			return nil, fmt.Errorf("failed to read header pack stream %d: %w", i, err)
		}
		pack[i] = bytes.NewReader(raw)
	}

	dec, err := codec.FolderReader(folder, pack)
	if err != nil {
		return nil, err
	}
	size, err := folder.UnpackSize()
	if err != nil {
		return nil, err
	}
	blob, err := sz.ReadBytes(dec, int(size))
	if err != nil {
		return nil, fmt.Errorf("failed to read encoded header: %w", err)
	}
	if folder.HasCRC {
		if got := crc32.ChecksumIEEE(blob); got != folder.CRC {
			return nil, fmt.Errorf("%w: encoded header CRC mismatch (stored %08x, computed %08x)", sz.ErrFormat, folder.CRC, got)
		}
	}

	r.logger.Debug("decoded compressed footer header", "size", size)
	return blob, nil
}

func (r *Reader) parseHeader(br *bytes.Reader) (*sz.Header, error) {
	h := &sz.Header{}

	for {
		tag, err := sz.ReadByte(br)
		if err != nil {
			return nil, err
		}

		switch tag {
		case sz.IDEnd:
			return h, nil

		case sz.IDArchiveProperties:
			if err := skipArchiveProperties(br); err != nil {
				return nil, err
			}

		case sz.IDMainStreamsInfo:
			si, err := r.parseStreamsInfo(br)
			if err != nil {
				return nil, err
			}
			h.Streams = *si

		case sz.IDAdditionalStreamsInfo:
			// Parsed only to advance past it; nothing in the read path
			// uses additional streams.
			if _, err := r.parseStreamsInfo(br); err != nil {
				return nil, err
			}

		case sz.IDFilesInfo:
			if err := r.parseFilesInfo(br, h); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("%w: unexpected header tag 0x%02x", sz.ErrFormat, tag)
		}
	}
}

func skipArchiveProperties(br *bytes.Reader) error {
	for {
		propType, err := sz.ReadNumber(br)
		if err != nil {
			return err
		}
		if propType == sz.IDEnd {
			return nil
		}
		size, err := sz.ReadNumber(br)
		if err != nil {
			return err
		}
		if _, err := sz.ReadBytes(br, int(size)); err != nil {
			return err
		}
	}
}

func (r *Reader) parseStreamsInfo(br *bytes.Reader) (*sz.StreamsInfo, error) {
	si := &sz.StreamsInfo{}

	for {
		tag, err := sz.ReadByte(br)
		if err != nil {
			return nil, err
		}

		switch tag {
		case sz.IDEnd:
			finishSubStreams(si)
			return si, nil

		case sz.IDPackInfo:
			if err := parsePackInfo(br, &si.Pack); err != nil {
				return nil, err
			}

		case sz.IDUnpackInfo:
			if err := r.parseUnpackInfo(br, si); err != nil {
				return nil, err
			}

		case sz.IDSubStreamsInfo:
			if err := parseSubStreamsInfo(br, si); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("%w: unexpected streams info tag 0x%02x", sz.ErrFormat, tag)
		}
	}
}

// finishSubStreams fills in the defaults for archives without an
// explicit substreams section: one substream per folder, sized and
// checksummed by the folder itself.
func finishSubStreams(si *sz.StreamsInfo) {
	ss := &si.SubStreams
	if ss.Counts != nil {
		return
	}
	ss.Counts = make([]int, len(si.Folders))
	for fi, f := range si.Folders {
		ss.Counts[fi] = 1
		total, err := f.UnpackSize()
		if err != nil {
			total = 0
		}
		ss.Sizes = append(ss.Sizes, total)
		ss.CRCs = append(ss.CRCs, f.CRC)
		ss.Defined = append(ss.Defined, f.HasCRC)
	}
}

func parsePackInfo(br *bytes.Reader, pi *sz.PackInfo) error {
	var err error
	if pi.Pos, err = sz.ReadNumber(br); err != nil {
		return fmt.Errorf("failed to read pack position: %w", err)
	}
	count, err := sz.ReadNumber(br)
	if err != nil {
		return fmt.Errorf("failed to read pack stream count: %w", err)
	}

	for {
		tag, err := sz.ReadByte(br)
		if err != nil {
			return err
		}

		switch tag {
		case sz.IDEnd:
			if pi.Sizes == nil && count != 0 {
				return fmt.Errorf("%w: pack info missing sizes", sz.ErrFormat)
			}
			return nil

		case sz.IDSize:
			pi.Sizes = make([]uint64, count)
			for i := range pi.Sizes {
				if pi.Sizes[i], err = sz.ReadNumber(br); err != nil {
					return fmt.Errorf("failed to read pack stream size %d: %w", i, err)
				}
			}

		case sz.IDCRC:
			defined, err := sz.ReadOptionalBitVector(br, int(count))
			if err != nil {
				return err
			}
			pi.CRCs = make([]uint32, count)
			for i, d := range defined {
				if !d {
					continue
				}
				if pi.CRCs[i], err = sz.ReadUint32(br); err != nil {
					return err
				}
			}

		default:
			return fmt.Errorf("%w: unexpected pack info tag 0x%02x", sz.ErrFormat, tag)
		}
	}
}

func (r *Reader) parseUnpackInfo(br *bytes.Reader, si *sz.StreamsInfo) error {
	tag, err := sz.ReadByte(br)
	if err != nil {
		return err
	}
	if tag != sz.IDFolder {
		return fmt.Errorf("%w: expected folder tag, got 0x%02x", sz.ErrFormat, tag)
	}

	count, err := sz.ReadNumber(br)
	if err != nil {
		return fmt.Errorf("failed to read folder count: %w", err)
	}
	external, err := sz.ReadByte(br)
	if err != nil {
		return err
	}
	if external != 0 {
		return fmt.Errorf("%w: external folder data", sz.ErrHeaderEncoding)
	}

	si.Folders = make([]*sz.Folder, count)
	for i := range si.Folders {
		f, err := parseFolder(br, i)
		if err != nil {
			return err
		}
		si.Folders[i] = f
	}

	if tag, err = sz.ReadByte(br); err != nil {
		return err
	}
	if tag != sz.IDCodersUnpackSize {
		return fmt.Errorf("%w: expected coders unpack size tag, got 0x%02x", sz.ErrFormat, tag)
	}
	for _, f := range si.Folders {
		f.UnpackSizes = make([]uint64, f.NumOutStreams())
		for i := range f.UnpackSizes {
			if f.UnpackSizes[i], err = sz.ReadNumber(br); err != nil {
				return fmt.Errorf("failed to read unpack size: %w", err)
			}
		}
	}

	for {
		tag, err := sz.ReadByte(br)
		if err != nil {
			return err
		}

		switch tag {
		case sz.IDEnd:
			r.logger.Debug("parsed unpack info", "folders", len(si.Folders))
			return nil

		case sz.IDCRC:
			defined, err := sz.ReadOptionalBitVector(br, len(si.Folders))
			if err != nil {
				return err
			}
			for i, d := range defined {
				if !d {
					continue
				}
				if si.Folders[i].CRC, err = sz.ReadUint32(br); err != nil {
					return err
				}
				si.Folders[i].HasCRC = true
			}

		default:
			return fmt.Errorf("%w: unexpected unpack info tag 0x%02x", sz.ErrFormat, tag)
		}
	}
}

// parseFolder reads one folder definition: the coder list, the bind
// pairs wiring coder outputs to coder inputs, and the mapping of pack
// streams onto unbound coder inputs.
func parseFolder(br *bytes.Reader, index int) (*sz.Folder, error) {
	numCoders, err := sz.ReadNumber(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read coder count: %w", err)
	}
	if numCoders == 0 {
		return nil, &sz.FolderError{Folder: index, Reason: "folder has no coders"}
	}

	f := &sz.Folder{Index: index, Coders: make([]*sz.Coder, numCoders)}
	for i := range f.Coders {
		flags, err := sz.ReadByte(br)
		if err != nil {
			return nil, err
		}

		id, err := sz.ReadBytes(br, int(flags&sz.CoderIDSizeMask))
		if err != nil {
			return nil, fmt.Errorf("failed to read coder id: %w", err)
		}
		c := &sz.Coder{ID: sz.MethodID(id), NumIn: 1, NumOut: 1}

		if flags&sz.CoderIsComplex != 0 {
			in, err := sz.ReadNumber(br)
			if err != nil {
				return nil, err
			}
			out, err := sz.ReadNumber(br)
			if err != nil {
				return nil, err
			}
			c.NumIn, c.NumOut = int(in), int(out)
		}

		if flags&sz.CoderHasAttrs != 0 {
			size, err := sz.ReadNumber(br)
			if err != nil {
				return nil, err
			}
			if c.Props, err = sz.ReadBytes(br, int(size)); err != nil {
				return nil, fmt.Errorf("failed to read coder properties: %w", err)
			}
		}

		f.Coders[i] = c
	}

	numBindPairs := f.NumOutStreams() - 1
	if numBindPairs < 0 || numBindPairs >= f.NumInStreams() {
		return nil, &sz.FolderError{Folder: index, Reason: "coder stream counts leave no room for a final output"}
	}
	f.BindPairs = make([]sz.BindPair, numBindPairs)
	for i := range f.BindPairs {
		in, err := sz.ReadNumber(br)
		if err != nil {
			return nil, err
		}
		out, err := sz.ReadNumber(br)
		if err != nil {
			return nil, err
		}
		f.BindPairs[i] = sz.BindPair{In: int(in), Out: int(out)}
	}

	numPacked := f.NumInStreams() - numBindPairs
	if numPacked == 1 {
		// Single pack stream: it feeds the one input no bind pair
		// supplies.
		for in := 0; in < f.NumInStreams(); in++ {
			if f.BindPairForIn(in) == -1 {
				f.PackedIndices = []int{in}
				break
			}
		}
		if f.PackedIndices == nil {
			return nil, &sz.FolderError{Folder: index, Reason: "no unbound coder input for the pack stream"}
		}
	} else {
		f.PackedIndices = make([]int, numPacked)
		for i := range f.PackedIndices {
			idx, err := sz.ReadNumber(br)
			if err != nil {
				return nil, err
			}
			f.PackedIndices[i] = int(idx)
		}
	}

	return f, f.Validate()
}

func parseSubStreamsInfo(br *bytes.Reader, si *sz.StreamsInfo) error {
	ss := &si.SubStreams
	ss.Counts = make([]int, len(si.Folders))
	for i := range ss.Counts {
		ss.Counts[i] = 1
	}

	tag, err := sz.ReadByte(br)
	if err != nil {
		return err
	}

	if tag == sz.IDNumUnpackStream {
		for i := range ss.Counts {
			n, err := sz.ReadNumber(br)
			if err != nil {
				return fmt.Errorf("failed to read substream count: %w", err)
			}
			ss.Counts[i] = int(n)
		}
		if tag, err = sz.ReadByte(br); err != nil {
			return err
		}
	}

	if tag == sz.IDSize {
		for fi, f := range si.Folders {
			count := ss.Counts[fi]
			if count == 0 {
				continue
			}
			declared := make([]uint64, count-1)
			for i := range declared {
				if declared[i], err = sz.ReadNumber(br); err != nil {
					return fmt.Errorf("failed to read substream size: %w", err)
				}
			}
			sizes, err := sz.SubStreamSizes(f, count, declared)
			if err != nil {
				return err
			}
			ss.Sizes = append(ss.Sizes, sizes...)
		}
		if tag, err = sz.ReadByte(br); err != nil {
			return err
		}
	} else {
		for fi, f := range si.Folders {
			if ss.Counts[fi] == 0 {
				continue
			}
			if ss.Counts[fi] != 1 {
				return fmt.Errorf("%w: substream sizes missing for folder %d", sz.ErrFormat, fi)
			}
			total, err := f.UnpackSize()
			if err != nil {
				return err
			}
			ss.Sizes = append(ss.Sizes, total)
		}
	}

	// The CRC list covers only substreams whose checksum is not already
	// authoritative at folder level (a folder CRC covers its single
	// substream).
	total := 0
	unknown := 0
	for fi, f := range si.Folders {
		total += ss.Counts[fi]
		if ss.Counts[fi] == 1 && f.HasCRC {
			continue
		}
		unknown += ss.Counts[fi]
	}
	ss.CRCs = make([]uint32, total)
	ss.Defined = make([]bool, total)

	var listed []uint32
	var listedDefined []bool
	if tag == sz.IDCRC {
		defined, err := sz.ReadOptionalBitVector(br, unknown)
		if err != nil {
			return err
		}
		listed = make([]uint32, unknown)
		listedDefined = defined
		for i, d := range defined {
			if !d {
				continue
			}
			if listed[i], err = sz.ReadUint32(br); err != nil {
				return err
			}
		}
		if tag, err = sz.ReadByte(br); err != nil {
			return err
		}
	}

	idx, li := 0, 0
	for fi, f := range si.Folders {
		if ss.Counts[fi] == 1 && f.HasCRC {
			ss.CRCs[idx] = f.CRC
			ss.Defined[idx] = true
			idx++
			continue
		}
		for i := 0; i < ss.Counts[fi]; i++ {
			if listed != nil {
				ss.CRCs[idx] = listed[li]
				ss.Defined[idx] = listedDefined[li]
				li++
			}
			idx++
		}
	}

	if tag != sz.IDEnd {
		return fmt.Errorf("%w: unexpected substreams info tag 0x%02x", sz.ErrFormat, tag)
	}
	return nil
}

func (r *Reader) parseFilesInfo(br *bytes.Reader, h *sz.Header) error {
	count, err := sz.ReadNumber(br)
	if err != nil {
		return fmt.Errorf("failed to read file count: %w", err)
	}

	entries := make([]sz.FileEntry, count)
	for i := range entries {
		entries[i].Folder = -1
		entries[i].Stream = -1
	}

	var emptyStream, emptyFile, anti []bool

	for {
		propType, err := sz.ReadNumber(br)
		if err != nil {
			return err
		}
		if propType == sz.IDEnd {
			break
		}
		size, err := sz.ReadNumber(br)
		if err != nil {
			return err
		}
		payload, err := sz.ReadBytes(br, int(size))
		if err != nil {
			return fmt.Errorf("failed to read file property 0x%02x: %w", propType, err)
		}
		pr := bytes.NewReader(payload)

		switch propType {
		case sz.IDEmptyStream:
			if emptyStream, err = sz.ReadBitVector(pr, int(count)); err != nil {
				return err
			}

		case sz.IDEmptyFile:
			if emptyFile, err = sz.ReadBitVector(pr, countTrue(emptyStream)); err != nil {
				return err
			}

		case sz.IDAnti:
			if anti, err = sz.ReadBitVector(pr, countTrue(emptyStream)); err != nil {
				return err
			}

		case sz.IDName:
			if err := parseNames(pr, entries); err != nil {
				return err
			}

		case sz.IDCTime, sz.IDATime, sz.IDMTime:
			if err := parseTimes(pr, entries, propType); err != nil {
				return err
			}

		case sz.IDWinAttributes:
			if err := parseAttributes(pr, entries); err != nil {
				return err
			}

		case sz.IDDummy:
			// Alignment padding, nothing to do.

		default:
			r.logger.Debug("skipping unknown file property",
				"id", fmt.Sprintf("0x%02x", propType),
				"size", size,
			)
		}
	}

	if err := bindStreams(entries, &h.Streams, emptyStream, emptyFile, anti); err != nil {
		return err
	}
	h.Files = entries

	r.logger.Info("parsed files info", "file_count", len(entries))
	return nil
}

func countTrue(bits []bool) int {
	n := 0
	for _, b := range bits {
		if b {
			n++
		}
	}
	return n
}

// parseNames decodes the UTF-16LE filename block: one NUL-terminated
// name per entry, in declaration order.
func parseNames(pr *bytes.Reader, entries []sz.FileEntry) error {
	external, err := sz.ReadByte(pr)
	if err != nil {
		return err
	}
	if external != 0 {
		return fmt.Errorf("%w: external file names", sz.ErrHeaderEncoding)
	}

	raw, err := io.ReadAll(pr)
	if err != nil {
		return err
	}

	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	start := 0
	next := 0
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] != 0 || raw[i+1] != 0 {
			continue
		}
		if next >= len(entries) {
			return fmt.Errorf("%w: more names than files", sz.ErrFormat)
		}
		name, err := dec.Bytes(raw[start:i])
		if err != nil {
			return fmt.Errorf("failed to decode file name %d: %w", next, err)
		}
		entries[next].Name = string(name)
		next++
		start = i + 2
	}
	if next != len(entries) {
		return fmt.Errorf("%w: %d names for %d files", sz.ErrFormat, next, len(entries))
	}
	return nil
}

func parseTimes(pr *bytes.Reader, entries []sz.FileEntry, which uint64) error {
	defined, err := sz.ReadOptionalBitVector(pr, len(entries))
	if err != nil {
		return err
	}
	external, err := sz.ReadByte(pr)
	if err != nil {
		return err
	}
	if external != 0 {
		return fmt.Errorf("%w: external timestamps", sz.ErrHeaderEncoding)
	}

	for i, d := range defined {
		if !d {
			continue
		}
		ticks, err := sz.ReadUint64(pr)
		if err != nil {
			return fmt.Errorf("failed to read timestamp: %w", err)
		}
		t := sz.TimeFromFiletime(ticks)
		switch which {
		case sz.IDCTime:
			entries[i].Created = t
		case sz.IDATime:
			entries[i].Accessed = t
		case sz.IDMTime:
			entries[i].Modified = t
		}
	}
	return nil
}

func parseAttributes(pr *bytes.Reader, entries []sz.FileEntry) error {
	defined, err := sz.ReadOptionalBitVector(pr, len(entries))
	if err != nil {
		return err
	}
	external, err := sz.ReadByte(pr)
	if err != nil {
		return err
	}
	if external != 0 {
		return fmt.Errorf("%w: external attributes", sz.ErrHeaderEncoding)
	}

	for i, d := range defined {
		if !d {
			continue
		}
		if entries[i].Attributes, err = sz.ReadUint32(pr); err != nil {
			return fmt.Errorf("failed to read attributes: %w", err)
		}
	}
	return nil
}

// bindStreams classifies each entry as directory, empty file or
// substream-backed, and assigns folder and substream indices to the
// backed ones in declaration order.
func bindStreams(entries []sz.FileEntry, si *sz.StreamsInfo, emptyStream, emptyFile, anti []bool) error {
	ss := &si.SubStreams

	emptyIdx := 0
	folderIdx := 0
	streamInFolder := 0
	globalSub := 0

	for i := range entries {
		e := &entries[i]

		if emptyStream != nil && emptyStream[i] {
			isEmptyFile := emptyFile != nil && emptyIdx < len(emptyFile) && emptyFile[emptyIdx]
			isAnti := anti != nil && emptyIdx < len(anti) && anti[emptyIdx]
			e.IsEmpty = isEmptyFile
			e.IsAnti = isAnti
			e.IsDirectory = !isEmptyFile && !isAnti
			emptyIdx++
			continue
		}

		for folderIdx < len(ss.Counts) && streamInFolder >= ss.Counts[folderIdx] {
			folderIdx++
			streamInFolder = 0
		}
		if folderIdx >= len(ss.Counts) {
			return fmt.Errorf("%w: file %q has no backing substream", sz.ErrFormat, e.Name)
		}

		e.Folder = folderIdx
		e.Stream = streamInFolder
		e.Size = ss.Sizes[globalSub]
		if ss.Defined[globalSub] {
			e.CRC = ss.CRCs[globalSub]
			e.HasCRC = true
		}

		streamInFolder++
		globalSub++
	}
	return nil
}
