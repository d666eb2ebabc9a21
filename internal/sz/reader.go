package sz

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ReadNumber reads the 7z variable-length unsigned integer from r.
// The first byte is a length prefix: each leading 1 bit, from the most
// significant bit down, adds one little-endian extension byte, and the
// remaining low bits of the first byte become the most significant bits
// of the value. Eight leading 1 bits therefore carry a full 64-bit
// value in the extension bytes.
func ReadNumber(r io.Reader) (uint64, error) {
	first, err := ReadByte(r)
	if err != nil {
		return 0, fmt.Errorf("failed to read number prefix: %w", err)
	}

	var value uint64
	mask := byte(0x80)
	for i := 0; i < 8; i++ {
		if first&mask == 0 {
			value |= uint64(first&(mask-1)) << (8 * i)
			return value, nil
		}
		b, err := ReadByte(r)
		if err != nil {
			return 0, fmt.Errorf("failed to read number byte %d: %w", i, err)
		}
		value |= uint64(b) << (8 * i)
		mask >>= 1
	}
	return value, nil
}

// ReadByte reads a single byte from r, reporting ErrTruncated on EOF.
func ReadByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, truncated(err)
	}
	return buf[0], nil
}

// ReadUint32 reads a fixed-width little-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, truncated(err)
	}
	return v, nil
}

// ReadUint64 reads a fixed-width little-endian uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, truncated(err)
	}
	return v, nil
}

// ReadBytes reads exactly n raw bytes. Sizes come from header fields,
// so the buffer grows as bytes arrive: a forged size fails with
// ErrTruncated once the source runs out instead of allocating the
// declared amount up front.
func ReadBytes(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: invalid size %d", ErrTruncated, n)
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		return nil, truncated(err)
	}
	return buf.Bytes(), nil
}

// ReadBitVector reads n bits packed most-significant-bit first.
func ReadBitVector(r io.Reader, n int) ([]bool, error) {
	buf, err := ReadBytes(r, (n+7)/8)
	if err != nil {
		return nil, fmt.Errorf("failed to read bit vector: %w", err)
	}

	bits := make([]bool, n)
	for i := range bits {
		bits[i] = buf[i/8]&(0x80>>(i%8)) != 0
	}
	return bits, nil
}

// ReadOptionalBitVector reads a bit vector preceded by the "all
// defined" shortcut byte: a nonzero flag stands for n 1-bits with no
// bitmap following.
func ReadOptionalBitVector(r io.Reader, n int) ([]bool, error) {
	all, err := ReadByte(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read all-defined flag: %w", err)
	}

	if all != 0 {
		bits := make([]bool, n)
		for i := range bits {
			bits[i] = true
		}
		return bits, nil
	}
	return ReadBitVector(r, n)
}

// truncated folds the io EOF errors into ErrTruncated so callers see a
// single error kind for a source that ends mid-structure.
func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}
