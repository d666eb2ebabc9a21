package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/okvist/sevenz/internal/sz"
)

// convertFunc applies one ISA's branch-target transform in place.
// ip is the instruction-pointer bias of the buffer's first byte.
// encoding selects the forward (compress-time) direction; decoding
// applies the inverse. It returns the number of bytes processed, which
// may fall short of len(data) when the tail is too small to hold a full
// instruction.
type convertFunc func(data []byte, ip uint32, encoding bool) int

// newBranchReader adapts a branch-target transform into a decoder. The
// transform needs instruction-window lookahead, so the whole stream is
// materialized before the inverse pass runs; filter output is
// byte-for-byte the same size as its input.
func newBranchReader(convert convertFunc) NewReaderFunc {
	return func(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
		if len(props) != 0 {
			// A start-offset property exists in the format but no known
			// encoder emits it.
			return nil, fmt.Errorf("%w: branch filter start offsets are not supported", sz.ErrDecompress)
		}
		return &branchReader{src: in[0], size: unpackSize, convert: convert}, nil
	}
}

type branchReader struct {
	src     io.Reader
	size    uint64
	convert convertFunc
	out     *bytes.Reader
}

func (b *branchReader) Read(p []byte) (int, error) {
	if b.out == nil {
		buf := make([]byte, b.size)
		if _, err := io.ReadFull(b.src, buf); err != nil {
			return 0, fmt.Errorf("%w: branch filter input ended early: %v", sz.ErrDecompress, err)
		}
		b.convert(buf, 0, false)
		b.out = bytes.NewReader(buf)
	}
	return b.out.Read(p)
}

func test86MSByte(b byte) bool {
	return b == 0x00 || b == 0xFF
}

// x86Convert rewrites the 32-bit targets of CALL/JMP rel32 opcodes
// (0xE8/0xE9) between absolute and relative form. Port of the reference
// Bra86 filter.
func x86Convert(data []byte, ip uint32, encoding bool) int {
	if len(data) < 5 {
		return 0
	}
	size := len(data) - 4
	ip += 5

	var mask uint32
	pos := 0
	for {
		p := pos
		for p < size && data[p]&0xFE != 0xE8 {
			p++
		}

		d := p - pos
		pos = p
		if p >= size {
			if d > 2 {
				return pos
			}
			return pos
		}
		if d > 2 {
			mask = 0
		} else {
			mask >>= uint(d)
			if mask != 0 && (mask > 4 || mask == 3 || test86MSByte(data[p+int(mask>>1)+1])) {
				mask = mask>>1 | 4
				pos++
				continue
			}
		}

		if test86MSByte(data[p+4]) {
			v := uint32(data[p+4])<<24 | uint32(data[p+3])<<16 | uint32(data[p+2])<<8 | uint32(data[p+1])
			cur := ip + uint32(pos)
			pos += 5
			if encoding {
				v += cur
			} else {
				v -= cur
			}
			if mask != 0 {
				sh := (mask & 6) << 2
				if test86MSByte(byte(v >> sh)) {
					v ^= uint32(0x100)<<sh - 1
					if encoding {
						v += cur
					} else {
						v -= cur
					}
				}
				mask = 0
			}
			data[p+1] = byte(v)
			data[p+2] = byte(v >> 8)
			data[p+3] = byte(v >> 16)
			data[p+4] = byte(0 - v>>24&1)
		} else {
			mask = mask>>1 | 4
			pos++
		}
	}
}

// armConvert handles the ARM BL instruction: a 24-bit word-scaled
// offset in little-endian words tagged 0xEB.
func armConvert(data []byte, ip uint32, encoding bool) int {
	ip += 8
	var i int
	for i = 0; i+4 <= len(data); i += 4 {
		if data[i+3] != 0xEB {
			continue
		}
		v := uint32(data[i+2])<<16 | uint32(data[i+1])<<8 | uint32(data[i])
		v <<= 2
		if encoding {
			v += ip + uint32(i)
		} else {
			v -= ip + uint32(i)
		}
		v >>= 2
		data[i+2] = byte(v >> 16)
		data[i+1] = byte(v >> 8)
		data[i] = byte(v)
	}
	return i
}

// armtConvert handles the Thumb BL instruction pair: two 16-bit
// halfwords tagged 0xF0/0xF8 carrying an 11-bit offset each.
func armtConvert(data []byte, ip uint32, encoding bool) int {
	ip += 4
	i := 0
	for i+4 <= len(data) {
		if data[i+1]&0xF8 != 0xF0 || data[i+3]&0xF8 != 0xF8 {
			i += 2
			continue
		}
		v := uint32(data[i+1]&0x07)<<19 | uint32(data[i])<<11 | uint32(data[i+3]&0x07)<<8 | uint32(data[i+2])
		v <<= 1
		if encoding {
			v += ip + uint32(i)
		} else {
			v -= ip + uint32(i)
		}
		v >>= 1
		data[i+1] = byte(0xF0 | v>>19&0x07)
		data[i] = byte(v >> 11)
		data[i+3] = byte(0xF8 | v>>8&0x07)
		data[i+2] = byte(v)
		i += 4
	}
	return i
}

// ppcConvert handles the PowerPC branch instruction: big-endian words
// whose top 6 bits are 0b010010 with the LK bit set.
func ppcConvert(data []byte, ip uint32, encoding bool) int {
	var i int
	for i = 0; i+4 <= len(data); i += 4 {
		v := uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3])
		if v&0xFC000003 != 0x48000001 {
			continue
		}
		target := v & 0x03FFFFFC
		if encoding {
			target += ip + uint32(i)
		} else {
			target -= ip + uint32(i)
		}
		v = 0x48000001 | target&0x03FFFFFC
		data[i] = byte(v >> 24)
		data[i+1] = byte(v >> 16)
		data[i+2] = byte(v >> 8)
		data[i+3] = byte(v)
	}
	return i
}

// sparcConvert handles the SPARC CALL instruction: big-endian words
// with a 30-bit word-scaled displacement.
func sparcConvert(data []byte, ip uint32, encoding bool) int {
	var i int
	for i = 0; i+4 <= len(data); i += 4 {
		if !(data[i] == 0x40 && data[i+1]&0xC0 == 0) &&
			!(data[i] == 0x7F && data[i+1]&0xC0 == 0xC0) {
			continue
		}
		v := uint32(data[i])<<24 | uint32(data[i+1])<<16 | uint32(data[i+2])<<8 | uint32(data[i+3])
		v <<= 2
		if encoding {
			v += ip + uint32(i)
		} else {
			v -= ip + uint32(i)
		}
		v >>= 2
		v = (0-v>>22)<<22&0x3FFFFFFF | v&0x3FFFFF | 0x40000000
		data[i] = byte(v >> 24)
		data[i+1] = byte(v >> 16)
		data[i+2] = byte(v >> 8)
		data[i+3] = byte(v)
	}
	return i
}
