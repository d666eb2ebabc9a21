package sz

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestReadNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    uint64
		wantErr bool
	}{
		{
			name:  "zero",
			input: []byte{0x00},
			want:  0,
		},
		{
			name:  "single byte maximum",
			input: []byte{0x7F},
			want:  127,
		},
		{
			name:  "one extension byte",
			input: []byte{0x80, 0x80},
			want:  128,
		},
		{
			name:  "one extension byte with high bits",
			input: []byte{0xBF, 0x34},
			want:  0x3F34,
		},
		{
			name:  "two extension bytes",
			input: []byte{0xC0, 0x34, 0x12},
			want:  0x1234,
		},
		{
			name:  "full 64-bit value",
			input: []byte{0xFF, 0xEF, 0xCD, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01},
			want:  0x0123456789ABCDEF,
		},
		{
			name:    "empty input",
			input:   []byte{},
			wantErr: true,
		},
		{
			name:    "missing extension byte",
			input:   []byte{0x80},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadNumber(bytes.NewReader(tt.input))

			if tt.wantErr {
				if err == nil {
					t.Fatal("ReadNumber() succeeded unexpectedly, wanted error")
				}
				if !errors.Is(err, ErrTruncated) {
					t.Errorf("ReadNumber() error = %v, want ErrTruncated", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ReadNumber() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadNumber() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestReadBitVector(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		n     int
		want  []bool
	}{
		{
			name:  "msb first within a byte",
			input: []byte{0xA0},
			n:     4,
			want:  []bool{true, false, true, false},
		},
		{
			name:  "spans two bytes",
			input: []byte{0x01, 0x80},
			n:     9,
			want:  []bool{false, false, false, false, false, false, false, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadBitVector(bytes.NewReader(tt.input), tt.n)
			if err != nil {
				t.Fatalf("ReadBitVector() failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReadBitVector() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadOptionalBitVector(t *testing.T) {
	t.Run("all defined shortcut", func(t *testing.T) {
		got, err := ReadOptionalBitVector(bytes.NewReader([]byte{0x01}), 3)
		if err != nil {
			t.Fatalf("ReadOptionalBitVector() failed: %v", err)
		}
		if !reflect.DeepEqual(got, []bool{true, true, true}) {
			t.Errorf("ReadOptionalBitVector() = %v, want all true", got)
		}
	})

	t.Run("explicit bitmap", func(t *testing.T) {
		got, err := ReadOptionalBitVector(bytes.NewReader([]byte{0x00, 0x40}), 3)
		if err != nil {
			t.Fatalf("ReadOptionalBitVector() failed: %v", err)
		}
		if !reflect.DeepEqual(got, []bool{false, true, false}) {
			t.Errorf("ReadOptionalBitVector() = %v, want [false true false]", got)
		}
	})

	t.Run("truncated bitmap", func(t *testing.T) {
		_, err := ReadOptionalBitVector(bytes.NewReader([]byte{0x00}), 9)
		if !errors.Is(err, ErrTruncated) {
			t.Errorf("ReadOptionalBitVector() error = %v, want ErrTruncated", err)
		}
	})
}

func TestReadBytesTruncated(t *testing.T) {
	_, err := ReadBytes(bytes.NewReader([]byte{1, 2}), 4)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadBytes() error = %v, want ErrTruncated", err)
	}
}

func TestReadBytesForgedSize(t *testing.T) {
	if _, err := ReadBytes(bytes.NewReader([]byte{1, 2}), -1); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadBytes(-1) error = %v, want ErrTruncated", err)
	}

	// A size far beyond the source must fail once the bytes run out,
	// not allocate the declared amount up front.
	if _, err := ReadBytes(bytes.NewReader([]byte{1, 2}), 1<<40); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadBytes(1<<40) error = %v, want ErrTruncated", err)
	}
}

func TestTimeFromFiletime(t *testing.T) {
	// 2006-03-15 21:43:36 UTC, the fixture timestamp of a well-known
	// reference archive.
	got := TimeFromFiletime(127869326160000000)
	if got.Format("2006-01-02 15:04:05") != "2006-03-15 21:43:36" {
		t.Errorf("TimeFromFiletime() = %v", got)
	}

	if back := FiletimeFromTime(got); back != 127869326160000000 {
		t.Errorf("FiletimeFromTime() = %d, want 127869326160000000", back)
	}
}
