// Package codec implements the per-folder decompression engine: a
// registry of coder constructors keyed by method ID, and the wiring
// that instantiates a folder's coder graph in dependency order.
package codec

import (
	"io"

	"github.com/okvist/sevenz/internal/sz"
)

// NewReaderFunc builds a pull-based decoder: given the method's
// property blob, the declared output size and the upstream byte
// sources, it returns a reader producing the decoded stream.
type NewReaderFunc func(props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error)

var registry = map[sz.MethodID]NewReaderFunc{
	sz.MethodCopy:    newCopyReader,
	sz.MethodLZMA:    newLZMAReader,
	sz.MethodLZMA2:   newLZMA2Reader,
	sz.MethodDelta:   newDeltaReader,
	sz.MethodBCJX86:  newBranchReader(x86Convert),
	sz.MethodARM:     newBranchReader(armConvert),
	sz.MethodARMT:    newBranchReader(armtConvert),
	sz.MethodPPC:     newBranchReader(ppcConvert),
	sz.MethodSPARC:   newBranchReader(sparcConvert),
	sz.MethodDeflate: newDeflateReader,
	sz.MethodBZip2:   newBZip2Reader,
	sz.MethodZstd:    newZstdReader,
}

// Register adds a decoder constructor for a method ID. Later
// registrations replace earlier ones.
func Register(id sz.MethodID, fn NewReaderFunc) {
	registry[id] = fn
}

// Supported reports whether a decoder is registered for id.
func Supported(id sz.MethodID) bool {
	_, ok := registry[id]
	return ok
}

// NewReader instantiates the decoder for id, or fails with
// sz.UnsupportedMethodError naming the method.
func NewReader(id sz.MethodID, props []byte, unpackSize uint64, in []io.Reader) (io.Reader, error) {
	fn, ok := registry[id]
	if !ok {
		return nil, &sz.UnsupportedMethodError{ID: id}
	}
	return fn(props, unpackSize, in)
}

// FolderReader wires up the decoder chain for a folder and returns the
// reader of its final output stream. pack holds the folder's pack
// streams in slot order.
func FolderReader(f *sz.Folder, pack []io.Reader) (io.Reader, error) {
	order, err := f.OrderedCoders()
	if err != nil {
		return nil, err
	}

	outputs := make([]io.Reader, f.NumOutStreams())
	for _, ci := range order {
		coder := f.Coders[ci]

		inputs := make([]io.Reader, coder.NumIn)
		inBase := f.InStreamOffset(ci)
		for j := range inputs {
			in := inBase + j
			if slot := f.PackSlotForIn(in); slot != -1 {
				inputs[j] = pack[slot]
			} else {
				bp := f.BindPairs[f.BindPairForIn(in)]
				inputs[j] = outputs[bp.Out]
			}
		}

		outBase := f.OutStreamOffset(ci)
		r, err := NewReader(coder.ID, coder.Props, f.UnpackSizes[outBase], inputs)
		if err != nil {
			return nil, err
		}
		outputs[outBase] = r
	}

	final, err := f.FinalOutput()
	if err != nil {
		return nil, err
	}
	return io.LimitReader(outputs[final], int64(f.UnpackSizes[final])), nil
}
