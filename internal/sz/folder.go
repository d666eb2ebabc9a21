package sz

// Folder is one solid compression block: a directed acyclic graph of
// coders wired by bind pairs, fed by pack streams, producing a single
// decoded output stream. A folder is a decode plan; it owns no bytes.
type Folder struct {
	Coders    []*Coder
	BindPairs []BindPair
	// PackedIndices maps the folder's pack-stream slots to coder input
	// stream indices, in pack-stream consumption order.
	PackedIndices []int
	// UnpackSizes holds the declared output size of every coder output
	// stream, in stream index order.
	UnpackSizes []uint64
	CRC         uint32
	HasCRC      bool

	// Index is the folder's position in the archive, carried for error
	// reporting.
	Index int
}

// NumInStreams counts the input streams across all coders.
func (f *Folder) NumInStreams() int {
	n := 0
	for _, c := range f.Coders {
		n += c.NumIn
	}
	return n
}

// NumOutStreams counts the output streams across all coders.
func (f *Folder) NumOutStreams() int {
	n := 0
	for _, c := range f.Coders {
		n += c.NumOut
	}
	return n
}

// inStreamCoder returns the coder owning global input stream index in.
func (f *Folder) inStreamCoder(in int) int {
	for i, c := range f.Coders {
		if in < c.NumIn {
			return i
		}
		in -= c.NumIn
	}
	return -1
}

// outStreamCoder returns the coder owning global output stream index
// out.
func (f *Folder) outStreamCoder(out int) int {
	for i, c := range f.Coders {
		if out < c.NumOut {
			return i
		}
		out -= c.NumOut
	}
	return -1
}

// OutStreamOffset returns the global index of coder i's first output
// stream.
func (f *Folder) OutStreamOffset(i int) int {
	off := 0
	for _, c := range f.Coders[:i] {
		off += c.NumOut
	}
	return off
}

// InStreamOffset returns the global index of coder i's first input
// stream.
func (f *Folder) InStreamOffset(i int) int {
	off := 0
	for _, c := range f.Coders[:i] {
		off += c.NumIn
	}
	return off
}

// BindPairForIn returns the bind pair feeding input stream in, or -1.
func (f *Folder) BindPairForIn(in int) int {
	for i, bp := range f.BindPairs {
		if bp.In == in {
			return i
		}
	}
	return -1
}

// BindPairForOut returns the bind pair consuming output stream out, or
// -1.
func (f *Folder) BindPairForOut(out int) int {
	for i, bp := range f.BindPairs {
		if bp.Out == out {
			return i
		}
	}
	return -1
}

// PackSlotForIn returns the pack-stream slot feeding input stream in,
// or -1 when the input is bound to another coder's output.
func (f *Folder) PackSlotForIn(in int) int {
	for slot, idx := range f.PackedIndices {
		if idx == in {
			return slot
		}
	}
	return -1
}

// FinalOutput returns the global index of the folder's unique unbound
// output stream. Zero or multiple unbound outputs make the folder
// undecodable.
func (f *Folder) FinalOutput() (int, error) {
	final := -1
	for out := 0; out < f.NumOutStreams(); out++ {
		if f.BindPairForOut(out) != -1 {
			continue
		}
		if final != -1 {
			return -1, &FolderError{Folder: f.Index, Reason: "multiple unbound output streams"}
		}
		final = out
	}
	if final == -1 {
		return -1, &FolderError{Folder: f.Index, Reason: "no unbound output stream"}
	}
	return final, nil
}

// UnpackSize returns the folder's total decoded size: the size of its
// final output stream.
func (f *Folder) UnpackSize() (uint64, error) {
	out, err := f.FinalOutput()
	if err != nil {
		return 0, err
	}
	return f.UnpackSizes[out], nil
}

// Validate checks that every bind pair and packed index references an
// existing stream.
func (f *Folder) Validate() error {
	in, out := f.NumInStreams(), f.NumOutStreams()
	for _, bp := range f.BindPairs {
		if bp.In < 0 || bp.In >= in || bp.Out < 0 || bp.Out >= out {
			return &FolderError{Folder: f.Index, Reason: "bind pair references a nonexistent stream"}
		}
	}
	for _, idx := range f.PackedIndices {
		if idx < 0 || idx >= in {
			return &FolderError{Folder: f.Index, Reason: "packed index references a nonexistent stream"}
		}
	}
	return nil
}

// OrderedCoders returns coder indices in a topological order of the
// bind-pair graph: every coder appears after the coders supplying its
// inputs. Ties break by declaration order so the result is
// deterministic. A cycle, or an input that is neither packed nor bound,
// makes the folder malformed.
func (f *Folder) OrderedCoders() ([]int, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	// deps[i] lists the coders whose outputs feed coder i.
	deps := make([][]int, len(f.Coders))
	pending := make([]int, len(f.Coders))
	for i, c := range f.Coders {
		base := f.InStreamOffset(i)
		for j := 0; j < c.NumIn; j++ {
			in := base + j
			if bp := f.BindPairForIn(in); bp != -1 {
				src := f.outStreamCoder(f.BindPairs[bp].Out)
				deps[i] = append(deps[i], src)
				pending[i]++
			} else if f.PackSlotForIn(in) == -1 {
				return nil, &FolderError{Folder: f.Index, Reason: "coder input is neither packed nor bound"}
			}
		}
	}

	order := make([]int, 0, len(f.Coders))
	done := make([]bool, len(f.Coders))
	for len(order) < len(f.Coders) {
		progressed := false
		for i := range f.Coders {
			if done[i] || pending[i] != 0 {
				continue
			}
			order = append(order, i)
			done[i] = true
			progressed = true
			for j, dd := range deps {
				if done[j] {
					continue
				}
				for _, d := range dd {
					if d == i {
						pending[j]--
					}
				}
			}
		}
		if !progressed {
			return nil, &FolderError{Folder: f.Index, Reason: "coder graph contains a cycle"}
		}
	}
	return order, nil
}

// SubStreamSizes returns the sizes of folder fi's substreams, resolving
// the implicit last size from the folder's total decoded size. offset
// is the index of the folder's first substream within info.Sizes.
func SubStreamSizes(f *Folder, count int, declared []uint64) ([]uint64, error) {
	total, err := f.UnpackSize()
	if err != nil {
		return nil, err
	}
	if count == 1 {
		return []uint64{total}, nil
	}

	sizes := make([]uint64, count)
	var sum uint64
	for i := 0; i < count-1; i++ {
		sizes[i] = declared[i]
		sum += declared[i]
	}
	if sum > total {
		return nil, &FolderError{Folder: f.Index, Reason: "substream sizes exceed folder unpack size"}
	}
	sizes[count-1] = total - sum
	return sizes, nil
}
