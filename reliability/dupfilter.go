package reliability

// DuplicateFilter tracks which of the most recent `window` sequence ids
// have already been handled, so a reliable receiver can silently drop
// retransmissions. The window may be widened past the default 64 but
// never narrowed below MinDuplicateFilterWindow; ids older than the
// tracked window are not guaranteed to be caught.
type DuplicateFilter struct {
	window      int
	words       []uint64
	last        SequenceID
	initialized bool
}

// NewDuplicateFilter builds a filter tracking the most recent window
// sequence ids. Panics if window < MinDuplicateFilterWindow.
func NewDuplicateFilter(window int) *DuplicateFilter {
	if window < MinDuplicateFilterWindow {
		panic("reliability: duplicate filter window below floor")
	}
	return &DuplicateFilter{
		window: window,
		words:  make([]uint64, (window+63)/64),
	}
}

// CheckAndMark reports whether seq has already been handled. If not, it
// marks seq as handled and returns false.
func (f *DuplicateFilter) CheckAndMark(seq SequenceID) (duplicate bool) {
	if !f.initialized {
		f.initialized = true
		f.last = seq
		f.setBit(0)
		return false
	}

	gap := int(Gap(seq, f.last))
	if gap > 0 {
		f.shiftLeft(gap)
		f.last = seq
		f.setBit(0)
		return false
	}

	idx := -gap
	if idx < 0 || idx >= f.window {
		// Outside the tracked window: duplicates this old may escape
		// the filter. Deliver rather than guess.
		return false
	}
	if f.testBit(idx) {
		return true
	}
	f.setBit(idx)
	return false
}

func (f *DuplicateFilter) testBit(idx int) bool {
	return f.words[idx/64]&(1<<uint(idx%64)) != 0
}

func (f *DuplicateFilter) setBit(idx int) {
	f.words[idx/64] |= 1 << uint(idx%64)
}

// shiftLeft moves every tracked bit n positions further from "last",
// discarding anything that falls off the end of the window.
func (f *DuplicateFilter) shiftLeft(n int) {
	total := len(f.words) * 64
	if n >= total {
		for i := range f.words {
			f.words[i] = 0
		}
		return
	}
	wordShift := n / 64
	bitShift := uint(n % 64)
	for i := len(f.words) - 1; i >= 0; i-- {
		srcIdx := i - wordShift
		var v uint64
		if srcIdx >= 0 {
			v = f.words[srcIdx] << bitShift
			if bitShift > 0 && srcIdx-1 >= 0 {
				v |= f.words[srcIdx-1] >> (64 - bitShift)
			}
		}
		f.words[i] = v
	}
}
