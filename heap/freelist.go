package heap

import "sort"

// freeRange groups every free block of one length. Ranges are kept sorted
// by length so the smallest fit is found first.
type freeRange struct {
	offsets []uint32
	length  uint32
}

// freeList tracks reclaimed blocks. All lengths are multiples of 8.
type freeList struct {
	ranges []freeRange
	bytes  uint64
}

func (f *freeList) search(length uint32) int {
	return sort.Search(len(f.ranges), func(i int) bool {
		return f.ranges[i].length >= length
	})
}

// insert adds the block [off, off+length).
func (f *freeList) insert(off, length uint32) {
	i := f.search(length)
	if i < len(f.ranges) && f.ranges[i].length == length {
		f.ranges[i].offsets = append(f.ranges[i].offsets, off)
	} else {
		f.ranges = append(f.ranges, freeRange{})
		copy(f.ranges[i+1:], f.ranges[i:])
		f.ranges[i] = freeRange{length: length, offsets: []uint32{off}}
	}
	f.bytes += uint64(length)
}

// pop removes a block of at least length bytes and returns its offset. A
// longer block is split and its tail goes back on the list.
func (f *freeList) pop(length uint32) (uint32, bool) {
	i := f.search(length)
	if i == len(f.ranges) {
		return 0, false
	}

	r := &f.ranges[i]
	removed := r.length
	n := len(r.offsets)
	off := r.offsets[n-1]
	if n == 1 {
		f.ranges = append(f.ranges[:i], f.ranges[i+1:]...)
	} else {
		r.offsets = r.offsets[:n-1]
	}
	f.bytes -= uint64(removed)

	if removed > length {
		f.insert(off+length, removed-length)
	}
	return off, true
}

// count returns the number of free blocks.
func (f *freeList) count() int {
	n := 0
	for _, r := range f.ranges {
		n += len(r.offsets)
	}
	return n
}

func (f *freeList) reset() {
	f.ranges = nil
	f.bytes = 0
}
