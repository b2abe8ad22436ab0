package heap

import (
	"math/bits"

	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/layout"
)

// Stats summarises heap occupancy.
type Stats struct {
	HeapSize    uint64 // backing store size
	Used        uint64 // bump pointer
	FreeBytes   uint64 // bytes on the free list
	FreeBlocks  int
	LiveObjects uint64
	LiveBytes   uint64
	Allocs      uint64
	Frees       uint64
	Generation  uint64
	Roots       int // live activation table entries
	HostValues  int
}

// Stats returns current heap statistics.
func (h *Heap) Stats() Stats {
	return Stats{
		HeapSize:    uint64(len(h.mem)),
		Used:        uint64(h.bump),
		FreeBytes:   h.free.bytes,
		FreeBlocks:  h.free.count(),
		LiveObjects: h.stats.live,
		LiveBytes:   h.stats.liveBytes,
		Allocs:      h.stats.allocs,
		Frees:       h.stats.frees,
		Generation:  h.gen,
		Roots:       h.act.Len(),
		HostValues:  h.hosts.Len(),
	}
}

// Object describes one live heap object.
type Object struct {
	Ref      gcref.Ref
	Kind     layout.Kind
	Type     uint32
	Size     uint32
	Length   uint32 // arrays only
	RefCount uint64
}

// Objects calls fn for every live object in address order until fn
// returns false.
func (h *Heap) Objects(fn func(Object) bool) {
	for w, word := range h.heads {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			word &^= 1 << b
			off := uint32(w*64+b) * layout.ObjectAlign
			if !fn(h.describe(off)) {
				return
			}
		}
	}
}

// Describe returns the description of a live object.
func (h *Heap) Describe(ref gcref.Ref) (Object, error) {
	off, err := h.live(ref, "describe")
	if err != nil {
		return Object{}, err
	}
	return h.describe(off), nil
}

func (h *Heap) describe(off uint32) Object {
	word := h.u32(off + layout.HeaderKindOffset)
	o := Object{
		Ref:      gcref.FromIndex(off),
		Kind:     layout.FromWord(word),
		Type:     h.u32(off + layout.HeaderTypeOffset),
		Size:     layout.WordSize(word),
		RefCount: h.u64(off + layout.RefCountOffset),
	}
	if o.Kind == layout.KindArrayRef {
		o.Length = h.u32(off + layout.ArrayLengthOffset)
	}
	return o
}
