package heap

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/layout"
	"github.com/wippyai/wasm-gc/resource"
	"go.uber.org/zap"
)

// IncRef adds one to the count of a heap object. Null and i31 values are
// ignored. Counts are 64-bit and not checked for overflow.
func (h *Heap) IncRef(ref gcref.Ref) error {
	if !ref.IsHeap() {
		return nil
	}
	off, err := h.live(ref, "gc_ref_inc")
	if err != nil {
		return err
	}
	p := off + layout.RefCountOffset
	h.putU64(p, h.u64(p)+1)
	return nil
}

// DecRef subtracts one from the count of a heap object and reclaims it
// when the count reaches zero. It reports whether anything was reclaimed.
func (h *Heap) DecRef(ref gcref.Ref) (bool, error) {
	if !ref.IsHeap() {
		return false, nil
	}
	off, err := h.live(ref, "gc_ref_dec")
	if err != nil {
		return false, err
	}
	p := off + layout.RefCountOffset
	c := h.u64(p)
	if c == 0 {
		// already being reclaimed
		return false, errors.NewTrap(errors.TrapDanglingReference, "gc_ref_dec")
	}
	c--
	h.putU64(p, c)
	if c != 0 {
		return false, nil
	}
	return true, h.Drop(ref)
}

// Drop reclaims an object whose count has reached zero: its destructor
// runs, its outgoing references are released, and its storage returns to
// the free list. Objects released transitively are reclaimed by the same
// loop rather than by recursion, so long chains cannot exhaust the stack.
func (h *Heap) Drop(ref gcref.Ref) error {
	off, err := h.live(ref, "gc_drop")
	if err != nil {
		return err
	}
	if c := h.u64(off + layout.RefCountOffset); c != 0 {
		return errors.New(errors.PhaseBarrier, errors.KindInvalidInput).
			Path("gc_drop").
			Value(c).
			Detail("object %s still has %d references", ref, c).
			Build()
	}

	work := []uint32{off}
	for len(work) > 0 {
		off = work[len(work)-1]
		work = work[:len(work)-1]
		work = h.reclaim(off, work)
	}
	return nil
}

// reclaim frees one object and appends children whose count reached zero.
func (h *Heap) reclaim(off uint32, work []uint32) []uint32 {
	ref := gcref.FromIndex(off)
	kind := layout.FromWord(h.u32(off + layout.HeaderKindOffset))
	typeIndex := h.u32(off + layout.HeaderTypeOffset)
	ti := h.types[typeIndex]

	if ti != nil && ti.dtor != nil && kind != layout.KindExternRef {
		if err := ti.dtor(ref); err != nil {
			Logger().Warn("destructor failed",
				zap.Stringer("ref", ref),
				zap.Uint32("type", typeIndex),
				zap.Error(err))
		}
		if c := h.u64(off + layout.RefCountOffset); c != 0 {
			Logger().Debug("object resurrected by destructor",
				zap.Stringer("ref", ref),
				zap.Uint64("count", c))
			return work
		}
	}

	switch {
	case kind == layout.KindExternRef:
		h.hosts.Remove(resource.Handle(h.u32(off + layout.ExternHostOffset)))
	case ti != nil && ti.layout != nil:
		work = h.releaseChildren(off, ti.layout, work)
	}

	word := h.u32(off + layout.HeaderKindOffset)
	size := layout.WordSize(word)
	h.putU32(off+layout.HeaderKindOffset, word|layout.FreedBit)
	h.clearHead(off)

	h.stats.frees++
	h.stats.live--
	h.stats.liveBytes -= uint64(size)

	Logger().Debug("object reclaimed",
		zap.Stringer("ref", ref),
		zap.Stringer("kind", kind),
		zap.Uint32("type", typeIndex),
		zap.Uint32("size", size))

	h.Free(off, size, layout.ObjectAlign)
	return work
}

func (h *Heap) releaseChildren(off uint32, info *layout.Info, work []uint32) []uint32 {
	if info.IsArray() {
		if !info.Elem.Counted {
			return work
		}
		n := h.u32(off + layout.ArrayLengthOffset)
		for i := uint32(0); i < n; i++ {
			work = h.release(h.u32(off+info.ElemOffset(i)), work)
		}
		return work
	}
	for _, fo := range info.RefOffsets {
		work = h.release(h.u32(off+fo), work)
	}
	return work
}

func (h *Heap) release(v uint32, work []uint32) []uint32 {
	child := gcref.Ref(v)
	if !child.IsHeap() {
		return work
	}
	off, err := h.live(child, "gc_drop")
	if err != nil {
		Logger().Warn("dangling reference in reclaimed object", zap.Stringer("ref", child))
		return work
	}
	p := off + layout.RefCountOffset
	c := h.u64(p)
	if c == 0 {
		return work
	}
	c--
	h.putU64(p, c)
	if c == 0 {
		work = append(work, off)
	}
	return work
}
