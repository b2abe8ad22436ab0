package heap

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/layout"
	"go.uber.org/zap"
)

// Alloc reserves size bytes aligned to align and returns their offset. It
// is the block layer under AllocRaw; blocks obtained here carry no header
// and are invisible to Objects.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if h.closed {
		return 0, errors.NotInitialized(errors.PhaseAlloc, "heap")
	}
	if align == 0 || align&(align-1) != 0 || align > layout.ObjectAlign {
		return 0, errors.New(errors.PhaseAlloc, errors.KindInvalidInput).
			Path("align").
			Value(align).
			Detail("alignment must be a power of two no larger than %d", layout.ObjectAlign).
			Build()
	}

	need := uint64(layout.AlignTo(size, layout.ObjectAlign))
	if need < uint64(size) || size > layout.MaxObjectSize {
		return 0, errors.NewTrap(errors.TrapAllocationTooLarge, "alloc")
	}
	if need == 0 {
		need = layout.ObjectAlign
	}

	if off, ok := h.free.pop(uint32(need)); ok {
		return off, nil
	}

	end := uint64(h.bump) + need
	if end > uint64(len(h.mem)) {
		if err := h.grow(end); err != nil {
			return 0, err
		}
	}
	off := h.bump
	h.bump = uint32(end)
	return off, nil
}

// Free returns a block obtained from Alloc.
func (h *Heap) Free(ptr, size, align uint32) {
	if h.closed || ptr == 0 {
		return
	}
	length := layout.AlignTo(size, layout.ObjectAlign)
	if length == 0 {
		length = layout.ObjectAlign
	}
	if h.cfg.ZeroFreed {
		clear(h.mem[ptr : ptr+length])
	}
	if ptr+length == h.bump {
		h.bump = ptr
		return
	}
	h.free.insert(ptr, length)
}

// grow enlarges the backing store to hold at least need bytes, doubling
// up to MaxSize.
func (h *Heap) grow(need uint64) error {
	if need > uint64(h.cfg.MaxSize) {
		Logger().Debug("heap exhausted",
			zap.Uint64("need", need),
			zap.Uint32("max", h.cfg.MaxSize))
		return errors.NewTrap(errors.TrapHeapOutOfMemory, "gc_alloc_raw")
	}

	size := uint64(len(h.mem))
	for size < need {
		size *= 2
	}
	if size > uint64(h.cfg.MaxSize) {
		size = uint64(h.cfg.MaxSize)
	}

	mem := make([]byte, size)
	copy(mem, h.mem)
	heads := make([]uint64, granules(uint32(size)))
	copy(heads, h.heads)

	Logger().Debug("heap grew",
		zap.Int("from", len(h.mem)),
		zap.Uint64("to", size),
		zap.Uint64("generation", h.gen+1))

	h.mem = mem
	h.heads = heads
	h.gen++
	return nil
}

// AllocRaw allocates a zero-filled object of the given kind and returns a
// reference to it. Only the kind bits of kind are used. The object starts
// with a reference count of one, owned by the activation table, so it
// stays alive until it is stored somewhere or the table is reset.
func (h *Heap) AllocRaw(kind layout.Kind, typeIndex, size, align uint32) (gcref.Ref, error) {
	return h.alloc(kind, typeIndex, size, align, true)
}

// AllocUninit is AllocRaw without zero-filling the payload. The caller
// must initialise every byte after the header.
func (h *Heap) AllocUninit(kind layout.Kind, typeIndex, size, align uint32) (gcref.Ref, error) {
	return h.alloc(kind, typeIndex, size, align, false)
}

func (h *Heap) alloc(kind layout.Kind, typeIndex, size, align uint32, zero bool) (gcref.Ref, error) {
	kind &= layout.KindMask
	if size > layout.MaxObjectSize {
		return gcref.Null, errors.NewTrap(errors.TrapAllocationTooLarge, "gc_alloc_raw")
	}

	var min uint32
	switch kind {
	case layout.KindStructRef:
		min = layout.HeaderSize
	case layout.KindArrayRef:
		min = layout.ArrayBaseSize
	case layout.KindExternRef:
		min = layout.ExternSize
	default:
		return gcref.Null, errors.New(errors.PhaseAlloc, errors.KindInvalidInput).
			Path("kind").
			Value(uint32(kind)).
			Detail("cannot allocate %s objects", kind).
			Build()
	}
	if size < min {
		return gcref.Null, errors.New(errors.PhaseAlloc, errors.KindInvalidInput).
			Path("size").
			Value(size).
			Detail("%s objects need at least %d bytes", kind, min).
			Build()
	}

	off, err := h.Alloc(size, align)
	if err != nil {
		return gcref.Null, err
	}

	if zero {
		clear(h.mem[off+layout.HeaderSize : off+layout.AlignTo(size, layout.ObjectAlign)])
	}
	h.putU32(off+layout.HeaderKindOffset, layout.HeaderWord(kind, size))
	h.putU32(off+layout.HeaderTypeOffset, typeIndex)
	h.putU64(off+layout.RefCountOffset, 1)
	h.setHead(off)

	h.stats.allocs++
	h.stats.live++
	h.stats.liveBytes += uint64(size)

	ref := gcref.FromIndex(off)
	h.act.adopt(ref)
	return ref, nil
}
