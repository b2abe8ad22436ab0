package heap

import (
	"encoding/binary"

	wasmgc "github.com/wippyai/wasm-gc"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/layout"
	"github.com/wippyai/wasm-gc/resource"
	"go.uber.org/zap"
)

// Destructor runs when an object of a registered type is reclaimed, before
// its outgoing references are released and before its storage is reused.
type Destructor func(ref gcref.Ref) error

type typeInfo struct {
	layout *layout.Info
	dtor   Destructor
}

// Heap is a deferred reference-counted GC heap. Objects live at 8-aligned
// byte offsets in a single growable backing store; a reference is the
// offset itself. Objects never move, but the backing store may be
// reallocated on growth, which bumps Generation.
//
// A Heap has a single mutator and is not safe for concurrent use.
type Heap struct {
	hosts  *resource.Table
	act    *ActivationTable
	types  map[uint32]*typeInfo
	mem    []byte
	heads  []uint64 // one bit per 8-byte granule, set at object starts
	free   freeList
	cfg    Config
	stats  counters
	gen    uint64
	bump   uint32
	closed bool
}

type counters struct {
	allocs    uint64
	frees     uint64
	live      uint64
	liveBytes uint64
}

var (
	_ wasmgc.Memory = (*Heap)(nil)
	_ Context       = (*Heap)(nil)
)

// New creates a heap.
func New(cfg Config) (*Heap, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Heap{
		cfg:   cfg,
		mem:   make([]byte, cfg.InitialSize),
		heads: make([]uint64, granules(cfg.InitialSize)),
		types: make(map[uint32]*typeInfo),
		hosts: resource.NewTable(),
		// offset 0 is null
		bump: layout.ObjectAlign,
	}
	h.act = newActivationTable(h, cfg.ActivationTableCapacity)
	return h, nil
}

func granules(size uint32) int {
	return int((size/layout.ObjectAlign + 63) / 64)
}

// Config returns the heap configuration.
func (h *Heap) Config() Config { return h.cfg }

// Activations returns the heap's activation table.
func (h *Heap) Activations() *ActivationTable { return h.act }

// Hosts returns the table of host values behind externref objects.
func (h *Heap) Hosts() *resource.Table { return h.hosts }

// RegisterType records the layout of a struct or array type so that
// reclaiming its objects releases their outgoing references.
func (h *Heap) RegisterType(typeIndex uint32, info *layout.Info) {
	ti := h.types[typeIndex]
	if ti == nil {
		ti = &typeInfo{}
		h.types[typeIndex] = ti
	}
	ti.layout = info
}

// SetDestructor registers d to run when objects of typeIndex are reclaimed.
// A nil d removes the destructor.
func (h *Heap) SetDestructor(typeIndex uint32, d Destructor) {
	ti := h.types[typeIndex]
	if ti == nil {
		ti = &typeInfo{}
		h.types[typeIndex] = ti
	}
	ti.dtor = d
}

// Base returns the backing store. It is valid until the next call that
// may allocate; compare Generation to detect a move.
func (h *Heap) Base() []byte { return h.mem }

// Bound returns the size of the backing store.
func (h *Heap) Bound() uint32 { return uint32(len(h.mem)) }

// Generation is incremented whenever the backing store moves.
func (h *Heap) Generation() uint64 { return h.gen }

// Head returns the activation table's bump index.
func (h *Heap) Head() uint32 { return h.act.Head() }

// Capacity returns the activation table's capacity.
func (h *Heap) Capacity() uint32 { return h.act.Capacity() }

func (h *Heap) isHead(off uint32) bool {
	g := off / layout.ObjectAlign
	return h.heads[g/64]&(1<<(g%64)) != 0
}

func (h *Heap) setHead(off uint32) {
	g := off / layout.ObjectAlign
	h.heads[g/64] |= 1 << (g % 64)
}

func (h *Heap) clearHead(off uint32) {
	g := off / layout.ObjectAlign
	h.heads[g/64] &^= 1 << (g % 64)
}

// live returns the offset of a live heap object or a dangling trap.
func (h *Heap) live(ref gcref.Ref, op string) (uint32, error) {
	off := ref.Index()
	if !ref.IsHeap() || off%layout.ObjectAlign != 0 ||
		uint64(off)+layout.HeaderSize > uint64(len(h.mem)) || !h.isHead(off) {
		return 0, errors.NewTrap(errors.TrapDanglingReference, op)
	}
	return off, nil
}

// Check verifies that ref is null, an i31, or a live object.
func (h *Heap) Check(ref gcref.Ref) error {
	if !ref.IsHeap() {
		return nil
	}
	_, err := h.live(ref, "check")
	return err
}

// IsLive reports whether ref is a live heap object.
func (h *Heap) IsLive(ref gcref.Ref) bool {
	_, err := h.live(ref, "")
	return err == nil
}

// Header returns the kind and type index of a live object.
func (h *Heap) Header(ref gcref.Ref) (layout.Kind, uint32, error) {
	off, err := h.live(ref, "header")
	if err != nil {
		return 0, 0, err
	}
	return layout.FromWord(h.u32(off + layout.HeaderKindOffset)), h.u32(off + layout.HeaderTypeOffset), nil
}

// RefCount returns the reference count of a live object.
func (h *Heap) RefCount(ref gcref.Ref) (uint64, error) {
	off, err := h.live(ref, "refcount")
	if err != nil {
		return 0, err
	}
	return h.u64(off + layout.RefCountOffset), nil
}

// ArrayLen returns the length of a live array.
func (h *Heap) ArrayLen(ref gcref.Ref) (uint32, error) {
	off, err := h.live(ref, "array.len")
	if err != nil {
		return 0, err
	}
	return h.u32(off + layout.ArrayLengthOffset), nil
}

// Object field access. Offsets are relative to the object start and must
// lie within the object; callers compute them from the type's layout.

// Load8 reads a byte field.
func (h *Heap) Load8(ref gcref.Ref, off uint32) uint8 { return h.mem[ref.Index()+off] }

// Load16 reads a 16-bit field.
func (h *Heap) Load16(ref gcref.Ref, off uint32) uint16 { return h.u16(ref.Index() + off) }

// Load32 reads a 32-bit field.
func (h *Heap) Load32(ref gcref.Ref, off uint32) uint32 { return h.u32(ref.Index() + off) }

// Load64 reads a 64-bit field.
func (h *Heap) Load64(ref gcref.Ref, off uint32) uint64 { return h.u64(ref.Index() + off) }

// LoadRef reads a reference field without touching counts.
func (h *Heap) LoadRef(ref gcref.Ref, off uint32) gcref.Ref { return gcref.Ref(h.u32(ref.Index() + off)) }

// Store8 writes a byte field.
func (h *Heap) Store8(ref gcref.Ref, off uint32, v uint8) { h.mem[ref.Index()+off] = v }

// Store16 writes a 16-bit field.
func (h *Heap) Store16(ref gcref.Ref, off uint32, v uint16) { h.putU16(ref.Index()+off, v) }

// Store32 writes a 32-bit field.
func (h *Heap) Store32(ref gcref.Ref, off uint32, v uint32) { h.putU32(ref.Index()+off, v) }

// Store64 writes a 64-bit field.
func (h *Heap) Store64(ref gcref.Ref, off uint32, v uint64) { h.putU64(ref.Index()+off, v) }

// StoreRef writes a reference field without touching counts. Use the
// barrier package for counted slots.
func (h *Heap) StoreRef(ref gcref.Ref, off uint32, v gcref.Ref) { h.putU32(ref.Index()+off, uint32(v)) }

// Bytes returns n bytes of an object starting at off. The slice aliases
// the backing store and is valid until the next allocation.
func (h *Heap) Bytes(ref gcref.Ref, off, n uint32) []byte {
	start := ref.Index() + off
	return h.mem[start : start+n : start+n]
}

func (h *Heap) u16(off uint32) uint16 { return binary.LittleEndian.Uint16(h.mem[off:]) }
func (h *Heap) u32(off uint32) uint32 { return binary.LittleEndian.Uint32(h.mem[off:]) }
func (h *Heap) u64(off uint32) uint64 { return binary.LittleEndian.Uint64(h.mem[off:]) }

func (h *Heap) putU16(off uint32, v uint16) { binary.LittleEndian.PutUint16(h.mem[off:], v) }
func (h *Heap) putU32(off uint32, v uint32) { binary.LittleEndian.PutUint32(h.mem[off:], v) }
func (h *Heap) putU64(off uint32, v uint64) { binary.LittleEndian.PutUint64(h.mem[off:], v) }

// Close releases every activation root and host value. The heap must not
// be used afterwards.
func (h *Heap) Close() error {
	if h.closed {
		return nil
	}
	err := h.act.Reset()
	if cerr := h.hosts.Close(); err == nil {
		err = cerr
	}
	h.closed = true
	Logger().Debug("heap closed",
		zap.Uint64("allocs", h.stats.allocs),
		zap.Uint64("frees", h.stats.frees),
		zap.Uint64("live", h.stats.live))
	h.mem = nil
	h.heads = nil
	h.free.reset()
	return err
}
