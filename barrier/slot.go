package barrier

import (
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/heap"
)

// Cell is a slot backed by Go memory, used for globals, table entries and
// frame locals.
type Cell struct {
	P *gcref.Ref
}

// Load returns the current value.
func (c Cell) Load() gcref.Ref { return *c.P }

// StoreRaw stores v without touching counts.
func (c Cell) StoreRaw(v gcref.Ref) { *c.P = v }

// Cells returns one slot per element of refs.
func Cells(refs []gcref.Ref) []Slot {
	slots := make([]Slot, len(refs))
	for i := range refs {
		slots[i] = Cell{P: &refs[i]}
	}
	return slots
}

// Field is a slot inside a heap object: a struct field or an array
// element at a byte offset from the object start.
type Field struct {
	Heap   *heap.Heap
	Obj    gcref.Ref
	Offset uint32
}

// Load returns the current value.
func (f Field) Load() gcref.Ref { return f.Heap.LoadRef(f.Obj, f.Offset) }

// StoreRaw stores v without touching counts.
func (f Field) StoreRaw(v gcref.Ref) { f.Heap.StoreRef(f.Obj, f.Offset, v) }

// Elements returns slots for n consecutive reference elements starting at
// byte offset first, spaced 4 bytes apart.
func Elements(h *heap.Heap, obj gcref.Ref, first, n uint32) []Slot {
	slots := make([]Slot, n)
	for i := uint32(0); i < n; i++ {
		slots[i] = Field{Heap: h, Obj: obj, Offset: first + 4*i}
	}
	return slots
}
