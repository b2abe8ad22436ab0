package heap

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"go.uber.org/zap"
)

// ActivationTable is the root set for references held outside the heap:
// freshly allocated objects, locals spilled across calls, and values
// handed to the host. Each entry owns one count on its object.
//
// Entries are appended at Head. When Head reaches Capacity the slow path
// first compacts released entries and then doubles the table. Push and Pop
// bracket a scope: Pop releases everything exposed since the matching Push.
type ActivationTable struct {
	h       *Heap
	entries []gcref.Ref
	marks   []uint32
	head    uint32
}

func newActivationTable(h *Heap, capacity uint32) *ActivationTable {
	return &ActivationTable{
		h:       h,
		entries: make([]gcref.Ref, capacity),
	}
}

// Head returns the index of the next free entry.
func (t *ActivationTable) Head() uint32 { return t.head }

// Capacity returns the number of entries before the slow path runs.
func (t *ActivationTable) Capacity() uint32 { return uint32(len(t.entries)) }

// Len returns the number of live entries.
func (t *ActivationTable) Len() int {
	n := 0
	for _, r := range t.entries[:t.head] {
		if r != gcref.Null {
			n++
		}
	}
	return n
}

// Depth returns the number of open scopes.
func (t *ActivationTable) Depth() int { return len(t.marks) }

// Expose roots ref in the current scope, taking a new count on it. Null
// and i31 values are ignored.
func (t *ActivationTable) Expose(ref gcref.Ref) error {
	if !ref.IsHeap() {
		return nil
	}
	if t.head == t.Capacity() {
		return t.ExposeSlow(ref)
	}
	if err := t.h.IncRef(ref); err != nil {
		return err
	}
	t.entries[t.head] = ref
	t.head++
	return nil
}

// Put writes ref into entry i without counting it. Together with SetHead it
// is the inline half of Expose used by compiled code, which increments the
// count itself and calls ExposeSlow only when Head reaches Capacity.
func (t *ActivationTable) Put(i uint32, ref gcref.Ref) error {
	if i >= t.Capacity() {
		return errors.OutOfBounds(errors.PhaseBarrier, []string{"activation table"}, int(i), int(t.Capacity()))
	}
	t.entries[i] = ref
	return nil
}

// SetHead moves the next free entry. It may not pass Capacity or drop
// below the innermost scope.
func (t *ActivationTable) SetHead(head uint32) error {
	if head > t.Capacity() || head < t.floor() {
		return errors.OutOfBounds(errors.PhaseBarrier, []string{"activation table", "head"}, int(head), int(t.Capacity()))
	}
	t.head = head
	return nil
}

// ExposeSlow is the out-of-line path of Expose, taken when the table is
// full. It makes room and then records ref.
func (t *ActivationTable) ExposeSlow(ref gcref.Ref) error {
	if !ref.IsHeap() {
		return nil
	}
	if err := t.h.IncRef(ref); err != nil {
		return err
	}
	t.adopt(ref)
	return nil
}

// adopt records ref without taking a count; the caller transfers one.
func (t *ActivationTable) adopt(ref gcref.Ref) {
	if t.head == t.Capacity() {
		t.makeRoom()
	}
	t.entries[t.head] = ref
	t.head++
}

func (t *ActivationTable) makeRoom() {
	before := t.head
	t.compact()
	if t.head < t.Capacity() {
		Logger().Debug("activation table compacted",
			zap.Uint32("from", before),
			zap.Uint32("to", t.head))
		return
	}

	capacity := 2 * len(t.entries)
	if capacity < 16 {
		capacity = 16
	}
	entries := make([]gcref.Ref, capacity)
	copy(entries, t.entries[:t.head])
	t.entries = entries
	Logger().Debug("activation table grew", zap.Int("capacity", capacity))
}

// compact squeezes out released entries, keeping order and moving scope
// marks with the entries they bracket.
func (t *ActivationTable) compact() {
	j := uint32(0)
	m := 0
	for i := uint32(0); i < t.head; i++ {
		for m < len(t.marks) && t.marks[m] == i {
			t.marks[m] = j
			m++
		}
		if r := t.entries[i]; r != gcref.Null {
			t.entries[j] = r
			j++
		}
	}
	for ; m < len(t.marks); m++ {
		t.marks[m] = j
	}
	clear(t.entries[j:t.head])
	t.head = j
}

func (t *ActivationTable) floor() uint32 {
	if n := len(t.marks); n > 0 {
		return t.marks[n-1]
	}
	return 0
}

// Release drops the most recent entry holding ref and its count. It
// reports whether an entry was found.
func (t *ActivationTable) Release(ref gcref.Ref) (bool, error) {
	if !ref.IsHeap() {
		return false, nil
	}
	for i := int(t.head) - 1; i >= 0; i-- {
		if t.entries[i] != ref {
			continue
		}
		t.entries[i] = gcref.Null
		floor := t.floor()
		for t.head > floor && t.entries[t.head-1] == gcref.Null {
			t.head--
		}
		_, err := t.h.DecRef(ref)
		return true, err
	}
	return false, nil
}

// Push opens a scope.
func (t *ActivationTable) Push() {
	t.marks = append(t.marks, t.head)
}

// Pop closes the innermost scope, releasing every entry exposed in it.
// Without an open scope it behaves like Reset.
func (t *ActivationTable) Pop() error {
	mark := uint32(0)
	if n := len(t.marks); n > 0 {
		mark = t.marks[n-1]
		t.marks = t.marks[:n-1]
	}
	return t.releaseFrom(mark)
}

// Reset closes every scope and releases every entry. Hosts call it when
// control leaves the runtime.
func (t *ActivationTable) Reset() error {
	t.marks = t.marks[:0]
	return t.releaseFrom(0)
}

func (t *ActivationTable) releaseFrom(mark uint32) error {
	if mark >= t.head {
		return nil
	}
	dropped := make([]gcref.Ref, t.head-mark)
	copy(dropped, t.entries[mark:t.head])
	clear(t.entries[mark:t.head])
	t.head = mark

	var first error
	for _, r := range dropped {
		if r == gcref.Null {
			continue
		}
		if _, err := t.h.DecRef(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Each calls fn for every live entry from oldest to newest.
func (t *ActivationTable) Each(fn func(gcref.Ref) bool) {
	for _, r := range t.entries[:t.head] {
		if r != gcref.Null && !fn(r) {
			return
		}
	}
}
