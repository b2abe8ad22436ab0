package barrier

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
)

// Counter maintains reference counts. *heap.Heap implements it. Both
// methods ignore null and i31 values.
type Counter interface {
	IncRef(ref gcref.Ref) error
	DecRef(ref gcref.Ref) (bool, error)
}

// Slot is a root location holding a reference: a global, a table entry,
// a struct field, an array element or a spilled local.
type Slot interface {
	Load() gcref.Ref
	StoreRaw(v gcref.Ref)
}

// Needs reports whether stores into slots of type t need barriers. Slots
// that can only hold null, i31 values or function references take a plain
// store.
func Needs(reg *gctype.Registry, t gctype.RefType) bool {
	return reg.Counted(t)
}

// Init stores v into a slot known to hold null, such as a field of a
// freshly allocated object. v is counted before it is published.
func Init(c Counter, s Slot, v gcref.Ref) error {
	if err := c.IncRef(v); err != nil {
		return err
	}
	s.StoreRaw(v)
	return nil
}

// Write overwrites the value in s with v: the new value is counted, then
// stored, then the old value is released. Releasing may reclaim the old
// object and run destructors; by then s already holds v.
func Write(c Counter, s Slot, v gcref.Ref) error {
	old := s.Load()
	if err := c.IncRef(v); err != nil {
		return err
	}
	s.StoreRaw(v)
	_, err := c.DecRef(old)
	return err
}

// Clear overwrites s with null and releases its old value.
func Clear(c Counter, s Slot) error {
	old := s.Load()
	s.StoreRaw(gcref.Null)
	_, err := c.DecRef(old)
	return err
}

// WriteAll stores values[i] into slots[i] for every i as one unit: every
// new value is counted, every old value is captured, all stores happen,
// and only then are the old values released. Slots may alias each other
// and the source of values, as in an overlapping array.copy.
//
// If counting a new value fails nothing is stored and counts are restored.
func WriteAll(c Counter, slots []Slot, values []gcref.Ref) error {
	if len(slots) != len(values) {
		return errors.New(errors.PhaseBarrier, errors.KindInvalidInput).
			Detail("%d slots for %d values", len(slots), len(values)).
			Build()
	}

	for i, v := range values {
		if err := c.IncRef(v); err != nil {
			for _, done := range values[:i] {
				_, _ = c.DecRef(done)
			}
			return err
		}
	}

	olds := make([]gcref.Ref, len(slots))
	for i, s := range slots {
		olds[i] = s.Load()
	}
	for i, s := range slots {
		s.StoreRaw(values[i])
	}

	var first error
	for _, old := range olds {
		if _, err := c.DecRef(old); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ClearAll overwrites every slot with null and then releases the old
// values.
func ClearAll(c Counter, slots []Slot) error {
	return WriteAll(c, slots, make([]gcref.Ref, len(slots)))
}
