package store

import (
	"github.com/wippyai/wasm-gc/barrier"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/layout"
)

// NoMax marks a table without a declared maximum.
const NoMax = ^uint32(0)

// Table is a table of references. Function tables hold gcref.FuncRef
// bits; every other table holds gcref.Ref values and barriers stores when
// its element type is counted.
type Table struct {
	typ     gctype.RefType
	elems   []gcref.Ref
	max     uint32
	counted bool
}

// Type returns the element type.
func (t *Table) Type() gctype.RefType { return t.typ }

// Max returns the declared maximum, or NoMax.
func (t *Table) Max() uint32 { return t.max }

// NewTable creates a table of min entries set to init.
func (s *Store) NewTable(t gctype.RefType, min, max uint32, init uint64) (*Table, error) {
	if err := s.ensureOpen("table.new"); err != nil {
		return nil, err
	}
	if max != NoMax && min > max {
		return nil, errors.InvalidInput(errors.PhaseAccess, "table minimum exceeds maximum")
	}
	if min > s.cfg.tableLimit() {
		return nil, errors.NewTrap(errors.TrapAllocationTooLarge, "table.new")
	}
	tab := &Table{
		typ:     t,
		max:     max,
		counted: s.reg.Counted(t),
	}
	if _, err := s.growTable(tab, min, init); err != nil {
		return nil, err
	}
	s.tables = append(s.tables, tab)
	return tab, nil
}

func (s *Store) growTable(t *Table, delta uint32, init uint64) (uint32, error) {
	old := uint32(len(t.elems))
	if t.counted {
		if err := s.heap.Check(gcref.Ref(init)); err != nil {
			return 0, err
		}
	}
	elems := make([]gcref.Ref, int(old)+int(delta))
	copy(elems, t.elems)
	if t.counted {
		values := make([]gcref.Ref, delta)
		for i := range values {
			values[i] = gcref.Ref(init)
		}
		if err := barrier.WriteAll(s.heap, barrier.Cells(elems[old:]), values); err != nil {
			return 0, err
		}
	} else {
		for i := old; i < old+delta; i++ {
			elems[i] = gcref.Ref(init)
		}
	}
	t.elems = elems
	return old, nil
}

// TableSize returns the number of entries.
func (s *Store) TableSize(t *Table) uint32 { return uint32(len(t.elems)) }

// TableGet reads entry i.
func (s *Store) TableGet(t *Table, i uint32) (uint64, error) {
	if i >= uint32(len(t.elems)) {
		return 0, errors.NewTrap(errors.TrapTableOutOfBounds, "table.get")
	}
	return uint64(t.elems[i]), nil
}

// TableSet writes entry i.
func (s *Store) TableSet(t *Table, i uint32, v uint64) error {
	if err := s.ensureOpen("table.set"); err != nil {
		return err
	}
	if i >= uint32(len(t.elems)) {
		return errors.NewTrap(errors.TrapTableOutOfBounds, "table.set")
	}
	if !t.counted {
		t.elems[i] = gcref.Ref(v)
		return nil
	}
	return barrier.Write(s.heap, barrier.Cell{P: &t.elems[i]}, gcref.Ref(v))
}

// TableGrow appends delta entries set to init and returns the previous
// size, or -1 if the table would exceed its maximum.
func (s *Store) TableGrow(t *Table, init uint64, delta uint32) (int64, error) {
	if err := s.ensureOpen("table.grow"); err != nil {
		return -1, err
	}
	size := uint64(len(t.elems)) + uint64(delta)
	if size > uint64(t.max) || size > uint64(s.cfg.tableLimit()) {
		return -1, nil
	}
	old, err := s.growTable(t, delta, init)
	if err != nil {
		return -1, err
	}
	return int64(old), nil
}

// TableFill writes v into entries [i, i+n). Nothing is written if the
// range exceeds the table.
func (s *Store) TableFill(t *Table, i uint32, v uint64, n uint32) error {
	if err := s.ensureOpen("table.fill"); err != nil {
		return err
	}
	if !layout.InRange(i, n, uint32(len(t.elems))) {
		return errors.NewTrap(errors.TrapTableOutOfBounds, "table.fill")
	}
	values := make([]gcref.Ref, n)
	for j := range values {
		values[j] = gcref.Ref(v)
	}
	return s.writeEntries(t, i, values)
}

// TableCopy copies n entries from src[si:] to dst[di:]. The tables may be
// the same and the ranges may overlap.
func (s *Store) TableCopy(dst *Table, di uint32, src *Table, si, n uint32) error {
	if err := s.ensureOpen("table.copy"); err != nil {
		return err
	}
	if !layout.InRange(di, n, uint32(len(dst.elems))) || !layout.InRange(si, n, uint32(len(src.elems))) {
		return errors.NewTrap(errors.TrapTableOutOfBounds, "table.copy")
	}
	values := append([]gcref.Ref(nil), src.elems[si:si+n]...)
	return s.writeEntries(dst, di, values)
}

// TableInit copies n entries of seg starting at si into t[di:].
func (s *Store) TableInit(t *Table, di uint32, seg *ElemSegment, si, n uint32) error {
	if err := s.ensureOpen("table.init"); err != nil {
		return err
	}
	if !layout.InRange(di, n, uint32(len(t.elems))) {
		return errors.NewTrap(errors.TrapTableOutOfBounds, "table.init")
	}
	src, err := elemRange(seg, si, n, "table.init")
	if err != nil {
		return err
	}
	return s.writeEntries(t, di, append([]gcref.Ref(nil), src...))
}

// writeEntries stores values into t[i:] as one barriered unit.
func (s *Store) writeEntries(t *Table, i uint32, values []gcref.Ref) error {
	dst := t.elems[i : i+uint32(len(values))]
	if !t.counted {
		copy(dst, values)
		return nil
	}
	return barrier.WriteAll(s.heap, barrier.Cells(dst), values)
}
