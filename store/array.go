package store

import (
	"github.com/wippyai/wasm-gc/barrier"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/layout"
)

func (s *Store) arrayLayout(typ gctype.TypeIndex, op string) (*layout.Info, *gctype.ArrayType, error) {
	if err := s.ensureOpen(op); err != nil {
		return nil, nil, err
	}
	at, ok := s.reg.Array(typ)
	if !ok {
		return nil, nil, errors.TypeMismatch(errors.PhaseAccess, []string{op}, "array type", s.reg.Name(gctype.Concrete(typ)))
	}
	info, err := s.layouts.Layout(typ)
	if err != nil {
		return nil, nil, err
	}
	return info, at, nil
}

// array checks obj against typ and returns its layout and length.
func (s *Store) array(obj gcref.Ref, typ gctype.TypeIndex, op string) (*layout.Info, *gctype.ArrayType, uint32, error) {
	info, at, err := s.arrayLayout(typ, op)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := s.object(obj, typ, op, errors.TrapNullArrayReference); err != nil {
		return nil, nil, 0, err
	}
	n, err := s.heap.ArrayLen(obj)
	if err != nil {
		return nil, nil, 0, err
	}
	return info, at, n, nil
}

// allocArray allocates an array of n elements with its length set. The
// payload is zeroed unless zero is false.
func (s *Store) allocArray(typ gctype.TypeIndex, info *layout.Info, n uint32, zero bool) (gcref.Ref, error) {
	size, err := info.ArraySize(n)
	if err != nil {
		return gcref.Null, err
	}
	alloc := s.heap.AllocRaw
	if !zero {
		alloc = s.heap.AllocUninit
	}
	ref, err := alloc(layout.KindArrayRef, uint32(typ), size, layout.ObjectAlign)
	if err != nil {
		return gcref.Null, err
	}
	s.heap.Store32(ref, layout.ArrayLengthOffset, n)
	return ref, nil
}

func checkScalarElem(f layout.Field, op string) error {
	if f.Size == 16 {
		return errors.Unsupported(errors.PhaseAccess, "v128 elements through "+op)
	}
	return nil
}

// ArrayNew allocates an array of n copies of v.
func (s *Store) ArrayNew(typ gctype.TypeIndex, v uint64, n uint32) (gcref.Ref, error) {
	info, _, err := s.arrayLayout(typ, "array.new")
	if err != nil {
		return gcref.Null, err
	}
	if v != 0 {
		if err := checkScalarElem(info.Elem, "array.new"); err != nil {
			return gcref.Null, err
		}
	}
	if err := s.checkRef(info.Elem.Counted, v); err != nil {
		return gcref.Null, err
	}
	ref, err := s.allocArray(typ, info, n, true)
	if err != nil || v == 0 {
		return ref, err
	}
	for i := uint32(0); i < n; i++ {
		if err := s.writeSlot(ref, info.ElemOffset(i), info.Elem, v, true); err != nil {
			return gcref.Null, err
		}
	}
	return ref, nil
}

// ArrayNewDefault allocates an array of n zero or null elements.
func (s *Store) ArrayNewDefault(typ gctype.TypeIndex, n uint32) (gcref.Ref, error) {
	info, at, err := s.arrayLayout(typ, "array.new_default")
	if err != nil {
		return gcref.Null, err
	}
	if !at.Element.Storage.Defaultable() {
		return gcref.Null, errors.TypeMismatch(errors.PhaseAlloc, []string{"array.new_default"},
			"defaultable element", at.Element.Storage.String())
	}
	return s.allocArray(typ, info, n, true)
}

// ArrayNewFixed allocates an array holding values.
func (s *Store) ArrayNewFixed(typ gctype.TypeIndex, values []uint64) (gcref.Ref, error) {
	info, _, err := s.arrayLayout(typ, "array.new_fixed")
	if err != nil {
		return gcref.Null, err
	}
	if len(values) > 0 {
		if err := checkScalarElem(info.Elem, "array.new_fixed"); err != nil {
			return gcref.Null, err
		}
	}
	if uint64(len(values)) > uint64(^uint32(0)) {
		return gcref.Null, errors.NewTrap(errors.TrapAllocationTooLarge, "array.new_fixed")
	}
	for _, v := range values {
		if err := s.checkRef(info.Elem.Counted, v); err != nil {
			return gcref.Null, err
		}
	}
	ref, err := s.allocArray(typ, info, uint32(len(values)), true)
	if err != nil {
		return gcref.Null, err
	}
	for i, v := range values {
		if err := s.writeSlot(ref, info.ElemOffset(uint32(i)), info.Elem, v, true); err != nil {
			return gcref.Null, err
		}
	}
	return ref, nil
}

// dataRange returns the bytes of n elements of the given shift starting at
// offset off of seg, or an out of bounds memory trap.
func dataRange(seg *DataSegment, off, n, shift uint32, op string) ([]byte, error) {
	size := uint64(n) << shift
	data := seg.bytes()
	if uint64(off)+size > uint64(len(data)) {
		return nil, errors.NewTrap(errors.TrapMemoryOutOfBounds, op)
	}
	return data[off : uint64(off)+size], nil
}

func elemRange(seg *ElemSegment, off, n uint32, op string) ([]gcref.Ref, error) {
	entries := seg.entries
	if !layout.InRange(off, n, uint32(len(entries))) {
		return nil, errors.NewTrap(errors.TrapTableOutOfBounds, op)
	}
	return entries[off : off+n], nil
}

// ArrayNewData allocates an array of n numeric elements decoded little
// endian from seg starting at byte offset off. The segment range is
// checked before anything is allocated.
func (s *Store) ArrayNewData(typ gctype.TypeIndex, seg *DataSegment, off, n uint32) (gcref.Ref, error) {
	info, _, err := s.arrayLayout(typ, "array.new_data")
	if err != nil {
		return gcref.Null, err
	}
	if info.Elem.Storage.IsRef() {
		return gcref.Null, errors.TypeMismatch(errors.PhaseAlloc, []string{"array.new_data"}, "numeric element", info.Elem.Storage.String())
	}
	src, err := dataRange(seg, off, n, info.ElemShift, "array.new_data")
	if err != nil {
		return gcref.Null, err
	}
	ref, err := s.allocArray(typ, info, n, false)
	if err != nil {
		return gcref.Null, err
	}
	copy(s.heap.Bytes(ref, info.Elem.Offset, uint32(len(src))), src)
	return ref, nil
}

// ArrayNewElem allocates an array of n references copied from seg
// starting at entry off.
func (s *Store) ArrayNewElem(typ gctype.TypeIndex, seg *ElemSegment, off, n uint32) (gcref.Ref, error) {
	info, _, err := s.arrayLayout(typ, "array.new_elem")
	if err != nil {
		return gcref.Null, err
	}
	if !info.Elem.Storage.IsRef() {
		return gcref.Null, errors.TypeMismatch(errors.PhaseAlloc, []string{"array.new_elem"}, "reference element", info.Elem.Storage.String())
	}
	src, err := elemRange(seg, off, n, "array.new_elem")
	if err != nil {
		return gcref.Null, err
	}
	ref, err := s.allocArray(typ, info, n, true)
	if err != nil {
		return gcref.Null, err
	}
	for i, v := range src {
		if err := s.writeSlot(ref, info.ElemOffset(uint32(i)), info.Elem, uint64(v), true); err != nil {
			return gcref.Null, err
		}
	}
	return ref, nil
}

func (s *Store) arrayGet(obj gcref.Ref, typ gctype.TypeIndex, i uint32, ext extension) (uint64, error) {
	op := "array.get" + ext.suffix()
	info, _, n, err := s.array(obj, typ, op)
	if err != nil {
		return 0, err
	}
	if err := checkAccess(info.Elem.Storage, ext, []string{op}); err != nil {
		return 0, err
	}
	if i >= n {
		return 0, errors.NewTrap(errors.TrapArrayOutOfBounds, op)
	}
	return s.readRaw(obj, info.ElemOffset(i), info.Elem, ext), nil
}

// ArrayGet reads an unpacked element.
func (s *Store) ArrayGet(obj gcref.Ref, typ gctype.TypeIndex, i uint32) (uint64, error) {
	return s.arrayGet(obj, typ, i, extNone)
}

// ArrayGetS reads a packed element, sign-extended to i32.
func (s *Store) ArrayGetS(obj gcref.Ref, typ gctype.TypeIndex, i uint32) (uint64, error) {
	return s.arrayGet(obj, typ, i, extSigned)
}

// ArrayGetU reads a packed element, zero-extended to i32.
func (s *Store) ArrayGetU(obj gcref.Ref, typ gctype.TypeIndex, i uint32) (uint64, error) {
	return s.arrayGet(obj, typ, i, extUnsigned)
}

func (s *Store) mutableArray(obj gcref.Ref, typ gctype.TypeIndex, op string) (*layout.Info, uint32, error) {
	info, at, n, err := s.array(obj, typ, op)
	if err != nil {
		return nil, 0, err
	}
	if !at.Element.Mutable {
		return nil, 0, errors.Immutable(errors.PhaseAccess, []string{op})
	}
	return info, n, nil
}

// ArraySet writes element i.
func (s *Store) ArraySet(obj gcref.Ref, typ gctype.TypeIndex, i uint32, v uint64) error {
	info, n, err := s.mutableArray(obj, typ, "array.set")
	if err != nil {
		return err
	}
	if err := checkScalarElem(info.Elem, "array.set"); err != nil {
		return err
	}
	if i >= n {
		return errors.NewTrap(errors.TrapArrayOutOfBounds, "array.set")
	}
	return s.writeSlot(obj, info.ElemOffset(i), info.Elem, v, false)
}

// ArrayLen returns the length of any array.
func (s *Store) ArrayLen(obj gcref.Ref) (uint32, error) {
	if err := s.ensureOpen("array.len"); err != nil {
		return 0, err
	}
	if obj.IsNull() {
		return 0, errors.NewTrap(errors.TrapNullArrayReference, "array.len")
	}
	kind, _, err := s.heap.Header(obj)
	if err != nil {
		return 0, err
	}
	if kind != layout.KindArrayRef {
		return 0, errors.TypeMismatch(errors.PhaseAccess, []string{"array.len"}, "array", kind.String())
	}
	return s.heap.ArrayLen(obj)
}

// ArrayFill writes v into elements [off, off+n). Nothing is written if the
// range exceeds the array.
func (s *Store) ArrayFill(obj gcref.Ref, typ gctype.TypeIndex, off uint32, v uint64, n uint32) error {
	info, length, err := s.mutableArray(obj, typ, "array.fill")
	if err != nil {
		return err
	}
	if err := checkScalarElem(info.Elem, "array.fill"); err != nil {
		return err
	}
	if !layout.InRange(off, n, length) {
		return errors.NewTrap(errors.TrapArrayOutOfBounds, "array.fill")
	}
	if info.Elem.Counted {
		values := make([]gcref.Ref, n)
		for i := range values {
			values[i] = gcref.Ref(v)
		}
		return barrier.WriteAll(s.heap, barrier.Elements(s.heap, obj, info.ElemOffset(off), n), values)
	}
	for i := uint32(0); i < n; i++ {
		s.writeRaw(obj, info.ElemOffset(off+i), info.Elem, v)
	}
	return nil
}

// ArrayCopy copies n elements from src[si:] to dst[di:]. The arrays may be
// the same and the ranges may overlap. Both ranges are checked before
// anything is written.
func (s *Store) ArrayCopy(dst gcref.Ref, dstType gctype.TypeIndex, di uint32, src gcref.Ref, srcType gctype.TypeIndex, si, n uint32) error {
	dinfo, dlen, err := s.mutableArray(dst, dstType, "array.copy")
	if err != nil {
		return err
	}
	sinfo, _, slen, err := s.array(src, srcType, "array.copy")
	if err != nil {
		return err
	}
	if !layout.InRange(di, n, dlen) || !layout.InRange(si, n, slen) {
		return errors.NewTrap(errors.TrapArrayOutOfBounds, "array.copy")
	}
	if dinfo.Elem.Size != sinfo.Elem.Size {
		return errors.TypeMismatch(errors.PhaseAccess, []string{"array.copy"}, dinfo.Elem.Storage.String(), sinfo.Elem.Storage.String())
	}
	if n == 0 {
		return nil
	}

	if dinfo.Elem.Counted {
		values := make([]gcref.Ref, n)
		for i := range values {
			values[i] = s.heap.LoadRef(src, sinfo.ElemOffset(si+uint32(i)))
		}
		return barrier.WriteAll(s.heap, barrier.Elements(s.heap, dst, dinfo.ElemOffset(di), n), values)
	}
	size := n << dinfo.ElemShift
	copy(s.heap.Bytes(dst, dinfo.ElemOffset(di), size), s.heap.Bytes(src, sinfo.ElemOffset(si), size))
	return nil
}

// ArrayInitData overwrites elements [di, di+n) with data from seg starting
// at byte offset si. The array range is checked first, then the segment
// range, and nothing is written if either fails.
func (s *Store) ArrayInitData(obj gcref.Ref, typ gctype.TypeIndex, di uint32, seg *DataSegment, si, n uint32) error {
	info, length, err := s.mutableArray(obj, typ, "array.init_data")
	if err != nil {
		return err
	}
	if info.Elem.Storage.IsRef() {
		return errors.TypeMismatch(errors.PhaseAccess, []string{"array.init_data"}, "numeric element", info.Elem.Storage.String())
	}
	if !layout.InRange(di, n, length) {
		return errors.NewTrap(errors.TrapArrayOutOfBounds, "array.init_data")
	}
	src, err := dataRange(seg, si, n, info.ElemShift, "array.init_data")
	if err != nil {
		return err
	}
	copy(s.heap.Bytes(obj, info.ElemOffset(di), uint32(len(src))), src)
	return nil
}

// ArrayInitElem overwrites elements [di, di+n) with entries of seg
// starting at si.
func (s *Store) ArrayInitElem(obj gcref.Ref, typ gctype.TypeIndex, di uint32, seg *ElemSegment, si, n uint32) error {
	info, length, err := s.mutableArray(obj, typ, "array.init_elem")
	if err != nil {
		return err
	}
	if !info.Elem.Storage.IsRef() {
		return errors.TypeMismatch(errors.PhaseAccess, []string{"array.init_elem"}, "reference element", info.Elem.Storage.String())
	}
	if !layout.InRange(di, n, length) {
		return errors.NewTrap(errors.TrapArrayOutOfBounds, "array.init_elem")
	}
	src, err := elemRange(seg, si, n, "array.init_elem")
	if err != nil {
		return err
	}
	if info.Elem.Counted {
		values := append([]gcref.Ref(nil), src...)
		return barrier.WriteAll(s.heap, barrier.Elements(s.heap, obj, info.ElemOffset(di), n), values)
	}
	for i, v := range src {
		s.heap.StoreRef(obj, info.ElemOffset(di+uint32(i)), v)
	}
	return nil
}

// ArrayGetV128 reads a v128 element.
func (s *Store) ArrayGetV128(obj gcref.Ref, typ gctype.TypeIndex, i uint32) ([16]byte, error) {
	var out [16]byte
	info, _, n, err := s.array(obj, typ, "array.get")
	if err != nil {
		return out, err
	}
	if info.Elem.Size != 16 {
		return out, errors.TypeMismatch(errors.PhaseAccess, []string{"array.get"}, "v128", info.Elem.Storage.String())
	}
	if i >= n {
		return out, errors.NewTrap(errors.TrapArrayOutOfBounds, "array.get")
	}
	copy(out[:], s.heap.Bytes(obj, info.ElemOffset(i), 16))
	return out, nil
}

// ArraySetV128 writes a v128 element.
func (s *Store) ArraySetV128(obj gcref.Ref, typ gctype.TypeIndex, i uint32, v [16]byte) error {
	info, at, n, err := s.array(obj, typ, "array.set")
	if err != nil {
		return err
	}
	if info.Elem.Size != 16 {
		return errors.TypeMismatch(errors.PhaseAccess, []string{"array.set"}, "v128", info.Elem.Storage.String())
	}
	if !at.Element.Mutable {
		return errors.Immutable(errors.PhaseAccess, []string{"array.set"})
	}
	if i >= n {
		return errors.NewTrap(errors.TrapArrayOutOfBounds, "array.set")
	}
	copy(s.heap.Bytes(obj, info.ElemOffset(i), 16), v[:])
	return nil
}
