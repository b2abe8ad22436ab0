package recipe

import (
	"github.com/wippyai/wasm-gc/barrier"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/layout"
)

// ifHeap branches to yes when v is a heap reference and to no when it is
// null or an i31. The tag bit is tested first.
func ifHeap(e *Emitter, v Value, yes, no BlockID) {
	notI31 := e.NewBlock()
	tag := e.BandImm(v, 1)
	e.Brif(tag, no, notI31)
	e.Switch(notI31)
	null := e.IcmpImm(Eq, v, 0)
	e.Brif(null, no, yes)
}

// incRef adds one to the count of the object at v in place.
func incRef(e *Emitter, base, v Value) {
	a := e.Addr(base, v)
	c := e.Load(I64, a, layout.RefCountOffset)
	c = e.IaddImm(c, 1)
	e.Store(c, a, layout.RefCountOffset)
}

// decRef subtracts one from the count of the object at v and calls
// gc_drop when it reaches zero. Control continues at done.
func decRef(e *Emitter, base, v Value, done BlockID) {
	drop := e.NewBlock()
	a := e.Addr(base, v)
	c := e.Load(I64, a, layout.RefCountOffset)
	c = e.IaddImm(c, -1)
	e.Store(c, a, layout.RefCountOffset)
	zero := e.IcmpImm(Eq, c, 0)
	e.Brif(zero, drop, done)

	e.Switch(drop)
	e.Call(Drop, v)
	e.Jump(done)
}

// StoreBarrier stores v into a slot known to hold null. Parameters are the
// slot's heap offset and v. Slots that are never counted get a single raw
// store without branches.
func StoreBarrier(reg *gctype.Registry, slot gctype.RefType) *Program {
	e, params := NewEmitter("store_barrier", I32, I32)
	addr, v := params[0], params[1]
	base := e.Base()

	if !barrier.Needs(reg, slot) {
		e.Store(v, e.Addr(base, addr), 0)
		e.Return()
		return e.Finish()
	}

	inc := e.NewBlock()
	store := e.NewBlock()
	ifHeap(e, v, inc, store)

	e.Switch(inc)
	incRef(e, base, v)
	e.Jump(store)

	e.Switch(store)
	e.Store(v, e.Addr(base, addr), 0)
	e.Return()
	return e.Finish()
}

// WriteBarrier overwrites a slot: the new value is counted, stored, and
// then the old value is released. Parameters are the slot's heap offset
// and the new value.
func WriteBarrier(reg *gctype.Registry, slot gctype.RefType) *Program {
	e, params := NewEmitter("write_barrier", I32, I32)
	addr, v := params[0], params[1]
	base := e.Base()

	if !barrier.Needs(reg, slot) {
		e.Store(v, e.Addr(base, addr), 0)
		e.Return()
		return e.Finish()
	}

	slotAddr := e.Addr(base, addr)
	old := e.Load(I32, slotAddr, 0)

	inc := e.NewBlock()
	store := e.NewBlock()
	ifHeap(e, v, inc, store)

	e.Switch(inc)
	incRef(e, base, v)
	e.Jump(store)

	e.Switch(store)
	e.Store(v, slotAddr, 0)
	dec := e.NewBlock()
	done := e.NewBlock()
	ifHeap(e, old, dec, done)

	e.Switch(dec)
	decRef(e, base, old, done)

	e.Switch(done)
	e.Return()
	return e.Finish()
}

// ClearBarrier overwrites a slot with null and releases its old value.
func ClearBarrier(reg *gctype.Registry, slot gctype.RefType) *Program {
	e, params := NewEmitter("clear_barrier", I32)
	addr := params[0]
	base := e.Base()
	slotAddr := e.Addr(base, addr)
	null := e.Iconst(I32, 0)

	if !barrier.Needs(reg, slot) {
		e.Store(null, slotAddr, 0)
		e.Return()
		return e.Finish()
	}

	old := e.Load(I32, slotAddr, 0)
	e.Store(null, slotAddr, 0)
	dec := e.NewBlock()
	done := e.NewBlock()
	ifHeap(e, old, dec, done)

	e.Switch(dec)
	decRef(e, base, old, done)

	e.Switch(done)
	e.Return()
	return e.Finish()
}

// Spill roots a reference across a call through the runtime's
// activation table. Null and i31 values are skipped inline. While the
// table has room the entry is bumped and counted inline; gc_ref_inc_slow
// runs only when head has reached capacity.
func Spill() *Program {
	e, params := NewEmitter("spill", I32)
	v := params[0]
	check := e.NewBlock()
	fast := e.NewBlock()
	slow := e.NewBlock()
	done := e.NewBlock()
	ifHeap(e, v, check, done)

	e.Switch(check)
	head := e.VMLoad(VMActivationHead)
	capacity := e.VMLoad(VMActivationCapacity)
	room := e.Icmp(Ult, head, capacity)
	e.Brif(room, fast, slow)

	e.Switch(fast)
	incRef(e, e.Base(), v)
	e.ActivationStore(head, v)
	e.VMStore(VMActivationHead, e.IaddImm(head, 1))
	e.Jump(done)

	e.Switch(slow)
	e.Call(RefIncSlow, v)
	e.Jump(done)

	e.Switch(done)
	e.Return()
	return e.Finish()
}

// i31Member reports whether i31 values belong to heap type h. Externalised
// i31 values keep their encoding, so extern accepts them too.
func i31Member(h gctype.HeapType) bool {
	switch h {
	case gctype.HeapI31, gctype.HeapEq, gctype.HeapAny, gctype.HeapExtern:
		return true
	}
	return false
}

func boolConst(e *Emitter, b bool) Value {
	if b {
		return e.Iconst(I32, 1)
	}
	return e.Iconst(I32, 0)
}

// RefTest returns 1 if its parameter is a member of target, else 0. A
// concrete test compares type indices inline and calls gc_subtype_check
// only when they differ. Function types are not heap objects and have no
// recipe.
func RefTest(reg *gctype.Registry, target gctype.RefType) (*Program, error) {
	h := target.Heap
	if reg.TopOf(h) == gctype.HeapFunc {
		return nil, errors.Unsupported(errors.PhaseCast, "ref.test recipe for function references")
	}

	e, params := NewEmitter("ref_test", I32)
	v := params[0]

	i31 := e.NewBlock()
	notI31 := e.NewBlock()
	tag := e.BandImm(v, 1)
	e.Brif(tag, i31, notI31)

	e.Switch(i31)
	e.Return(boolConst(e, i31Member(h)))

	e.Switch(notI31)
	null := e.NewBlock()
	obj := e.NewBlock()
	isNull := e.IcmpImm(Eq, v, 0)
	e.Brif(isNull, null, obj)

	e.Switch(null)
	e.Return(boolConst(e, target.Nullable))

	e.Switch(obj)
	var kind layout.Kind
	switch {
	case h == gctype.HeapAny || h == gctype.HeapExtern:
		e.Return(e.Iconst(I32, 1))
		return e.Finish(), nil
	case h == gctype.HeapEq:
		kind = layout.KindEqRef
	case h == gctype.HeapStruct:
		kind = layout.KindStructRef
	case h == gctype.HeapArray:
		kind = layout.KindArrayRef
	case h.IsConcrete():
		return concreteTest(e, reg, v, h.Index())
	default:
		e.Return(e.Iconst(I32, 0))
		return e.Finish(), nil
	}

	base := e.Base()
	word := e.Load(I32, e.Addr(base, v), layout.HeaderKindOffset)
	bits := e.BandImm(word, int64(kind))
	e.Return(e.IcmpImm(Eq, bits, int64(kind)))
	return e.Finish(), nil
}

func concreteTest(e *Emitter, reg *gctype.Registry, v Value, want gctype.TypeIndex) (*Program, error) {
	var kind layout.Kind
	switch reg.Kind(want) {
	case gctype.CompStruct:
		kind = layout.KindStructRef
	case gctype.CompArray:
		kind = layout.KindArrayRef
	default:
		return nil, errors.NotFound(errors.PhaseCast, "type", want)
	}

	base := e.Base()
	a := e.Addr(base, v)
	word := e.Load(I32, a, layout.HeaderKindOffset)
	k := e.BandImm(word, int64(layout.KindMask))
	sameKind := e.IcmpImm(Eq, k, int64(kind))
	check := e.NewBlock()
	fail := e.NewBlock()
	e.Brif(sameKind, check, fail)

	e.Switch(fail)
	e.Return(e.Iconst(I32, 0))

	e.Switch(check)
	typ := e.Load(I32, a, layout.HeaderTypeOffset)
	same := e.IcmpImm(Eq, typ, int64(want))
	hit := e.NewBlock()
	slow := e.NewBlock()
	e.Brif(same, hit, slow)

	e.Switch(hit)
	e.Return(e.Iconst(I32, 1))

	e.Switch(slow)
	r := e.Call(SubtypeCheck, typ, e.Iconst(I32, int64(want)))
	e.Return(r)
	return e.Finish(), nil
}

// Alloc allocates an object of typ through gc_alloc_raw. Struct recipes
// take no parameters; array recipes take the length, compute the size with
// overflow checks, and store the length after the call with a reloaded
// heap base.
func Alloc(calc *layout.Calculator, typ gctype.TypeIndex) (*Program, error) {
	info, err := calc.Layout(typ)
	if err != nil {
		return nil, err
	}

	if !info.IsArray() {
		e, _ := NewEmitter("alloc_struct")
		r := e.Call(AllocRaw,
			e.Iconst(I32, int64(layout.KindStructRef)),
			e.Iconst(I32, int64(typ)),
			e.Iconst(I32, int64(info.Size)),
			e.Iconst(I32, layout.ObjectAlign))
		e.Return(r)
		return e.Finish(), nil
	}

	e, params := NewEmitter("alloc_array", I32)
	n := params[0]
	tooLarge := e.NewBlock()
	noWrap := e.NewBlock()
	inLimit := e.NewBlock()
	alloc := e.NewBlock()

	shift := int64(info.ElemShift)
	scaled := e.IshlImm(n, shift)
	back := e.UshrImm(scaled, shift)
	fits := e.Icmp(Eq, back, n)
	e.Brif(fits, noWrap, tooLarge)

	e.Switch(noWrap)
	size := e.IaddImm(scaled, int64(info.Elem.Offset))
	wrapped := e.Icmp(Ult, size, scaled)
	e.Brif(wrapped, tooLarge, inLimit)

	e.Switch(inLimit)
	over := e.IcmpImm(Ugt, size, layout.MaxObjectSize)
	e.Brif(over, tooLarge, alloc)

	e.Switch(alloc)
	r := e.Call(AllocRaw,
		e.Iconst(I32, int64(layout.KindArrayRef)),
		e.Iconst(I32, int64(typ)),
		size,
		e.Iconst(I32, layout.ObjectAlign))
	base := e.Base()
	e.Store(n, e.Addr(base, r), layout.ArrayLengthOffset)
	e.Return(r)

	e.Switch(tooLarge)
	e.Trap(errors.TrapAllocationTooLarge)
	return e.Finish(), nil
}

// I31Get unboxes an i31 reference, trapping on null.
func I31Get(signed bool) *Program {
	name := "i31_get_u"
	if signed {
		name = "i31_get_s"
	}
	e, params := NewEmitter(name, I32)
	v := params[0]
	null := e.NewBlock()
	ok := e.NewBlock()
	isNull := e.IcmpImm(Eq, v, 0)
	e.Brif(isNull, null, ok)

	e.Switch(null)
	e.Trap(errors.TrapNullI31Reference)

	e.Switch(ok)
	if signed {
		e.Return(e.SshrImm(v, 1))
	} else {
		e.Return(e.UshrImm(v, 1))
	}
	return e.Finish()
}
