package cast

import (
	"testing"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/layout"
)

type sigTable map[uint32]gctype.TypeIndex

func (s sigTable) FuncType(i uint32) (gctype.TypeIndex, bool) {
	t, ok := s[i]
	return t, ok
}

type fixture struct {
	reg  *gctype.Registry
	heap *heap.Heap
	eng  *Engine

	base, sub, sibling, bytes, sig, subSig gctype.TypeIndex

	baseObj, subObj, siblingObj, arr, ext gcref.Ref
}

func i32Field() gctype.FieldType { return gctype.FieldType{Storage: gctype.Val(gctype.I32)} }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{reg: gctype.NewRegistry()}
	define := func(sub gctype.SubType) gctype.TypeIndex {
		idx, err := f.reg.Define(sub)
		if err != nil {
			t.Fatalf("Define: %v", err)
		}
		return idx
	}

	f.base = define(gctype.StructDef(gctype.StructType{Fields: []gctype.FieldType{i32Field()}}, gctype.NoSuper, false))
	f.sub = define(gctype.StructDef(gctype.StructType{Fields: []gctype.FieldType{i32Field(), i32Field()}}, f.base, false))
	f.sibling = define(gctype.StructDef(gctype.StructType{Fields: []gctype.FieldType{i32Field()}}, f.base, true))
	f.bytes = define(gctype.ArrayDef(gctype.ArrayType{Element: gctype.FieldType{Storage: gctype.Packed(gctype.PackedI8), Mutable: true}}, gctype.NoSuper, false))
	f.sig = define(gctype.FuncDef(gctype.FuncType{Params: []gctype.ValType{gctype.NumVal(gctype.I32)}}, gctype.NoSuper, false))
	f.subSig = define(gctype.FuncDef(gctype.FuncType{Params: []gctype.ValType{gctype.NumVal(gctype.I32)}}, f.sig, false))

	h, err := heap.New(heap.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })
	f.heap = h

	alloc := func(kind layout.Kind, typ gctype.TypeIndex, size uint32) gcref.Ref {
		r, err := h.AllocRaw(kind, uint32(typ), size, 8)
		if err != nil {
			t.Fatalf("AllocRaw: %v", err)
		}
		return r
	}
	f.baseObj = alloc(layout.KindStructRef, f.base, 24)
	f.subObj = alloc(layout.KindStructRef, f.sub, 24)
	f.siblingObj = alloc(layout.KindStructRef, f.sibling, 24)
	f.arr = alloc(layout.KindArrayRef, f.bytes, 24)
	f.ext, err = h.ExternNew("host")
	if err != nil {
		t.Fatal(err)
	}

	f.eng = New(f.reg, h, sigTable{0: f.sig, 1: f.subSig})
	return f
}

func TestTest(t *testing.T) {
	f := newFixture(t)
	concrete := func(idx gctype.TypeIndex) gctype.RefType { return gctype.RefOf(gctype.Concrete(idx)) }

	tests := []struct {
		name   string
		v      gcref.Ref
		target gctype.RefType
		want   bool
	}{
		{"null nullable", gcref.Null, gctype.AnyRef, true},
		{"null non-null", gcref.Null, gctype.RefOf(gctype.HeapAny), false},
		{"null nullref", gcref.Null, gctype.NullRef, true},
		{"null nullable concrete", gcref.Null, gctype.RefNull(gctype.Concrete(f.base)), true},

		{"i31 zero i31", gcref.FromI31(0), gctype.RefOf(gctype.HeapI31), true},
		{"i31 i31ref", gcref.FromI31(5), gctype.I31Ref, true},
		{"i31 eq", gcref.FromI31(5), gctype.EqRef, true},
		{"i31 any", gcref.FromI31(5), gctype.RefOf(gctype.HeapAny), true},
		{"i31 struct", gcref.FromI31(5), gctype.StructRef, false},
		{"i31 array", gcref.FromI31(5), gctype.ArrayRef, false},
		{"i31 concrete", gcref.FromI31(5), concrete(f.base), false},
		{"i31 none", gcref.FromI31(5), gctype.NullRef, false},
		{"externalised i31 as extern", gcref.FromI31(5), gctype.RefOf(gctype.HeapExtern), true},
		{"externalised i31 as noextern", gcref.FromI31(5), gctype.NullExternRef, false},

		{"sub as base", f.subObj, concrete(f.base), true},
		{"sub as sub", f.subObj, concrete(f.sub), true},
		{"sub as sibling", f.subObj, concrete(f.sibling), false},
		{"base as sub", f.baseObj, concrete(f.sub), false},
		{"sibling as base", f.siblingObj, concrete(f.base), true},
		{"struct as struct", f.subObj, gctype.StructRef, true},
		{"struct as array", f.subObj, gctype.ArrayRef, false},
		{"struct as eq", f.subObj, gctype.EqRef, true},
		{"struct as any", f.subObj, gctype.RefOf(gctype.HeapAny), true},
		{"struct as i31", f.subObj, gctype.I31Ref, false},
		{"struct as none", f.subObj, gctype.NullRef, false},
		{"struct as array type", f.baseObj, concrete(f.bytes), false},

		{"array as array", f.arr, gctype.ArrayRef, true},
		{"array as own type", f.arr, concrete(f.bytes), true},
		{"array as struct type", f.arr, concrete(f.base), false},
		{"array as struct", f.arr, gctype.StructRef, false},
		{"array as eq", f.arr, gctype.EqRef, true},

		{"extern as extern", f.ext, gctype.ExternRef, true},
		{"extern as any", f.ext, gctype.AnyRef, true},
		{"extern as eq", f.ext, gctype.EqRef, false},
		{"extern as struct", f.ext, gctype.StructRef, false},
		{"extern as noextern", f.ext, gctype.NullExternRef, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.eng.Test(tc.v, tc.target)
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if got != tc.want {
				t.Errorf("Test(%s, %s): got %v, want %v", tc.v, tc.target, got, tc.want)
			}
		})
	}
}

func TestCastAgreesWithTest(t *testing.T) {
	f := newFixture(t)
	values := []gcref.Ref{gcref.Null, gcref.FromI31(0), gcref.FromI31(0x7fffffff), f.baseObj, f.subObj, f.siblingObj, f.arr, f.ext}
	targets := []gctype.RefType{
		gctype.AnyRef, gctype.RefOf(gctype.HeapAny), gctype.EqRef, gctype.I31Ref, gctype.StructRef,
		gctype.ArrayRef, gctype.NullRef, gctype.ExternRef,
		gctype.RefOf(gctype.Concrete(f.base)), gctype.RefNull(gctype.Concrete(f.sub)),
		gctype.RefOf(gctype.Concrete(f.bytes)),
	}

	for _, v := range values {
		for _, target := range targets {
			ok, err := f.eng.Test(v, target)
			if err != nil {
				t.Fatalf("Test(%s, %s): %v", v, target, err)
			}
			out, err := f.eng.Cast(v, target)
			if ok {
				if err != nil || out != v {
					t.Errorf("Cast(%s, %s): got (%s, %v), want (%s, nil)", v, target, out, err, v)
				}
				continue
			}
			if !errors.Is(err, errors.ErrCastFailure) {
				t.Errorf("Cast(%s, %s): got %v, want cast failure", v, target, err)
			}
			if err != nil && err.Error() != "cast failure" {
				t.Errorf("message: got %q", err.Error())
			}
		}
	}
}

func TestBrOnCastNegation(t *testing.T) {
	f := newFixture(t)
	values := []gcref.Ref{gcref.Null, gcref.FromI31(7), f.baseObj, f.subObj, f.siblingObj, f.arr}
	pairs := []struct{ from, to gctype.RefType }{
		{gctype.AnyRef, gctype.StructRef},
		{gctype.AnyRef, gctype.I31Ref},
		{gctype.EqRef, gctype.RefOf(gctype.HeapArray)},
		{gctype.RefNull(gctype.Concrete(f.base)), gctype.RefOf(gctype.Concrete(f.sub))},
		{gctype.RefNull(gctype.Concrete(f.base)), gctype.RefNull(gctype.Concrete(f.sibling))},
	}

	for _, v := range values {
		for _, p := range pairs {
			taken, out, err := f.eng.BrOnCast(v, p.from, p.to)
			if err != nil {
				t.Fatalf("BrOnCast: %v", err)
			}
			fail, outFail, err := f.eng.BrOnCastFail(v, p.from, p.to)
			if err != nil {
				t.Fatalf("BrOnCastFail: %v", err)
			}
			if taken == fail {
				t.Errorf("(%s, %s -> %s): br_on_cast %v, br_on_cast_fail %v", v, p.from, p.to, taken, fail)
			}
			if out != v || outFail != v {
				t.Errorf("value changed: %s, %s, want %s", out, outFail, v)
			}
		}
	}
}

func TestBrOnCastRejectsUnrelatedTypes(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.eng.BrOnCast(f.subObj, gctype.StructRef, gctype.ArrayRef); err == nil {
		t.Error("expected error for target outside source type")
	}
}

func TestFastPathBeforeChainWalk(t *testing.T) {
	f := newFixture(t)

	_, _ = f.eng.Test(f.subObj, gctype.RefOf(gctype.Concrete(f.sub)))
	s := f.eng.Stats()
	if s.FastPath != 1 || s.SlowPath != 0 {
		t.Errorf("exact match: got %+v", s)
	}

	_, _ = f.eng.Test(f.subObj, gctype.RefOf(gctype.Concrete(f.base)))
	s = f.eng.Stats()
	if s.FastPath != 1 || s.SlowPath != 1 {
		t.Errorf("supertype match: got %+v", s)
	}
}

func TestDanglingReference(t *testing.T) {
	f := newFixture(t)
	dead := f.ext
	if _, err := f.heap.Activations().Release(dead); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.Test(dead, gctype.AnyRef); !errors.Is(err, errors.ErrDanglingReference) {
		t.Errorf("got %v, want dangling reference", err)
	}
}

func TestCheckSignature(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		fn   gcref.FuncRef
		want gctype.TypeIndex
		err  error
	}{
		{"exact", gcref.FuncOf(0), f.sig, nil},
		{"subtype", gcref.FuncOf(1), f.sig, nil},
		{"supertype", gcref.FuncOf(0), f.subSig, errors.ErrBadSignature},
		{"null", gcref.NullFunc, f.sig, errors.ErrUninitializedElement},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := f.eng.CheckSignature(tc.fn, tc.want)
			if tc.err == nil {
				if err != nil {
					t.Errorf("got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.err) {
				t.Errorf("got %v, want %v", err, tc.err)
			}
		})
	}

	if err := f.eng.CheckSignature(gcref.FuncOf(9), f.sig); err == nil {
		t.Error("unknown function accepted")
	}
	if msg := errors.ErrBadSignature.Error(); msg != "indirect call type mismatch" {
		t.Errorf("message: got %q", msg)
	}
}

func TestTestFunc(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		fn     gcref.FuncRef
		target gctype.RefType
		want   bool
	}{
		{"null funcref", gcref.NullFunc, gctype.FuncRef, true},
		{"null non-null", gcref.NullFunc, gctype.RefOf(gctype.HeapFunc), false},
		{"func", gcref.FuncOf(0), gctype.RefOf(gctype.HeapFunc), true},
		{"nofunc", gcref.FuncOf(0), gctype.NullFuncRef, false},
		{"exact", gcref.FuncOf(0), gctype.RefOf(gctype.Concrete(f.sig)), true},
		{"sub as super", gcref.FuncOf(1), gctype.RefOf(gctype.Concrete(f.sig)), true},
		{"super as sub", gcref.FuncOf(0), gctype.RefOf(gctype.Concrete(f.subSig)), false},
		{"struct target", gcref.FuncOf(0), gctype.RefOf(gctype.Concrete(f.base)), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.eng.TestFunc(tc.fn, tc.target)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
			_, cerr := f.eng.CastFunc(tc.fn, tc.target)
			if (cerr == nil) != got {
				t.Errorf("CastFunc disagrees: %v", cerr)
			}
		})
	}
}
