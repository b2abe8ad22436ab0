package recipe_test

import (
	"strings"
	"testing"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/layout"
	"github.com/wippyai/wasm-gc/recipe"
	"github.com/wippyai/wasm-gc/store"
)

func newStore(t *testing.T, cfg store.Config) *store.Store {
	t.Helper()
	s, err := store.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newMachine(s *store.Store) *recipe.Machine {
	return recipe.NewMachine(s.Heap(), s.Casts())
}

func run(t *testing.T, m *recipe.Machine, p *recipe.Program, args ...uint64) uint64 {
	t.Helper()
	out, err := m.Run(p, args...)
	if err != nil {
		t.Fatalf("%s: %v", p.Name, err)
	}
	if len(out) == 0 {
		return 0
	}
	return out[0]
}

func refCount(t *testing.T, s *store.Store, r gcref.Ref) uint64 {
	t.Helper()
	n, err := s.Heap().RefCount(r)
	if err != nil {
		t.Fatalf("RefCount(%s): %v", r, err)
	}
	return n
}

// holder defines a struct with one mutable anyref field at offset 16.
func holder(t *testing.T, s *store.Store) (gctype.TypeIndex, gcref.Ref) {
	t.Helper()
	typ, err := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
		{Storage: gctype.Ref(gctype.AnyRef), Mutable: true},
	}}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := s.StructNewDefault(typ)
	if err != nil {
		t.Fatal(err)
	}
	return typ, obj
}

func TestI31GetText(t *testing.T) {
	want := `function %i31_get_u(i32) {
block0(v0: i32):
    v1 = icmp_imm eq v0, 0
    brif v1, block1, block2
block1:
    trap null_i31_reference
block2:
    v2 = ushr_imm v0, 1
    return v2
}
`
	if got := recipe.I31Get(false).String(); got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestI31Get(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)

	tests := []struct {
		x      uint32
		signed bool
		want   uint64
	}{
		{x: 5, signed: false, want: 5},
		{x: 5, signed: true, want: 5},
		{x: 0x7fffffff, signed: false, want: 0x7fffffff},
		{x: 0x7fffffff, signed: true, want: 0xffffffff},
		{x: 0x40000000, signed: true, want: 0xc0000000},
		{x: 0, signed: true, want: 0},
	}
	for _, tt := range tests {
		got := run(t, m, recipe.I31Get(tt.signed), uint64(gcref.FromI31(tt.x)))
		if got != tt.want {
			t.Errorf("i31.get(%#x, signed=%v): got %#x, want %#x", tt.x, tt.signed, got, tt.want)
		}
	}

	for _, signed := range []bool{false, true} {
		_, err := m.Run(recipe.I31Get(signed), 0)
		if code, ok := errors.AsTrap(err); !ok || code != errors.TrapNullI31Reference {
			t.Errorf("null (signed=%v): got %v, want null i31 reference", signed, err)
		}
	}
}

func TestBarrierElision(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	reg := s.Registry()

	tests := []struct {
		slot    gctype.RefType
		elided  bool
		program func(*gctype.Registry, gctype.RefType) *recipe.Program
	}{
		{slot: gctype.I31Ref, elided: true, program: recipe.StoreBarrier},
		{slot: gctype.I31Ref, elided: true, program: recipe.WriteBarrier},
		{slot: gctype.NullRef, elided: true, program: recipe.WriteBarrier},
		{slot: gctype.FuncRef, elided: true, program: recipe.WriteBarrier},
		{slot: gctype.NullFuncRef, elided: true, program: recipe.ClearBarrier},
		{slot: gctype.AnyRef, elided: false, program: recipe.StoreBarrier},
		{slot: gctype.EqRef, elided: false, program: recipe.WriteBarrier},
		{slot: gctype.ExternRef, elided: false, program: recipe.ClearBarrier},
	}
	for _, tt := range tests {
		p := tt.program(reg, tt.slot)
		branches := p.Count(recipe.OpBrif)
		if tt.elided {
			if branches != 0 || p.Count(recipe.OpStore) != 1 || p.Count(recipe.OpLoad) != 0 {
				t.Errorf("%s %s: got\n%s\nwant a single store", p.Name, tt.slot, p)
			}
			continue
		}
		if branches == 0 {
			t.Errorf("%s %s: barrier was elided", p.Name, tt.slot)
		}
	}
}

func TestWriteBarrierCounts(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)
	typ, obj := holder(t, s)
	_, child := holder(t, s)
	slot := uint64(obj.Index() + layout.HeaderSize)
	write := recipe.WriteBarrier(s.Registry(), gctype.AnyRef)

	run(t, m, write, slot, uint64(child))
	if got := refCount(t, s, child); got != 2 {
		t.Errorf("after store: got count %d, want 2", got)
	}
	got, err := s.StructGet(obj, typ, 0)
	if err != nil || gcref.Ref(got) != child {
		t.Errorf("field: got %#x, %v, want %s", got, err, child)
	}

	// Same value again: increment before decrement keeps it alive.
	run(t, m, write, slot, uint64(child))
	if got := refCount(t, s, child); got != 2 {
		t.Errorf("after self store: got count %d, want 2", got)
	}

	run(t, m, write, slot, uint64(gcref.FromI31(9)))
	if got := refCount(t, s, child); got != 1 {
		t.Errorf("after overwrite: got count %d, want 1", got)
	}
	if m.Calls(recipe.Drop) != 0 {
		t.Errorf("gc_drop called %d times, want 0", m.Calls(recipe.Drop))
	}
}

func TestClearBarrierReclaims(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)
	_, obj := holder(t, s)
	_, child := holder(t, s)
	slot := uint64(obj.Index() + layout.HeaderSize)

	run(t, m, recipe.StoreBarrier(s.Registry(), gctype.AnyRef), slot, uint64(child))
	if found, err := s.Heap().Activations().Release(child); !found || err != nil {
		t.Fatalf("Release: got %v, %v", found, err)
	}
	if got := refCount(t, s, child); got != 1 {
		t.Fatalf("got count %d, want 1", got)
	}

	run(t, m, recipe.ClearBarrier(s.Registry(), gctype.AnyRef), slot)
	if m.Calls(recipe.Drop) != 1 {
		t.Errorf("gc_drop called %d times, want 1", m.Calls(recipe.Drop))
	}
	if s.Heap().IsLive(child) {
		t.Errorf("child %s still live after its last reference was cleared", child)
	}
	if !s.Heap().IsLive(obj) {
		t.Errorf("holder %s reclaimed", obj)
	}
}

func TestBarrierIgnoresUncountedValues(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)
	typ, obj := holder(t, s)
	slot := uint64(obj.Index() + layout.HeaderSize)
	write := recipe.WriteBarrier(s.Registry(), gctype.AnyRef)

	for _, v := range []gcref.Ref{gcref.FromI31(1), gcref.Null, gcref.FromI31(0)} {
		run(t, m, write, slot, uint64(v))
		got, err := s.StructGet(obj, typ, 0)
		if err != nil || gcref.Ref(got) != v {
			t.Errorf("store %s: got %#x, %v", v, got, err)
		}
	}
	if m.Calls(recipe.Drop) != 0 {
		t.Errorf("gc_drop called for non-heap values")
	}
}

func TestSpill(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)
	_, obj := holder(t, s)
	act := s.Heap().Activations()
	before := act.Len()
	head := act.Head()

	run(t, m, recipe.Spill(), uint64(obj))
	if got := refCount(t, s, obj); got != 2 {
		t.Errorf("got count %d, want 2", got)
	}
	if got := act.Len(); got != before+1 {
		t.Errorf("activation entries: got %d, want %d", got, before+1)
	}
	if got := act.Head(); got != head+1 {
		t.Errorf("head: got %d, want %d", got, head+1)
	}

	run(t, m, recipe.Spill(), uint64(gcref.FromI31(3)))
	run(t, m, recipe.Spill(), 0)
	if got := m.Calls(recipe.RefIncSlow); got != 0 {
		t.Errorf("gc_ref_inc_slow calls: got %d, want 0", got)
	}

	// spilled entries are released like any other activation entry
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if got := act.Head(); got != 0 {
		t.Errorf("head after reset: got %d, want 0", got)
	}
}

func TestSpillSlowPathWhenFull(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Heap = heap.Config{InitialSize: 4096, MaxSize: 1 << 20, ActivationTableCapacity: 4}
	s := newStore(t, cfg)
	m := newMachine(s)
	_, obj := holder(t, s)
	act := s.Heap().Activations()
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	// the global keeps obj alive once the activation entries are gone
	if _, err := s.NewGlobal(gctype.RefVal(gctype.AnyRef), true, uint64(obj)); err != nil {
		t.Fatal(err)
	}

	spill := recipe.Spill()
	for i := range 4 {
		run(t, m, spill, uint64(obj))
		if got := m.Calls(recipe.RefIncSlow); got != 0 {
			t.Fatalf("spill %d: gc_ref_inc_slow calls: got %d, want 0", i, got)
		}
	}
	if act.Head() != act.Capacity() {
		t.Fatalf("head %d, capacity %d: want a full table", act.Head(), act.Capacity())
	}

	run(t, m, spill, uint64(obj))
	if got := m.Calls(recipe.RefIncSlow); got != 1 {
		t.Errorf("gc_ref_inc_slow calls: got %d, want 1", got)
	}
	if got := act.Capacity(); got <= 4 {
		t.Errorf("capacity: got %d, want growth past 4", got)
	}
	if got := refCount(t, s, obj); got != 6 {
		t.Errorf("count: got %d, want 6 (global and five spills)", got)
	}

	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if got := refCount(t, s, obj); got != 1 {
		t.Errorf("count after reset: got %d, want 1", got)
	}
}

func TestSpillText(t *testing.T) {
	text := recipe.Spill().String()
	for _, want := range []string{
		"= load.i32 notrap aligned vmctx+activation_head",
		"= load.i32 notrap aligned vmctx+activation_capacity",
		"= icmp ult ",
		", activations[",
		", vmctx+activation_head",
		"call gc_ref_inc_slow(v0)",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestRefTestAgreesWithCasts(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	reg := s.Registry()
	m := newMachine(s)

	base, err := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
		{Storage: gctype.Val(gctype.I32)},
	}}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
		{Storage: gctype.Val(gctype.I32)},
		{Storage: gctype.Val(gctype.I64)},
	}}, base, false)
	if err != nil {
		t.Fatal(err)
	}
	other, err := s.DefineStruct(gctype.StructType{}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}
	bytes, err := s.DefineArray(gctype.ArrayType{Element: gctype.FieldType{
		Storage: gctype.Packed(gctype.PackedI8), Mutable: true,
	}}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}

	baseObj, _ := s.StructNewDefault(base)
	subObj, _ := s.StructNewDefault(sub)
	otherObj, _ := s.StructNewDefault(other)
	arr, err := s.ArrayNewDefault(bytes, 4)
	if err != nil {
		t.Fatal(err)
	}

	values := []gcref.Ref{gcref.Null, gcref.FromI31(7), baseObj, subObj, otherObj, arr}
	heaps := []gctype.HeapType{
		gctype.HeapAny, gctype.HeapEq, gctype.HeapI31, gctype.HeapStruct, gctype.HeapArray, gctype.HeapNone,
		gctype.HeapExtern, gctype.HeapNoExtern,
		gctype.Concrete(base), gctype.Concrete(sub), gctype.Concrete(other), gctype.Concrete(bytes),
	}
	for _, h := range heaps {
		for _, nullable := range []bool{false, true} {
			target := gctype.RefType{Heap: h, Nullable: nullable}
			p, err := recipe.RefTest(reg, target)
			if err != nil {
				t.Fatalf("RefTest(%s): %v", target, err)
			}
			for _, v := range values {
				want, err := s.Casts().Test(v, target)
				if err != nil {
					t.Fatal(err)
				}
				got := run(t, m, p, uint64(v))
				if (got == 1) != want {
					t.Errorf("ref.test %s %s: got %d, want %v", target, v, got, want)
				}
			}
		}
	}
}

func TestRefTestExtern(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)
	ext, err := s.ExternNew("host")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		target gctype.RefType
		v      gcref.Ref
		want   uint64
	}{
		{target: gctype.ExternRef, v: ext, want: 1},
		{target: gctype.RefOf(gctype.HeapExtern), v: gcref.Null, want: 0},
		{target: gctype.ExternRef, v: gcref.Null, want: 1},
		{target: gctype.NullExternRef, v: ext, want: 0},
		{target: gctype.NullExternRef, v: gcref.Null, want: 1},
		{target: gctype.RefOf(gctype.HeapExtern), v: s.ExternConvertAny(gcref.FromI31(5)), want: 1},
		{target: gctype.ExternRef, v: s.ExternConvertAny(gcref.FromI31(0)), want: 1},
		{target: gctype.NullExternRef, v: s.ExternConvertAny(gcref.FromI31(5)), want: 0},
	}
	for _, tt := range tests {
		p, err := recipe.RefTest(s.Registry(), tt.target)
		if err != nil {
			t.Fatal(err)
		}
		if got := run(t, m, p, uint64(tt.v)); got != tt.want {
			t.Errorf("ref.test %s %s: got %d, want %d", tt.target, tt.v, got, tt.want)
		}
	}
}

func TestRefTestFastPath(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)
	base, err := s.DefineStruct(gctype.StructType{}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}
	sub, err := s.DefineStruct(gctype.StructType{}, base, false)
	if err != nil {
		t.Fatal(err)
	}
	baseObj, _ := s.StructNewDefault(base)
	subObj, _ := s.StructNewDefault(sub)

	p, err := recipe.RefTest(s.Registry(), gctype.RefOf(gctype.Concrete(base)))
	if err != nil {
		t.Fatal(err)
	}
	if got := run(t, m, p, uint64(baseObj)); got != 1 {
		t.Errorf("exact: got %d, want 1", got)
	}
	if got := m.Calls(recipe.SubtypeCheck); got != 0 {
		t.Errorf("exact match called gc_subtype_check %d times", got)
	}
	if got := run(t, m, p, uint64(subObj)); got != 1 {
		t.Errorf("subtype: got %d, want 1", got)
	}
	if got := m.Calls(recipe.SubtypeCheck); got != 1 {
		t.Errorf("gc_subtype_check calls: got %d, want 1", got)
	}
}

func TestRefTestFuncUnsupported(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	if _, err := recipe.RefTest(s.Registry(), gctype.FuncRef); err == nil {
		t.Error("got nil error for a funcref target")
	}
}

func TestAllocStruct(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)
	typ, err := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
		{Storage: gctype.Val(gctype.I64)},
		{Storage: gctype.Ref(gctype.AnyRef), Mutable: true},
	}}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}

	p, err := recipe.Alloc(layout.NewCalculator(s.Registry()), typ)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Params()) != 0 || !p.Calls(recipe.AllocRaw) {
		t.Fatalf("unexpected struct recipe:\n%s", p)
	}
	r := gcref.Ref(run(t, m, p))
	kind, got, err := s.Heap().Header(r)
	if err != nil {
		t.Fatal(err)
	}
	if kind != layout.KindStructRef || got != uint32(typ) {
		t.Errorf("header: got %s %d, want structref %d", kind, got, typ)
	}
	if n := refCount(t, s, r); n != 1 {
		t.Errorf("count: got %d, want 1", n)
	}
}

func TestAllocArray(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)
	typ, err := s.DefineArray(gctype.ArrayType{Element: gctype.FieldType{
		Storage: gctype.Val(gctype.I32), Mutable: true,
	}}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}
	p, err := recipe.Alloc(layout.NewCalculator(s.Registry()), typ)
	if err != nil {
		t.Fatal(err)
	}

	r := gcref.Ref(run(t, m, p, 5))
	if n, err := s.ArrayLen(r); err != nil || n != 5 {
		t.Errorf("ArrayLen: got %d, %v, want 5", n, err)
	}

	tests := []struct {
		name string
		n    uint64
	}{
		{name: "shift overflow", n: 0x40000000},
		{name: "shift overflow high bit", n: 0x80000001},
		{name: "over object size", n: layout.MaxObjectSize/4 + 1},
		{name: "max length", n: 0xffffffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := m.Calls(recipe.AllocRaw)
			_, err := m.Run(p, tt.n)
			if code, ok := errors.AsTrap(err); !ok || code != errors.TrapAllocationTooLarge {
				t.Errorf("got %v, want allocation size too large", err)
			}
			if m.Calls(recipe.AllocRaw) != before {
				t.Errorf("gc_alloc_raw called for an oversized array")
			}
		})
	}
}

func TestAllocReloadsBase(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Heap = heap.Config{InitialSize: 64, MaxSize: 1 << 20, ActivationTableCapacity: 4}
	s := newStore(t, cfg)
	m := newMachine(s)
	typ, err := s.DefineArray(gctype.ArrayType{Element: gctype.FieldType{
		Storage: gctype.Val(gctype.I64), Mutable: true,
	}}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}
	p, err := recipe.Alloc(layout.NewCalculator(s.Registry()), typ)
	if err != nil {
		t.Fatal(err)
	}

	gen := s.Heap().Generation()
	r := gcref.Ref(run(t, m, p, 16))
	if s.Heap().Generation() == gen {
		t.Fatal("heap did not grow")
	}
	if n, err := s.ArrayLen(r); err != nil || n != 16 {
		t.Errorf("ArrayLen: got %d, %v, want 16", n, err)
	}
}

func TestStaleBaseDetected(t *testing.T) {
	cfg := store.DefaultConfig()
	cfg.Heap = heap.Config{InitialSize: 64, MaxSize: 1 << 20, ActivationTableCapacity: 4}
	s := newStore(t, cfg)
	m := newMachine(s)

	e, _ := recipe.NewEmitter("stale")
	base := e.Base()
	r := e.Call(recipe.AllocRaw,
		e.Iconst(recipe.I32, int64(layout.KindArrayRef)),
		e.Iconst(recipe.I32, 0),
		e.Iconst(recipe.I32, 256),
		e.Iconst(recipe.I32, layout.ObjectAlign))
	e.Store(e.Iconst(recipe.I32, 0), e.Addr(base, r), layout.ArrayLengthOffset)
	e.Return(r)

	_, err := m.Run(e.Finish())
	var ge *errors.Error
	if !errors.As(err, &ge) || ge.Kind != errors.KindInvalidData {
		t.Errorf("got %v, want a stale heap base error", err)
	}
}

func TestMachineLimits(t *testing.T) {
	s := newStore(t, store.DefaultConfig())
	m := newMachine(s)

	if _, err := m.Run(recipe.I31Get(true)); err == nil {
		t.Error("missing argument: got nil error")
	}

	e, _ := recipe.NewEmitter("spin")
	loop := e.NewBlock()
	e.Jump(loop)
	e.Switch(loop)
	e.Jump(loop)
	m.MaxSteps = 100
	_, err := m.Run(e.Finish())
	var ge *errors.Error
	if !errors.As(err, &ge) || ge.Kind != errors.KindOverflow {
		t.Errorf("got %v, want step limit error", err)
	}
}
