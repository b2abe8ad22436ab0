package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/layout"
	"github.com/wippyai/wasm-gc/recipe"
	"github.com/wippyai/wasm-gc/store"
)

type scenario struct {
	name string
	desc string
	run  func(s *store.Store, w io.Writer) error
}

var scenarios = []scenario{
	{"array-new-fixed", "array.new_fixed of i64 1, 2, 3", arrayNewFixed},
	{"array-new-data", `array.new_data of i8 from "abcd" at 1, length 2`, arrayNewData},
	{"array-new-data-oob", "array.new_data past the end of its segment traps", arrayNewDataOOB},
	{"struct-new-default", "struct.new_default of (f32, i8, anyref)", structNewDefault},
	{"i31-table", "i31ref table grow, fill and copy", i31Table},
	{"i31-anyref-table", "i31 values in anyref table slots are never dereferenced", i31AnyrefTable},
	{"drop-chain", "releasing the head of a long list reclaims every node", dropChain},
	{"casts", "ref.test, ref.cast and br_on_cast across a subtype chain", casts},
	{"recipes", "write barrier and ref.test recipes run against the heap", recipes},
}

func findScenario(name string) (scenario, bool) {
	for _, sc := range scenarios {
		if sc.name == name {
			return sc, true
		}
	}
	return scenario{}, false
}

func mutable(st gctype.StorageType) gctype.FieldType {
	return gctype.FieldType{Storage: st, Mutable: true}
}

func arrayNewFixed(s *store.Store, w io.Writer) error {
	typ, err := s.DefineArray(gctype.ArrayType{Element: mutable(gctype.Val(gctype.I64))}, gctype.NoSuper, false)
	if err != nil {
		return err
	}
	arr, err := s.ArrayNewFixed(typ, []uint64{1, 2, 3})
	if err != nil {
		return err
	}
	return printArray(s, w, arr, typ)
}

func printArray(s *store.Store, w io.Writer, arr gcref.Ref, typ gctype.TypeIndex) error {
	n, err := s.ArrayLen(arr)
	if err != nil {
		return err
	}
	at, _ := s.Registry().Array(typ)
	elems := make([]string, n)
	for i := range n {
		var v uint64
		if at.Element.Storage.IsPacked() {
			v, err = s.ArrayGetU(arr, typ, i)
		} else {
			v, err = s.ArrayGet(arr, typ, i)
		}
		if err != nil {
			return err
		}
		elems[i] = s.FormatValue(at.Element.Storage, v)
	}
	fmt.Fprintf(w, "%s len=%d [%s]\n", arr, n, strings.Join(elems, " "))
	return nil
}

func bytesArray(s *store.Store) (gctype.TypeIndex, *store.DataSegment, error) {
	typ, err := s.DefineArray(gctype.ArrayType{Element: mutable(gctype.Packed(gctype.PackedI8))}, gctype.NoSuper, false)
	if err != nil {
		return 0, nil, err
	}
	return typ, s.NewDataSegment([]byte("abcd")), nil
}

func arrayNewData(s *store.Store, w io.Writer) error {
	typ, seg, err := bytesArray(s)
	if err != nil {
		return err
	}
	arr, err := s.ArrayNewData(typ, seg, 1, 2)
	if err != nil {
		return err
	}
	return printArray(s, w, arr, typ)
}

func arrayNewDataOOB(s *store.Store, w io.Writer) error {
	typ, seg, err := bytesArray(s)
	if err != nil {
		return err
	}
	before := s.Stats().Heap.Allocs
	_, err = s.ArrayNewData(typ, seg, 0, 5)
	code, ok := errors.AsTrap(err)
	if !ok {
		return fmt.Errorf("expected a trap, got %v", err)
	}
	fmt.Fprintf(w, "trap: %s (allocations: %d)\n", code, s.Stats().Heap.Allocs-before)
	return nil
}

func structNewDefault(s *store.Store, w io.Writer) error {
	st := gctype.StructType{Fields: []gctype.FieldType{
		mutable(gctype.Val(gctype.F32)),
		mutable(gctype.Packed(gctype.PackedI8)),
		mutable(gctype.Ref(gctype.AnyRef)),
	}}
	typ, err := s.DefineStruct(st, gctype.NoSuper, false)
	if err != nil {
		return err
	}
	obj, err := s.StructNewDefault(typ)
	if err != nil {
		return err
	}
	fields := make([]string, len(st.Fields))
	for i, f := range st.Fields {
		var v uint64
		if f.Storage.IsPacked() {
			v, err = s.StructGetU(obj, typ, uint32(i))
		} else {
			v, err = s.StructGet(obj, typ, uint32(i))
		}
		if err != nil {
			return err
		}
		fields[i] = f.Storage.String() + "=" + s.FormatValue(f.Storage, v)
	}
	fmt.Fprintf(w, "%s {%s}\n", obj, strings.Join(fields, ", "))
	return nil
}

func i31Value(x uint32) uint64 { return uint64(gcref.FromI31(x)) }

func printTable(s *store.Store, w io.Writer, tab *store.Table) error {
	elems := make([]string, s.TableSize(tab))
	for i := range elems {
		v, err := s.TableGet(tab, uint32(i))
		if err != nil {
			return err
		}
		elems[i] = gcref.Ref(v).String()
	}
	fmt.Fprintf(w, "table %s size=%d [%s]\n", tab.Type(), len(elems), strings.Join(elems, " "))
	return nil
}

func i31Table(s *store.Store, w io.Writer) error {
	tab, err := s.NewTable(gctype.I31Ref, 3, store.NoMax, 0)
	if err != nil {
		return err
	}
	for i, v := range []uint32{999, 888, 777} {
		if err := s.TableSet(tab, uint32(i), i31Value(v)); err != nil {
			return err
		}
	}
	if _, err := s.TableGrow(tab, i31Value(333), 2); err != nil {
		return err
	}
	if err := s.TableFill(tab, 2, i31Value(111), 2); err != nil {
		return err
	}
	if err := s.TableCopy(tab, 3, tab, 0, 2); err != nil {
		return err
	}
	return printTable(s, w, tab)
}

func i31AnyrefTable(s *store.Store, w io.Writer) error {
	tab, err := s.NewTable(gctype.AnyRef, 2, store.NoMax, 0)
	if err != nil {
		return err
	}
	if err := s.TableSet(tab, 0, i31Value(5)); err != nil {
		return err
	}
	if err := s.TableSet(tab, 1, i31Value(6)); err != nil {
		return err
	}
	if err := s.TableCopy(tab, 0, tab, 1, 1); err != nil {
		return err
	}
	if err := printTable(s, w, tab); err != nil {
		return err
	}
	fmt.Fprintf(w, "heap objects: %d\n", s.Stats().Heap.LiveObjects)
	return nil
}

func dropChain(s *store.Store, w io.Writer) error {
	const length = 10000
	node, err := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
		mutable(gctype.Val(gctype.I32)),
		mutable(gctype.Ref(gctype.AnyRef)),
	}}, gctype.NoSuper, false)
	if err != nil {
		return err
	}

	act := s.Heap().Activations()
	var head gcref.Ref
	for i := range length {
		next, err := s.StructNew(node, []uint64{uint64(i), uint64(head)})
		if err != nil {
			return err
		}
		if head != gcref.Null {
			// the new node holds the only other count
			if _, err := act.Release(head); err != nil {
				return err
			}
		}
		head = next
	}
	fmt.Fprintf(w, "live before: %d\n", s.Stats().Heap.LiveObjects)
	if _, err := act.Release(head); err != nil {
		return err
	}
	st := s.Stats().Heap
	fmt.Fprintf(w, "live after: %d (freed %d)\n", st.LiveObjects, st.Frees)
	return nil
}

func casts(s *store.Store, w io.Writer) error {
	base, err := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
		mutable(gctype.Val(gctype.I32)),
	}}, gctype.NoSuper, false)
	if err != nil {
		return err
	}
	sub, err := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
		mutable(gctype.Val(gctype.I32)),
		mutable(gctype.Val(gctype.F64)),
	}}, base, false)
	if err != nil {
		return err
	}
	obj, err := s.StructNewDefault(sub)
	if err != nil {
		return err
	}

	values := []struct {
		name string
		v    uint64
	}{
		{"null", 0},
		{"i31", i31Value(42)},
		{"sub", uint64(obj)},
	}
	targets := []gctype.RefType{
		gctype.I31Ref,
		gctype.RefOf(gctype.HeapEq),
		gctype.RefOf(gctype.Concrete(base)),
		gctype.RefNull(gctype.Concrete(sub)),
		gctype.ArrayRef,
	}
	for _, val := range values {
		for _, target := range targets {
			ok, err := s.RefTest(val.v, target)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "ref.test %-16s %-4s = %v\n", target, val.name, ok)
		}
	}

	taken, err := s.BrOnCast(uint64(obj), gctype.AnyRef, gctype.RefOf(gctype.Concrete(base)))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "br_on_cast sub -> base taken=%v\n", taken)
	_, err = s.RefCast(i31Value(1), gctype.StructRef)
	fmt.Fprintf(w, "ref.cast i31 -> structref: %v\n", err)
	return nil
}

func recipes(s *store.Store, w io.Writer) error {
	holder, err := s.DefineStruct(gctype.StructType{Fields: []gctype.FieldType{
		mutable(gctype.Ref(gctype.AnyRef)),
	}}, gctype.NoSuper, false)
	if err != nil {
		return err
	}
	obj, err := s.StructNewDefault(holder)
	if err != nil {
		return err
	}
	child, err := s.StructNewDefault(holder)
	if err != nil {
		return err
	}

	write := recipe.WriteBarrier(s.Registry(), gctype.AnyRef)
	fmt.Fprint(w, write)

	m := recipe.NewMachine(s.Heap(), s.Casts())
	slot := uint64(obj.Index() + layout.HeaderSize)
	if _, err := m.Run(write, slot, uint64(child)); err != nil {
		return err
	}
	count, err := s.Heap().RefCount(child)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "stored %s into %s: count=%d\n", child, obj, count)

	test, err := recipe.RefTest(s.Registry(), gctype.RefOf(gctype.Concrete(holder)))
	if err != nil {
		return err
	}
	out, err := m.Run(test, uint64(child))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "ref.test recipe on %s = %d (subtype calls: %d)\n", child, out[0], m.Calls(recipe.SubtypeCheck))
	return nil
}
