package store_test

import (
	"testing"

	"github.com/tetratelabs/wazero/api"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/layout"
)

func TestStatsAndObjects(t *testing.T) {
	s := newStore(t)
	pair := defineStruct(t, s, field(gctype.Val(gctype.I32), true), field(gctype.Val(gctype.I32), true))
	bytes := defineArray(t, s, gctype.Packed(gctype.PackedI8))

	obj, err := s.StructNewDefault(pair)
	if err != nil {
		t.Fatal(err)
	}
	arr, err := s.ArrayNewDefault(bytes, 5)
	if err != nil {
		t.Fatal(err)
	}

	var objs []heap.Object
	s.Objects(func(o heap.Object) bool {
		objs = append(objs, o)
		return true
	})
	if len(objs) != 2 {
		t.Fatalf("got %d objects, want 2", len(objs))
	}
	if objs[0].Ref != obj || objs[0].Kind != layout.KindStructRef || objs[0].Type != uint32(pair) {
		t.Errorf("struct: got %+v", objs[0])
	}
	if objs[1].Ref != arr || objs[1].Kind != layout.KindArrayRef || objs[1].Length != 5 {
		t.Errorf("array: got %+v", objs[1])
	}

	st := s.Stats()
	if st.Types != 2 || st.Heap.LiveObjects != 2 || st.Heap.Roots != 2 {
		t.Errorf("got %+v", st)
	}
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if st := s.Stats(); st.Heap.LiveObjects != 0 || st.Heap.Frees != 2 {
		t.Errorf("after reset: got %+v", st.Heap)
	}
}

func TestFormatValue(t *testing.T) {
	s := newStore(t)
	sig, err := s.DefineFunc(gctype.FuncType{}, gctype.NoSuper, false)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		st   gctype.StorageType
		v    uint64
		want string
	}{
		{gctype.Val(gctype.I32), api.EncodeI32(-3), "-3"},
		{gctype.Val(gctype.I64), 1 << 40, "1099511627776"},
		{gctype.Val(gctype.F32), api.EncodeF32(1.5), "1.5"},
		{gctype.Val(gctype.F64), api.EncodeF64(-0.25), "-0.25"},
		{gctype.Packed(gctype.PackedI8), 200, "200"},
		{gctype.Ref(gctype.AnyRef), 0, "null"},
		{gctype.Ref(gctype.I31Ref), uint64(gcref.FromI31(9)), "i31(9)"},
		{gctype.Ref(gctype.AnyRef), 0x40, "heap(0x40)"},
		{gctype.Ref(gctype.FuncRef), uint64(gcref.FuncOf(2)), "func[2]"},
		{gctype.Ref(gctype.RefNull(gctype.Concrete(sig))), 0, "null"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := s.FormatValue(tc.st, tc.v); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}
