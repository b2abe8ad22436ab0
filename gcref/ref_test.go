package gcref

import (
	"math/rand"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		v    Ref
		want Kind
	}{
		{0, KindNull},
		{1, KindI31},
		{3, KindI31},
		{0xffffffff, KindI31},
		{8, KindHeap},
		{2, KindHeap},
		{0xfffffff0, KindHeap},
	}

	for _, tt := range tests {
		if got := Classify(tt.v); got != tt.want {
			t.Errorf("Classify(%#x) = %v, want %v", uint32(tt.v), got, tt.want)
		}
	}
}

func TestClassifyExclusive(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := []uint32{0, 1, 2, 0x7fffffff, 0x80000000, 0xffffffff}
	for i := 0; i < 10000; i++ {
		samples = append(samples, rng.Uint32())
	}

	for _, s := range samples {
		v := Ref(s)
		n := 0
		if v.IsNull() {
			n++
		}
		if v.IsI31() {
			n++
		}
		if v.IsHeap() {
			n++
		}
		if n != 1 {
			t.Fatalf("%#x: %d classifications hold", s, n)
		}
		switch Classify(v) {
		case KindNull:
			if !v.IsNull() {
				t.Fatalf("%#x: Classify disagrees with IsNull", s)
			}
		case KindI31:
			if !v.IsI31() {
				t.Fatalf("%#x: Classify disagrees with IsI31", s)
			}
		case KindHeap:
			if !v.IsHeap() || !v.Counted() {
				t.Fatalf("%#x: Classify disagrees with IsHeap", s)
			}
		}
	}
}

func TestI31RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	samples := []uint32{0, 1, 0x3fffffff, 0x40000000, 0x7fffffff, 0x80000000, 0xffffffff}
	for i := 0; i < 10000; i++ {
		samples = append(samples, rng.Uint32())
	}

	for _, x := range samples {
		v := FromI31(x)
		if !v.IsI31() {
			t.Fatalf("FromI31(%#x) is not i31", x)
		}
		if got := v.I31GetU(); got != x&0x7fffffff {
			t.Fatalf("I31GetU(FromI31(%#x)) = %#x, want %#x", x, got, x&0x7fffffff)
		}
		want := int32(x<<1) >> 1
		if got := v.I31GetS(); got != want {
			t.Fatalf("I31GetS(FromI31(%#x)) = %d, want %d", x, got, want)
		}
	}
}

func TestI31SignExtension(t *testing.T) {
	tests := []struct {
		in    uint32
		wantS int32
		wantU uint32
	}{
		{0, 0, 0},
		{1, 1, 1},
		{0x3fffffff, 0x3fffffff, 0x3fffffff},
		{0x40000000, -0x40000000, 0x40000000},
		{0x7fffffff, -1, 0x7fffffff},
		{0xffffffff, -1, 0x7fffffff},
	}

	for _, tt := range tests {
		v := FromI31(tt.in)
		if got := v.I31GetS(); got != tt.wantS {
			t.Errorf("get_s(%#x) = %d, want %d", tt.in, got, tt.wantS)
		}
		if got := v.I31GetU(); got != tt.wantU {
			t.Errorf("get_u(%#x) = %#x, want %#x", tt.in, got, tt.wantU)
		}
	}
}

func TestFuncRef(t *testing.T) {
	if !NullFunc.IsNull() {
		t.Error("NullFunc should be null")
	}
	f := FuncOf(0)
	if f.IsNull() {
		t.Error("FuncOf(0) should not be null")
	}
	if f.FuncIndex() != 0 {
		t.Errorf("FuncIndex = %d, want 0", f.FuncIndex())
	}
	if FuncOf(41).FuncIndex() != 41 {
		t.Error("FuncOf/FuncIndex round trip failed")
	}
}

func TestString(t *testing.T) {
	if Null.String() != "null" {
		t.Errorf("got %q", Null.String())
	}
	if FromI31(0x7fffffff).String() != "i31(-1)" {
		t.Errorf("got %q", FromI31(0x7fffffff).String())
	}
	if FromIndex(16).String() != "heap(0x10)" {
		t.Errorf("got %q", FromIndex(16).String())
	}
}
