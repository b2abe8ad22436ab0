// Package gcref defines the tagged 32-bit representation of GC references.
//
// A Ref is exactly one of:
//
//	null      all-zero bits
//	i31       low bit 1, payload in the upper 31 bits
//	heap ref  low bit 0, nonzero: byte offset of an object in the GC heap
//
// Every consumer classifies with the same two bit tests, in the same order:
// first v&1 (i31), then v==0 (null).
package gcref

import "fmt"

// Ref is a GC reference as stored in locals, globals, tables and object fields.
type Ref uint32

// Null is the null reference.
const Null Ref = 0

// Kind is the classification of a Ref.
type Kind uint8

const (
	KindNull Kind = iota
	KindI31
	KindHeap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindI31:
		return "i31"
	case KindHeap:
		return "heap"
	default:
		return "unknown"
	}
}

const (
	i31Tag     = 1
	i31Mask    = 0x7fffffff
	i31SignBit = 0x40000000
)

// Classify returns the kind of v.
func Classify(v Ref) Kind {
	if v&i31Tag == i31Tag {
		return KindI31
	}
	if v == 0 {
		return KindNull
	}
	return KindHeap
}

// IsI31 reports whether v is an immediate i31 value.
func (v Ref) IsI31() bool { return v&i31Tag == i31Tag }

// IsNull reports whether v is null.
func (v Ref) IsNull() bool { return v == 0 }

// IsHeap reports whether v points at a heap object.
func (v Ref) IsHeap() bool { return v&i31Tag == 0 && v != 0 }

// Counted reports whether stores of v must touch a reference count.
// Only heap references are counted.
func (v Ref) Counted() bool { return v.IsHeap() }

// Index returns the heap byte offset of v. Only meaningful for heap refs.
func (v Ref) Index() uint32 { return uint32(v) }

// FromIndex makes a heap reference from an object offset. Offsets are
// 8-aligned and nonzero, so the result never collides with null or i31.
func FromIndex(index uint32) Ref { return Ref(index) }

// FromI31 implements ref.i31: the upper bit of x is discarded.
func FromI31(x uint32) Ref {
	return Ref((x&i31Mask)<<1 | i31Tag)
}

// I31GetU returns the zero-extended payload. v must be an i31.
func (v Ref) I31GetU() uint32 {
	return uint32(v) >> 1
}

// I31GetS returns the sign-extended payload. v must be an i31.
func (v Ref) I31GetS() int32 {
	return int32(v) >> 1
}

func (v Ref) String() string {
	switch Classify(v) {
	case KindNull:
		return "null"
	case KindI31:
		return fmt.Sprintf("i31(%d)", v.I31GetS())
	default:
		return fmt.Sprintf("heap(%#x)", uint32(v))
	}
}

// FuncRef is a function reference: zero is null, otherwise the function
// index plus one. Function references never live in the GC heap and are
// never counted.
type FuncRef uint32

// NullFunc is the null function reference.
const NullFunc FuncRef = 0

// FuncOf returns the reference to function index idx.
func FuncOf(idx uint32) FuncRef { return FuncRef(idx + 1) }

// IsNull reports whether f is null.
func (f FuncRef) IsNull() bool { return f == 0 }

// FuncIndex returns the function index. f must not be null.
func (f FuncRef) FuncIndex() uint32 { return uint32(f) - 1 }
