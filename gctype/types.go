package gctype

import (
	"fmt"
	"strings"
)

// TypeIndex identifies a composite type in a Registry.
type TypeIndex uint32

// NoSuper marks a type definition without a declared supertype.
const NoSuper TypeIndex = ^TypeIndex(0)

// NumType is a numeric or vector value type, using the binary encodings.
type NumType byte

const (
	I32  NumType = 0x7F // 32-bit integer
	I64  NumType = 0x7E // 64-bit integer
	F32  NumType = 0x7D // 32-bit float
	F64  NumType = 0x7C // 64-bit float
	V128 NumType = 0x7B // 128-bit vector
)

func (n NumType) String() string {
	switch n {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case V128:
		return "v128"
	default:
		return "unknown"
	}
}

// HeapType is encoded as s33: negative for abstract types, non-negative for
// concrete type indices.
type HeapType int64

// Abstract heap types
const (
	HeapFunc     HeapType = -16 // 0x70
	HeapExtern   HeapType = -17 // 0x6F
	HeapAny      HeapType = -18 // 0x6E
	HeapEq       HeapType = -19 // 0x6D
	HeapI31      HeapType = -20 // 0x6C
	HeapStruct   HeapType = -21 // 0x6B
	HeapArray    HeapType = -22 // 0x6A
	HeapNone     HeapType = -15 // 0x71 - bottom of any
	HeapNoExtern HeapType = -14 // 0x72 - bottom of extern
	HeapNoFunc   HeapType = -13 // 0x73 - bottom of func
)

// Concrete returns the heap type of a defined type.
func Concrete(idx TypeIndex) HeapType { return HeapType(idx) }

// IsConcrete reports whether h names a defined type.
func (h HeapType) IsConcrete() bool { return h >= 0 }

// Index returns the type index of a concrete heap type.
func (h HeapType) Index() TypeIndex { return TypeIndex(h) }

// IsBottom reports whether h is none, noextern or nofunc.
func (h HeapType) IsBottom() bool {
	return h == HeapNone || h == HeapNoExtern || h == HeapNoFunc
}

func (h HeapType) String() string {
	switch h {
	case HeapFunc:
		return "func"
	case HeapExtern:
		return "extern"
	case HeapAny:
		return "any"
	case HeapEq:
		return "eq"
	case HeapI31:
		return "i31"
	case HeapStruct:
		return "struct"
	case HeapArray:
		return "array"
	case HeapNone:
		return "none"
	case HeapNoExtern:
		return "noextern"
	case HeapNoFunc:
		return "nofunc"
	}
	if h.IsConcrete() {
		return fmt.Sprintf("$%d", h)
	}
	return "unknown"
}

// RefType represents a reference type with nullable flag and heap type
type RefType struct {
	Heap     HeapType
	Nullable bool
}

// Shorthand reference types.
var (
	AnyRef        = RefType{Nullable: true, Heap: HeapAny}
	EqRef         = RefType{Nullable: true, Heap: HeapEq}
	I31Ref        = RefType{Nullable: true, Heap: HeapI31}
	StructRef     = RefType{Nullable: true, Heap: HeapStruct}
	ArrayRef      = RefType{Nullable: true, Heap: HeapArray}
	NullRef       = RefType{Nullable: true, Heap: HeapNone}
	ExternRef     = RefType{Nullable: true, Heap: HeapExtern}
	NullExternRef = RefType{Nullable: true, Heap: HeapNoExtern}
	FuncRef       = RefType{Nullable: true, Heap: HeapFunc}
	NullFuncRef   = RefType{Nullable: true, Heap: HeapNoFunc}
)

// RefNull returns (ref null ht).
func RefNull(h HeapType) RefType { return RefType{Nullable: true, Heap: h} }

// RefOf returns (ref ht).
func RefOf(h HeapType) RefType { return RefType{Heap: h} }

// AsNonNull drops nullability.
func (r RefType) AsNonNull() RefType { return RefType{Heap: r.Heap} }

func (r RefType) String() string {
	if r.Nullable && !r.Heap.IsConcrete() {
		switch r.Heap {
		case HeapNone:
			return "nullref"
		case HeapNoExtern:
			return "nullexternref"
		case HeapNoFunc:
			return "nullfuncref"
		default:
			return r.Heap.String() + "ref"
		}
	}
	if r.Nullable {
		return "(ref null " + r.Heap.String() + ")"
	}
	return "(ref " + r.Heap.String() + ")"
}

// Value type kinds
const (
	ValKindNum byte = 0
	ValKindRef byte = 1
)

// ValType is a value type: numeric/vector or reference.
type ValType struct {
	Ref  RefType
	Num  NumType
	Kind byte
}

// NumVal returns a numeric value type.
func NumVal(n NumType) ValType { return ValType{Kind: ValKindNum, Num: n} }

// RefVal returns a reference value type.
func RefVal(r RefType) ValType { return ValType{Kind: ValKindRef, Ref: r} }

// IsRef reports whether v is a reference type.
func (v ValType) IsRef() bool { return v.Kind == ValKindRef }

func (v ValType) String() string {
	if v.IsRef() {
		return v.Ref.String()
	}
	return v.Num.String()
}

// PackedType is a sub-word storage type only valid in struct fields and array elements.
type PackedType byte

const (
	PackedI8  PackedType = 0x78 // i8
	PackedI16 PackedType = 0x77 // i16
)

// Storage type kind constants
const (
	StorageKindVal    byte = 0
	StorageKindPacked byte = 1
)

// StorageType represents a type that can be stored in a struct field or array element.
type StorageType struct {
	Val    ValType
	Kind   byte
	Packed PackedType
}

// Val returns a numeric storage type.
func Val(n NumType) StorageType { return StorageType{Kind: StorageKindVal, Val: NumVal(n)} }

// Ref returns a reference storage type.
func Ref(r RefType) StorageType { return StorageType{Kind: StorageKindVal, Val: RefVal(r)} }

// Packed returns a packed storage type.
func Packed(p PackedType) StorageType { return StorageType{Kind: StorageKindPacked, Packed: p} }

// IsPacked reports whether s is i8 or i16.
func (s StorageType) IsPacked() bool { return s.Kind == StorageKindPacked }

// IsRef reports whether s holds references.
func (s StorageType) IsRef() bool { return s.Kind == StorageKindVal && s.Val.IsRef() }

// Unpacked returns the value type used on the operand stack for s.
func (s StorageType) Unpacked() ValType {
	if s.IsPacked() {
		return NumVal(I32)
	}
	return s.Val
}

// Defaultable reports whether s has a default value (zero or null).
func (s StorageType) Defaultable() bool {
	return !s.IsRef() || s.Val.Ref.Nullable
}

func (s StorageType) String() string {
	if s.IsPacked() {
		if s.Packed == PackedI8 {
			return "i8"
		}
		return "i16"
	}
	return s.Val.String()
}

// FieldType represents a struct field or array element with mutability and storage type
type FieldType struct {
	Storage StorageType
	Mutable bool
}

func (f FieldType) String() string {
	if f.Mutable {
		return "(mut " + f.Storage.String() + ")"
	}
	return f.Storage.String()
}

// StructType represents a GC struct type definition
type StructType struct {
	Fields []FieldType
}

// ArrayType represents a GC array type definition
type ArrayType struct {
	Element FieldType
}

// FuncType represents a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// CompKind is the kind of a composite type.
type CompKind byte

// Composite type kinds, using the type section encodings
const (
	CompFunc   CompKind = 0x60
	CompStruct CompKind = 0x5F
	CompArray  CompKind = 0x5E
)

func (k CompKind) String() string {
	switch k {
	case CompFunc:
		return "func"
	case CompStruct:
		return "struct"
	case CompArray:
		return "array"
	default:
		return "unknown"
	}
}

// CompType is a composite type: func, struct, or array
type CompType struct {
	Func   *FuncType
	Struct *StructType
	Array  *ArrayType
	Kind   CompKind
}

// SubType represents a type definition with an optional declared supertype
type SubType struct {
	Comp  CompType
	Super TypeIndex
	Final bool
}

// StructDef returns a SubType for a struct.
func StructDef(st StructType, super TypeIndex, final bool) SubType {
	return SubType{Comp: CompType{Kind: CompStruct, Struct: &st}, Super: super, Final: final}
}

// ArrayDef returns a SubType for an array.
func ArrayDef(at ArrayType, super TypeIndex, final bool) SubType {
	return SubType{Comp: CompType{Kind: CompArray, Array: &at}, Super: super, Final: final}
}

// FuncDef returns a SubType for a function signature.
func FuncDef(ft FuncType, super TypeIndex, final bool) SubType {
	return SubType{Comp: CompType{Kind: CompFunc, Func: &ft}, Super: super, Final: final}
}

func (c CompType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	b.WriteString(c.Kind.String())
	switch c.Kind {
	case CompStruct:
		for _, f := range c.Struct.Fields {
			b.WriteString(" (field ")
			b.WriteString(f.String())
			b.WriteByte(')')
		}
	case CompArray:
		b.WriteByte(' ')
		b.WriteString(c.Array.Element.String())
	case CompFunc:
		for _, p := range c.Func.Params {
			b.WriteString(" (param ")
			b.WriteString(p.String())
			b.WriteByte(')')
		}
		for _, r := range c.Func.Results {
			b.WriteString(" (result ")
			b.WriteString(r.String())
			b.WriteByte(')')
		}
	}
	b.WriteByte(')')
	return b.String()
}
