package layout

// Object header, shared by every GC object:
//
//	@0  u32  kind (top 5 bits) | freed bit | size in bytes (low 26 bits)
//	@4  u32  type index
//	@8  u64  reference count
//	@16 ...  struct fields, or u32 array length, or u32 extern host handle
const (
	HeaderKindOffset  = 0
	HeaderTypeOffset  = 4
	RefCountOffset    = 8
	HeaderSize        = 16
	ArrayLengthOffset = 16
	ArrayBaseSize     = 20
	ExternHostOffset  = 16
	ExternSize        = 24
	ObjectAlign       = 8
)

// Size limits: the object size lives in the low bits of the header word.
const (
	SizeBits      = 26
	MaxObjectSize = 1<<SizeBits - 1
	SizeMask      = 1<<SizeBits - 1
	FreedBit      = 1 << SizeBits
)

// Kind is the GC kind stored in the top bits of the header word. The bit
// patterns nest: a kind matches an abstract kind when it contains all of
// the abstract kind's bits.
type Kind uint32

const (
	KindExternRef Kind = 0b01000 << 27
	KindAnyRef    Kind = 0b10000 << 27
	KindEqRef     Kind = 0b10100 << 27
	KindArrayRef  Kind = 0b10101 << 27
	KindStructRef Kind = 0b10110 << 27

	KindMask Kind = 0b11111 << 27
)

// Matches reports whether k is the same as or a sub-kind of super.
func (k Kind) Matches(super Kind) bool {
	return k&super == super
}

// FromWord extracts the kind from a header word.
func FromWord(word uint32) Kind {
	return Kind(word) & KindMask
}

func (k Kind) String() string {
	switch k {
	case KindExternRef:
		return "externref"
	case KindAnyRef:
		return "anyref"
	case KindEqRef:
		return "eqref"
	case KindArrayRef:
		return "arrayref"
	case KindStructRef:
		return "structref"
	default:
		return "unknown"
	}
}

// HeaderWord packs a kind and an object size.
func HeaderWord(k Kind, size uint32) uint32 {
	return uint32(k) | size&SizeMask
}

// WordSize extracts the object size from a header word.
func WordSize(word uint32) uint32 {
	return word & SizeMask
}

// WordFreed reports whether the header word marks a reclaimed object.
func WordFreed(word uint32) bool {
	return word&FreedBit != 0
}

// AlignTo rounds offset up to a multiple of align (a power of two).
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}
