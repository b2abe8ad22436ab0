package layout

import (
	"strconv"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gctype"
)

// Field is the placement of one struct field or of an array's elements.
type Field struct {
	Storage gctype.StorageType
	Offset  uint32
	Size    uint32
	// Counted marks reference fields whose stores need barriers and which
	// are traced when the containing object is reclaimed.
	Counted bool
}

// Info is the layout of a struct or array type.
type Info struct {
	Fields []Field // structs only
	// RefOffsets lists the offsets of counted reference fields (structs).
	RefOffsets []uint32
	Elem       Field // arrays only; Elem.Offset is the first element
	Kind       Kind
	Size       uint32 // struct: total size; array: size with zero elements
	ElemShift  uint32 // arrays only: log2(Elem.Size)
}

// IsArray reports whether the layout describes an array.
func (i *Info) IsArray() bool { return i.Kind == KindArrayRef }

// Calculator computes and caches object layouts for the types in a registry.
type Calculator struct {
	reg   *gctype.Registry
	cache map[gctype.TypeIndex]*Info
}

// NewCalculator creates a calculator bound to reg.
func NewCalculator(reg *gctype.Registry) *Calculator {
	return &Calculator{
		reg:   reg,
		cache: make(map[gctype.TypeIndex]*Info),
	}
}

// StorageSize returns the byte size of a storage type. References are
// compressed to 32 bits.
func StorageSize(s gctype.StorageType) uint32 {
	if s.IsPacked() {
		if s.Packed == gctype.PackedI8 {
			return 1
		}
		return 2
	}
	if s.Val.IsRef() {
		return 4
	}
	switch s.Val.Num {
	case gctype.I64, gctype.F64:
		return 8
	case gctype.V128:
		return 16
	default:
		return 4
	}
}

// StorageAlign returns the alignment of a storage type inside an object.
// Objects are 8-aligned, so nothing is aligned beyond that.
func StorageAlign(s gctype.StorageType) uint32 {
	a := StorageSize(s)
	if a > ObjectAlign {
		return ObjectAlign
	}
	return a
}

// Layout returns the layout of a struct or array type.
func (c *Calculator) Layout(idx gctype.TypeIndex) (*Info, error) {
	if cached, ok := c.cache[idx]; ok {
		return cached, nil
	}

	sub, ok := c.reg.Lookup(idx)
	if !ok {
		return nil, errors.NotFound(errors.PhaseType, "type", idx)
	}

	var info *Info
	switch sub.Comp.Kind {
	case gctype.CompStruct:
		info = c.calculateStruct(sub.Comp.Struct)
	case gctype.CompArray:
		info = c.calculateArray(sub.Comp.Array)
	default:
		return nil, errors.New(errors.PhaseType, errors.KindTypeMismatch).
			Path("type", strconv.Itoa(int(idx))).
			Detail("%s types have no object layout", sub.Comp.Kind).
			Build()
	}

	if info.Size > MaxObjectSize {
		return nil, errors.NewTrap(errors.TrapAllocationTooLarge, "layout")
	}

	c.cache[idx] = info
	return info, nil
}

func (c *Calculator) calculateStruct(st *gctype.StructType) *Info {
	info := &Info{
		Kind:   KindStructRef,
		Fields: make([]Field, len(st.Fields)),
	}

	offset := uint32(HeaderSize)
	for i, f := range st.Fields {
		size := StorageSize(f.Storage)
		offset = AlignTo(offset, StorageAlign(f.Storage))

		counted := f.Storage.IsRef() && c.reg.Counted(f.Storage.Val.Ref)
		info.Fields[i] = Field{
			Storage: f.Storage,
			Offset:  offset,
			Size:    size,
			Counted: counted,
		}
		if counted {
			info.RefOffsets = append(info.RefOffsets, offset)
		}
		offset += size
	}

	info.Size = AlignTo(offset, ObjectAlign)
	return info
}

func (c *Calculator) calculateArray(at *gctype.ArrayType) *Info {
	s := at.Element.Storage
	size := StorageSize(s)

	shift := uint32(0)
	for (uint32(1) << shift) < size {
		shift++
	}

	elemOffset := AlignTo(ArrayBaseSize, StorageAlign(s))
	return &Info{
		Kind: KindArrayRef,
		Elem: Field{
			Storage: s,
			Offset:  elemOffset,
			Size:    size,
			Counted: s.IsRef() && c.reg.Counted(s.Val.Ref),
		},
		Size:      elemOffset,
		ElemShift: shift,
	}
}

// ArraySize returns the object size of an array with length elements.
// length<<shift is checked against 32 bits by shifting back, the header
// addition is checked for wraparound, and the result must fit the header's
// size field.
func (i *Info) ArraySize(length uint32) (uint32, error) {
	scaled := length << i.ElemShift
	if scaled>>i.ElemShift != length {
		return 0, errors.NewTrap(errors.TrapAllocationTooLarge, "array.new")
	}
	total := scaled + i.Elem.Offset
	if total < scaled || total > MaxObjectSize {
		return 0, errors.NewTrap(errors.TrapAllocationTooLarge, "array.new")
	}
	return total, nil
}

// ElemOffset returns the byte offset of element index inside the object.
// The caller has bounds-checked index against the array length, which
// keeps the result within the object size.
func (i *Info) ElemOffset(index uint32) uint32 {
	return i.Elem.Offset + index<<i.ElemShift
}

// InRange reports whether [start, start+n) lies within [0, length) without
// wrapping.
func InRange(start, n, length uint32) bool {
	return uint64(start)+uint64(n) <= uint64(length)
}
