package typesec

import (
	"encoding/binary"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gctype"
)

const (
	magic   = 0x6d736100 // \0asm
	version = 1

	sectionCustom = 0
	sectionType   = 1
)

// Binary encodings of type section forms.
const (
	formRec      = 0x4E
	formSub      = 0x50
	formSubFinal = 0x4F
	formFunc     = 0x60
	formStruct   = 0x5F
	formArray    = 0x5E

	valRef     = 0x64
	valRefNull = 0x63
)

// Group is one recursion group. Type indices in it, including Super and
// concrete heap types, are module-relative.
type Group []gctype.SubType

// Decode returns the recursion groups of a module's type section. A
// module without one yields no groups.
func Decode(module []byte) ([]Group, error) {
	r := &reader{data: module}
	header, err := r.bytes("header", 8)
	if err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(header) != magic {
		return nil, errors.InvalidData(errors.PhaseType, []string{"typesec", "header"}, "invalid wasm magic number")
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != version {
		return nil, errors.New(errors.PhaseType, errors.KindUnsupported).
			Path("typesec", "header").
			Value(v).
			Detail("wasm version %d", v).
			Build()
	}

	for !r.done() {
		id, err := r.u8("section id")
		if err != nil {
			return nil, err
		}
		size, err := r.u32("section size")
		if err != nil {
			return nil, err
		}
		start := r.pos
		payload, err := r.bytes("section", size)
		if err != nil {
			return nil, err
		}
		switch id {
		case sectionCustom:
			continue
		case sectionType:
			return decodeSection(&reader{data: payload, base: start})
		}
		// sections are ordered and only custom sections may precede types
		return nil, nil
	}
	return nil, nil
}

// DecodeSection decodes the payload of a type section.
func DecodeSection(payload []byte) ([]Group, error) {
	return decodeSection(&reader{data: payload})
}

func decodeSection(r *reader) ([]Group, error) {
	count, err := r.count("type count")
	if err != nil {
		return nil, err
	}
	var groups []Group
	for range count {
		form, err := r.u8("type form")
		if err != nil {
			return nil, err
		}
		if form != formRec {
			sub, err := readSub(r, form)
			if err != nil {
				return nil, err
			}
			groups = append(groups, Group{sub})
			continue
		}

		n, err := r.count("rec group size")
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// empty groups define nothing
			continue
		}
		g := make(Group, 0, n)
		for range n {
			form, err := r.u8("type form")
			if err != nil {
				return nil, err
			}
			sub, err := readSub(r, form)
			if err != nil {
				return nil, err
			}
			g = append(g, sub)
		}
		groups = append(groups, g)
	}
	if !r.done() {
		return nil, r.fail("type section", "%d trailing bytes", len(r.data)-r.pos)
	}
	return groups, nil
}

func readSub(r *reader, form byte) (gctype.SubType, error) {
	switch form {
	case formSub, formSubFinal:
		n, err := r.u32("supertype count")
		if err != nil {
			return gctype.SubType{}, err
		}
		super := gctype.NoSuper
		switch n {
		case 0:
		case 1:
			idx, err := r.u32("supertype")
			if err != nil {
				return gctype.SubType{}, err
			}
			super = gctype.TypeIndex(idx)
		default:
			return gctype.SubType{}, r.fail("supertype count", "%d supertypes", n)
		}
		kind, err := r.u8("composite type")
		if err != nil {
			return gctype.SubType{}, err
		}
		comp, err := readComp(r, kind)
		if err != nil {
			return gctype.SubType{}, err
		}
		return gctype.SubType{Comp: comp, Super: super, Final: form == formSubFinal}, nil
	}

	comp, err := readComp(r, form)
	if err != nil {
		return gctype.SubType{}, err
	}
	return gctype.SubType{Comp: comp, Super: gctype.NoSuper, Final: true}, nil
}

func readComp(r *reader, kind byte) (gctype.CompType, error) {
	switch kind {
	case formFunc:
		params, err := readValTypes(r, "params")
		if err != nil {
			return gctype.CompType{}, err
		}
		results, err := readValTypes(r, "results")
		if err != nil {
			return gctype.CompType{}, err
		}
		return gctype.CompType{Kind: gctype.CompFunc, Func: &gctype.FuncType{Params: params, Results: results}}, nil

	case formStruct:
		n, err := r.count("field count")
		if err != nil {
			return gctype.CompType{}, err
		}
		fields := make([]gctype.FieldType, n)
		for i := range fields {
			if fields[i], err = readField(r); err != nil {
				return gctype.CompType{}, err
			}
		}
		return gctype.CompType{Kind: gctype.CompStruct, Struct: &gctype.StructType{Fields: fields}}, nil

	case formArray:
		elem, err := readField(r)
		if err != nil {
			return gctype.CompType{}, err
		}
		return gctype.CompType{Kind: gctype.CompArray, Array: &gctype.ArrayType{Element: elem}}, nil
	}
	r.pos--
	return gctype.CompType{}, r.fail("composite type", "invalid form 0x%02x", kind)
}

func readValTypes(r *reader, what string) ([]gctype.ValType, error) {
	n, err := r.count(what)
	if err != nil {
		return nil, err
	}
	vals := make([]gctype.ValType, n)
	for i := range vals {
		b, err := r.u8(what)
		if err != nil {
			return nil, err
		}
		st, err := readStorage(r, b, false)
		if err != nil {
			return nil, err
		}
		vals[i] = st.Val
	}
	return vals, nil
}

func readField(r *reader) (gctype.FieldType, error) {
	b, err := r.u8("field type")
	if err != nil {
		return gctype.FieldType{}, err
	}
	st, err := readStorage(r, b, true)
	if err != nil {
		return gctype.FieldType{}, err
	}
	mut, err := r.u8("mutability")
	if err != nil {
		return gctype.FieldType{}, err
	}
	if mut > 1 {
		return gctype.FieldType{}, r.fail("mutability", "invalid flag 0x%02x", mut)
	}
	return gctype.FieldType{Storage: st, Mutable: mut == 1}, nil
}

func readStorage(r *reader, b byte, packed bool) (gctype.StorageType, error) {
	switch b {
	case byte(gctype.I32), byte(gctype.I64), byte(gctype.F32), byte(gctype.F64), byte(gctype.V128):
		return gctype.Val(gctype.NumType(b)), nil
	case byte(gctype.PackedI8), byte(gctype.PackedI16):
		if packed {
			return gctype.Packed(gctype.PackedType(b)), nil
		}
	case valRef, valRefNull:
		h, err := readHeap(r)
		if err != nil {
			return gctype.StorageType{}, err
		}
		return gctype.Ref(gctype.RefType{Heap: h, Nullable: b == valRefNull}), nil
	default:
		// abstract shorthands are single-byte s33 values
		if h := gctype.HeapType(int64(b) - 0x80); abstract(h) {
			return gctype.Ref(gctype.RefNull(h)), nil
		}
	}
	r.pos--
	return gctype.StorageType{}, r.fail("value type", "invalid type 0x%02x", b)
}

func abstract(h gctype.HeapType) bool {
	switch h {
	case gctype.HeapFunc, gctype.HeapExtern, gctype.HeapAny, gctype.HeapEq, gctype.HeapI31,
		gctype.HeapStruct, gctype.HeapArray, gctype.HeapNone, gctype.HeapNoExtern, gctype.HeapNoFunc:
		return true
	}
	return false
}

func readHeap(r *reader) (gctype.HeapType, error) {
	v, err := r.s33("heap type")
	if err != nil {
		return 0, err
	}
	h := gctype.HeapType(v)
	if v >= 0 || abstract(h) {
		return h, nil
	}
	return 0, r.fail("heap type", "unknown heap type %d", v)
}
