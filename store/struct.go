package store

import (
	"strconv"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/layout"
)

func (s *Store) structLayout(typ gctype.TypeIndex, op string) (*layout.Info, *gctype.StructType, error) {
	if err := s.ensureOpen(op); err != nil {
		return nil, nil, err
	}
	st, ok := s.reg.Struct(typ)
	if !ok {
		return nil, nil, errors.TypeMismatch(errors.PhaseAccess, []string{op}, "struct type", s.reg.Name(gctype.Concrete(typ)))
	}
	info, err := s.layouts.Layout(typ)
	if err != nil {
		return nil, nil, err
	}
	return info, st, nil
}

// object checks that ref is a live object whose type is a subtype of typ.
// Null raises nullTrap.
func (s *Store) object(ref gcref.Ref, typ gctype.TypeIndex, op string, nullTrap errors.TrapCode) error {
	if ref.IsNull() {
		return errors.NewTrap(nullTrap, op)
	}
	if ref.IsI31() {
		return errors.TypeMismatch(errors.PhaseAccess, []string{op}, s.reg.Name(gctype.Concrete(typ)), "i31")
	}
	_, dyn, err := s.heap.Header(ref)
	if err != nil {
		return err
	}
	if !s.reg.IsSubtype(gctype.TypeIndex(dyn), typ) {
		return errors.TypeMismatch(errors.PhaseAccess, []string{op},
			s.reg.Name(gctype.Concrete(typ)), s.reg.Name(gctype.Concrete(gctype.TypeIndex(dyn))))
	}
	return nil
}

func fieldPath(op string, field uint32) []string {
	return []string{op, "field", strconv.FormatUint(uint64(field), 10)}
}

// StructNew allocates a struct of type typ with one value per field.
// Reference values are counted in field order.
func (s *Store) StructNew(typ gctype.TypeIndex, values []uint64) (gcref.Ref, error) {
	info, _, err := s.structLayout(typ, "struct.new")
	if err != nil {
		return gcref.Null, err
	}
	if len(values) != len(info.Fields) {
		return gcref.Null, errors.New(errors.PhaseAlloc, errors.KindInvalidInput).
			Path("struct.new").
			Detail("%d values for %d fields", len(values), len(info.Fields)).
			Build()
	}
	for i, f := range info.Fields {
		if !f.Storage.IsPacked() && !f.Storage.IsRef() && f.Storage.Val.Num == gctype.V128 {
			return gcref.Null, errors.Unsupported(errors.PhaseAlloc, "v128 field initialiser; use StructNewDefault and StructSetV128")
		}
		if err := s.checkRef(f.Counted, values[i]); err != nil {
			return gcref.Null, err
		}
	}

	ref, err := s.heap.AllocUninit(layout.KindStructRef, uint32(typ), info.Size, layout.ObjectAlign)
	if err != nil {
		return gcref.Null, err
	}
	for _, f := range info.Fields {
		if f.Counted {
			// the slot must read null before its barrier
			s.heap.StoreRef(ref, f.Offset, gcref.Null)
		}
	}
	for i, f := range info.Fields {
		if err := s.writeSlot(ref, f.Offset, f, values[i], true); err != nil {
			return gcref.Null, err
		}
	}
	return ref, nil
}

// StructNewDefault allocates a struct with every field zero or null.
func (s *Store) StructNewDefault(typ gctype.TypeIndex) (gcref.Ref, error) {
	info, st, err := s.structLayout(typ, "struct.new_default")
	if err != nil {
		return gcref.Null, err
	}
	for i, f := range st.Fields {
		if !f.Storage.Defaultable() {
			return gcref.Null, errors.TypeMismatch(errors.PhaseAlloc, fieldPath("struct.new_default", uint32(i)),
				"defaultable field", f.Storage.String())
		}
	}
	return s.heap.AllocRaw(layout.KindStructRef, uint32(typ), info.Size, layout.ObjectAlign)
}

func (s *Store) structField(obj gcref.Ref, typ gctype.TypeIndex, field uint32, op string) (layout.Field, gctype.FieldType, error) {
	info, st, err := s.structLayout(typ, op)
	if err != nil {
		return layout.Field{}, gctype.FieldType{}, err
	}
	if field >= uint32(len(info.Fields)) {
		return layout.Field{}, gctype.FieldType{}, errors.OutOfBounds(errors.PhaseAccess, []string{op}, int(field), len(info.Fields))
	}
	if err := s.object(obj, typ, op, errors.TrapNullStructReference); err != nil {
		return layout.Field{}, gctype.FieldType{}, err
	}
	return info.Fields[field], st.Fields[field], nil
}

func (s *Store) structGet(obj gcref.Ref, typ gctype.TypeIndex, field uint32, ext extension) (uint64, error) {
	op := "struct.get" + ext.suffix()
	f, _, err := s.structField(obj, typ, field, op)
	if err != nil {
		return 0, err
	}
	if err := checkAccess(f.Storage, ext, fieldPath(op, field)); err != nil {
		return 0, err
	}
	return s.readRaw(obj, f.Offset, f, ext), nil
}

// StructGet reads an unpacked field. Reads never change reference counts.
func (s *Store) StructGet(obj gcref.Ref, typ gctype.TypeIndex, field uint32) (uint64, error) {
	return s.structGet(obj, typ, field, extNone)
}

// StructGetS reads a packed field, sign-extended to i32.
func (s *Store) StructGetS(obj gcref.Ref, typ gctype.TypeIndex, field uint32) (uint64, error) {
	return s.structGet(obj, typ, field, extSigned)
}

// StructGetU reads a packed field, zero-extended to i32.
func (s *Store) StructGetU(obj gcref.Ref, typ gctype.TypeIndex, field uint32) (uint64, error) {
	return s.structGet(obj, typ, field, extUnsigned)
}

// StructSet writes a mutable field. Packed fields keep the low bits of v.
func (s *Store) StructSet(obj gcref.Ref, typ gctype.TypeIndex, field uint32, v uint64) error {
	f, ft, err := s.structField(obj, typ, field, "struct.set")
	if err != nil {
		return err
	}
	if !ft.Mutable {
		return errors.Immutable(errors.PhaseAccess, fieldPath("struct.set", field))
	}
	if !f.Storage.IsPacked() {
		if err := checkAccess(f.Storage, extNone, fieldPath("struct.set", field)); err != nil {
			return err
		}
	}
	return s.writeSlot(obj, f.Offset, f, v, false)
}

// StructGetV128 reads a v128 field.
func (s *Store) StructGetV128(obj gcref.Ref, typ gctype.TypeIndex, field uint32) ([16]byte, error) {
	var out [16]byte
	f, _, err := s.structField(obj, typ, field, "struct.get")
	if err != nil {
		return out, err
	}
	if f.Size != 16 {
		return out, errors.TypeMismatch(errors.PhaseAccess, fieldPath("struct.get", field), "v128", f.Storage.String())
	}
	copy(out[:], s.heap.Bytes(obj, f.Offset, 16))
	return out, nil
}

// StructSetV128 writes a mutable v128 field.
func (s *Store) StructSetV128(obj gcref.Ref, typ gctype.TypeIndex, field uint32, v [16]byte) error {
	f, ft, err := s.structField(obj, typ, field, "struct.set")
	if err != nil {
		return err
	}
	if f.Size != 16 {
		return errors.TypeMismatch(errors.PhaseAccess, fieldPath("struct.set", field), "v128", f.Storage.String())
	}
	if !ft.Mutable {
		return errors.Immutable(errors.PhaseAccess, fieldPath("struct.set", field))
	}
	copy(s.heap.Bytes(obj, f.Offset, 16), v[:])
	return nil
}
