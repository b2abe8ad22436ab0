package typesec

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gctype"
)

// Definer receives rebased groups. *store.Store implements it.
type Definer interface {
	Registry() *gctype.Registry
	DefineGroup(subs []gctype.SubType) (gctype.TypeIndex, error)
}

// Define defines groups in order and returns the registry index of every
// module type.
func Define(d Definer, groups []Group) ([]gctype.TypeIndex, error) {
	base := gctype.TypeIndex(d.Registry().Len())
	total := 0
	for _, g := range groups {
		total += len(g)
	}

	indices := make([]gctype.TypeIndex, 0, total)
	defined := 0
	for gi, g := range groups {
		end := defined + len(g)
		rebased := make([]gctype.SubType, len(g))
		for i, sub := range g {
			s, err := rebase(sub, base, end)
			if err != nil {
				return nil, errors.New(errors.PhaseType, errors.KindInvalidInput).
					Path("typesec", "group").
					Value(gi).
					Detail("type %d", defined+i).
					Cause(err).
					Build()
			}
			rebased[i] = s
		}
		first, err := d.DefineGroup(rebased)
		if err != nil {
			return nil, err
		}
		if first != base+gctype.TypeIndex(defined) {
			return nil, errors.New(errors.PhaseType, errors.KindRegistration).
				Path("typesec", "group").
				Value(gi).
				Detail("registry defined the group at %d, expected %d", first, base+gctype.TypeIndex(defined)).
				Build()
		}
		for i := range g {
			indices = append(indices, first+gctype.TypeIndex(i))
		}
		defined = end
	}
	return indices, nil
}

// rebase maps module-relative indices onto the registry. A group may refer
// to itself and to earlier groups, so indices must be below limit.
func rebase(sub gctype.SubType, base gctype.TypeIndex, limit int) (gctype.SubType, error) {
	index := func(idx gctype.TypeIndex) (gctype.TypeIndex, error) {
		if uint64(idx) >= uint64(limit) {
			return 0, errors.OutOfBounds(errors.PhaseType, []string{"type index"}, int(idx), limit)
		}
		return base + idx, nil
	}
	ref := func(r gctype.RefType) (gctype.RefType, error) {
		if !r.Heap.IsConcrete() {
			return r, nil
		}
		idx, err := index(r.Heap.Index())
		r.Heap = gctype.Concrete(idx)
		return r, err
	}
	val := func(v gctype.ValType) (gctype.ValType, error) {
		if !v.IsRef() {
			return v, nil
		}
		var err error
		v.Ref, err = ref(v.Ref)
		return v, err
	}
	field := func(f gctype.FieldType) (gctype.FieldType, error) {
		if !f.Storage.IsRef() {
			return f, nil
		}
		var err error
		f.Storage.Val, err = val(f.Storage.Val)
		return f, err
	}

	out := sub
	var err error
	if sub.Super != gctype.NoSuper {
		if out.Super, err = index(sub.Super); err != nil {
			return out, err
		}
	}

	switch sub.Comp.Kind {
	case gctype.CompStruct:
		fields := make([]gctype.FieldType, len(sub.Comp.Struct.Fields))
		for i, f := range sub.Comp.Struct.Fields {
			if fields[i], err = field(f); err != nil {
				return out, err
			}
		}
		out.Comp.Struct = &gctype.StructType{Fields: fields}
	case gctype.CompArray:
		elem, err := field(sub.Comp.Array.Element)
		if err != nil {
			return out, err
		}
		out.Comp.Array = &gctype.ArrayType{Element: elem}
	case gctype.CompFunc:
		ft := &gctype.FuncType{
			Params:  make([]gctype.ValType, len(sub.Comp.Func.Params)),
			Results: make([]gctype.ValType, len(sub.Comp.Func.Results)),
		}
		for i, p := range sub.Comp.Func.Params {
			if ft.Params[i], err = val(p); err != nil {
				return out, err
			}
		}
		for i, p := range sub.Comp.Func.Results {
			if ft.Results[i], err = val(p); err != nil {
				return out, err
			}
		}
		out.Comp.Func = ft
	}
	return out, nil
}
