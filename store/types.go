package store

import (
	"github.com/wippyai/wasm-gc/gctype"
	"go.uber.org/zap"
)

// DefineStruct defines a struct type.
func (s *Store) DefineStruct(st gctype.StructType, super gctype.TypeIndex, final bool) (gctype.TypeIndex, error) {
	return s.DefineSubtype(gctype.StructDef(st, super, final))
}

// DefineArray defines an array type.
func (s *Store) DefineArray(at gctype.ArrayType, super gctype.TypeIndex, final bool) (gctype.TypeIndex, error) {
	return s.DefineSubtype(gctype.ArrayDef(at, super, final))
}

// DefineFunc defines a function signature.
func (s *Store) DefineFunc(ft gctype.FuncType, super gctype.TypeIndex, final bool) (gctype.TypeIndex, error) {
	return s.DefineSubtype(gctype.FuncDef(ft, super, final))
}

// DefineSubtype defines one type and registers its object layout with the
// heap.
func (s *Store) DefineSubtype(sub gctype.SubType) (gctype.TypeIndex, error) {
	return s.DefineGroup([]gctype.SubType{sub})
}

// DefineGroup defines a recursive group whose members may refer to each
// other. It returns the index of the first member.
func (s *Store) DefineGroup(subs []gctype.SubType) (gctype.TypeIndex, error) {
	if err := s.ensureOpen("define"); err != nil {
		return 0, err
	}
	first, err := s.reg.DefineGroup(subs)
	if err != nil {
		return 0, err
	}
	for i, sub := range subs {
		idx := first + gctype.TypeIndex(i)
		if sub.Comp.Kind == gctype.CompFunc {
			continue
		}
		info, err := s.layouts.Layout(idx)
		if err != nil {
			return 0, err
		}
		s.heap.RegisterType(uint32(idx), info)
		Logger().Debug("type defined",
			zap.Uint32("index", uint32(idx)),
			zap.Stringer("type", sub.Comp),
			zap.Uint32("size", info.Size))
	}
	return first, nil
}
