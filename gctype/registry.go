package gctype

import (
	"strconv"

	"github.com/wippyai/wasm-gc/errors"
)

// Registry holds the defined composite types of a store and decides
// subtyping between them. Subtyping is nominal: a concrete type is a
// subtype of another only through its declared supertype chain.
//
// Not safe for concurrent mutation; lookups after definition are read-only.
type Registry struct {
	types []SubType
	depth []uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Len returns the number of defined types.
func (r *Registry) Len() int { return len(r.types) }

// Define adds a single type and returns its index. A struct or array may
// refer to its own index.
func (r *Registry) Define(sub SubType) (TypeIndex, error) {
	return r.DefineGroup([]SubType{sub})
}

// DefineGroup adds a recursion group. Types in the group may refer to each
// other and to earlier types. It returns the index of the first type. On
// error nothing is added.
func (r *Registry) DefineGroup(subs []SubType) (TypeIndex, error) {
	if len(subs) == 0 {
		return 0, errors.InvalidInput(errors.PhaseType, "empty recursion group")
	}

	first := len(r.types)
	end := first + len(subs)
	if uint64(end) >= uint64(NoSuper) {
		return 0, errors.Overflow(errors.PhaseType, nil, end, "type index")
	}

	for _, sub := range subs {
		r.types = append(r.types, sub)
		r.depth = append(r.depth, 0)
	}

	for i := first; i < end; i++ {
		if err := r.validate(TypeIndex(i), end); err != nil {
			r.types = r.types[:first]
			r.depth = r.depth[:first]
			return 0, err
		}
		if super := r.types[i].Super; super != NoSuper {
			r.depth[i] = r.depth[super] + 1
		}
	}

	return TypeIndex(first), nil
}

// Lookup returns the definition of idx.
func (r *Registry) Lookup(idx TypeIndex) (*SubType, bool) {
	if uint64(idx) >= uint64(len(r.types)) {
		return nil, false
	}
	return &r.types[idx], true
}

// Kind returns the composite kind of idx, or 0 if undefined.
func (r *Registry) Kind(idx TypeIndex) CompKind {
	if sub, ok := r.Lookup(idx); ok {
		return sub.Comp.Kind
	}
	return 0
}

// Struct returns the struct definition of idx.
func (r *Registry) Struct(idx TypeIndex) (*StructType, bool) {
	sub, ok := r.Lookup(idx)
	if !ok || sub.Comp.Kind != CompStruct {
		return nil, false
	}
	return sub.Comp.Struct, true
}

// Array returns the array definition of idx.
func (r *Registry) Array(idx TypeIndex) (*ArrayType, bool) {
	sub, ok := r.Lookup(idx)
	if !ok || sub.Comp.Kind != CompArray {
		return nil, false
	}
	return sub.Comp.Array, true
}

// Func returns the function signature of idx.
func (r *Registry) Func(idx TypeIndex) (*FuncType, bool) {
	sub, ok := r.Lookup(idx)
	if !ok || sub.Comp.Kind != CompFunc {
		return nil, false
	}
	return sub.Comp.Func, true
}

// Supertype returns the declared supertype of idx.
func (r *Registry) Supertype(idx TypeIndex) (TypeIndex, bool) {
	sub, ok := r.Lookup(idx)
	if !ok || sub.Super == NoSuper {
		return 0, false
	}
	return sub.Super, true
}

// Depth returns the length of the supertype chain above idx.
func (r *Registry) Depth(idx TypeIndex) uint32 {
	if uint64(idx) >= uint64(len(r.depth)) {
		return 0
	}
	return r.depth[idx]
}

// IsSubtype decides a <: b for defined types: equality first, then a walk
// up a's supertype chain. Chains are never deeper than b requires, so the
// walk stops once a's depth drops to b's.
func (r *Registry) IsSubtype(a, b TypeIndex) bool {
	if a == b {
		return true
	}
	if uint64(a) >= uint64(len(r.types)) || uint64(b) >= uint64(len(r.types)) {
		return false
	}
	target := r.depth[b]
	for r.depth[a] > target {
		a = r.types[a].Super
		if a == b {
			return true
		}
	}
	return false
}

// TopOf returns the top of h's hierarchy: any, extern or func.
func (r *Registry) TopOf(h HeapType) HeapType {
	switch h {
	case HeapExtern, HeapNoExtern:
		return HeapExtern
	case HeapFunc, HeapNoFunc:
		return HeapFunc
	}
	if h.IsConcrete() && r.Kind(h.Index()) == CompFunc {
		return HeapFunc
	}
	return HeapAny
}

// BottomOf returns the bottom of h's hierarchy: none, noextern or nofunc.
func (r *Registry) BottomOf(h HeapType) HeapType {
	switch r.TopOf(h) {
	case HeapExtern:
		return HeapNoExtern
	case HeapFunc:
		return HeapNoFunc
	default:
		return HeapNone
	}
}

// HeapSubtype decides a <: b over the abstract lattice and declared types.
func (r *Registry) HeapSubtype(a, b HeapType) bool {
	if a == b {
		return true
	}

	if b.IsConcrete() {
		if a.IsConcrete() {
			return r.IsSubtype(a.Index(), b.Index())
		}
		switch r.Kind(b.Index()) {
		case CompFunc:
			return a == HeapNoFunc
		case CompStruct, CompArray:
			return a == HeapNone
		}
		return false
	}

	if a.IsConcrete() {
		switch r.Kind(a.Index()) {
		case CompStruct:
			return b == HeapStruct || b == HeapEq || b == HeapAny
		case CompArray:
			return b == HeapArray || b == HeapEq || b == HeapAny
		case CompFunc:
			return b == HeapFunc
		}
		return false
	}

	switch b {
	case HeapAny:
		return a == HeapEq || a == HeapI31 || a == HeapStruct || a == HeapArray || a == HeapNone
	case HeapEq:
		return a == HeapI31 || a == HeapStruct || a == HeapArray || a == HeapNone
	case HeapI31, HeapStruct, HeapArray:
		return a == HeapNone
	case HeapExtern:
		return a == HeapNoExtern
	case HeapFunc:
		return a == HeapNoFunc
	}
	return false
}

// RefSubtype decides a <: b for reference types.
func (r *Registry) RefSubtype(a, b RefType) bool {
	if a.Nullable && !b.Nullable {
		return false
	}
	return r.HeapSubtype(a.Heap, b.Heap)
}

// ValSubtype decides a <: b for value types.
func (r *Registry) ValSubtype(a, b ValType) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.IsRef() {
		return r.RefSubtype(a.Ref, b.Ref)
	}
	return a.Num == b.Num
}

// Name returns a printable name for h.
func (r *Registry) Name(h HeapType) string {
	if h.IsConcrete() {
		if sub, ok := r.Lookup(h.Index()); ok {
			return "$" + strconv.FormatInt(int64(h), 10) + " " + sub.Comp.String()
		}
	}
	return h.String()
}

func (r *Registry) validate(idx TypeIndex, limit int) error {
	sub := &r.types[idx]
	path := []string{"type", strconv.Itoa(int(idx))}

	if err := r.validateComp(sub.Comp, path, limit); err != nil {
		return err
	}

	if sub.Super == NoSuper {
		return nil
	}
	if sub.Super >= idx {
		return errors.New(errors.PhaseType, errors.KindInvalidData).
			Path(path...).
			Detail("supertype %d must be defined before subtype", sub.Super).
			Build()
	}

	super := &r.types[sub.Super]
	if super.Final {
		return errors.New(errors.PhaseType, errors.KindTypeMismatch).
			Path(path...).
			Detail("supertype %d is final", sub.Super).
			Build()
	}
	if super.Comp.Kind != sub.Comp.Kind {
		return errors.New(errors.PhaseType, errors.KindTypeMismatch).
			Path(path...).
			Detail("%s cannot subtype %s", sub.Comp.Kind, super.Comp.Kind).
			Build()
	}

	switch sub.Comp.Kind {
	case CompStruct:
		sf, pf := sub.Comp.Struct.Fields, super.Comp.Struct.Fields
		if len(sf) < len(pf) {
			return errors.New(errors.PhaseType, errors.KindTypeMismatch).
				Path(path...).
				Detail("struct has %d fields, supertype has %d", len(sf), len(pf)).
				Build()
		}
		for i := range pf {
			if !r.fieldSubtype(sf[i], pf[i]) {
				return errors.New(errors.PhaseType, errors.KindTypeMismatch).
					Path(append(path, "field", strconv.Itoa(i))...).
					Type(pf[i].String()).
					Detail("field %s does not match supertype", sf[i]).
					Build()
			}
		}
	case CompArray:
		if !r.fieldSubtype(sub.Comp.Array.Element, super.Comp.Array.Element) {
			return errors.New(errors.PhaseType, errors.KindTypeMismatch).
				Path(path...).
				Type(super.Comp.Array.Element.String()).
				Detail("element %s does not match supertype", sub.Comp.Array.Element).
				Build()
		}
	case CompFunc:
		sf, pf := sub.Comp.Func, super.Comp.Func
		if len(sf.Params) != len(pf.Params) || len(sf.Results) != len(pf.Results) {
			return errors.New(errors.PhaseType, errors.KindTypeMismatch).
				Path(path...).
				Detail("signature arity differs from supertype").
				Build()
		}
		for i := range sf.Params {
			if !r.ValSubtype(pf.Params[i], sf.Params[i]) {
				return errors.TypeMismatch(errors.PhaseType, append(path, "param", strconv.Itoa(i)),
					pf.Params[i].String(), sf.Params[i].String())
			}
		}
		for i := range sf.Results {
			if !r.ValSubtype(sf.Results[i], pf.Results[i]) {
				return errors.TypeMismatch(errors.PhaseType, append(path, "result", strconv.Itoa(i)),
					pf.Results[i].String(), sf.Results[i].String())
			}
		}
	}
	return nil
}

func (r *Registry) validateComp(c CompType, path []string, limit int) error {
	switch c.Kind {
	case CompStruct:
		if c.Struct == nil {
			return errors.InvalidData(errors.PhaseType, path, "struct definition missing")
		}
		for i, f := range c.Struct.Fields {
			if err := r.validateStorage(f.Storage, append(path, "field", strconv.Itoa(i)), limit); err != nil {
				return err
			}
		}
	case CompArray:
		if c.Array == nil {
			return errors.InvalidData(errors.PhaseType, path, "array definition missing")
		}
		return r.validateStorage(c.Array.Element.Storage, append(path, "element"), limit)
	case CompFunc:
		if c.Func == nil {
			return errors.InvalidData(errors.PhaseType, path, "func definition missing")
		}
		for _, v := range append(append([]ValType(nil), c.Func.Params...), c.Func.Results...) {
			if err := r.validateVal(v, path, limit); err != nil {
				return err
			}
		}
	default:
		return errors.New(errors.PhaseType, errors.KindInvalidData).
			Path(path...).
			Detail("unknown composite kind %#x", byte(c.Kind)).
			Build()
	}
	return nil
}

func (r *Registry) validateStorage(s StorageType, path []string, limit int) error {
	switch s.Kind {
	case StorageKindPacked:
		if s.Packed != PackedI8 && s.Packed != PackedI16 {
			return errors.New(errors.PhaseType, errors.KindInvalidData).
				Path(path...).
				Detail("unknown packed type %#x", byte(s.Packed)).
				Build()
		}
		return nil
	case StorageKindVal:
		return r.validateVal(s.Val, path, limit)
	}
	return errors.InvalidData(errors.PhaseType, path, "unknown storage kind")
}

func (r *Registry) validateVal(v ValType, path []string, limit int) error {
	if !v.IsRef() {
		switch v.Num {
		case I32, I64, F32, F64, V128:
			return nil
		}
		return errors.New(errors.PhaseType, errors.KindInvalidData).
			Path(path...).
			Detail("unknown value type %#x", byte(v.Num)).
			Build()
	}
	h := v.Ref.Heap
	if h.IsConcrete() {
		if int64(h) >= int64(limit) {
			return errors.NotFound(errors.PhaseType, "type", int64(h))
		}
		return nil
	}
	switch h {
	case HeapFunc, HeapExtern, HeapAny, HeapEq, HeapI31, HeapStruct, HeapArray,
		HeapNone, HeapNoExtern, HeapNoFunc:
		return nil
	}
	return errors.New(errors.PhaseType, errors.KindInvalidData).
		Path(path...).
		Detail("unknown heap type %d", int64(h)).
		Build()
}

// fieldSubtype: immutable fields are covariant, mutable fields invariant.
func (r *Registry) fieldSubtype(a, b FieldType) bool {
	if a.Mutable != b.Mutable {
		return false
	}
	if a.Storage.IsPacked() || b.Storage.IsPacked() {
		return a.Storage == b.Storage
	}
	if a.Mutable {
		return r.ValSubtype(a.Storage.Val, b.Storage.Val) && r.ValSubtype(b.Storage.Val, a.Storage.Val)
	}
	return r.ValSubtype(a.Storage.Val, b.Storage.Val)
}

// Counted reports whether values of type t can be heap references whose
// stores must maintain reference counts. Function references, i31 and the
// bottom types never can.
func (r *Registry) Counted(t RefType) bool {
	h := t.Heap
	if h == HeapI31 || h.IsBottom() {
		return false
	}
	return r.TopOf(h) != HeapFunc
}
