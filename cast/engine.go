package cast

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/layout"
)

// Headers reads object headers. *heap.Heap implements it.
type Headers interface {
	Header(ref gcref.Ref) (layout.Kind, uint32, error)
}

// Signatures maps function indices to their declared type.
type Signatures interface {
	FuncType(index uint32) (gctype.TypeIndex, bool)
}

// Stats counts how concrete type checks were decided.
type Stats struct {
	Checks    uint64 // concrete checks against a heap object or function
	FastPath  uint64 // decided by type index equality
	SlowPath  uint64 // needed a supertype chain walk
	Failures  uint64 // checks that returned false
	Abstract  uint64 // decided by kind bits alone
	Immediate uint64 // null or i31 operands
}

// Engine decides ref.test, ref.cast, br_on_cast, br_on_cast_fail and the
// call_indirect signature check. All of them share one test routine.
type Engine struct {
	reg   *gctype.Registry
	objs  Headers
	funcs Signatures
	stats Stats
}

// New creates an engine. funcs may be nil when no function references are
// tested.
func New(reg *gctype.Registry, objs Headers, funcs Signatures) *Engine {
	return &Engine{reg: reg, objs: objs, funcs: funcs}
}

// Stats returns the engine's counters.
func (e *Engine) Stats() Stats { return e.stats }

// SubtypeCheck decides whether an object of dynamic type dyn satisfies the
// static type want: equal indices first, then the supertype chain.
func (e *Engine) SubtypeCheck(dyn, want gctype.TypeIndex) bool {
	e.stats.Checks++
	if dyn == want {
		e.stats.FastPath++
		return true
	}
	e.stats.SlowPath++
	ok := e.reg.IsSubtype(dyn, want)
	if !ok {
		e.stats.Failures++
	}
	return ok
}

// Test decides ref.test: whether v, a value of the any or extern
// hierarchy, is a member of target.
//
// Null is a member of every nullable type. An i31 value is a member of
// i31, eq and any regardless of its payload. A heap object is classified
// by the kind bits of its header and, for concrete targets, by its type
// index.
func (e *Engine) Test(v gcref.Ref, target gctype.RefType) (bool, error) {
	switch gcref.Classify(v) {
	case gcref.KindNull:
		e.stats.Immediate++
		return target.Nullable, nil
	case gcref.KindI31:
		e.stats.Immediate++
		switch target.Heap {
		case gctype.HeapI31, gctype.HeapEq, gctype.HeapAny, gctype.HeapExtern:
			// extern.convert_any keeps the i31 encoding
			return true, nil
		}
		return false, nil
	}

	kind, typ, err := e.objs.Header(v)
	if err != nil {
		return false, err
	}

	h := target.Heap
	if h.IsConcrete() {
		want := h.Index()
		switch e.reg.Kind(want) {
		case gctype.CompStruct:
			if kind != layout.KindStructRef {
				return false, nil
			}
		case gctype.CompArray:
			if kind != layout.KindArrayRef {
				return false, nil
			}
		default:
			return false, nil
		}
		return e.SubtypeCheck(gctype.TypeIndex(typ), want), nil
	}

	e.stats.Abstract++
	switch h {
	case gctype.HeapAny, gctype.HeapExtern:
		// any object can be internalised or externalised
		return true, nil
	case gctype.HeapEq:
		return kind.Matches(layout.KindEqRef), nil
	case gctype.HeapStruct:
		return kind.Matches(layout.KindStructRef), nil
	case gctype.HeapArray:
		return kind.Matches(layout.KindArrayRef), nil
	}
	return false, nil
}

// Cast decides ref.cast: v itself if it is a member of target, otherwise
// a "cast failure" trap.
func (e *Engine) Cast(v gcref.Ref, target gctype.RefType) (gcref.Ref, error) {
	ok, err := e.Test(v, target)
	if err != nil {
		return gcref.Null, err
	}
	if !ok {
		return gcref.Null, errors.NewTrap(errors.TrapCastFailure, "ref.cast")
	}
	return v, nil
}

// BrOnCast decides br_on_cast: the branch is taken when v, statically of
// type from, is a member of to. The value is passed on unchanged either
// way. to must be a subtype of from.
func (e *Engine) BrOnCast(v gcref.Ref, from, to gctype.RefType) (bool, gcref.Ref, error) {
	if !e.reg.RefSubtype(to, from) {
		return false, v, errors.TypeMismatch(errors.PhaseCast, []string{"br_on_cast"}, from.String(), to.String())
	}
	ok, err := e.Test(v, to)
	if err != nil {
		return false, v, err
	}
	return ok, v, nil
}

// BrOnCastFail decides br_on_cast_fail: the branch is taken exactly when
// br_on_cast's would not be.
func (e *Engine) BrOnCastFail(v gcref.Ref, from, to gctype.RefType) (bool, gcref.Ref, error) {
	taken, out, err := e.BrOnCast(v, from, to)
	if err != nil {
		return false, out, err
	}
	return !taken, out, nil
}

// TestFunc decides ref.test for function references.
func (e *Engine) TestFunc(f gcref.FuncRef, target gctype.RefType) (bool, error) {
	if f.IsNull() {
		e.stats.Immediate++
		return target.Nullable, nil
	}
	h := target.Heap
	if h == gctype.HeapFunc {
		e.stats.Abstract++
		return true, nil
	}
	if !h.IsConcrete() || e.reg.Kind(h.Index()) != gctype.CompFunc {
		return false, nil
	}
	typ, err := e.funcType(f)
	if err != nil {
		return false, err
	}
	return e.SubtypeCheck(typ, h.Index()), nil
}

// CastFunc decides ref.cast for function references.
func (e *Engine) CastFunc(f gcref.FuncRef, target gctype.RefType) (gcref.FuncRef, error) {
	ok, err := e.TestFunc(f, target)
	if err != nil {
		return gcref.NullFunc, err
	}
	if !ok {
		return gcref.NullFunc, errors.NewTrap(errors.TrapCastFailure, "ref.cast")
	}
	return f, nil
}

// CheckSignature is the call_indirect check: f must be non-null and its
// type a subtype of expected.
func (e *Engine) CheckSignature(f gcref.FuncRef, expected gctype.TypeIndex) error {
	if f.IsNull() {
		return errors.NewTrap(errors.TrapUninitializedElement, "call_indirect")
	}
	typ, err := e.funcType(f)
	if err != nil {
		return err
	}
	if !e.SubtypeCheck(typ, expected) {
		return errors.NewTrap(errors.TrapBadSignature, "call_indirect")
	}
	return nil
}

func (e *Engine) funcType(f gcref.FuncRef) (gctype.TypeIndex, error) {
	if e.funcs != nil {
		if typ, ok := e.funcs.FuncType(f.FuncIndex()); ok {
			return typ, nil
		}
	}
	return 0, errors.NotFound(errors.PhaseCast, "function", f.FuncIndex())
}
