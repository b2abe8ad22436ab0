package store

import (
	"context"

	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"go.uber.org/zap"
)

// HostFunc implements a function. args and results are raw value bits.
type HostFunc func(ctx context.Context, s *Store, args []uint64) ([]uint64, error)

// Func is a function known to the store.
type Func struct {
	Name string
	Impl HostFunc
	Type gctype.TypeIndex
}

// NewFunc defines a function of signature typ and returns a reference to
// it.
func (s *Store) NewFunc(typ gctype.TypeIndex, name string, impl HostFunc) (gcref.FuncRef, error) {
	if err := s.ensureOpen("func.new"); err != nil {
		return gcref.NullFunc, err
	}
	if _, ok := s.reg.Func(typ); !ok {
		return gcref.NullFunc, errors.TypeMismatch(errors.PhaseType, []string{"func", name}, "func type", s.reg.Name(gctype.Concrete(typ)))
	}
	if impl == nil {
		return gcref.NullFunc, errors.InvalidInput(errors.PhaseType, "nil function implementation")
	}
	idx := uint32(len(s.funcs))
	s.funcs = append(s.funcs, &Func{Name: name, Type: typ, Impl: impl})
	Logger().Debug("function defined",
		zap.String("name", name),
		zap.Uint32("index", idx),
		zap.Uint32("type", uint32(typ)))
	return gcref.FuncOf(idx), nil
}

// RefFunc returns a reference to function index.
func (s *Store) RefFunc(index uint32) (gcref.FuncRef, error) {
	if index >= uint32(len(s.funcs)) {
		return gcref.NullFunc, errors.NotFound(errors.PhaseAccess, "function", index)
	}
	return gcref.FuncOf(index), nil
}

// Func returns the function behind f.
func (s *Store) Func(f gcref.FuncRef) (*Func, bool) {
	if f.IsNull() || f.FuncIndex() >= uint32(len(s.funcs)) {
		return nil, false
	}
	return s.funcs[f.FuncIndex()], true
}

// FuncType returns the declared type of function index.
func (s *Store) FuncType(index uint32) (gctype.TypeIndex, bool) {
	if index >= uint32(len(s.funcs)) {
		return 0, false
	}
	return s.funcs[index].Type, true
}

// CallRef calls f. Null traps.
func (s *Store) CallRef(ctx context.Context, f gcref.FuncRef, args []uint64) ([]uint64, error) {
	if f.IsNull() {
		return nil, errors.NewTrap(errors.TrapNullReference, "call_ref")
	}
	fn, ok := s.Func(f)
	if !ok {
		return nil, errors.NotFound(errors.PhaseAccess, "function", f.FuncIndex())
	}
	return s.call(ctx, fn, args)
}

// CallIndirect calls the function in entry i of t after checking that its
// type is a subtype of typ.
func (s *Store) CallIndirect(ctx context.Context, t *Table, i uint32, typ gctype.TypeIndex, args []uint64) ([]uint64, error) {
	if s.reg.TopOf(t.typ.Heap) != gctype.HeapFunc {
		return nil, errors.TypeMismatch(errors.PhaseCast, []string{"call_indirect"}, "function table", t.typ.String())
	}
	if i >= uint32(len(t.elems)) {
		return nil, errors.NewTrap(errors.TrapTableOutOfBounds, "call_indirect")
	}
	f := gcref.FuncRef(t.elems[i])
	if err := s.casts.CheckSignature(f, typ); err != nil {
		return nil, err
	}
	fn, _ := s.Func(f)
	return s.call(ctx, fn, args)
}

func (s *Store) call(ctx context.Context, fn *Func, args []uint64) ([]uint64, error) {
	sig, _ := s.reg.Func(fn.Type)
	if len(args) != len(sig.Params) {
		return nil, errors.New(errors.PhaseAccess, errors.KindInvalidInput).
			Path("call", fn.Name).
			Detail("%d arguments for %d parameters", len(args), len(sig.Params)).
			Build()
	}
	return fn.Impl(ctx, s, args)
}
