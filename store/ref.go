package store

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
)

// RefI31 boxes the low 31 bits of x.
func (s *Store) RefI31(x uint32) gcref.Ref { return gcref.FromI31(x) }

// I31GetS returns the payload of an i31 reference, sign-extended.
func (s *Store) I31GetS(r gcref.Ref) (int32, error) {
	if r.IsNull() {
		return 0, errors.NewTrap(errors.TrapNullI31Reference, "i31.get_s")
	}
	if !r.IsI31() {
		return 0, errors.TypeMismatch(errors.PhaseAccess, []string{"i31.get_s"}, "i31", r.String())
	}
	return r.I31GetS(), nil
}

// I31GetU returns the payload of an i31 reference, zero-extended.
func (s *Store) I31GetU(r gcref.Ref) (uint32, error) {
	if r.IsNull() {
		return 0, errors.NewTrap(errors.TrapNullI31Reference, "i31.get_u")
	}
	if !r.IsI31() {
		return 0, errors.TypeMismatch(errors.PhaseAccess, []string{"i31.get_u"}, "i31", r.String())
	}
	return r.I31GetU(), nil
}

// AnyConvertExtern internalises an extern reference. The bits are
// unchanged: extern and any values share one representation.
func (s *Store) AnyConvertExtern(r gcref.Ref) gcref.Ref { return r }

// ExternConvertAny externalises an any reference without changing its
// bits.
func (s *Store) ExternConvertAny(r gcref.Ref) gcref.Ref { return r }

// RefEq compares two eq references by identity.
func (s *Store) RefEq(a, b gcref.Ref) bool { return a == b }

// RefIsNull reports whether r is null.
func (s *Store) RefIsNull(r gcref.Ref) bool { return r.IsNull() }

// RefAsNonNull returns r, or a null reference trap.
func (s *Store) RefAsNonNull(r gcref.Ref) (gcref.Ref, error) {
	if r.IsNull() {
		return gcref.Null, errors.NewTrap(errors.TrapNullReference, "ref.as_non_null")
	}
	return r, nil
}

// ExternNew wraps a host value in an extern reference. The host value is
// released when the reference's count drops to zero.
func (s *Store) ExternNew(host any) (gcref.Ref, error) {
	if err := s.ensureOpen("extern.new"); err != nil {
		return gcref.Null, err
	}
	return s.heap.ExternNew(host)
}

// ExternHost returns the host value behind an extern reference created by
// ExternNew. Null yields nil.
func (s *Store) ExternHost(r gcref.Ref) (any, error) {
	if err := s.ensureOpen("extern.host"); err != nil {
		return nil, err
	}
	return s.heap.ExternHost(r)
}

func (s *Store) isFuncRealm(t gctype.RefType) bool {
	return s.reg.TopOf(t.Heap) == gctype.HeapFunc
}

// RefTest reports whether v is a member of target. For function types v
// holds a gcref.FuncRef, otherwise a gcref.Ref.
func (s *Store) RefTest(v uint64, target gctype.RefType) (bool, error) {
	if err := s.ensureOpen("ref.test"); err != nil {
		return false, err
	}
	if s.isFuncRealm(target) {
		return s.casts.TestFunc(gcref.FuncRef(v), target)
	}
	return s.casts.Test(gcref.Ref(v), target)
}

// RefCast returns v if it is a member of target, otherwise a cast failure
// trap.
func (s *Store) RefCast(v uint64, target gctype.RefType) (uint64, error) {
	ok, err := s.RefTest(v, target)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.NewTrap(errors.TrapCastFailure, "ref.cast")
	}
	return v, nil
}

// BrOnCast reports whether br_on_cast branches for v of static type from.
func (s *Store) BrOnCast(v uint64, from, to gctype.RefType) (bool, error) {
	if !s.reg.RefSubtype(to, from) {
		return false, errors.TypeMismatch(errors.PhaseCast, []string{"br_on_cast"}, from.String(), to.String())
	}
	return s.RefTest(v, to)
}

// BrOnCastFail reports whether br_on_cast_fail branches.
func (s *Store) BrOnCastFail(v uint64, from, to gctype.RefType) (bool, error) {
	taken, err := s.BrOnCast(v, from, to)
	if err != nil {
		return false, err
	}
	return !taken, nil
}
