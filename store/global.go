package store

import (
	"github.com/wippyai/wasm-gc/barrier"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
)

// Global is a global variable. Reference globals live in ref and are
// barriered when counted; other globals live in bits.
type Global struct {
	typ     gctype.ValType
	bits    uint64
	ref     gcref.Ref
	mutable bool
	counted bool
}

// Type returns the global's value type.
func (g *Global) Type() gctype.ValType { return g.typ }

// Mutable reports whether the global can be set.
func (g *Global) Mutable() bool { return g.mutable }

// NewGlobal creates a global holding init.
func (s *Store) NewGlobal(t gctype.ValType, mutable bool, init uint64) (*Global, error) {
	if err := s.ensureOpen("global.new"); err != nil {
		return nil, err
	}
	if !t.IsRef() && t.Num == gctype.V128 {
		return nil, errors.Unsupported(errors.PhaseAccess, "v128 globals")
	}
	g := &Global{
		typ:     t,
		mutable: mutable,
		counted: t.IsRef() && s.reg.Counted(t.Ref),
	}
	if !t.IsRef() {
		g.bits = init
	} else if g.counted {
		if err := barrier.Init(s.heap, barrier.Cell{P: &g.ref}, gcref.Ref(init)); err != nil {
			return nil, err
		}
	} else {
		g.ref = gcref.Ref(init)
	}
	s.globals = append(s.globals, g)
	return g, nil
}

// GlobalGet reads a global.
func (s *Store) GlobalGet(g *Global) uint64 {
	if g.typ.IsRef() {
		return uint64(g.ref)
	}
	return g.bits
}

// GlobalSet writes a mutable global.
func (s *Store) GlobalSet(g *Global, v uint64) error {
	if err := s.ensureOpen("global.set"); err != nil {
		return err
	}
	if !g.mutable {
		return errors.Immutable(errors.PhaseAccess, []string{"global.set"})
	}
	switch {
	case !g.typ.IsRef():
		g.bits = v
	case g.counted:
		return barrier.Write(s.heap, barrier.Cell{P: &g.ref}, gcref.Ref(v))
	default:
		g.ref = gcref.Ref(v)
	}
	return nil
}
