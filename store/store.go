package store

import (
	"github.com/wippyai/wasm-gc/barrier"
	"github.com/wippyai/wasm-gc/cast"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/gctype"
	"github.com/wippyai/wasm-gc/heap"
	"github.com/wippyai/wasm-gc/layout"
	"go.uber.org/zap"
)

// Store owns a heap and every root that points into it.
type Store struct {
	reg     *gctype.Registry
	layouts *layout.Calculator
	heap    *heap.Heap
	casts   *cast.Engine
	funcs   []*Func
	globals []*Global
	tables  []*Table
	datas   []*DataSegment
	elems   []*ElemSegment
	cfg     Config
	closed  bool
}

// New creates an empty store.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h, err := heap.New(cfg.Heap)
	if err != nil {
		return nil, err
	}
	reg := gctype.NewRegistry()
	s := &Store{
		cfg:     cfg,
		reg:     reg,
		layouts: layout.NewCalculator(reg),
		heap:    h,
	}
	s.casts = cast.New(reg, h, s)
	return s, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config { return s.cfg }

// Registry returns the store's type registry.
func (s *Store) Registry() *gctype.Registry { return s.reg }

// Heap returns the store's heap.
func (s *Store) Heap() *heap.Heap { return s.heap }

// Casts returns the store's cast engine.
func (s *Store) Casts() *cast.Engine { return s.casts }

// Layout returns the object layout of a struct or array type.
func (s *Store) Layout(typ gctype.TypeIndex) (*layout.Info, error) {
	return s.layouts.Layout(typ)
}

// Reset releases every reference held by the activation table. Objects
// that are not stored anywhere else are reclaimed.
func (s *Store) Reset() error {
	if s.closed {
		return nil
	}
	return s.heap.Activations().Reset()
}

// Stats summarises the store.
type Stats struct {
	Heap         heap.Stats
	Cast         cast.Stats
	Types        int
	Funcs        int
	Globals      int
	Tables       int
	DataSegments int
	ElemSegments int
}

// Stats returns current statistics.
func (s *Store) Stats() Stats {
	return Stats{
		Heap:         s.heap.Stats(),
		Cast:         s.casts.Stats(),
		Types:        s.reg.Len(),
		Funcs:        len(s.funcs),
		Globals:      len(s.globals),
		Tables:       len(s.tables),
		DataSegments: len(s.datas),
		ElemSegments: len(s.elems),
	}
}

// Objects calls fn for every live object in address order until fn
// returns false.
func (s *Store) Objects(fn func(heap.Object) bool) {
	if s.closed {
		return
	}
	s.heap.Objects(fn)
}

// RegisterDestructor runs fn whenever an object of the struct or array
// type typ is reclaimed. fn may read the object but must not keep it.
func (s *Store) RegisterDestructor(typ gctype.TypeIndex, fn func(s *Store, ref gcref.Ref) error) error {
	if _, err := s.layouts.Layout(typ); err != nil {
		return err
	}
	if fn == nil {
		s.heap.SetDestructor(uint32(typ), nil)
		return nil
	}
	s.heap.SetDestructor(uint32(typ), func(ref gcref.Ref) error {
		return fn(s, ref)
	})
	return nil
}

// Close releases every global, table and segment entry, then the
// activation table and the heap. The store must not be used afterwards.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	for _, g := range s.globals {
		if g.counted {
			keep(barrier.Clear(s.heap, barrier.Cell{P: &g.ref}))
		}
	}
	for _, t := range s.tables {
		if t.counted {
			keep(barrier.ClearAll(s.heap, barrier.Cells(t.elems)))
		}
		t.elems = nil
	}
	for _, e := range s.elems {
		keep(s.ElemDrop(e))
	}

	stats := s.heap.Stats()
	keep(s.heap.Close())
	s.closed = true

	Logger().Debug("store closed",
		zap.Uint64("allocs", stats.Allocs),
		zap.Uint64("frees", stats.Frees),
		zap.Uint64("live", stats.LiveObjects))
	return first
}

func (s *Store) ensureOpen(op string) error {
	if s.closed {
		return errors.New(errors.PhaseAccess, errors.KindNotInitialized).
			Path(op).
			Detail("store is closed").
			Build()
	}
	return nil
}
