package store

import (
	"github.com/wippyai/wasm-gc/barrier"
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
)

// Frame holds the reference locals of one activation. Locals are roots:
// SetLocal counts the new value and releases the old one. Spill roots a
// value in the frame's activation scope so that it survives calls that
// may reclaim objects; Close releases locals and spills together.
//
// Frames nest and must be closed in reverse order of creation.
type Frame struct {
	s      *Store
	locals []gcref.Ref
	depth  int
	closed bool
}

// NewFrame opens a frame with n null locals.
func (s *Store) NewFrame(n int) *Frame {
	act := s.heap.Activations()
	act.Push()
	return &Frame{
		s:      s,
		locals: make([]gcref.Ref, n),
		depth:  act.Depth(),
	}
}

// Len returns the number of locals.
func (f *Frame) Len() int { return len(f.locals) }

// Local returns local i.
func (f *Frame) Local(i int) gcref.Ref { return f.locals[i] }

// SetLocal stores v into local i.
func (f *Frame) SetLocal(i int, v gcref.Ref) error {
	if f.closed {
		return errors.NotInitialized(errors.PhaseAccess, "frame")
	}
	if i < 0 || i >= len(f.locals) {
		return errors.OutOfBounds(errors.PhaseAccess, []string{"local.set"}, i, len(f.locals))
	}
	return barrier.Write(f.s.heap, barrier.Cell{P: &f.locals[i]}, v)
}

// Spill roots v until the frame closes.
func (f *Frame) Spill(v gcref.Ref) error {
	if f.closed {
		return errors.NotInitialized(errors.PhaseAccess, "frame")
	}
	return f.s.heap.Activations().Expose(v)
}

// Close releases every local and every value rooted in the frame's scope,
// including objects allocated while it was the innermost frame.
func (f *Frame) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.s.closed {
		return nil
	}
	act := f.s.heap.Activations()
	if act.Depth() != f.depth {
		return errors.New(errors.PhaseBarrier, errors.KindInvalidInput).
			Detail("frame closed at scope depth %d, opened at %d", act.Depth(), f.depth).
			Build()
	}
	err := barrier.ClearAll(f.s.heap, barrier.Cells(f.locals))
	if perr := act.Pop(); err == nil {
		err = perr
	}
	return err
}
