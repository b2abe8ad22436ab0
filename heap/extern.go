package heap

import (
	"github.com/wippyai/wasm-gc/errors"
	"github.com/wippyai/wasm-gc/gcref"
	"github.com/wippyai/wasm-gc/layout"
	"github.com/wippyai/wasm-gc/resource"
)

// ExternTypeIndex is the type index recorded in externref objects.
const ExternTypeIndex = ^uint32(0)

// ExternNew wraps a host value in a counted externref object. The value
// stays in the host table until the object is reclaimed; if it implements
// resource.Dropper its Drop method runs then.
func (h *Heap) ExternNew(host any) (gcref.Ref, error) {
	ref, err := h.AllocRaw(layout.KindExternRef, ExternTypeIndex, layout.ExternSize, layout.ObjectAlign)
	if err != nil {
		return gcref.Null, err
	}
	handle, err := h.hosts.Insert(host)
	if err != nil {
		// the handle slot is still zero, so reclaiming removes nothing
		_, _ = h.act.Release(ref)
		return gcref.Null, errors.Wrap(errors.PhaseHost, errors.KindAllocation, err, "register host value")
	}
	h.putU32(ref.Index()+layout.ExternHostOffset, uint32(handle))
	return ref, nil
}

// ExternHost returns the host value behind an externref object. Null
// yields nil. References that did not come from ExternNew, such as
// internalised structs, are rejected.
func (h *Heap) ExternHost(ref gcref.Ref) (any, error) {
	if ref.IsNull() {
		return nil, nil
	}
	if ref.IsI31() {
		return nil, errors.TypeMismatch(errors.PhaseHost, []string{"externref"}, "host reference", "i31")
	}
	off, err := h.live(ref, "gc_externref_to_host")
	if err != nil {
		return nil, err
	}
	kind := layout.FromWord(h.u32(off + layout.HeaderKindOffset))
	if kind != layout.KindExternRef {
		return nil, errors.TypeMismatch(errors.PhaseHost, []string{"externref"}, "host reference", kind.String())
	}
	handle := resource.Handle(h.u32(off + layout.ExternHostOffset))
	v, ok := h.hosts.Get(handle)
	if !ok {
		return nil, errors.NotFound(errors.PhaseHost, "host value", handle)
	}
	return v, nil
}
