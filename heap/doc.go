// Package heap implements the deferred reference-counted GC heap.
//
// Objects are laid out as described in package layout and addressed by
// their byte offset, which is also their gcref.Ref. The heap provides the
// runtime routines that compiled code and the store call into:
//
//	AllocRaw / AllocUninit   allocate an object (count 1, owned by the activation table)
//	IncRef / DecRef          in-place count updates; DecRef reclaims at zero
//	Drop                     reclaim an object whose count already reached zero
//	ActivationTable.Expose   root a value held outside the heap
//
// Reclaiming an object runs its registered destructor, releases its
// outgoing references (iteratively, so deep chains are fine) and returns
// its storage to a free list sorted by block length. Cycles are never
// reclaimed.
//
// Storage comes from the free list, then a bump pointer, then growth of
// the backing store by doubling up to Config.MaxSize. Growth moves the
// backing store and increments Generation; objects keep their offsets.
//
// # Activation table
//
// The activation table defers counting of references that are not stored
// in any heap slot. Every allocation lands there, and values read out of
// the heap can be exposed there to survive calls that may reclaim:
//
//	t := h.Activations()
//	t.Push()
//	_ = t.Expose(ref)
//	...
//	_ = t.Pop() // releases everything exposed since Push
//
// Reset releases all entries; hosts call it when control returns to them.
package heap
