// Package barrier implements the reference-count maintenance that runs on
// every store of a reference into a root slot.
//
// A store barrier counts the new value before the raw store publishes it.
// A write barrier additionally releases the slot's previous occupant after
// the store:
//
//	barrier.Init(h, slot, v)  // fresh slot, old value is null
//	barrier.Write(h, slot, v) // inc v, store v, dec old
//	barrier.Clear(h, slot)    // store null, dec old
//
// Reads never change counts. Null and i31 values are never counted, and
// slots whose type can only hold them, or function references, need no
// barrier at all (see Needs).
//
// Bulk operations use WriteAll, which counts every new value, stores all
// of them and only then releases the old ones, so overlapping copies
// cannot reclaim an object that is still being copied.
package barrier
