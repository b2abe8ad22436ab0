package heap

// Context is the per-heap state that compiled code caches: the backing
// store and its bound, plus the activation table's head and capacity.
// Any call that may allocate can move the backing store; consumers
// compare Generation before reusing a cached Base.
type Context interface {
	Base() []byte
	Bound() uint32
	Generation() uint64
	Head() uint32
	Capacity() uint32
}
