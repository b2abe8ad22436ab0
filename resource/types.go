package resource

// Handle is an opaque reference to a host value in a Table.
// Handle 0 is reserved and always invalid.
//
// The low 24 bits select a slot and the high 8 bits carry the slot's
// generation, so a handle outliving its value is rejected instead of
// resolving to whatever reused the slot.
type Handle uint32

const (
	slotBits = 24
	slotMask = 1<<slotBits - 1
	maxSlots = slotMask
)

func makeHandle(slot uint32, gen uint8) Handle {
	return Handle(uint32(gen)<<slotBits | (slot + 1))
}

func (h Handle) slot() uint32 { return uint32(h)&slotMask - 1 }

func (h Handle) gen() uint8 { return uint8(uint32(h) >> slotBits) }

// EventType identifies a host value lifecycle event.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a host value lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about host value lifecycle events.
type Observer interface {
	OnHostEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnHostEvent calls f(e).
func (f ObserverFunc) OnHostEvent(e Event) { f(e) }

// Dropper is optionally implemented by host values that need cleanup when
// the last reference to them goes away.
type Dropper interface {
	Drop()
}
