// Package resource maps opaque handles to host values.
//
// Externref objects in the GC heap do not hold Go values directly. Each one
// stores a Handle into a Table, and the Go value lives in the table until
// the object is reclaimed:
//
//	table := resource.NewTable()
//	h, err := table.Insert(conn)
//	v, ok := table.Get(h)
//	table.Remove(h) // calls conn.Drop() if conn implements Dropper
//
// Handles carry a slot generation. A handle whose value was removed stays
// invalid even after its slot is reused.
//
// # Observers
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("host value %d %s", e.Handle, e.Type)
//	}))
//
// Close drops every remaining value and rejects further inserts.
package resource
