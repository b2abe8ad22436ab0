package resource

import (
	"sync"
	"testing"
)

type testObserver struct {
	events []Event
}

func (o *testObserver) OnHostEvent(e Event) {
	o.events = append(o.events, e)
}

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() { d.drops++ }

func TestTable_Basic(t *testing.T) {
	table := NewTable()

	h, err := table.Insert("test")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if h == 0 {
		t.Fatal("expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test" {
		t.Fatalf("got %v, want test", val)
	}

	val, ok = table.Remove(h)
	if !ok {
		t.Fatal("Remove failed")
	}
	if val != "test" {
		t.Fatalf("got %v, want test", val)
	}

	if table.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", table.Len())
	}
}

func TestTable_InvalidHandles(t *testing.T) {
	table := NewTable()

	if _, ok := table.Get(0); ok {
		t.Error("handle 0 should be invalid")
	}
	if _, ok := table.Get(99); ok {
		t.Error("unknown handle should be invalid")
	}
	if _, ok := table.Remove(0); ok {
		t.Error("Remove(0) should fail")
	}

	h, _ := table.Insert(1)
	table.Remove(h)
	if _, ok := table.Remove(h); ok {
		t.Error("double Remove should fail")
	}
}

func TestTable_StaleHandle(t *testing.T) {
	table := NewTable()

	old, _ := table.Insert("first")
	table.Remove(old)

	reused, _ := table.Insert("second")
	if reused.slot() != old.slot() {
		t.Fatalf("expected slot reuse: got %d, want %d", reused.slot(), old.slot())
	}
	if reused == old {
		t.Fatal("reused handle should differ by generation")
	}

	if _, ok := table.Get(old); ok {
		t.Error("stale handle resolved")
	}
	if v, ok := table.Get(reused); !ok || v != "second" {
		t.Errorf("got %v, %v; want second, true", v, ok)
	}
}

func TestTable_Dropper(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}

	h, _ := table.Insert(d)
	table.Remove(h)
	table.Remove(h)

	if d.drops != 1 {
		t.Errorf("drops: got %d, want 1", d.drops)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable()
	obs := &testObserver{}
	table.Subscribe(obs)

	h, _ := table.Insert("test")
	if len(obs.events) != 1 {
		t.Fatalf("got %d events, want 1", len(obs.events))
	}
	if obs.events[0].Type != EventCreated || obs.events[0].Handle != h {
		t.Errorf("unexpected event %+v", obs.events[0])
	}

	table.Remove(h)
	if len(obs.events) != 2 {
		t.Fatalf("got %d events, want 2", len(obs.events))
	}
	if obs.events[1].Type != EventDropped || obs.events[1].Value != "test" {
		t.Errorf("unexpected event %+v", obs.events[1])
	}

	table.Unsubscribe(obs)
	table.Insert("again")
	if len(obs.events) != 2 {
		t.Errorf("unsubscribed observer got %d events", len(obs.events))
	}
}

func TestTable_ObserverFunc(t *testing.T) {
	table := NewTable()
	var got []EventType
	table.Subscribe(ObserverFunc(func(e Event) { got = append(got, e.Type) }))

	h, _ := table.Insert(1)
	table.Remove(h)

	if len(got) != 2 || got[0] != EventCreated || got[1] != EventDropped {
		t.Errorf("got %v", got)
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable()
	for i := 0; i < 5; i++ {
		table.Insert(i)
	}

	sum := 0
	table.Each(func(_ Handle, v any) bool {
		sum += v.(int)
		return true
	})
	if sum != 10 {
		t.Errorf("sum: got %d, want 10", sum)
	}

	count := 0
	table.Each(func(Handle, any) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Errorf("early stop: got %d visits, want 2", count)
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable()
	d := &dropCounter{}
	table.Insert(d)
	table.Insert("plain")

	if err := table.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if d.drops != 1 {
		t.Errorf("drops: got %d, want 1", d.drops)
	}
	if table.Len() != 0 {
		t.Errorf("Len after Close: got %d", table.Len())
	}
	if _, err := table.Insert("late"); err != ErrClosed {
		t.Errorf("Insert after Close: got %v, want ErrClosed", err)
	}
	if err := table.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h, err := table.Insert(i)
				if err != nil {
					t.Errorf("Insert: %v", err)
					return
				}
				if _, ok := table.Get(h); !ok {
					t.Errorf("Get(%d) failed", h)
				}
				table.Remove(h)
			}
		}()
	}
	wg.Wait()

	if table.Len() != 0 {
		t.Errorf("Len: got %d, want 0", table.Len())
	}
}
