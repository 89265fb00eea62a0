package router

import (
	"testing"

	"github.com/rs/zerolog"

	"bitesync/internal/event"
	"bitesync/internal/registry"
)

func TestRouter_Dispatch_FanOut(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	rt := New(reg, zerolog.Nop())

	var orders, revenues int
	reg.Add("rest_1", []event.Kind{event.KindOrderPlaced}, func(event.Event) { orders++ })
	reg.Add("rest_1", []event.Kind{event.KindRevenueUpdate}, func(event.Event) { revenues++ })

	rt.Dispatch(event.Event{Kind: event.KindOrderPlaced, Scope: "rest_1"})
	if orders != 1 {
		t.Errorf("order callback fired %d times, want 1", orders)
	}
	if revenues != 0 {
		t.Errorf("revenue callback fired %d times, want 0", revenues)
	}

	rt.Dispatch(event.Event{Kind: event.KindRevenueUpdate, Scope: "rest_1"})
	if revenues != 1 {
		t.Errorf("revenue callback fired %d times, want 1", revenues)
	}

	rt.Dispatch(event.Event{Kind: event.KindOrderPlaced, Scope: "rest_2"})
	if orders != 1 {
		t.Errorf("order callback fired %d times after out-of-scope event, want 1", orders)
	}
}

func TestRouter_Dispatch_PanicIsolation(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	rt := New(reg, zerolog.Nop())

	var received int
	reg.Add("rest_1", []event.Kind{event.KindOrderPlaced}, func(event.Event) {
		panic("subscriber bug")
	})
	reg.Add("rest_1", []event.Kind{event.KindOrderPlaced}, func(event.Event) { received++ })

	// must not panic out of Dispatch
	rt.Dispatch(event.Event{Kind: event.KindOrderPlaced, Scope: "rest_1"})

	if received != 1 {
		t.Fatalf("healthy subscriber received %d events, want 1", received)
	}
}

func TestRouter_Dispatch_CallbackRemovesSubscriptions(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	rt := New(reg, zerolog.Nop())

	var ids []string
	var calls int
	id1 := reg.Add("rest_1", []event.Kind{event.KindAlert}, func(event.Event) {
		calls++
		// remove every subscription mid-dispatch; the router iterates a
		// snapshot, so this must not crash
		for _, id := range ids {
			reg.Remove(id)
		}
	})
	id2 := reg.Add("rest_1", []event.Kind{event.KindAlert}, func(event.Event) {
		calls++
		for _, id := range ids {
			reg.Remove(id)
		}
	})
	ids = []string{id1, id2}

	rt.Dispatch(event.Event{Kind: event.KindAlert, Scope: "rest_1"})
	if calls != 2 {
		t.Fatalf("callbacks fired %d times, want 2 (snapshot taken at dispatch start)", calls)
	}

	rt.Dispatch(event.Event{Kind: event.KindAlert, Scope: "rest_1"})
	if calls != 2 {
		t.Fatalf("callbacks fired after removal, calls = %d", calls)
	}
}

func TestRouter_Dispatch_FIFOPerSubscription(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	rt := New(reg, zerolog.Nop())

	var seen []string
	reg.Add("rest_1", []event.Kind{event.KindOrderPlaced}, func(ev event.Event) {
		seen = append(seen, string(ev.Payload))
	})

	for _, payload := range []string{"1", "2", "3", "4", "5"} {
		rt.Dispatch(event.Event{Kind: event.KindOrderPlaced, Scope: "rest_1", Payload: []byte(payload)})
	}

	if len(seen) != 5 {
		t.Fatalf("received %d events, want 5", len(seen))
	}
	for i, payload := range []string{"1", "2", "3", "4", "5"} {
		if seen[i] != payload {
			t.Fatalf("delivery order = %v, want FIFO", seen)
		}
	}
}

func TestRouter_Dispatched_Counter(t *testing.T) {
	reg := registry.New(zerolog.Nop())
	rt := New(reg, zerolog.Nop())

	rt.Dispatch(event.Event{Kind: event.KindAlert, Scope: "rest_1"})
	rt.Dispatch(event.Event{Kind: event.KindAlert, Scope: "rest_1"})
	if got := rt.Dispatched(); got != 2 {
		t.Fatalf("Dispatched = %d, want 2", got)
	}
}
