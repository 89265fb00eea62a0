package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bitesync/internal/event"
	"bitesync/internal/registry"
	"bitesync/internal/router"
)

func TestPoller_PollOnce_SynthesizesStateUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest_1" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"revenue":1250.5,"orders":17}`))
	}))
	defer srv.Close()

	reg := registry.New(zerolog.Nop())
	rt := router.New(reg, zerolog.Nop())

	received := make(chan event.Event, 1)
	reg.Add("rest_1", []event.Kind{event.KindStateUpdate}, func(ev event.Event) {
		received <- ev
	})

	p := newTestPoller(t, srv.URL, reg, rt)
	p.PollOnce(context.Background())

	select {
	case ev := <-received:
		if ev.Kind != event.KindStateUpdate {
			t.Errorf("Kind = %s, want state_update", ev.Kind)
		}
		if ev.Scope != "rest_1" {
			t.Errorf("Scope = %s, want rest_1", ev.Scope)
		}
		if string(ev.Payload) != `{"revenue":1250.5,"orders":17}` {
			t.Errorf("Payload = %s", ev.Payload)
		}
		if ev.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	default:
		t.Fatal("no event delivered through the router")
	}
}

func TestPoller_PollOnce_SkipsUnchangedState(t *testing.T) {
	var body atomic.Value
	body.Store(`{"orders":1}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body.Load().(string)))
	}))
	defer srv.Close()

	reg := registry.New(zerolog.Nop())
	rt := router.New(reg, zerolog.Nop())

	received := make(chan event.Event, 4)
	reg.Add("rest_1", []event.Kind{event.KindStateUpdate}, func(ev event.Event) {
		received <- ev
	})

	p := newTestPoller(t, srv.URL, reg, rt)
	p.PollOnce(context.Background())
	p.PollOnce(context.Background())

	if got := len(received); got != 1 {
		t.Fatalf("received %d events for unchanged state, want 1", got)
	}

	body.Store(`{"orders":2}`)
	p.PollOnce(context.Background())
	if got := len(received); got != 2 {
		t.Fatalf("received %d events after state change, want 2", got)
	}
}

func TestPoller_PollOnce_FailedScopeDoesNotAffectOthers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest_bad" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	reg := registry.New(zerolog.Nop())
	rt := router.New(reg, zerolog.Nop())

	received := make(chan event.Event, 4)
	reg.Add("rest_bad", []event.Kind{event.KindStateUpdate}, func(ev event.Event) {
		received <- ev
	})
	reg.Add("rest_ok", []event.Kind{event.KindStateUpdate}, func(ev event.Event) {
		received <- ev
	})

	p := newTestPoller(t, srv.URL, reg, rt)
	p.PollOnce(context.Background())

	select {
	case ev := <-received:
		if ev.Scope != "rest_ok" {
			t.Fatalf("Scope = %s, want rest_ok", ev.Scope)
		}
	default:
		t.Fatal("healthy scope not delivered when another scope fails")
	}
	if len(received) != 0 {
		t.Fatal("failing scope produced an event")
	}
}

func TestPoller_StartStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	reg := registry.New(zerolog.Nop())
	rt := router.New(reg, zerolog.Nop())
	p := newTestPoller(t, srv.URL, reg, rt)

	p.Start()
	if !p.Running() {
		t.Fatal("Running = false after Start")
	}
	p.Start() // idempotent
	p.Stop()
	if p.Running() {
		t.Fatal("Running = true after Stop")
	}
	p.Stop() // no-op
}

func TestPoller_TickerDelivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"orders":3}`))
	}))
	defer srv.Close()

	reg := registry.New(zerolog.Nop())
	rt := router.New(reg, zerolog.Nop())

	received := make(chan event.Event, 1)
	reg.Add("rest_1", []event.Kind{event.KindStateUpdate}, func(ev event.Event) {
		select {
		case received <- ev:
		default:
		}
	})

	p, err := New(Config{BaseURL: srv.URL, Interval: 5 * time.Millisecond}, reg, rt.Dispatch, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Start()
	defer p.Stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("ticker never delivered an event")
	}
}

func newTestPoller(t *testing.T, baseURL string, reg *registry.Registry, rt *router.Router) *Poller {
	t.Helper()
	p, err := New(Config{BaseURL: baseURL, Interval: time.Hour}, reg, rt.Dispatch, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}
