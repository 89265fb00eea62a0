package router

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bitesync/internal/event"
	"bitesync/internal/registry"
)

// slowCallbackThreshold is how long a subscriber callback may run before a
// warning is logged
const slowCallbackThreshold = time.Second

// Router is the single point of event fan-out. It delivers events from the
// stream and from the degraded-mode poller through the same path, so
// subscriber code is agnostic to delivery mode.
type Router struct {
	registry   *registry.Registry
	logger     zerolog.Logger
	dispatched atomic.Int64
}

// New creates a Router delivering to the given registry's subscriptions
func New(reg *registry.Registry, logger zerolog.Logger) *Router {
	return &Router{
		registry: reg,
		logger:   logger.With().Str("component", "router").Logger(),
	}
}

// Dispatch fans the event out to all matching subscriptions. Matching entries
// are snapshotted at dispatch start, so a callback removing itself or another
// subscription mid-dispatch is safe. A panicking callback is logged and does
// not affect delivery to the remaining entries.
func (rt *Router) Dispatch(ev event.Event) {
	for _, sub := range rt.registry.Matching(ev) {
		rt.deliver(sub, ev)
	}
	rt.dispatched.Add(1)
}

// Dispatched returns the number of events dispatched so far
func (rt *Router) Dispatched() int64 {
	return rt.dispatched.Load()
}

func (rt *Router) deliver(sub *registry.Subscription, ev event.Event) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error().
				Interface("panic", r).
				Str("subscription", sub.ID).
				Str("kind", string(ev.Kind)).
				Msg("subscriber callback panic")
		}
	}()
	start := time.Now()
	sub.Callback(ev)
	if d := time.Since(start); d > slowCallbackThreshold {
		rt.logger.Warn().
			Str("subscription", sub.ID).
			Str("kind", string(ev.Kind)).
			Dur("duration", d).
			Msg("subscriber callback slow")
	}
}
