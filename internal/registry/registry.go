package registry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bitesync/internal/event"
)

// Callback receives events matching a subscription
type Callback func(event.Event)

// Subscription is one registered interest: a scope, a set of event kinds, and
// the callback that receives matching events. Its lifetime is independent of
// connection state; it survives reconnects and degraded-mode transitions.
type Subscription struct {
	ID       string
	Scope    string
	Kinds    map[event.Kind]bool
	Callback Callback
}

// KindList returns the subscription's kinds as a slice, for announcement frames
func (s *Subscription) KindList() []event.Kind {
	kinds := make([]event.Kind, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, k)
	}
	return kinds
}

// Announcer is implemented by a live stream connection. The registry announces
// subscriptions through it while one is attached; the interface lives here so
// the stream package can implement it without an import cycle.
type Announcer interface {
	Announce(sub *Subscription) error
	Withdraw(sub *Subscription) error
}

// Registry is the single source of truth for active subscriptions. It answers
// matching queries for the router, and re-announces every entry to a freshly
// attached connection so there are no silent delivery gaps across a reconnect.
type Registry struct {
	mu        sync.RWMutex
	entries   map[string]*Subscription
	announcer Announcer

	logger zerolog.Logger
}

// New creates an empty Registry
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*Subscription),
		logger:  logger.With().Str("component", "registry").Logger(),
	}
}

// Add registers a subscription and returns its id. If a connection is
// attached, the subscription is announced upstream immediately. An empty kind
// set is a valid registration that will never match anything.
func (r *Registry) Add(scope string, kinds []event.Kind, cb Callback) string {
	sub := &Subscription{
		ID:       uuid.NewString(),
		Scope:    scope,
		Kinds:    make(map[event.Kind]bool, len(kinds)),
		Callback: cb,
	}
	for _, k := range kinds {
		sub.Kinds[k] = true
	}

	r.mu.Lock()
	r.entries[sub.ID] = sub
	announcer := r.announcer
	r.mu.Unlock()

	r.logger.Debug().Str("subscription", sub.ID).Str("scope", scope).Int("kinds", len(sub.Kinds)).Msg("subscription added")

	if announcer != nil {
		if err := announcer.Announce(sub); err != nil {
			r.logger.Warn().Err(err).Str("subscription", sub.ID).Msg("failed to announce subscription")
		}
	}
	return sub.ID
}

// Remove deletes a subscription. Unknown ids are a no-op, so double
// unsubscribe from cleanup code running twice is safe. If a connection is
// attached, the removal is announced upstream.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sub, exists := r.entries[id]
	if !exists {
		r.mu.Unlock()
		return
	}
	delete(r.entries, id)
	announcer := r.announcer
	r.mu.Unlock()

	r.logger.Debug().Str("subscription", id).Str("scope", sub.Scope).Msg("subscription removed")

	if announcer != nil {
		if err := announcer.Withdraw(sub); err != nil {
			r.logger.Warn().Err(err).Str("subscription", id).Msg("failed to withdraw subscription")
		}
	}
}

// Attach sets the announcer and re-announces every current entry through it.
// Called once per successful (re)connect. The lock is held for the duration so
// all existing entries are announced before any subsequently added one.
func (r *Registry) Attach(a Announcer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.announcer = a
	var okCount, failCount int
	for _, sub := range r.entries {
		if err := a.Announce(sub); err != nil {
			failCount++
			r.logger.Warn().Err(err).Str("subscription", sub.ID).Msg("failed to re-announce subscription")
			continue
		}
		okCount++
	}
	r.logger.Info().Int("ok", okCount).Int("failed", failCount).Msg("reannounced subscriptions")
}

// Detach clears the announcer. Called when the connection is lost; entries
// stay registered and are re-announced on the next Attach.
func (r *Registry) Detach() {
	r.mu.Lock()
	r.announcer = nil
	r.mu.Unlock()
}

// Matching returns the subscriptions whose scope and kinds match the event.
// The result is a snapshot: callbacks may add or remove subscriptions while
// the router iterates it.
func (r *Registry) Matching(ev event.Event) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Subscription
	for _, sub := range r.entries {
		if sub.Scope != ev.Scope {
			continue
		}
		if !sub.Kinds[ev.Kind] {
			continue
		}
		matched = append(matched, sub)
	}
	return matched
}

// Scopes returns the distinct scopes of all current entries
func (r *Registry) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.entries))
	var scopes []string
	for _, sub := range r.entries {
		if seen[sub.Scope] {
			continue
		}
		seen[sub.Scope] = true
		scopes = append(scopes, sub.Scope)
	}
	return scopes
}

// Len returns the number of registered subscriptions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes all subscriptions and the announcer. Used on full shutdown.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*Subscription)
	r.announcer = nil
	r.mu.Unlock()
}
