package event

import (
	"encoding/json"
	"time"
)

// Kind represents the category of a live data update
type Kind string

const (
	KindRevenueUpdate    Kind = "revenue_update"
	KindOrderPlaced      Kind = "order_placed"
	KindCustomerActivity Kind = "customer_activity"
	KindMenuPerformance  Kind = "menu_performance"
	KindAlert            Kind = "alert"
	// KindStateUpdate is synthesized by the degraded-mode poller from a
	// current-state snapshot; it never arrives over the stream.
	KindStateUpdate Kind = "state_update"
)

var knownKinds = map[Kind]bool{
	KindRevenueUpdate:    true,
	KindOrderPlaced:      true,
	KindCustomerActivity: true,
	KindMenuPerformance:  true,
	KindAlert:            true,
	KindStateUpdate:      true,
}

// Valid returns true if k is a known event kind
func (k Kind) Valid() bool {
	return knownKinds[k]
}

// KindFromString converts a raw string to a Kind, reporting whether it is known
func KindFromString(s string) (Kind, bool) {
	k := Kind(s)
	return k, knownKinds[k]
}

// Event is a single live update delivered to subscribers.
// Events are transient: constructed per inbound frame or poll tick and
// consumed immediately by the router.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Scope     string
	Payload   json.RawMessage
}
