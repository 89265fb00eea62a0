package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Frame is the inbound wire format: one frame per update on the stream
type Frame struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Scope     string          `json:"scope"`
	Data      json.RawMessage `json:"data"`
}

// ErrUnknownKind is returned by ParseFrame for frames whose type is not a known event kind
var ErrUnknownKind = errors.New("unknown event kind")

// ParseFrame parses an inbound frame into an Event.
// A zero timestamp is replaced with the receive time.
func ParseFrame(data []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Event{}, fmt.Errorf("failed to parse frame: %w", err)
	}
	if f.Type == "" {
		return Event{}, errors.New("frame has no type")
	}
	kind, ok := KindFromString(f.Type)
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownKind, f.Type)
	}
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{
		Kind:      kind,
		Timestamp: ts,
		Scope:     f.Scope,
		Payload:   f.Data,
	}, nil
}

// Announcement actions sent upstream over the stream connection
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionHeartbeat   = "heartbeat"
)

// Announcement is the outbound wire format: subscribe/unsubscribe declarations
// of interest and heartbeat keep-alives.
type Announcement struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Scope  string `json:"scope,omitempty"`
	Kinds  []Kind `json:"kinds,omitempty"`
}

// NewSubscribeAnnouncement creates a subscribe announcement for one subscription
func NewSubscribeAnnouncement(id, scope string, kinds []Kind) *Announcement {
	return &Announcement{Action: ActionSubscribe, ID: id, Scope: scope, Kinds: kinds}
}

// NewUnsubscribeAnnouncement creates an unsubscribe announcement for one subscription
func NewUnsubscribeAnnouncement(id, scope string, kinds []Kind) *Announcement {
	return &Announcement{Action: ActionUnsubscribe, ID: id, Scope: scope, Kinds: kinds}
}

// NewHeartbeat creates a keep-alive announcement
func NewHeartbeat() *Announcement {
	return &Announcement{Action: ActionHeartbeat}
}

// Bytes returns the announcement as JSON bytes
func (a *Announcement) Bytes() ([]byte, error) {
	return json.Marshal(a)
}
