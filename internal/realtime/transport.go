package realtime

import (
	"context"
	"fmt"
)

// EventType is the kind of row change carried by a ChangeEvent.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one change notification from the transport.
// New is empty for deletes; Old is empty for inserts.
type ChangeEvent struct {
	EventType EventType      `json:"event_type"`
	Table     string         `json:"table"`
	New       map[string]any `json:"new,omitempty"`
	Old       map[string]any `json:"old,omitempty"`
}

// Field returns the string value of key from New, falling back to Old.
func (e ChangeEvent) Field(key string) string {
	if v, ok := e.New[key].(string); ok && v != "" {
		return v
	}
	if v, ok := e.Old[key].(string); ok {
		return v
	}
	return ""
}

// Status is a channel status reported by the transport.
type Status string

const (
	StatusSubscribed Status = "subscribed"
	StatusError      Status = "error"
	StatusTimedOut   Status = "timed_out"
	StatusClosed     Status = "closed"
)

// Topic identifies what a channel listens to.
type Topic struct {
	// Key is the logical identifier listeners subscribe to; one channel per key.
	Key string
	// Filter is the row filter handed to the transport.
	Filter string
	// Resource is the id the key is derived from, used by relevance checks.
	Resource string
}

// RestaurantTopic returns the topic for availability changes of a restaurant.
func RestaurantTopic(restaurantID string) Topic {
	return Topic{
		Key:      "restaurant:" + restaurantID,
		Filter:   "restaurant_id=eq." + restaurantID,
		Resource: restaurantID,
	}
}

// Sink receives a channel's events and status changes. Transports may call
// it from any goroutine, including synchronously from Open.
type Sink interface {
	Event(ev ChangeEvent)
	Status(st Status, err error)
}

// Channel is an open physical channel.
type Channel interface {
	// Close tears the channel down. No status is reported for a
	// client-initiated close.
	Close() error
}

// Transport opens physical channels.
type Transport interface {
	Open(ctx context.Context, topic Topic, sink Sink) (Channel, error)
}

// TransportError reports a channel failure for a topic.
type TransportError struct {
	Topic  string
	Status Status
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("TRANSPORT_ERROR: topic %s: %s: %v", e.Topic, e.Status, e.Err)
	}
	return fmt.Sprintf("TRANSPORT_ERROR: topic %s: %s", e.Topic, e.Status)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}
