package realtime

import (
	"context"
	"fmt"
)

// Relevance decides whether an event received on a topic's channel concerns
// that topic. Events whose check errors are logged and skipped.
type Relevance interface {
	Relevant(ctx context.Context, topic Topic, ev ChangeEvent) (bool, error)
}

// RelevanceFunc adapts a function to Relevance.
type RelevanceFunc func(ctx context.Context, topic Topic, ev ChangeEvent) (bool, error)

// Relevant calls f.
func (f RelevanceFunc) Relevant(ctx context.Context, topic Topic, ev ChangeEvent) (bool, error) {
	return f(ctx, topic, ev)
}

// BookingLookup resolves the restaurant a booking belongs to.
type BookingLookup interface {
	BookingRestaurant(ctx context.Context, bookingID string) (string, error)
}

// BookingTablesTable is the table whose rows reference a booking instead of
// a restaurant.
const BookingTablesTable = "booking_tables"

// BookingTableRelevance checks table-assignment events against the topic's
// restaurant. Events from other tables are already filtered by restaurant
// and always pass.
type BookingTableRelevance struct {
	Lookup BookingLookup
}

var _ Relevance = BookingTableRelevance{}

// Relevant implements Relevance.
func (r BookingTableRelevance) Relevant(ctx context.Context, topic Topic, ev ChangeEvent) (bool, error) {
	if ev.Table != BookingTablesTable {
		return true, nil
	}
	bookingID := ev.Field("booking_id")
	if bookingID == "" {
		return false, nil
	}
	restaurantID, err := r.Lookup.BookingRestaurant(ctx, bookingID)
	if err != nil {
		return false, fmt.Errorf("lookup booking %s: %w", bookingID, err)
	}
	return restaurantID == topic.Resource, nil
}
