package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingTableRelevance(t *testing.T) {
	calls := 0
	r := BookingTableRelevance{Lookup: lookupFunc(func(_ context.Context, id string) (string, error) {
		calls++
		if id == "broken" {
			return "", errors.New("permission denied")
		}
		return map[string]string{"b1": "r1", "b2": "r2"}[id], nil
	})}
	ctx := context.Background()

	tests := []struct {
		name string
		ev   ChangeEvent
		want bool
	}{
		{"other table passes", ChangeEvent{Table: "bookings"}, true},
		{"matching new row", ChangeEvent{Table: BookingTablesTable, New: map[string]any{"booking_id": "b1"}}, true},
		{"matching old row", ChangeEvent{Table: BookingTablesTable, Old: map[string]any{"booking_id": "b1"}}, true},
		{"other restaurant", ChangeEvent{Table: BookingTablesTable, New: map[string]any{"booking_id": "b2"}}, false},
		{"no booking id", ChangeEvent{Table: BookingTablesTable, New: map[string]any{"table_id": "t1"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Relevant(ctx, topicR1, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 3, calls, "lookups only for booking_tables rows with a booking id")

	_, err := r.Relevant(ctx, topicR1, ChangeEvent{Table: BookingTablesTable, New: map[string]any{"booking_id": "broken"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestChangeEventField(t *testing.T) {
	ev := ChangeEvent{New: map[string]any{"status": "confirmed", "party_size": 4.0}, Old: map[string]any{"status": "pending", "id": "b1"}}
	assert.Equal(t, "confirmed", ev.Field("status"))
	assert.Equal(t, "b1", ev.Field("id"))
	assert.Equal(t, "", ev.Field("party_size"))
	assert.Equal(t, "", ChangeEvent{}.Field("status"))
}
