package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the mutation an action replays.
type Kind string

const (
	KindAddFavorite    Kind = "ADD_FAVORITE"
	KindRemoveFavorite Kind = "REMOVE_FAVORITE"
	KindCreateBooking  Kind = "CREATE_BOOKING"
	KindUpdateBooking  Kind = "UPDATE_BOOKING"
	KindCancelBooking  Kind = "CANCEL_BOOKING"
	KindUpdateProfile  Kind = "UPDATE_PROFILE"
	KindUpdateAvatar   Kind = "UPDATE_AVATAR"
)

// Kinds lists every kind this build can replay.
var Kinds = []Kind{
	KindAddFavorite,
	KindRemoveFavorite,
	KindCreateBooking,
	KindUpdateBooking,
	KindCancelBooking,
	KindUpdateProfile,
	KindUpdateAvatar,
}

// Known reports whether k is one of Kinds.
func (k Kind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Status is an action's replay state.
type Status string

const (
	// StatusPending has never been attempted.
	StatusPending Status = "pending"
	// StatusInFlight is being replayed right now. Seen on load only if the
	// process died mid-attempt; Load resets it to failed.
	StatusInFlight Status = "in_flight"
	// StatusFailed failed at least once and is waiting for a retry.
	StatusFailed Status = "failed"
)

// Action is one queued mutation.
type Action struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	RetryCount int             `json:"retry_count"`
	Status     Status          `json:"status"`
	LastError  string          `json:"last_error,omitempty"`
}

// Decode unmarshals the payload into v.
func (a Action) Decode(v any) error {
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", a.Kind, err)
	}
	return nil
}

// FavoritePayload is the payload of ADD_FAVORITE and REMOVE_FAVORITE.
type FavoritePayload struct {
	UserID       string `json:"user_id"`
	RestaurantID string `json:"restaurant_id"`
}

// CreateBookingPayload is the payload of CREATE_BOOKING.
// ID is generated on the client so a replay can detect an existing row.
type CreateBookingPayload struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	RestaurantID    string    `json:"restaurant_id"`
	BookingTime     time.Time `json:"booking_time"`
	PartySize       int       `json:"party_size"`
	SpecialRequests string    `json:"special_requests,omitempty"`
}

// UpdateBookingPayload is the payload of UPDATE_BOOKING. Nil fields are
// left unchanged.
type UpdateBookingPayload struct {
	BookingID       string     `json:"booking_id"`
	BookingTime     *time.Time `json:"booking_time,omitempty"`
	PartySize       *int       `json:"party_size,omitempty"`
	SpecialRequests *string    `json:"special_requests,omitempty"`
}

// CancelBookingPayload is the payload of CANCEL_BOOKING.
type CancelBookingPayload struct {
	BookingID string `json:"booking_id"`
}

// UpdateProfilePayload is the payload of UPDATE_PROFILE. Nil fields are
// left unchanged.
type UpdateProfilePayload struct {
	UserID              string   `json:"user_id"`
	FullName            *string  `json:"full_name,omitempty"`
	PhoneNumber         *string  `json:"phone_number,omitempty"`
	DietaryRestrictions []string `json:"dietary_restrictions,omitempty"`
}

// UpdateAvatarPayload is the payload of UPDATE_AVATAR.
type UpdateAvatarPayload struct {
	UserID   string `json:"user_id"`
	LocalURI string `json:"local_uri"`
}
