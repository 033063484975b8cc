package queue

import (
	"context"
	"errors"
	"fmt"
)

// Handlers replays each Kind against the backend. Implementations must be
// idempotent.
type Handlers interface {
	AddFavorite(ctx context.Context, p FavoritePayload) error
	RemoveFavorite(ctx context.Context, p FavoritePayload) error
	CreateBooking(ctx context.Context, p CreateBookingPayload) error
	UpdateBooking(ctx context.Context, p UpdateBookingPayload) error
	CancelBooking(ctx context.Context, p CancelBookingPayload) error
	UpdateProfile(ctx context.Context, p UpdateProfilePayload) error
	UpdateAvatar(ctx context.Context, p UpdateAvatarPayload) error
}

// Dispatch decodes a's payload and invokes the matching handler method.
//
// A handler panic is recovered and returned as an error so one bad action
// cannot take down the drain.
func Dispatch(ctx context.Context, h Handlers, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	switch a.Kind {
	case KindAddFavorite:
		var p FavoritePayload
		if err := decodePayload(a, &p); err != nil {
			return err
		}
		return h.AddFavorite(ctx, p)
	case KindRemoveFavorite:
		var p FavoritePayload
		if err := decodePayload(a, &p); err != nil {
			return err
		}
		return h.RemoveFavorite(ctx, p)
	case KindCreateBooking:
		var p CreateBookingPayload
		if err := decodePayload(a, &p); err != nil {
			return err
		}
		return h.CreateBooking(ctx, p)
	case KindUpdateBooking:
		var p UpdateBookingPayload
		if err := decodePayload(a, &p); err != nil {
			return err
		}
		return h.UpdateBooking(ctx, p)
	case KindCancelBooking:
		var p CancelBookingPayload
		if err := decodePayload(a, &p); err != nil {
			return err
		}
		return h.CancelBooking(ctx, p)
	case KindUpdateProfile:
		var p UpdateProfilePayload
		if err := decodePayload(a, &p); err != nil {
			return err
		}
		return h.UpdateProfile(ctx, p)
	case KindUpdateAvatar:
		var p UpdateAvatarPayload
		if err := decodePayload(a, &p); err != nil {
			return err
		}
		return h.UpdateAvatar(ctx, p)
	default:
		return &Error{
			Code:     ErrCodeHandlerNotRegistered,
			Message:  "no replay handler for action type",
			ActionID: a.ID,
			Kind:     a.Kind,
		}
	}
}

func decodePayload(a Action, v any) error {
	if err := a.Decode(v); err != nil {
		return &Error{Code: ErrCodeInvalidPayload, Message: "payload does not decode", ActionID: a.ID, Kind: a.Kind, Err: err}
	}
	return nil
}

// Backend errors that idempotent handlers treat as success.
var (
	ErrAlreadyExists = errors.New("already exists")
	ErrNotFound      = errors.New("not found")
)

// IgnoreAlreadyExists returns nil when err is ErrAlreadyExists.
// Use it around inserts: a replayed insert that already landed succeeded.
func IgnoreAlreadyExists(err error) error {
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}

// IgnoreNotFound returns nil when err is ErrNotFound.
// Use it around deletes: a replayed delete whose row is gone succeeded.
func IgnoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// BookingStatusCancelledByUser is the status written by CANCEL_BOOKING.
const BookingStatusCancelledByUser = "cancelled_by_user"

// Backend is the network data API the handlers replay against.
type Backend interface {
	InsertFavorite(ctx context.Context, userID, restaurantID string) error
	DeleteFavorite(ctx context.Context, userID, restaurantID string) error
	InsertBooking(ctx context.Context, p CreateBookingPayload) error
	UpdateBooking(ctx context.Context, p UpdateBookingPayload) error
	SetBookingStatus(ctx context.Context, bookingID, status string) error
	UpdateProfile(ctx context.Context, p UpdateProfilePayload) error
	UploadAvatar(ctx context.Context, localURI string) (publicURL string, err error)
	SetAvatarURL(ctx context.Context, userID, url string) error
}

// BackendHandlers adapts a Backend into idempotent Handlers.
type BackendHandlers struct {
	Backend Backend
}

var _ Handlers = BackendHandlers{}

// AddFavorite inserts the favorite; an existing row is success.
func (h BackendHandlers) AddFavorite(ctx context.Context, p FavoritePayload) error {
	return IgnoreAlreadyExists(h.Backend.InsertFavorite(ctx, p.UserID, p.RestaurantID))
}

// RemoveFavorite deletes the favorite; a missing row is success.
func (h BackendHandlers) RemoveFavorite(ctx context.Context, p FavoritePayload) error {
	return IgnoreNotFound(h.Backend.DeleteFavorite(ctx, p.UserID, p.RestaurantID))
}

// CreateBooking inserts the client-identified booking; an existing row is success.
func (h BackendHandlers) CreateBooking(ctx context.Context, p CreateBookingPayload) error {
	if p.ID == "" {
		return Permanent(errors.New("create booking: missing client booking id"))
	}
	return IgnoreAlreadyExists(h.Backend.InsertBooking(ctx, p))
}

// UpdateBooking applies the field updates. Updates are naturally idempotent.
// A booking that no longer exists cannot be updated and is reported.
func (h BackendHandlers) UpdateBooking(ctx context.Context, p UpdateBookingPayload) error {
	err := h.Backend.UpdateBooking(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return Permanent(err)
	}
	return err
}

// CancelBooking sets the cancelled status.
func (h BackendHandlers) CancelBooking(ctx context.Context, p CancelBookingPayload) error {
	err := h.Backend.SetBookingStatus(ctx, p.BookingID, BookingStatusCancelledByUser)
	if errors.Is(err, ErrNotFound) {
		return Permanent(err)
	}
	return err
}

// UpdateProfile applies the field updates.
func (h BackendHandlers) UpdateProfile(ctx context.Context, p UpdateProfilePayload) error {
	return h.Backend.UpdateProfile(ctx, p)
}

// UpdateAvatar uploads the local image and points the profile at it.
// Re-uploading on replay produces a new object but the same end state.
func (h BackendHandlers) UpdateAvatar(ctx context.Context, p UpdateAvatarPayload) error {
	url, err := h.Backend.UploadAvatar(ctx, p.LocalURI)
	if err != nil {
		return fmt.Errorf("upload avatar: %w", err)
	}
	return h.Backend.SetAvatarURL(ctx, p.UserID, url)
}
