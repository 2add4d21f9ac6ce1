// Package apperror defines the error kinds returned by the reservation core.
//
// Every failure that leaves the core is one of: *ValidationError,
// *ConflictError, *InvalidTransitionError, ErrNotFound, ErrBusy or
// ErrStorageUnavailable. Use errors.As / errors.Is to tell them apart.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a reservation, room or notification does not exist
	// or is not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrBusy is returned when the per-room boundary or the store could not
	// be acquired in time. Safe to retry with backoff.
	ErrBusy = errors.New("busy, retry later")

	// ErrStorageUnavailable is returned when the backing store cannot serve the request.
	// Safe to retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError reports malformed input. Nothing was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// ConflictError reports an overlapping active reservation for the same room.
type ConflictError struct {
	RoomID                   string
	ConflictingReservationID string
}

func (e *ConflictError) Error() string {
	if e.ConflictingReservationID == "" {
		return fmt.Sprintf("room %s is already booked for the requested dates", e.RoomID)
	}
	return fmt.Sprintf("room %s is already booked for the requested dates (reservation %s)", e.RoomID, e.ConflictingReservationID)
}

// InvalidTransitionError reports an illegal state change or an actor
// without the right to perform it. The reservation is unchanged.
type InvalidTransitionError struct {
	ReservationID string
	From          string
	Action        string
	Unauthorized  bool
	Reason        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s reservation %s in state %s: %s", e.Action, e.ReservationID, e.From, e.Reason)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrStorageUnavailable)
}
