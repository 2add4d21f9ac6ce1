// Package stay models a room booked over a half-open time interval.
package stay

import (
	"time"

	"hotel-stays-backend/internal/apperror"
)

const day = 24 * time.Hour

// Interval is a room plus the half-open range [CheckIn, CheckOut).
type Interval struct {
	RoomID   string    `json:"room_id"`
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

// New validates and builds an Interval. Times are normalised to UTC.
func New(roomID string, checkIn, checkOut time.Time) (Interval, error) {
	if roomID == "" {
		return Interval{}, &apperror.ValidationError{Field: "room_id", Reason: "is required"}
	}
	if !checkIn.Before(checkOut) {
		return Interval{}, &apperror.ValidationError{Field: "check_out", Reason: "check_in must precede check_out"}
	}
	return Interval{RoomID: roomID, CheckIn: checkIn.UTC(), CheckOut: checkOut.UTC()}, nil
}

// Overlaps reports whether both intervals are for the same room and share
// at least one instant. A check-out on day X does not collide with a
// check-in on day X.
func (i Interval) Overlaps(other Interval) bool {
	if i.RoomID != other.RoomID {
		return false
	}
	return i.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(i.CheckOut)
}

// Nights is the duration in whole days, rounded up. A stay shorter than a
// day counts as one night.
func (i Interval) Nights() int {
	d := i.CheckOut.Sub(i.CheckIn)
	n := int(d / day)
	if d%day != 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return n
}
