package notification

import (
	"slices"
	"time"

	"hotel-stays-backend/internal/model"
)

// Kind names a lifecycle event. The set is closed: add a new Event type
// rather than a new free-form string.
type Kind string

const (
	KindReservationCreated   Kind = "reservation_created"
	KindReservationConfirmed Kind = "reservation_confirmed"
	KindReservationRejected  Kind = "reservation_rejected"
	KindReservationCancelled Kind = "reservation_cancelled"
)

// Event is a reservation lifecycle event. Implemented only by the types in
// this file.
type Event interface {
	Kind() Kind
	Reservation() model.Reservation
	// Recipients are the user ids that get a notification record.
	Recipients() []string
	sealed()
}

// ReservationCreated is sent to the room owner when a guest requests a stay.
type ReservationCreated struct{ R model.Reservation }

// ReservationConfirmed is sent to the guest.
type ReservationConfirmed struct{ R model.Reservation }

// ReservationRejected is sent to the guest.
type ReservationRejected struct{ R model.Reservation }

// ReservationCancelled is sent to the guest and the owner.
type ReservationCancelled struct{ R model.Reservation }

func (e ReservationCreated) Kind() Kind                     { return KindReservationCreated }
func (e ReservationCreated) Reservation() model.Reservation { return e.R }
func (e ReservationCreated) Recipients() []string           { return []string{e.R.OwnerID} }
func (ReservationCreated) sealed()                          {}

func (e ReservationConfirmed) Kind() Kind                     { return KindReservationConfirmed }
func (e ReservationConfirmed) Reservation() model.Reservation { return e.R }
func (e ReservationConfirmed) Recipients() []string           { return []string{e.R.GuestID} }
func (ReservationConfirmed) sealed()                          {}

func (e ReservationRejected) Kind() Kind                     { return KindReservationRejected }
func (e ReservationRejected) Reservation() model.Reservation { return e.R }
func (e ReservationRejected) Recipients() []string           { return []string{e.R.GuestID} }
func (ReservationRejected) sealed()                          {}

func (e ReservationCancelled) Kind() Kind                     { return KindReservationCancelled }
func (e ReservationCancelled) Reservation() model.Reservation { return e.R }
func (e ReservationCancelled) Recipients() []string           { return []string{e.R.GuestID, e.R.OwnerID} }
func (ReservationCancelled) sealed()                          {}

// ForStatus returns the event announcing that r reached its current
// status, or nil for pending.
func ForStatus(r model.Reservation) Event {
	switch r.Status {
	case model.StatusConfirmed:
		return ReservationConfirmed{R: r}
	case model.StatusRejected:
		return ReservationRejected{R: r}
	case model.StatusCancelled:
		return ReservationCancelled{R: r}
	}
	return nil
}

// Payload is the fixed JSON body stored on every record and pushed live.
type Payload struct {
	Kind          Kind                    `json:"kind"`
	ReservationID string                  `json:"reservation_id"`
	RoomID        string                  `json:"room_id"`
	GuestID       string                  `json:"guest_id"`
	OwnerID       string                  `json:"owner_id"`
	CheckIn       time.Time               `json:"check_in"`
	CheckOut      time.Time               `json:"check_out"`
	GuestCount    int                     `json:"guest_count"`
	TotalPrice    model.Money             `json:"total_price"`
	Status        model.ReservationStatus `json:"status"`
	OccurredAt    time.Time               `json:"occurred_at"`
}

// NewPayload describes ev.
func NewPayload(ev Event) Payload {
	r := ev.Reservation()
	occurred := r.StatusChangedAt
	if occurred.IsZero() {
		occurred = r.CreatedAt
	}
	return Payload{
		Kind:          ev.Kind(),
		ReservationID: r.ID,
		RoomID:        r.RoomID,
		GuestID:       r.GuestID,
		OwnerID:       r.OwnerID,
		CheckIn:       r.CheckIn,
		CheckOut:      r.CheckOut,
		GuestCount:    r.GuestCount,
		TotalPrice:    r.TotalPrice,
		Status:        r.Status,
		OccurredAt:    occurred,
	}
}

// recipients returns ev's recipients sorted and without duplicates, so an
// owner who booked their own room gets a single record.
func recipients(ev Event) []string {
	out := slices.Clone(ev.Recipients())
	out = slices.DeleteFunc(out, func(s string) bool { return s == "" })
	slices.Sort(out)
	return slices.Compact(out)
}
