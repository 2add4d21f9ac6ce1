package model

import (
	"time"

	"hotel-stays-backend/internal/stay"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusRejected  ReservationStatus = "rejected"
	StatusCancelled ReservationStatus = "cancelled"
)

// ActiveStatuses are the statuses that count toward conflict checks.
var ActiveStatuses = []ReservationStatus{StatusPending, StatusConfirmed}

// IsActive reports whether the status blocks the room.
func (s ReservationStatus) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Reservation is a guest's request to stay in a room. Rows are never deleted.
type Reservation struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	GuestID         string            `gorm:"size:64;not null;index" json:"guest_id"`
	OwnerID         string            `gorm:"size:64;not null;index" json:"owner_id"`
	RoomID          string            `gorm:"size:64;not null;index:idx_reservations_room_status,priority:1" json:"room_id"`
	CheckIn         time.Time         `gorm:"not null" json:"check_in"`
	CheckOut        time.Time         `gorm:"not null" json:"check_out"`
	GuestCount      int               `gorm:"not null" json:"guest_count"`
	TotalPrice      Money             `gorm:"not null" json:"total_price"`
	SpecialRequests string            `gorm:"size:2000" json:"special_requests"`
	Status          ReservationStatus `gorm:"size:16;not null;index:idx_reservations_room_status,priority:2" json:"status"`
	CreatedAt       time.Time         `gorm:"not null" json:"created_at"`
	StatusChangedAt time.Time         `gorm:"not null" json:"status_changed_at"`
}

// Stay returns the reservation's room and date interval.
func (r Reservation) Stay() stay.Interval {
	return stay.Interval{RoomID: r.RoomID, CheckIn: r.CheckIn, CheckOut: r.CheckOut}
}
