// Package reservation holds the reservation lifecycle: which actor may move
// a reservation from one status to another.
package reservation

import (
	"time"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/model"
)

// Action is a requested lifecycle change.
type Action string

const (
	ActionConfirm Action = "confirm"
	ActionReject  Action = "reject"
	ActionCancel  Action = "cancel"
)

// ParseAction validates a raw action name.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionConfirm, ActionReject, ActionCancel:
		return a, true
	}
	return "", false
}

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleGuest Role = "guest"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// Actor is the identity performing an action.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the actor bypasses ownership checks.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Policy carries the configurable parts of the lifecycle.
type Policy struct {
	// AllowCancelAfterConfirm lets the guest cancel a confirmed reservation.
	AllowCancelAfterConfirm bool
}

// Target returns the status an action leads to.
func (a Action) Target() model.ReservationStatus {
	switch a {
	case ActionConfirm:
		return model.StatusConfirmed
	case ActionReject:
		return model.StatusRejected
	case ActionCancel:
		return model.StatusCancelled
	}
	return ""
}

// Apply validates action against the current snapshot and returns the
// next snapshot. On failure it returns *apperror.InvalidTransitionError
// and the zero Reservation; current is never modified.
func Apply(current model.Reservation, action Action, actor Actor, now time.Time, policy Policy) (model.Reservation, error) {
	fail := func(unauthorized bool, reason string) (model.Reservation, error) {
		return model.Reservation{}, &apperror.InvalidTransitionError{
			ReservationID: current.ID,
			From:          string(current.Status),
			Action:        string(action),
			Unauthorized:  unauthorized,
			Reason:        reason,
		}
	}

	switch action {
	case ActionConfirm, ActionReject:
		if !actor.IsAdmin() && actor.UserID != current.OwnerID {
			return fail(true, "only the room owner may decide on a reservation")
		}
		if current.Status != model.StatusPending {
			return fail(false, "reservation is no longer pending")
		}
	case ActionCancel:
		if !actor.IsAdmin() && actor.UserID != current.GuestID {
			return fail(true, "only the guest who made the reservation may cancel it")
		}
		switch current.Status {
		case model.StatusPending:
		case model.StatusConfirmed:
			if !policy.AllowCancelAfterConfirm {
				return fail(false, "confirmed reservations cannot be cancelled")
			}
		default:
			return fail(false, "reservation is already closed")
		}
	default:
		return fail(false, "unknown action")
	}

	next := current
	next.Status = action.Target()
	next.StatusChangedAt = now
	return next, nil
}
