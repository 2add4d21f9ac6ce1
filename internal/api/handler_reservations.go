package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/booking"
	"hotel-stays-backend/internal/mw"
	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/reservation"
	"hotel-stays-backend/internal/store"
)

type createReservationRequest struct {
	RoomID          string `json:"room_id" binding:"required"`
	CheckIn         string `json:"check_in" binding:"required"`
	CheckOut        string `json:"check_out" binding:"required"`
	GuestCount      int    `json:"guest_count"`
	SpecialRequests string `json:"special_requests"`
}

// parseStayDate accepts a calendar date (midnight UTC) or an RFC 3339 timestamp.
func parseStayDate(field, s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, &apperror.ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a date", s)}
}

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)

	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	checkIn, err := parseStayDate("check_in", req.CheckIn)
	if err != nil {
		h.writeError(c, err)
		return
	}
	checkOut, err := parseStayDate("check_out", req.CheckOut)
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.booking.RequestStay(c.Request.Context(), booking.StayRequest{
		GuestID:         actor.UserID,
		RoomID:          req.RoomID,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		GuestCount:      req.GuestCount,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ListReservations handles GET /api/reservations?as=guest|owner.
func (h *Handler) ListReservations(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)

	party := store.Party(c.DefaultQuery("as", string(store.PartyGuest)))
	if party != store.PartyGuest && party != store.PartyOwner {
		badRequest(c, "as must be guest or owner")
		return
	}

	out, err := h.store.ListReservations(c.Request.Context(), actor.UserID, party)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if out == nil {
		out = []model.Reservation{}
	}
	c.JSON(http.StatusOK, out)
}

// GetReservation handles GET /api/reservations/:id. Reservations of other
// users are reported as not found.
func (h *Handler) GetReservation(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)

	res, err := h.store.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !actor.IsAdmin() && actor.UserID != res.GuestID && actor.UserID != res.OwnerID {
		h.writeError(c, apperror.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, res)
}

// TransitionReservation handles POST /api/reservations/:id/:action.
func (h *Handler) TransitionReservation(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)

	action, ok := reservation.ParseAction(c.Param("action"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}

	res, err := h.booking.Transition(c.Request.Context(), c.Param("id"), action, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
