package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/mw"
)

// GetRoom handles GET /api/rooms/:room_id.
func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.catalog.Room(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// ListRoomReservations handles GET /api/rooms/:room_id/reservations, the
// owner's occupancy view of a room.
func (h *Handler) ListRoomReservations(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)
	ctx := c.Request.Context()

	room, err := h.catalog.Room(ctx, c.Param("room_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !actor.IsAdmin() && actor.UserID != room.OwnerID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only the room owner may list its reservations"})
		return
	}

	out := []model.Reservation{}
	for r, err := range h.booking.ActiveReservations(ctx, room.RoomID) {
		if err != nil {
			h.writeError(c, err)
			return
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, out)
}
