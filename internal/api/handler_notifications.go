package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/mw"
)

// ListNotifications handles GET /api/notifications?unread=true&limit=N.
// Clients call it after (re)connecting the live stream to catch up.
func (h *Handler) ListNotifications(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)

	unreadOnly := c.Query("unread") == "true"
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	out, err := h.store.ListNotifications(c.Request.Context(), actor.UserID, unreadOnly, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if out == nil {
		out = []model.NotificationRecord{}
	}
	c.JSON(http.StatusOK, out)
}

// MarkNotificationRead handles POST /api/notifications/:id/read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)

	if err := h.store.MarkNotificationRead(c.Request.Context(), actor.UserID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type liveEvent struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	ReservationID string          `json:"reservation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// StreamNotifications handles GET /api/notifications/stream as server-sent
// events. Each session is its own registry handle and is removed when the
// client goes away.
func (h *Handler) StreamNotifications(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)
	ctx := c.Request.Context()

	sub := h.registry.Subscribe(actor.UserID)
	defer h.registry.Unsubscribe(sub)
	h.log.Debug("live stream opened", zap.String("user_id", actor.UserID), zap.String("handle_id", sub.ID))

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"handle_id": sub.ID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(msg.Kind, liveEvent{
				ID:            msg.ID,
				Kind:          msg.Kind,
				ReservationID: msg.ReservationID,
				Payload:       json.RawMessage(msg.Payload),
			})
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		case <-ctx.Done():
			return false
		}
	})
	h.log.Debug("live stream closed", zap.String("user_id", actor.UserID), zap.String("handle_id", sub.ID))
}
