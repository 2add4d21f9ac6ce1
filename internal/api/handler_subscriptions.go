package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/mw"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers the caller's browser for web push.
func (h *Handler) PutSubscription(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)

	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	err := h.store.PutPushSubscription(c.Request.Context(), model.PushSubscription{
		Endpoint:  req.Endpoint,
		UserID:    actor.UserID,
		P256DH:    req.P256DH,
		Auth:      req.Auth,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the caller's browser subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	actor, _ := mw.ActorFrom(c)

	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	if err := h.store.DeletePushSubscription(c.Request.Context(), actor.UserID, req.Endpoint); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetVAPIDPublicKey tells the browser which application server key to
// subscribe with. 503 until push is configured.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "web push is not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey, "ttl_seconds": h.webpush.TTL})
}
