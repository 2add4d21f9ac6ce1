package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"go.uber.org/zap"

	"hotel-stays-backend/internal/mw"
)

// RouterConfig holds the HTTP-layer settings.
type RouterConfig struct {
	JWTSecret       []byte
	Issuer          string
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
	// RoomCache is shared with the catalog importer so it can flush it.
	// When nil a private cache with CacheTTL is used.
	RoomCache *mw.ResponseCache
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(log))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	roomCache := cfg.RoomCache
	if roomCache == nil {
		roomCache = mw.NewResponseCache(cfg.CacheTTL)
	}

	// Public
	r.GET("/api/vapid_public_key", h.GetVAPIDPublicKey)

	api := r.Group("/api")
	api.Use(mw.Auth(cfg.JWTSecret, cfg.Issuer), rateLimiter)
	{
		api.POST("/reservations", h.CreateReservation)
		api.GET("/reservations", h.ListReservations)
		api.GET("/reservations/:id", h.GetReservation)
		api.POST("/reservations/:id/:action", h.TransitionReservation)

		api.GET("/rooms/:room_id", roomCache.Handler(), h.GetRoom)
		api.GET("/rooms/:room_id/reservations", h.ListRoomReservations)

		api.GET("/notifications", h.ListNotifications)
		api.GET("/notifications/stream", h.StreamNotifications)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)

		api.PUT("/push_subscriptions", h.PutSubscription)
		api.DELETE("/push_subscriptions", h.DeleteSubscription)
	}

	return r
}
