package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"hotel-stays-backend/internal/booking"
	"hotel-stays-backend/internal/catalog"
	"hotel-stays-backend/internal/store"
	"hotel-stays-backend/internal/subscription"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	booking   *booking.Coordinator
	catalog   catalog.Catalog
	registry  *subscription.Registry
	webpush   *webpush.Options
	log       *zap.Logger
	heartbeat time.Duration
}

// Deps lists what the handlers need.
type Deps struct {
	Store     store.Store
	Booking   *booking.Coordinator
	Catalog   catalog.Catalog
	Registry  *subscription.Registry
	WebPush   *webpush.Options // nil when push is not configured
	Log       *zap.Logger
	Heartbeat time.Duration // keep-alive interval on the live stream
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	if d.Heartbeat <= 0 {
		d.Heartbeat = 25 * time.Second
	}
	return &Handler{
		store:     d.Store,
		booking:   d.Booking,
		catalog:   d.Catalog,
		registry:  d.Registry,
		webpush:   d.WebPush,
		log:       d.Log,
		heartbeat: d.Heartbeat,
	}
}
