// Package booking is the single write path for reservations: stay
// requests and lifecycle transitions.
package booking

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/catalog"
	"hotel-stays-backend/internal/ledger"
	"hotel-stays-backend/internal/lock"
	"hotel-stays-backend/internal/model"
	"hotel-stays-backend/internal/notification"
	"hotel-stays-backend/internal/reservation"
	"hotel-stays-backend/internal/stay"
)

// StayRequest is a guest's request to book a room.
type StayRequest struct {
	GuestID         string    `json:"guest_id" validate:"required,max=64"`
	RoomID          string    `json:"room_id" validate:"required,max=64"`
	CheckIn         time.Time `json:"check_in" validate:"required"`
	CheckOut        time.Time `json:"check_out" validate:"required"`
	GuestCount      int       `json:"guest_count" validate:"gte=1"`
	SpecialRequests string    `json:"special_requests" validate:"max=2000"`
}

// Options configures a Coordinator.
type Options struct {
	TaxRate float64
	Policy  reservation.Policy
	// LockWait bounds the cross-instance room lock taken in the database.
	LockWait time.Duration
	Now      func() time.Time
}

// Coordinator creates reservations and moves them through their lifecycle.
type Coordinator struct {
	db         *gorm.DB
	ledger     *ledger.Ledger
	catalog    catalog.Catalog
	locker     lock.RoomLocker
	dispatcher *notification.Dispatcher
	validate   *validator.Validate
	log        *zap.Logger
	tracer     trace.Tracer

	taxRate float64
	policy  reservation.Policy
	now     func() time.Time
}

// NewCoordinator wires a coordinator.
func NewCoordinator(db *gorm.DB, cat catalog.Catalog, locker lock.RoomLocker, dispatcher *notification.Dispatcher, log *zap.Logger, opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Coordinator{
		db:         db,
		ledger:     ledger.New(db, opts.LockWait),
		catalog:    cat,
		locker:     locker,
		dispatcher: dispatcher,
		validate:   v,
		log:        log,
		tracer:     otel.Tracer("hotel-stays-backend/booking"),
		taxRate:    opts.TaxRate,
		policy:     opts.Policy,
		now:        opts.Now,
	}
}

// RequestStay books req.RoomID for the requested dates in pending state
// and notifies the owner. It fails with *apperror.ValidationError,
// *apperror.ConflictError, apperror.ErrBusy or apperror.ErrStorageUnavailable;
// on failure nothing is written.
func (c *Coordinator) RequestStay(ctx context.Context, req StayRequest) (model.Reservation, error) {
	ctx, span := c.tracer.Start(ctx, "request_stay", trace.WithAttributes(
		attribute.String("room.id", req.RoomID),
		attribute.String("guest.id", req.GuestID),
	))
	defer span.End()

	res, err := c.requestStay(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Info("stay request refused",
			zap.String("room_id", req.RoomID),
			zap.String("guest_id", req.GuestID),
			zap.Error(err))
		return model.Reservation{}, err
	}
	span.SetAttributes(attribute.String("reservation.id", res.ID))
	span.SetStatus(codes.Ok, "reservation created")
	c.log.Info("reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("room_id", res.RoomID),
		zap.String("guest_id", res.GuestID))
	return res, nil
}

func (c *Coordinator) requestStay(ctx context.Context, req StayRequest) (model.Reservation, error) {
	if err := c.validate.Struct(req); err != nil {
		return model.Reservation{}, validationError(err)
	}
	interval, err := stay.New(req.RoomID, req.CheckIn, req.CheckOut)
	if err != nil {
		return model.Reservation{}, err
	}

	room, err := c.catalog.Room(ctx, req.RoomID)
	if errors.Is(err, apperror.ErrNotFound) {
		return model.Reservation{}, &apperror.ValidationError{Field: "room_id", Reason: "unknown room"}
	}
	if err != nil {
		return model.Reservation{}, err
	}
	if req.GuestCount > room.Capacity {
		return model.Reservation{}, &apperror.ValidationError{
			Field:  "guest_count",
			Reason: fmt.Sprintf("exceeds room capacity of %d", room.Capacity),
		}
	}

	// No network calls from here until release.
	release, err := c.locker.Acquire(ctx, interval.RoomID)
	if err != nil {
		return model.Reservation{}, err
	}
	defer release()

	now := c.now().UTC()
	res := model.Reservation{
		ID:              uuid.NewString(),
		GuestID:         req.GuestID,
		OwnerID:         room.OwnerID,
		RoomID:          interval.RoomID,
		CheckIn:         interval.CheckIn,
		CheckOut:        interval.CheckOut,
		GuestCount:      req.GuestCount,
		TotalPrice:      Price(room.PricePerNight, interval.Nights(), c.taxRate),
		SpecialRequests: req.SpecialRequests,
		Status:          model.StatusPending,
		CreatedAt:       now,
		StatusChangedAt: now,
	}

	var batch *notification.Batch
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.ledger.LockRoom(tx, interval.RoomID); err != nil {
			return err
		}
		conflictID, err := c.ledger.HasConflict(tx, interval, "")
		if err != nil {
			return err
		}
		if conflictID != "" {
			return &apperror.ConflictError{RoomID: interval.RoomID, ConflictingReservationID: conflictID}
		}
		if err := tx.Create(&res).Error; err != nil {
			return err
		}
		batch, err = c.dispatcher.Stage(tx, notification.ReservationCreated{R: res})
		return err
	})
	if err != nil {
		if batch != nil {
			batch.Abort()
		}
		return model.Reservation{}, c.conflictDetails(ctx, interval, apperror.FromStorage(err))
	}

	release()
	batch.Commit()
	return res, nil
}

// conflictDetails fills in the conflicting reservation when the database
// constraint, not the ledger, caught the overlap.
func (c *Coordinator) conflictDetails(ctx context.Context, interval stay.Interval, err error) error {
	var conflict *apperror.ConflictError
	if !errors.As(err, &conflict) || conflict.ConflictingReservationID != "" {
		return err
	}
	conflict.RoomID = interval.RoomID
	id, lookupErr := c.ledger.HasConflict(c.db.WithContext(ctx), interval, "")
	if lookupErr != nil {
		c.log.Warn("look up conflicting reservation", zap.String("room_id", interval.RoomID), zap.Error(lookupErr))
		return err
	}
	conflict.ConflictingReservationID = id
	return err
}

// Transition applies action to the reservation on behalf of actor and
// notifies the affected parties. A failed transition leaves the
// reservation unchanged.
func (c *Coordinator) Transition(ctx context.Context, reservationID string, action reservation.Action, actor reservation.Actor) (model.Reservation, error) {
	ctx, span := c.tracer.Start(ctx, "transition_reservation", trace.WithAttributes(
		attribute.String("reservation.id", reservationID),
		attribute.String("reservation.action", string(action)),
		attribute.String("actor.id", actor.UserID),
	))
	defer span.End()

	next, err := c.transition(ctx, reservationID, action, actor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Reservation{}, err
	}
	span.SetAttributes(attribute.String("reservation.status", string(next.Status)))
	c.log.Info("reservation transitioned",
		zap.String("reservation_id", next.ID),
		zap.String("action", string(action)),
		zap.String("status", string(next.Status)),
		zap.String("actor_id", actor.UserID))
	return next, nil
}

func (c *Coordinator) transition(ctx context.Context, reservationID string, action reservation.Action, actor reservation.Actor) (model.Reservation, error) {
	var (
		next  model.Reservation
		batch *notification.Batch
	)
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Reservation
		if err := tx.Where("id = ?", reservationID).First(&current).Error; err != nil {
			return err
		}

		var err error
		next, err = reservation.Apply(current, action, actor, c.now().UTC(), c.policy)
		if err != nil {
			return err
		}

		// A decision that keeps the room blocked must not produce an
		// overlap, even with rows written outside RequestStay.
		if next.Status.IsActive() {
			if err := c.ledger.LockRoom(tx, current.RoomID); err != nil {
				return err
			}
			conflictID, err := c.ledger.HasConflict(tx, current.Stay(), current.ID)
			if err != nil {
				return err
			}
			if conflictID != "" {
				return &apperror.ConflictError{RoomID: current.RoomID, ConflictingReservationID: conflictID}
			}
		}

		// Compare-and-set on status: a concurrent transition wins, this one fails.
		result := tx.Model(&model.Reservation{}).
			Where("id = ? AND status = ?", current.ID, current.Status).
			Updates(map[string]any{
				"status":            next.Status,
				"status_changed_at": next.StatusChangedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &apperror.InvalidTransitionError{
				ReservationID: current.ID,
				From:          string(current.Status),
				Action:        string(action),
				Reason:        "reservation was changed by another request",
			}
		}

		batch, err = c.dispatcher.Stage(tx, notification.ForStatus(next))
		return err
	})
	if err != nil {
		if batch != nil {
			batch.Abort()
		}
		return model.Reservation{}, apperror.FromStorage(err)
	}
	batch.Commit()
	return next, nil
}

// ActiveReservations streams the room's pending and confirmed
// reservations ordered by check-in.
func (c *Coordinator) ActiveReservations(ctx context.Context, roomID string) iter.Seq2[model.Reservation, error] {
	return c.ledger.ActiveReservationsForRoom(ctx, roomID)
}

// ListActiveReservations collects ActiveReservations.
func (c *Coordinator) ListActiveReservations(ctx context.Context, roomID string) ([]model.Reservation, error) {
	return c.ledger.ListActive(ctx, roomID)
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &apperror.ValidationError{Reason: err.Error()}
	}
	fe := errs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "gte":
		reason = "must be at least " + fe.Param()
	case "max":
		reason = "must be at most " + fe.Param() + " characters"
	default:
		reason = "is invalid (" + fe.Tag() + ")"
	}
	return &apperror.ValidationError{Field: fe.Field(), Reason: reason}
}
