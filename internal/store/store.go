package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/model"
)

// Store defines the read and bookkeeping queries used outside the booking path.
type Store interface {
	GetReservation(ctx context.Context, id string) (model.Reservation, error)
	ListReservations(ctx context.Context, userID string, party Party) ([]model.Reservation, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.NotificationRecord, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	PutPushSubscription(ctx context.Context, sub model.PushSubscription) error
	DeletePushSubscription(ctx context.Context, userID, endpoint string) error
	UpsertHotelsAndRooms(ctx context.Context, items []CatalogItem) (int, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, log *zap.Logger) Store {
	return &gormStore{db: db, log: log}
}

// GetReservation loads one reservation by id.
func (s *gormStore) GetReservation(ctx context.Context, id string) (model.Reservation, error) {
	var r model.Reservation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return model.Reservation{}, apperror.FromStorage(err)
	}
	return r, nil
}

// ListReservations returns the user's reservations as guest or as owner,
// newest first.
func (s *gormStore) ListReservations(ctx context.Context, userID string, party Party) ([]model.Reservation, error) {
	column := "guest_id"
	if party == PartyOwner {
		column = "owner_id"
	}
	var out []model.Reservation
	err := s.db.WithContext(ctx).
		Where(column+" = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperror.FromStorage(err)
	}
	return out, nil
}

// ListNotifications returns the user's notifications in creation order.
// A limit of zero or less returns all of them.
func (s *gormStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.NotificationRecord, error) {
	q := s.db.WithContext(ctx).Where("recipient_id = ?", userID)
	if unreadOnly {
		q = q.Where("read = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []model.NotificationRecord
	if err := q.Order("created_at ASC").Order("seq ASC").Find(&out).Error; err != nil {
		return nil, apperror.FromStorage(err)
	}
	return out, nil
}

// MarkNotificationRead flags one of the user's notifications as read. A
// notification that belongs to someone else is reported as not found.
func (s *gormStore) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ctx).
		Model(&model.NotificationRecord{}).
		Where("id = ? AND recipient_id = ?", notificationID, userID).
		Update("read", true)
	if result.Error != nil {
		return apperror.FromStorage(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.ErrNotFound
	}
	return nil
}

// PutPushSubscription creates or replaces a browser subscription.
func (s *gormStore) PutPushSubscription(ctx context.Context, sub model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(&sub).Error
	if err != nil {
		return apperror.FromStorage(err)
	}
	return nil
}

// DeletePushSubscription removes one of the user's subscriptions.
func (s *gormStore) DeletePushSubscription(ctx context.Context, userID, endpoint string) error {
	err := s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{}).Error
	if err != nil {
		return apperror.FromStorage(err)
	}
	return nil
}

// UpsertHotelsAndRooms writes the catalog in one transaction and returns the
// number of rooms written. Items without ids or with a non-positive
// capacity are skipped.
func (s *gormStore) UpsertHotelsAndRooms(ctx context.Context, items []CatalogItem) (int, error) {
	hotels := make(map[string]model.Hotel)
	var rooms []model.Room
	for _, item := range items {
		if item.RoomID == "" || item.HotelID == "" || item.OwnerID == "" {
			s.log.Warn("skipping catalog item without ids", zap.String("room_id", item.RoomID), zap.String("hotel_id", item.HotelID))
			continue
		}
		if item.Capacity < 1 || item.PricePerNight < 0 {
			s.log.Warn("skipping catalog item with invalid capacity or price", zap.String("room_id", item.RoomID))
			continue
		}
		if _, ok := hotels[item.HotelID]; !ok {
			hotels[item.HotelID] = model.Hotel{ID: item.HotelID, Name: item.HotelName, OwnerID: item.OwnerID}
		}
		rooms = append(rooms, model.Room{
			ID:            item.RoomID,
			HotelID:       item.HotelID,
			Name:          item.RoomName,
			Capacity:      item.Capacity,
			PricePerNight: item.PricePerNight,
		})
	}
	if len(rooms) == 0 {
		return 0, nil
	}

	hotelList := make([]model.Hotel, 0, len(hotels))
	for _, h := range hotels {
		hotelList = append(hotelList, h)
	}

	s.log.Info("upserting catalog", zap.Int("hotels", len(hotelList)), zap.Int("rooms", len(rooms)))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "owner_id", "updated_at"}),
		}).Create(&hotelList).Error; err != nil {
			return fmt.Errorf("upsert hotels: %w", err)
		}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"hotel_id", "name", "capacity", "price_per_night", "updated_at"}),
		}).Create(&rooms).Error; err != nil {
			return fmt.Errorf("upsert rooms: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, apperror.FromStorage(err)
	}
	return len(rooms), nil
}
