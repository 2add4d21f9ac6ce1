// Package catalog reads room facts (owner, capacity, nightly price) that
// the reservation core treats as read-only.
package catalog

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"hotel-stays-backend/internal/apperror"
	"hotel-stays-backend/internal/model"
)

// RoomInfo is what the core needs to know about a room.
type RoomInfo struct {
	RoomID        string      `json:"room_id"`
	HotelID       string      `json:"hotel_id"`
	Name          string      `json:"name"`
	OwnerID       string      `json:"owner_id"`
	Capacity      int         `json:"capacity"`
	PricePerNight model.Money `json:"price_per_night"`
}

// Catalog looks up rooms.
type Catalog interface {
	Room(ctx context.Context, roomID string) (RoomInfo, error)
}

// GormCatalog reads rooms from the local store and caches them in memory.
type GormCatalog struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewGormCatalog creates a catalog whose entries live for ttl.
func NewGormCatalog(db *gorm.DB, ttl time.Duration) *GormCatalog {
	return &GormCatalog{
		db:    db,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Room returns the room or apperror.ErrNotFound.
func (c *GormCatalog) Room(ctx context.Context, roomID string) (RoomInfo, error) {
	if cached, found := c.cache.Get(roomID); found {
		return cached.(RoomInfo), nil
	}

	var room model.Room
	err := c.db.WithContext(ctx).
		Preload("Hotel").
		Where("id = ?", roomID).
		First(&room).Error
	if err != nil {
		return RoomInfo{}, apperror.FromStorage(err)
	}

	info := RoomInfo{
		RoomID:        room.ID,
		HotelID:       room.HotelID,
		Name:          room.Name,
		OwnerID:       room.Hotel.OwnerID,
		Capacity:      room.Capacity,
		PricePerNight: room.PricePerNight,
	}
	c.cache.SetDefault(roomID, info)
	return info, nil
}

// Invalidate drops cached entries, for example after a catalog sync.
func (c *GormCatalog) Invalidate() {
	c.cache.Flush()
}
