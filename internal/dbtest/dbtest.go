// Package dbtest opens throwaway sqlite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hotel-stays-backend/internal/db"
	"hotel-stays-backend/internal/model"
)

// Open returns a migrated sqlite database in the test's temp dir. It is
// closed when the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// SeedRoom inserts a hotel owned by ownerID with a single room.
func SeedRoom(t testing.TB, gormDB *gorm.DB, roomID, ownerID string, capacity int, pricePerNight model.Money) model.Room {
	t.Helper()
	hotel := model.Hotel{ID: "hotel-" + roomID, Name: "Hotel " + roomID, OwnerID: ownerID}
	require.NoError(t, gormDB.Create(&hotel).Error)
	room := model.Room{ID: roomID, HotelID: hotel.ID, Name: "Room " + roomID, Capacity: capacity, PricePerNight: pricePerNight}
	require.NoError(t, gormDB.Create(&room).Error)
	return room
}

// Date is midnight UTC on the given day of 2026.
func Date(month time.Month, day int) time.Time {
	return time.Date(2026, month, day, 0, 0, 0, 0, time.UTC)
}
