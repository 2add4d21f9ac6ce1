package model

import "time"

// Hotel represents a property owned by a single owner.
type Hotel struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	OwnerID   string    `gorm:"size:64;not null;index" json:"owner_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`

	// Associations
	Rooms []Room `gorm:"foreignKey:HotelID" json:"-"`
}
