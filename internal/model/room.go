package model

import "time"

// Room is a bookable unit in the catalog.
type Room struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	HotelID       string    `gorm:"index;size:64;not null" json:"hotel_id"`
	Name          string    `gorm:"size:256;not null" json:"name"`
	Capacity      int       `gorm:"not null" json:"capacity"`
	PricePerNight Money     `gorm:"not null" json:"price_per_night"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Associations
	Hotel Hotel `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
