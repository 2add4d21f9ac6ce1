package store

import "hotel-stays-backend/internal/model"

// CatalogItem is one room as published by the upstream catalog.
type CatalogItem struct {
	RoomID        string      `json:"roomId"`
	RoomName      string      `json:"roomName"`
	HotelID       string      `json:"hotelId"`
	HotelName     string      `json:"hotelName"`
	OwnerID       string      `json:"ownerId"`
	Capacity      int         `json:"capacity"`
	PricePerNight model.Money `json:"pricePerNight"`
}

// Party selects which side of a reservation the caller is on.
type Party string

const (
	PartyGuest Party = "guest"
	PartyOwner Party = "owner"
)
