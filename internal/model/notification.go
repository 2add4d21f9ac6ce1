package model

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationRecord is the durable copy of one lifecycle event for one recipient.
type NotificationRecord struct {
	ID                   string         `gorm:"primaryKey;size:36" json:"id"`
	RecipientID          string         `gorm:"size:64;not null;index:idx_notification_recipient,priority:1" json:"recipient_id"`
	Seq                  int64          `gorm:"not null;index:idx_notification_recipient,priority:2" json:"seq"`
	Kind                 string         `gorm:"size:32;not null" json:"kind"`
	Payload              datatypes.JSON `json:"payload"`
	CreatedAt            time.Time      `gorm:"not null" json:"created_at"`
	DeliveredLive        bool           `gorm:"not null;default:false" json:"delivered_live"`
	Read                 bool           `gorm:"not null;default:false" json:"read"`
	RelatedReservationID string         `gorm:"size:36;index" json:"related_reservation_id"`
}
