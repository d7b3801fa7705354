package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentNotification is an append-only audit record of a gateway
// confirmation applied to a link. Rows are never updated or deleted.
type PaymentNotification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LinkID    uuid.UUID `gorm:"type:uuid;index" json:"link_id"`
	GatewayID string    `gorm:"index" json:"gateway_id"`
	Status    string    `json:"status"`
	Payload   []byte    `gorm:"type:jsonb" json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *PaymentNotification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
