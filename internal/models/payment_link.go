package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment link lifecycle states. pending is the only non-terminal state.
const (
	LinkStatusPending   = "pending"
	LinkStatusPaid      = "paid"
	LinkStatusExpired   = "expired"
	LinkStatusCancelled = "cancelled"
)

// PaymentLink is a shareable request for a fixed-amount payment.
type PaymentLink struct {
	BaseModel
	MerchantID    uuid.UUID       `gorm:"type:uuid;index" json:"merchant_id"`
	Merchant      *Merchant       `json:"-"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2)" json:"amount"`
	Status        string          `gorm:"index;default:pending" json:"status"`
	PaymentID     string          `gorm:"index" json:"payment_id"`
	PayerEmail    string          `json:"payer_email"`
	PaymentMethod string          `json:"payment_method"`
	PaidAt        *time.Time      `json:"paid_at"`
}

// IsTerminal reports whether the link can no longer change status.
func (l *PaymentLink) IsTerminal() bool {
	return l.Status != LinkStatusPending
}
