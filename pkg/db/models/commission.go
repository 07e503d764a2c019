package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/littlewears/littlewears-backend/pkg/enums"
)

// Commission is one referral commission per order; the unique index on
// OrderID is what makes duplicate processing a no-op. Percent and AmountCents
// are frozen at creation.
type Commission struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	ReferrerID  uuid.UUID              `gorm:"column:referrer_id;type:uuid;not null;index"`
	RefCode     string                 `gorm:"column:ref_code;not null"`
	Percent     decimal.Decimal        `gorm:"column:percent;type:numeric(5,2);not null"`
	AmountCents int64                  `gorm:"column:amount_cents;not null"`
	Status      enums.CommissionStatus `gorm:"column:status;type:text;not null;default:'pending';index"`
	ApprovedAt  *time.Time             `gorm:"column:approved_at"`
	PaidAt      *time.Time             `gorm:"column:paid_at"`
	CancelledAt *time.Time             `gorm:"column:cancelled_at"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
}
