package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Referrer is a commission earner identified by a referral code. The cached
// balance columns follow the same derived-from-transactions rule as
// SellerBalance.
type Referrer struct {
	ID                  uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RefCode             string           `gorm:"column:ref_code;not null;uniqueIndex"`
	Name                string           `gorm:"column:name;not null"`
	Email               string           `gorm:"column:email;not null"`
	CommissionPercent   *decimal.Decimal `gorm:"column:commission_percent;type:numeric(5,2)"`
	AvailableCents      int64            `gorm:"column:available_cents;not null;default:0"`
	PendingCents        int64            `gorm:"column:pending_cents;not null;default:0"`
	TotalWithdrawnCents int64            `gorm:"column:total_withdrawn_cents;not null;default:0"`
	BankCode            string           `gorm:"column:bank_code"`
	BankAccountNo       string           `gorm:"column:bank_account_no"`
	AccountHolder       string           `gorm:"column:account_holder"`
	CreatedAt           time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
