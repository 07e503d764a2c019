package models

import (
	"time"

	"github.com/google/uuid"
)

// SellerBalance caches the running totals for one seller's ledger. The
// balance_transactions rows are the audit source of truth; these columns are
// derived and updated alongside each row.
type SellerBalance struct {
	SellerID            uuid.UUID `gorm:"column:seller_id;type:uuid;primaryKey"`
	AvailableCents      int64     `gorm:"column:available_cents;not null;default:0"`
	PendingCents        int64     `gorm:"column:pending_cents;not null;default:0"`
	TotalWithdrawnCents int64     `gorm:"column:total_withdrawn_cents;not null;default:0"`
	TotalEarningsCents  int64     `gorm:"column:total_earnings_cents;not null;default:0"`
	BankCode            string    `gorm:"column:bank_code"`
	BankAccountNo       string    `gorm:"column:bank_account_no"`
	AccountHolder       string    `gorm:"column:account_holder"`
	TaxID               string    `gorm:"column:tax_id"`
	CreatedAt           time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
