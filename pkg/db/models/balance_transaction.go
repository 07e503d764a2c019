package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/littlewears/littlewears-backend/pkg/enums"
)

// BalanceTransaction is an append-only signed ledger row. The only permitted
// mutation is the withdrawal_pending -> withdrawal_completed/failed kind flip
// during transfer settlement. TransferDocumentKey is a real column, not a
// token embedded in Description, so reconciliation never parses free text.
type BalanceTransaction struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountType         enums.AccountType     `gorm:"column:account_type;type:text;not null;index:ix_tx_account,priority:1"`
	AccountID           uuid.UUID             `gorm:"column:account_id;type:uuid;not null;index:ix_tx_account,priority:2"`
	OrderID             *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	AmountCents         int64                 `gorm:"column:amount_cents;not null"`
	Kind                enums.TransactionKind `gorm:"column:kind;type:text;not null;index"`
	Description         string                `gorm:"column:description;not null"`
	TransferDocumentKey *string               `gorm:"column:transfer_document_key;index"`
	FailureReason       *string               `gorm:"column:failure_reason"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
}
