package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
)

// Repository persists seller balances and the append-only transaction log.
// Balance mutations must go through GetBalanceForUpdate inside the caller's
// transaction so the row lock serializes concurrent withdrawals.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetBalanceForUpdate(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error)
	CreateBalance(ctx context.Context, balance *models.SellerBalance) error
	UpdateBalance(ctx context.Context, sellerID uuid.UUID, updates map[string]any) error
	CreateTransaction(ctx context.Context, txRow *models.BalanceTransaction) error
	HasSaleCredit(ctx context.Context, accountID, orderID uuid.UUID) (bool, error)
	FindTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.BalanceTransaction, error)
	FindPendingWithdrawals(ctx context.Context, olderThan time.Time) ([]models.BalanceTransaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetBalanceForUpdate(ctx context.Context, sellerID uuid.UUID) (*models.SellerBalance, error) {
	var balance models.SellerBalance
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("seller_id = ?", sellerID).
		First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) CreateBalance(ctx context.Context, balance *models.SellerBalance) error {
	return r.db.WithContext(ctx).Create(balance).Error
}

func (r *repository) UpdateBalance(ctx context.Context, sellerID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.SellerBalance{}).
		Where("seller_id = ?", sellerID).
		Updates(updates).Error
}

func (r *repository) CreateTransaction(ctx context.Context, txRow *models.BalanceTransaction) error {
	return r.db.WithContext(ctx).Create(txRow).Error
}

func (r *repository) HasSaleCredit(ctx context.Context, accountID, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BalanceTransaction{}).
		Where("account_id = ? AND order_id = ? AND kind = ?",
			accountID, orderID, enums.TransactionKindSaleCredit).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) FindTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.BalanceTransaction, error) {
	var txRow models.BalanceTransaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&txRow).Error
	if err != nil {
		return nil, err
	}
	return &txRow, nil
}

// FindPendingWithdrawals returns withdrawal rows that already have a bank
// document key, oldest first. Rows younger than olderThan are skipped so the
// reconciliation sweep does not race an in-flight request.
func (r *repository) FindPendingWithdrawals(ctx context.Context, olderThan time.Time) ([]models.BalanceTransaction, error) {
	var rows []models.BalanceTransaction
	err := r.db.WithContext(ctx).
		Where("kind = ? AND transfer_document_key IS NOT NULL AND created_at < ?",
			enums.TransactionKindWithdrawalPending, olderThan).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.BalanceTransaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// IsDuplicateRow reports whether err is the unique-guard firing, under either
// the postgres driver or sqlite in tests.
func IsDuplicateRow(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || pkgerrors.IsUniqueViolation(err)
}
