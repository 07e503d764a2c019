package commission

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
)

// Repository persists referral commissions, referrer balances, and the
// referrer side of the transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindReferrerByCode(ctx context.Context, refCode string) (*models.Referrer, error)
	FindReferrerForUpdate(ctx context.Context, id uuid.UUID) (*models.Referrer, error)
	UpdateReferrer(ctx context.Context, id uuid.UUID, updates map[string]any) error
	CreateCommission(ctx context.Context, commission *models.Commission) error
	FindByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Commission, error)
	UpdateCommission(ctx context.Context, id uuid.UUID, updates map[string]any) error
	FindApprovedOldestFirst(ctx context.Context, referrerID uuid.UUID) ([]models.Commission, error)
	CreateTransaction(ctx context.Context, txRow *models.BalanceTransaction) error
	FindTransactionForUpdate(ctx context.Context, id uuid.UUID) (*models.BalanceTransaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a commission repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindReferrerByCode(ctx context.Context, refCode string) (*models.Referrer, error) {
	var referrer models.Referrer
	err := r.db.WithContext(ctx).
		Where("ref_code = ?", refCode).
		First(&referrer).Error
	if err != nil {
		return nil, err
	}
	return &referrer, nil
}

func (r *repository) FindReferrerForUpdate(ctx context.Context, id uuid.UUID) (*models.Referrer, error) {
	var referrer models.Referrer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&referrer).Error
	if err != nil {
		return nil, err
	}
	return &referrer, nil
}

func (r *repository) UpdateReferrer(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Referrer{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreateCommission(ctx context.Context, commission *models.Commission) error {
	return r.db.WithContext(ctx).Create(commission).Error
}

func (r *repository) FindByOrderForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Commission, error) {
	var commission models.Commission
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&commission).Error
	if err != nil {
		return nil, err
	}
	return &commission, nil
}

func (r *repository) UpdateCommission(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) FindApprovedOldestFirst(ctx context.Context, referrerID uuid.UUID) ([]models.Commission, error) {
	var commissions []models.Commission
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("referrer_id = ? AND status = ?", referrerID, enums.CommissionStatusApproved).
		Order("created_at ASC").
		Find(&commissions).Error
	if err != nil {
		return nil, err
	}
	return commissions, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txRow *models.BalanceTransaction) error {
	return r.db.WithContext(ctx).Create(txRow).Error
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

func (r *repository) UpdateTransaction(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.BalanceTransaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}
