package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/littlewears/littlewears-backend/pkg/db/models"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
)

// Line is one requested reservation. Size/Color/AgeGroup select the variant
// for products that carry variants; they are ignored otherwise.
type Line struct {
	ProductID uuid.UUID
	Qty       int
	Size      string
	Color     string
	AgeGroup  string
}

// Reservation reports what a successful Reserve decremented, so callers can
// freeze the matching snapshot onto the order line.
type Reservation struct {
	Product *models.Product
	Variant *models.ProductVariant
}

// ReleaseLine identifies stock to restore. VariantID comes from the order
// line snapshot; when the variant row no longer exists the flat counter
// absorbs the restore.
type ReleaseLine struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Qty       int
}

// Reserve decrements stock for every line inside the caller's transaction.
// Any shortage, unknown product, or unresolvable variant aborts the whole
// reservation; partial decrements are never committed. Row locks on the
// product rows are what serialize concurrent checkouts of the same product.
func Reserve(ctx context.Context, tx *gorm.DB, lines []Line) ([]Reservation, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line required")
	}

	reservations := make([]Reservation, 0, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}

		product, err := lockProduct(ctx, tx, line.ProductID)
		if err != nil {
			return nil, err
		}

		var variant *models.ProductVariant
		if product.HasVariants {
			variant, err = lockVariant(ctx, tx, product.ID, line)
			if err != nil {
				return nil, err
			}
			if variant.StockQty < line.Qty {
				return nil, insufficientStock(product.Name, variant.StockQty, line.Qty)
			}
			variant.StockQty -= line.Qty
			if err := tx.WithContext(ctx).Model(variant).
				Update("stock_qty", variant.StockQty).Error; err != nil {
				return nil, fmt.Errorf("update variant stock: %w", err)
			}
		} else if product.StockQty < line.Qty {
			return nil, insufficientStock(product.Name, product.StockQty, line.Qty)
		}

		// Flat counter moves in lockstep with the variant so the cached sum
		// never drifts.
		product.StockQty -= line.Qty
		if err := tx.WithContext(ctx).Model(product).
			Update("stock_qty", product.StockQty).Error; err != nil {
			return nil, fmt.Errorf("update product stock: %w", err)
		}

		reservations = append(reservations, Reservation{Product: product, Variant: variant})
	}
	return reservations, nil
}

// Release restores previously reserved stock inside the caller's transaction.
// Missing products are skipped (nothing left to restore); a missing variant
// falls back to the flat counter.
func Release(ctx context.Context, tx *gorm.DB, lines []ReleaseLine) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction required")
	}

	for _, line := range lines {
		if line.Qty <= 0 {
			continue
		}
		product, err := lockProduct(ctx, tx, line.ProductID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			return err
		}

		if line.VariantID != nil {
			var variant models.ProductVariant
			verr := tx.WithContext(ctx).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ? AND product_id = ?", *line.VariantID, product.ID).
				First(&variant).Error
			if verr == nil {
				if err := tx.WithContext(ctx).Model(&variant).
					Update("stock_qty", variant.StockQty+line.Qty).Error; err != nil {
					return fmt.Errorf("restore variant stock: %w", err)
				}
			} else if !errors.Is(verr, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load variant: %w", verr)
			}
		}

		if err := tx.WithContext(ctx).Model(product).
			Update("stock_qty", product.StockQty+line.Qty).Error; err != nil {
			return fmt.Errorf("restore product stock: %w", err)
		}
	}
	return nil
}

// Validate re-checks that no counter went negative for the given product.
// Payment confirmation calls this defensively; it never mutates stock.
func Validate(ctx context.Context, db *gorm.DB, productID uuid.UUID) error {
	var product models.Product
	if err := db.WithContext(ctx).Preload("Variants").
		Where("id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return fmt.Errorf("load product: %w", err)
	}
	if product.StockQty < 0 {
		return pkgerrors.New(pkgerrors.CodeConflict,
			fmt.Sprintf("product %q stock is negative", product.Name))
	}
	for _, variant := range product.Variants {
		if variant.StockQty < 0 {
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("product %q variant stock is negative", product.Name))
		}
	}
	return nil
}

func lockProduct(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, fmt.Errorf("load product: %w", err)
	}
	return &product, nil
}

func lockVariant(ctx context.Context, tx *gorm.DB, productID uuid.UUID, line Line) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND size = ? AND color = ? AND age_group = ?",
			productID, line.Size, line.Color, line.AgeGroup).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("variant %s/%s/%s not found", line.Size, line.Color, line.AgeGroup))
		}
		return nil, fmt.Errorf("load variant: %w", err)
	}
	return &variant, nil
}

func insufficientStock(name string, have, want int) error {
	return pkgerrors.New(pkgerrors.CodeConflict,
		fmt.Sprintf("insufficient stock for %q: have %d, want %d", name, have, want))
}
