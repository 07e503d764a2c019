package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/littlewears/littlewears-backend/pkg/enums"
)

// Product is a sellable item. StockQty is the flat counter; when HasVariants
// is set it is a cached sum of the variant stocks and must be kept in sync
// by every mutation.
type Product struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID       uuid.UUID            `gorm:"column:seller_id;type:uuid;not null;index"`
	Name           string               `gorm:"column:name;not null"`
	PriceCents     int64                `gorm:"column:price_cents;not null"`
	DeliveryMethod enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null;default:'seller_fulfilled'"`
	StockQty       int                  `gorm:"column:stock_qty;not null;default:0"`
	HasVariants    bool                 `gorm:"column:has_variants;not null;default:false"`
	Variants       []ProductVariant     `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariant is one (size, color, age group) combination with its own stock.
type ProductVariant struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_variant_combo,priority:1"`
	Size      string    `gorm:"column:size;not null;uniqueIndex:ux_variant_combo,priority:2"`
	Color     string    `gorm:"column:color;not null;uniqueIndex:ux_variant_combo,priority:3"`
	AgeGroup  string    `gorm:"column:age_group;not null;uniqueIndex:ux_variant_combo,priority:4"`
	StockQty  int       `gorm:"column:stock_qty;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
