package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/littlewears/littlewears-backend/pkg/enums"
)

// ShippingAddress is frozen onto the order at creation time.
type ShippingAddress struct {
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Order owns the reservation lifecycle. IsPaid/IsDelivered are redundant with
// Status and must be written together with it.
type Order struct {
	ID                        uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerName                 string              `gorm:"column:buyer_name;not null"`
	BuyerEmail                string              `gorm:"column:buyer_email;not null"`
	ShippingAddress           ShippingAddress     `gorm:"column:shipping_address;type:jsonb;serializer:json"`
	PaymentMethod             enums.PaymentMethod `gorm:"column:payment_method;type:text;not null;default:'card'"`
	Status                    enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending';index"`
	IsPaid                    bool                `gorm:"column:is_paid;not null;default:false"`
	IsDelivered               bool                `gorm:"column:is_delivered;not null;default:false"`
	TotalCents                int64               `gorm:"column:total_cents;not null"`
	StockReservationExpiresAt *time.Time          `gorm:"column:stock_reservation_expires_at;index"`
	ExternalOrderID           *string             `gorm:"column:external_order_id;uniqueIndex"`
	SalesRefCode              *string             `gorm:"column:sales_ref_code"`
	CancelReason              *string             `gorm:"column:cancel_reason"`
	PaidAt                    *time.Time          `gorm:"column:paid_at"`
	DeliveredAt               *time.Time          `gorm:"column:delivered_at"`
	CancelledAt               *time.Time          `gorm:"column:cancelled_at"`
	Items                     []OrderLineItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt                 time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderLineItem is a frozen snapshot of the product at order time. It is never
// re-read from Product after creation.
type OrderLineItem struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID            `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID           `gorm:"column:variant_id;type:uuid"`
	SellerID       uuid.UUID            `gorm:"column:seller_id;type:uuid;not null;index"`
	Name           string               `gorm:"column:name;not null"`
	UnitPriceCents int64                `gorm:"column:unit_price_cents;not null"`
	Qty            int                  `gorm:"column:qty;not null"`
	Size           string               `gorm:"column:size"`
	Color          string               `gorm:"column:color"`
	AgeGroup       string               `gorm:"column:age_group"`
	DeliveryMethod enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}
