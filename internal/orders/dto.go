package orders

import (
	"github.com/google/uuid"

	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
)

// CreateOrderItem is one requested line at checkout.
type CreateOrderItem struct {
	ProductID uuid.UUID
	Qty       int
	Size      string
	Color     string
	AgeGroup  string
}

// CreateOrderInput carries everything needed to open a pending order.
type CreateOrderInput struct {
	BuyerName     string
	BuyerEmail    string
	Shipping      models.ShippingAddress
	PaymentMethod enums.PaymentMethod
	SalesRefCode  *string
	Items         []CreateOrderItem
}

// PaymentResult mirrors the payment provider's confirmation payload.
type PaymentResult struct {
	ID         string
	Status     string
	UpdateTime string
	Email      string
}

// PaymentConfirmationInput identifies the order by internal or provider id.
type PaymentConfirmationInput struct {
	OrderID         *uuid.UUID
	ExternalOrderID *string
	Result          PaymentResult
}
