package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/littlewears/littlewears-backend/api/responses"
	"github.com/littlewears/littlewears-backend/api/validators"
	"github.com/littlewears/littlewears-backend/internal/orders"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

type orderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"required,gt=0"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	AgeGroup  string `json:"age_group"`
}

type shippingAddressRequest struct {
	Recipient  string `json:"recipient" validate:"required"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

type createOrderRequest struct {
	BuyerName     string                 `json:"buyer_name" validate:"required"`
	BuyerEmail    string                 `json:"buyer_email" validate:"required,email"`
	Shipping      shippingAddressRequest `json:"shipping" validate:"required"`
	PaymentMethod string                 `json:"payment_method"`
	SalesRefCode  *string                `json:"sales_ref_code"`
	Items         []orderItemRequest     `json:"items" validate:"required,min=1,dive"`
}

type paymentResultRequest struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	UpdateTime string `json:"update_time"`
	Email      string `json:"email"`
}

type paymentConfirmationRequest struct {
	OrderID         *string              `json:"order_id" validate:"omitempty,uuid"`
	ExternalOrderID *string              `json:"external_order_id"`
	Result          paymentResultRequest `json:"result"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderLineItemResponse struct {
	ProductID      string  `json:"product_id"`
	VariantID      *string `json:"variant_id,omitempty"`
	SellerID       string  `json:"seller_id"`
	Name           string  `json:"name"`
	UnitPriceCents int64   `json:"unit_price_cents"`
	Qty            int     `json:"qty"`
	Size           string  `json:"size,omitempty"`
	Color          string  `json:"color,omitempty"`
	AgeGroup       string  `json:"age_group,omitempty"`
	DeliveryMethod string  `json:"delivery_method"`
}

type orderResponse struct {
	ID                   string                  `json:"id"`
	Status               string                  `json:"status"`
	BuyerName            string                  `json:"buyer_name"`
	BuyerEmail           string                  `json:"buyer_email"`
	PaymentMethod        string                  `json:"payment_method"`
	TotalCents           int64                   `json:"total_cents"`
	IsPaid               bool                    `json:"is_paid"`
	IsDelivered          bool                    `json:"is_delivered"`
	ReservationExpiresAt *string                 `json:"reservation_expires_at,omitempty"`
	ExternalOrderID      *string                 `json:"external_order_id,omitempty"`
	SalesRefCode         *string                 `json:"sales_ref_code,omitempty"`
	CancelReason         *string                 `json:"cancel_reason,omitempty"`
	Items                []orderLineItemResponse `json:"items"`
}

// CreateOrder opens a pending order, reserving stock for every line.
func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orders.CreateOrderInput{
			BuyerName:  req.BuyerName,
			BuyerEmail: req.BuyerEmail,
			Shipping: models.ShippingAddress{
				Recipient:  req.Shipping.Recipient,
				Phone:      req.Shipping.Phone,
				Line1:      req.Shipping.Line1,
				Line2:      req.Shipping.Line2,
				City:       req.Shipping.City,
				PostalCode: req.Shipping.PostalCode,
				Country:    req.Shipping.Country,
			},
			PaymentMethod: enums.PaymentMethod(req.PaymentMethod),
			SalesRefCode:  req.SalesRefCode,
			Items:         make([]orders.CreateOrderItem, len(req.Items)),
		}
		for i, item := range req.Items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			input.Items[i] = orders.CreateOrderItem{
				ProductID: productID,
				Qty:       item.Qty,
				Size:      item.Size,
				Color:     item.Color,
				AgeGroup:  item.AgeGroup,
			}
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toOrderResponse(order))
	}
}

// ConfirmOrderPayment marks an order paid, identified by internal or
// provider order id.
func ConfirmOrderPayment(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentConfirmationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := orders.PaymentConfirmationInput{
			ExternalOrderID: req.ExternalOrderID,
			Result: orders.PaymentResult{
				ID:         req.Result.ID,
				Status:     req.Result.Status,
				UpdateTime: req.Result.UpdateTime,
				Email:      req.Result.Email,
			},
		}
		if req.OrderID != nil {
			orderID, err := uuid.Parse(*req.OrderID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
				return
			}
			input.OrderID = &orderID
		}
		if input.OrderID == nil && (input.ExternalOrderID == nil || *input.ExternalOrderID == "") {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_id or external_order_id required"))
			return
		}

		order, err := svc.ConfirmPayment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// CancelOrder cancels a pending order and releases its reserved stock.
func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParsePathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req cancelOrderRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Cancel(r.Context(), orderID, req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

// MarkOrderDelivered flips a paid order to delivered and settles seller
// earnings and referrer commission.
func MarkOrderDelivered(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParsePathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.MarkDelivered(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderResponse(order))
	}
}

func toOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:              order.ID.String(),
		Status:          string(order.Status),
		BuyerName:       order.BuyerName,
		BuyerEmail:      order.BuyerEmail,
		PaymentMethod:   string(order.PaymentMethod),
		TotalCents:      order.TotalCents,
		IsPaid:          order.IsPaid,
		IsDelivered:     order.IsDelivered,
		ExternalOrderID: order.ExternalOrderID,
		SalesRefCode:    order.SalesRefCode,
		CancelReason:    order.CancelReason,
		Items:           make([]orderLineItemResponse, len(order.Items)),
	}
	if order.StockReservationExpiresAt != nil {
		expires := order.StockReservationExpiresAt.UTC().Format(time.RFC3339)
		resp.ReservationExpiresAt = &expires
	}
	for i, item := range order.Items {
		line := orderLineItemResponse{
			ProductID:      item.ProductID.String(),
			SellerID:       item.SellerID.String(),
			Name:           item.Name,
			UnitPriceCents: item.UnitPriceCents,
			Qty:            item.Qty,
			Size:           item.Size,
			Color:          item.Color,
			AgeGroup:       item.AgeGroup,
			DeliveryMethod: string(item.DeliveryMethod),
		}
		if item.VariantID != nil {
			variantID := item.VariantID.String()
			line.VariantID = &variantID
		}
		resp.Items[i] = line
	}
	return resp
}
