package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/littlewears/littlewears-backend/internal/inventory"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

const defaultReservationTTL = 10 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type earningsAccruer interface {
	AccrueEarnings(ctx context.Context, orderID uuid.UUID) error
}

type commissionProcessor interface {
	ProcessOrder(ctx context.Context, orderID uuid.UUID, totalCents int64, refCode string) error
	Approve(ctx context.Context, orderID uuid.UUID) error
	Cancel(ctx context.Context, orderID uuid.UUID) error
}

type notifier interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
	SendSellerOrderAlert(ctx context.Context, order *models.Order, sellerID uuid.UUID) error
}

// Service owns the order lifecycle: reservation at creation, the idempotent
// payment transition, compensating cancellation, and delivery settlement.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	ConfirmPayment(ctx context.Context, input PaymentConfirmationInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
	CancelExpired(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

// ServiceParams configure the order service.
type ServiceParams struct {
	Logger         *logger.Logger
	Repo           Repository
	Tx             txRunner
	Earnings       earningsAccruer
	Commissions    commissionProcessor
	Notifier       notifier
	ReservationTTL time.Duration
}

type service struct {
	logg           *logger.Logger
	repo           Repository
	tx             txRunner
	earnings       earningsAccruer
	commissions    commissionProcessor
	notifier       notifier
	reservationTTL time.Duration
	now            func() time.Time
}

// NewService builds the order state machine service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Earnings == nil {
		return nil, fmt.Errorf("earnings accruer required")
	}
	if params.Commissions == nil {
		return nil, fmt.Errorf("commission processor required")
	}
	ttl := params.ReservationTTL
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}
	return &service{
		logg:           params.Logger,
		repo:           params.Repo,
		tx:             params.Tx,
		earnings:       params.Earnings,
		commissions:    params.Commissions,
		notifier:       params.Notifier,
		reservationTTL: ttl,
		now:            time.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	if input.BuyerEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email required")
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	lines := make([]inventory.Line, len(input.Items))
	for i, item := range input.Items {
		lines[i] = inventory.Line{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			Size:      item.Size,
			Color:     item.Color,
			AgeGroup:  item.AgeGroup,
		}
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reservations, err := inventory.Reserve(ctx, tx, lines)
		if err != nil {
			return err
		}

		expiry := s.now().UTC().Add(s.reservationTTL)
		order = &models.Order{
			ID:                        uuid.New(),
			BuyerName:                 input.BuyerName,
			BuyerEmail:                input.BuyerEmail,
			ShippingAddress:           input.Shipping,
			PaymentMethod:             paymentMethodOrDefault(input.PaymentMethod),
			Status:                    enums.OrderStatusPending,
			SalesRefCode:              input.SalesRefCode,
			StockReservationExpiresAt: &expiry,
		}

		var total int64
		for i, res := range reservations {
			item := buildLineItem(order.ID, input.Items[i], res)
			total += item.UnitPriceCents * int64(item.Qty)
			order.Items = append(order.Items, item)
		}
		order.TotalCents = total

		return s.repo.WithTx(tx).Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.notifyCreated(ctx, order)
	return order, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input PaymentConfirmationInput) (*models.Order, error) {
	current, err := s.lookup(ctx, input)
	if err != nil {
		return nil, err
	}

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err = repo.FindByIDForUpdate(ctx, current.ID)
		if err != nil {
			return mapLookupErr(err)
		}

		switch order.Status {
		case enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already cancelled")
		case enums.OrderStatusPaid, enums.OrderStatusDelivered:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already paid")
		}

		now := s.now().UTC()
		if order.StockReservationExpiresAt != nil && order.StockReservationExpiresAt.Before(now) {
			// Payment authority overrides the reservation clock. The reaper
			// rechecks status in its own transaction so both paths never fire.
			logCtx := s.logg.WithOrderID(ctx, order.ID.String())
			s.logg.Warn(logCtx, "payment confirmed after reservation expiry; honoring payment")
		} else {
			for _, item := range order.Items {
				if err := inventory.Validate(ctx, tx, item.ProductID); err != nil {
					return err
				}
			}
		}

		updates := map[string]any{
			"status":                       enums.OrderStatusPaid,
			"is_paid":                      true,
			"paid_at":                      now,
			"stock_reservation_expires_at": nil,
		}
		if input.Result.ID != "" {
			updates["external_order_id"] = input.Result.ID
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		order.Status = enums.OrderStatusPaid
		order.IsPaid = true
		order.PaidAt = &now
		order.StockReservationExpiresAt = nil
		if input.Result.ID != "" {
			id := input.Result.ID
			order.ExternalOrderID = &id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.processCommission(ctx, order)
	s.notifyCreatedSellers(ctx, order)
	return order, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.cancelInTx(ctx, tx, orderID, reason, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cancelCommission(ctx, order.ID)
	return order, nil
}

// CancelExpired cancels one expired pending order, rechecking both status and
// expiry inside the transaction so a meanwhile-paid order is never touched.
// It reports whether a cancellation actually happened.
func (s *service) CancelExpired(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		order, err = s.cancelInTx(ctx, tx, orderID, "stock reservation expired", true)
		return err
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			return false, nil
		}
		return false, err
	}

	s.cancelCommission(ctx, order.ID)
	return true, nil
}

func (s *service) MarkDelivered(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapLookupErr(err)
		}

		switch order.Status {
		case enums.OrderStatusDelivered:
			// Already delivered: fall through so settlement can be retried;
			// the accrual guard makes re-crediting impossible.
			return nil
		case enums.OrderStatusPaid:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be delivered")
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":       enums.OrderStatusDelivered,
			"is_delivered": true,
			"delivered_at": now,
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return fmt.Errorf("mark order delivered: %w", err)
		}
		order.Status = enums.OrderStatusDelivered
		order.IsDelivered = true
		order.DeliveredAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.earnings.AccrueEarnings(ctx, order.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "accrue seller earnings")
	}
	if err := s.commissions.Approve(ctx, order.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve commission")
	}
	return order, nil
}

func (s *service) cancelInTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, reason string, expiredOnly bool) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return nil, mapLookupErr(err)
	}

	switch order.Status {
	case enums.OrderStatusCancelled:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already cancelled")
	case enums.OrderStatusPaid, enums.OrderStatusDelivered:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "paid orders cannot be cancelled")
	}
	if expiredOnly {
		now := s.now().UTC()
		if order.StockReservationExpiresAt == nil || order.StockReservationExpiresAt.After(now) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "reservation not expired")
		}
	}

	releases := make([]inventory.ReleaseLine, len(order.Items))
	for i, item := range order.Items {
		releases[i] = inventory.ReleaseLine{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Qty:       item.Qty,
		}
	}
	if err := inventory.Release(ctx, tx, releases); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	updates := map[string]any{
		"status":                       enums.OrderStatusCancelled,
		"cancel_reason":                reason,
		"cancelled_at":                 now,
		"stock_reservation_expires_at": nil,
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, fmt.Errorf("mark order cancelled: %w", err)
	}
	order.Status = enums.OrderStatusCancelled
	order.CancelReason = &reason
	order.CancelledAt = &now
	order.StockReservationExpiresAt = nil
	return order, nil
}

func (s *service) lookup(ctx context.Context, input PaymentConfirmationInput) (*models.Order, error) {
	switch {
	case input.OrderID != nil && *input.OrderID != uuid.Nil:
		order, err := s.repo.FindByID(ctx, *input.OrderID)
		if err != nil {
			return nil, mapLookupErr(err)
		}
		return order, nil
	case input.ExternalOrderID != nil && *input.ExternalOrderID != "":
		order, err := s.repo.FindByExternalID(ctx, *input.ExternalOrderID)
		if err != nil {
			return nil, mapLookupErr(err)
		}
		return order, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id or external order id required")
	}
}

func (s *service) processCommission(ctx context.Context, order *models.Order) {
	if order.SalesRefCode == nil || *order.SalesRefCode == "" {
		return
	}
	if err := s.commissions.ProcessOrder(ctx, order.ID, order.TotalCents, *order.SalesRefCode); err != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Error(logCtx, "commission processing failed", err)
	}
}

func (s *service) cancelCommission(ctx context.Context, orderID uuid.UUID) {
	if err := s.commissions.Cancel(ctx, orderID); err != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Error(logCtx, "commission cancellation failed", err)
	}
}

func (s *service) notifyCreated(ctx context.Context, order *models.Order) {
	if s.notifier == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	if err := s.notifier.SendOrderConfirmation(ctx, order); err != nil {
		s.logg.Error(logCtx, "order confirmation notification failed", err)
	}
}

func (s *service) notifyCreatedSellers(ctx context.Context, order *models.Order) {
	if s.notifier == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	seen := map[uuid.UUID]bool{}
	for _, item := range order.Items {
		if seen[item.SellerID] {
			continue
		}
		seen[item.SellerID] = true
		if err := s.notifier.SendSellerOrderAlert(ctx, order, item.SellerID); err != nil {
			s.logg.Error(logCtx, "seller order notification failed", err)
		}
	}
}

func buildLineItem(orderID uuid.UUID, item CreateOrderItem, res inventory.Reservation) models.OrderLineItem {
	line := models.OrderLineItem{
		ID:             uuid.New(),
		OrderID:        orderID,
		ProductID:      res.Product.ID,
		SellerID:       res.Product.SellerID,
		Name:           res.Product.Name,
		UnitPriceCents: res.Product.PriceCents,
		Qty:            item.Qty,
		DeliveryMethod: res.Product.DeliveryMethod,
	}
	if res.Variant != nil {
		id := res.Variant.ID
		line.VariantID = &id
		line.Size = res.Variant.Size
		line.Color = res.Variant.Color
		line.AgeGroup = res.Variant.AgeGroup
	}
	return line
}

func paymentMethodOrDefault(method enums.PaymentMethod) enums.PaymentMethod {
	if method == "" {
		return enums.PaymentMethodCard
	}
	return method
}

func mapLookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
