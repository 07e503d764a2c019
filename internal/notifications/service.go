// Package notifications delivers buyer, seller, and admin messages. Delivery
// is best-effort by contract: callers log failures and move on, and no state
// transition ever depends on a message going out.
package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/littlewears/littlewears-backend/pkg/config"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

// Sender delivers one rendered message. Implementations wrap the actual
// email provider; tests and API-keyless environments use the log sender.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service renders and dispatches the notification set the order and ledger
// flows emit.
type Service struct {
	logg    *logger.Logger
	sender  Sender
	from    string
	adminTo string
}

// NewService wires the notifier. A nil sender falls back to log-only
// delivery, which keeps local development quiet but observable.
func NewService(logg *logger.Logger, sender Sender, cfg config.EmailConfig) (*Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sender == nil {
		sender = &logSender{logg: logg}
	}
	return &Service{
		logg:    logg,
		sender:  sender,
		from:    cfg.DefaultFrom,
		adminTo: cfg.AdminTo,
	}, nil
}

// SendOrderConfirmation tells the buyer their order is in and reserved.
func (s *Service) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	subject := fmt.Sprintf("Order %s received", shortID(order.ID))
	body := fmt.Sprintf(
		"Hi %s,\n\nwe received your order of %d item(s) for a total of %s. "+
			"Your items are reserved while we wait for the payment confirmation.\n",
		order.BuyerName, len(order.Items), formatCents(order.TotalCents))
	return s.sender.Send(ctx, order.BuyerEmail, subject, body)
}

// SendSellerOrderAlert tells one seller a paid order contains their items.
func (s *Service) SendSellerOrderAlert(ctx context.Context, order *models.Order, sellerID uuid.UUID) error {
	var count int
	var total int64
	for _, item := range order.Items {
		if item.SellerID != sellerID {
			continue
		}
		count += item.Qty
		total += item.UnitPriceCents * int64(item.Qty)
	}
	if count == 0 {
		return nil
	}

	// Seller contact routing lives with the provider; the seller id is the
	// address key.
	subject := fmt.Sprintf("New paid order %s", shortID(order.ID))
	body := fmt.Sprintf(
		"A paid order includes %d of your item(s) worth %s. Please prepare the shipment.\n",
		count, formatCents(total))
	return s.sender.Send(ctx, "seller+"+sellerID.String(), subject, body)
}

// SendWithdrawalCompleted confirms a settled payout to the seller.
func (s *Service) SendWithdrawalCompleted(ctx context.Context, sellerID uuid.UUID, amountCents int64) error {
	subject := "Withdrawal completed"
	body := fmt.Sprintf("Your withdrawal of %s has been transferred to your bank account.\n",
		formatCents(amountCents))
	return s.sender.Send(ctx, "seller+"+sellerID.String(), subject, body)
}

// SendTransferSignatureAlert asks an admin to sign a held bank transfer.
func (s *Service) SendTransferSignatureAlert(ctx context.Context, documentKey string, amountCents int64) error {
	if s.adminTo == "" {
		s.logg.Warn(s.logg.WithField(ctx, "document_key", documentKey),
			"no admin recipient configured for signature alert")
		return nil
	}
	subject := "Bank transfer awaiting signature"
	body := fmt.Sprintf(
		"A transfer of %s is held by the bank and needs an OTP signature.\nDocument key: %s\n",
		formatCents(amountCents), documentKey)
	return s.sender.Send(ctx, s.adminTo, subject, body)
}

// logSender writes messages to the structured log instead of delivering them.
type logSender struct {
	logg *logger.Logger
}

func (l *logSender) Send(ctx context.Context, to, subject, body string) error {
	logCtx := l.logg.WithFields(ctx, map[string]any{
		"to":      to,
		"subject": subject,
	})
	l.logg.Info(logCtx, "notification (log-only delivery)")
	return nil
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
