package notifications

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/littlewears/littlewears-backend/pkg/config"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

type capturedMessage struct {
	to      string
	subject string
	body    string
}

type captureSender struct {
	messages []capturedMessage
}

func (c *captureSender) Send(ctx context.Context, to, subject, body string) error {
	c.messages = append(c.messages, capturedMessage{to: to, subject: subject, body: body})
	return nil
}

func newTestService(t *testing.T, sender Sender) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(logg, sender, config.EmailConfig{
		DefaultFrom: "orders@littlewears.example",
		AdminTo:     "finance@littlewears.example",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSendOrderConfirmation(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	svc := newTestService(t, sender)
	order := &models.Order{
		ID:         uuid.New(),
		BuyerName:  "Mira",
		BuyerEmail: "mira@example.com",
		TotalCents: 4_250,
		Items:      []models.OrderLineItem{{Qty: 1}},
	}

	if err := svc.SendOrderConfirmation(context.Background(), order); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.messages) != 1 || sender.messages[0].to != "mira@example.com" {
		t.Fatalf("messages = %+v", sender.messages)
	}
	if !strings.Contains(sender.messages[0].body, "42.50") {
		t.Fatalf("body missing total: %q", sender.messages[0].body)
	}
}

func TestSendSellerOrderAlertFiltersLines(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	svc := newTestService(t, sender)
	sellerID := uuid.New()
	order := &models.Order{
		ID: uuid.New(),
		Items: []models.OrderLineItem{
			{SellerID: sellerID, Qty: 2, UnitPriceCents: 1_000},
			{SellerID: uuid.New(), Qty: 1, UnitPriceCents: 9_999},
		},
	}

	if err := svc.SendSellerOrderAlert(context.Background(), order, sellerID); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(sender.messages))
	}
	if !strings.Contains(sender.messages[0].body, "20.00") {
		t.Fatalf("body has wrong total: %q", sender.messages[0].body)
	}

	// No lines for this seller, no message.
	if err := svc.SendSellerOrderAlert(context.Background(), order, uuid.New()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatal("alert sent for seller with no lines")
	}
}

func TestSignatureAlertGoesToAdmin(t *testing.T) {
	t.Parallel()

	sender := &captureSender{}
	svc := newTestService(t, sender)

	if err := svc.SendTransferSignatureAlert(context.Background(), "KEY-7", 300_000); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.messages) != 1 || sender.messages[0].to != "finance@littlewears.example" {
		t.Fatalf("messages = %+v", sender.messages)
	}
	if !strings.Contains(sender.messages[0].body, "KEY-7") {
		t.Fatalf("body missing document key: %q", sender.messages[0].body)
	}
}

func TestNilSenderFallsBackToLog(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, nil)
	if err := svc.SendWithdrawalCompleted(context.Background(), uuid.New(), 1_000); err != nil {
		t.Fatalf("send: %v", err)
	}
}
