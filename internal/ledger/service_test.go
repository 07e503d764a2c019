package ledger

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/littlewears/littlewears-backend/internal/orders"
	"github.com/littlewears/littlewears-backend/pkg/bank"
	"github.com/littlewears/littlewears-backend/pkg/db/dbtest"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeGateway struct {
	result *bank.TransferResult
	err    error
	calls  []bank.TransferRequest
}

func (f *fakeGateway) TransferToSeller(ctx context.Context, req bank.TransferRequest) (*bank.TransferResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeNotifier struct {
	completed       int
	signatureAlerts []string
}

func (f *fakeNotifier) SendWithdrawalCompleted(ctx context.Context, sellerID uuid.UUID, amountCents int64) error {
	f.completed++
	return nil
}

func (f *fakeNotifier) SendTransferSignatureAlert(ctx context.Context, documentKey string, amountCents int64) error {
	f.signatureAlerts = append(f.signatureAlerts, documentKey)
	return nil
}

type ledgerFixture struct {
	db       *gorm.DB
	svc      Service
	gateway  *fakeGateway
	notifier *fakeNotifier
}

func testFees() Fees {
	return Fees{
		PlatformPercent:       decimal.NewFromInt(10),
		DeliveryPercent:       decimal.NewFromInt(5),
		DeliveryFeeFloorCents: 2500,
	}
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db := dbtest.Open(t)
	gateway := &fakeGateway{}
	notif := &fakeNotifier{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(ServiceParams{
		Logger:   logg,
		Repo:     NewRepository(db),
		Tx:       &gormTxRunner{db: db},
		Orders:   orders.NewRepository(db),
		Gateway:  gateway,
		Notifier: notif,
		Fees:     testFees(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &ledgerFixture{db: db, svc: svc, gateway: gateway, notifier: notif}
}

func (f *ledgerFixture) seedDeliveredOrder(t *testing.T, items []models.OrderLineItem) *models.Order {
	t.Helper()
	now := time.Now().UTC()
	order := &models.Order{
		ID:          uuid.New(),
		BuyerName:   "Alex",
		BuyerEmail:  "alex@example.com",
		Status:      enums.OrderStatusDelivered,
		IsPaid:      true,
		IsDelivered: true,
		PaidAt:      &now,
		DeliveredAt: &now,
	}
	var total int64
	for i := range items {
		items[i].ID = uuid.New()
		items[i].OrderID = order.ID
		total += items[i].UnitPriceCents * int64(items[i].Qty)
	}
	order.TotalCents = total
	order.Items = items
	if err := f.db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}

func (f *ledgerFixture) seedBalance(t *testing.T, available int64) *models.SellerBalance {
	t.Helper()
	balance := &models.SellerBalance{
		SellerID:       uuid.New(),
		AvailableCents: available,
		BankCode:       "088",
		BankAccountNo:  "0501234567",
		AccountHolder:  "Tiny Threads Oy",
		TaxID:          "FI12345678",
	}
	if err := f.db.Create(balance).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	return balance
}

func (f *ledgerFixture) balance(t *testing.T, sellerID uuid.UUID) *models.SellerBalance {
	t.Helper()
	var balance models.SellerBalance
	if err := f.db.First(&balance, "seller_id = ?", sellerID).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	return &balance
}

func (f *ledgerFixture) transactions(t *testing.T, accountID uuid.UUID) []models.BalanceTransaction {
	t.Helper()
	var rows []models.BalanceTransaction
	if err := f.db.Where("account_id = ?", accountID).Order("created_at ASC").Find(&rows).Error; err != nil {
		t.Fatalf("load transactions: %v", err)
	}
	return rows
}

func TestAccrueEarningsSellerFulfilled(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	sellerID := uuid.New()
	order := f.seedDeliveredOrder(t, []models.OrderLineItem{{
		ProductID:      uuid.New(),
		SellerID:       sellerID,
		Name:           "linen dress",
		UnitPriceCents: 10_000,
		Qty:            1,
		DeliveryMethod: enums.DeliveryMethodSellerFulfilled,
	}})

	if err := f.svc.AccrueEarnings(context.Background(), order.ID); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	// 10% platform fee, no delivery fee on seller-fulfilled lines.
	balance := f.balance(t, sellerID)
	if balance.AvailableCents != 9_000 || balance.TotalEarningsCents != 9_000 {
		t.Fatalf("balance = %+v, want 9000 available", balance)
	}
	rows := f.transactions(t, sellerID)
	if len(rows) != 1 || rows[0].Kind != enums.TransactionKindSaleCredit || rows[0].AmountCents != 9_000 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestAccrueEarningsDeliveryFeeFloor(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	sellerID := uuid.New()
	order := f.seedDeliveredOrder(t, []models.OrderLineItem{{
		ProductID:      uuid.New(),
		SellerID:       sellerID,
		Name:           "wool socks",
		UnitPriceCents: 10_000,
		Qty:            1,
		DeliveryMethod: enums.DeliveryMethodPlatformFulfilled,
	}})

	if err := f.svc.AccrueEarnings(context.Background(), order.ID); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	// 5% of 10000 is 500, below the 2500 floor.
	balance := f.balance(t, sellerID)
	if balance.AvailableCents != 6_500 {
		t.Fatalf("available = %d, want 6500", balance.AvailableCents)
	}
}

func TestAccrueEarningsIdempotent(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	sellerID := uuid.New()
	order := f.seedDeliveredOrder(t, []models.OrderLineItem{{
		ProductID:      uuid.New(),
		SellerID:       sellerID,
		Name:           "overalls",
		UnitPriceCents: 5_000,
		Qty:            2,
		DeliveryMethod: enums.DeliveryMethodSellerFulfilled,
	}})

	for i := 0; i < 3; i++ {
		if err := f.svc.AccrueEarnings(context.Background(), order.ID); err != nil {
			t.Fatalf("accrue %d: %v", i, err)
		}
	}

	balance := f.balance(t, sellerID)
	if balance.AvailableCents != 9_000 {
		t.Fatalf("available = %d, want 9000 after repeats", balance.AvailableCents)
	}
	if rows := f.transactions(t, sellerID); len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
}

func TestAccrueEarningsAggregatesPerSeller(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	sellerA := uuid.New()
	sellerB := uuid.New()
	order := f.seedDeliveredOrder(t, []models.OrderLineItem{
		{ProductID: uuid.New(), SellerID: sellerA, Name: "tee", UnitPriceCents: 2_000, Qty: 1, DeliveryMethod: enums.DeliveryMethodSellerFulfilled},
		{ProductID: uuid.New(), SellerID: sellerA, Name: "shorts", UnitPriceCents: 3_000, Qty: 1, DeliveryMethod: enums.DeliveryMethodSellerFulfilled},
		{ProductID: uuid.New(), SellerID: sellerB, Name: "cap", UnitPriceCents: 1_000, Qty: 1, DeliveryMethod: enums.DeliveryMethodSellerFulfilled},
	})

	if err := f.svc.AccrueEarnings(context.Background(), order.ID); err != nil {
		t.Fatalf("accrue: %v", err)
	}

	if rows := f.transactions(t, sellerA); len(rows) != 1 || rows[0].AmountCents != 4_500 {
		t.Fatalf("seller A rows: %+v", rows)
	}
	if rows := f.transactions(t, sellerB); len(rows) != 1 || rows[0].AmountCents != 900 {
		t.Fatalf("seller B rows: %+v", rows)
	}
}

func TestAccrueEarningsRequiresDelivered(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	order := &models.Order{
		ID:         uuid.New(),
		BuyerName:  "P",
		BuyerEmail: "p@example.com",
		Status:     enums.OrderStatusPaid,
		TotalCents: 1000,
	}
	if err := f.db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}

	err := f.svc.AccrueEarnings(context.Background(), order.ID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestRequestWithdrawalImmediateSuccess(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := f.seedBalance(t, 5_000)
	f.gateway.result = &bank.TransferResult{
		DocumentID: "DOC-1", DocumentKey: "KEY-1", ResultCode: bank.ResultCodeCompleted,
	}

	result, err := f.svc.RequestWithdrawal(context.Background(), balance.SellerID, 4_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.Status != WithdrawalStatusCompleted || result.DocumentKey == nil || *result.DocumentKey != "KEY-1" {
		t.Fatalf("unexpected result: %+v", result)
	}

	got := f.balance(t, balance.SellerID)
	if got.AvailableCents != 1_000 || got.PendingCents != 0 || got.TotalWithdrawnCents != 4_000 {
		t.Fatalf("balance = %+v", got)
	}
	rows := f.transactions(t, balance.SellerID)
	if len(rows) != 1 || rows[0].Kind != enums.TransactionKindWithdrawalCompleted {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].TransferDocumentKey == nil || *rows[0].TransferDocumentKey != "KEY-1" {
		t.Fatalf("document key not stored: %+v", rows[0])
	}
	if f.notifier.completed != 1 {
		t.Fatalf("completed notifications = %d", f.notifier.completed)
	}
}

func TestRequestWithdrawalNeedsSignature(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := f.seedBalance(t, 5_000)
	f.gateway.result = &bank.TransferResult{
		DocumentID: "DOC-2", DocumentKey: "KEY-2", ResultCode: bank.ResultCodePendingSignature,
	}

	result, err := f.svc.RequestWithdrawal(context.Background(), balance.SellerID, 4_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.Status != WithdrawalStatusPending {
		t.Fatalf("status = %s, want pending", result.Status)
	}

	// The debit stays pending until reconciliation sees a terminal state.
	got := f.balance(t, balance.SellerID)
	if got.AvailableCents != 1_000 || got.PendingCents != 4_000 || got.TotalWithdrawnCents != 0 {
		t.Fatalf("balance = %+v", got)
	}
	rows := f.transactions(t, balance.SellerID)
	if rows[0].Kind != enums.TransactionKindWithdrawalPending {
		t.Fatalf("kind = %s", rows[0].Kind)
	}
	if rows[0].TransferDocumentKey == nil || *rows[0].TransferDocumentKey != "KEY-2" {
		t.Fatalf("document key not stored")
	}
	if len(f.notifier.signatureAlerts) != 1 || f.notifier.signatureAlerts[0] != "KEY-2" {
		t.Fatalf("signature alerts = %v", f.notifier.signatureAlerts)
	}
}

func TestRequestWithdrawalGatewayErrorCompensates(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := f.seedBalance(t, 5_000)
	f.gateway.err = pkgerrors.New(pkgerrors.CodeDependency, "bank API unreachable")

	_, err := f.svc.RequestWithdrawal(context.Background(), balance.SellerID, 4_000)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	got := f.balance(t, balance.SellerID)
	if got.AvailableCents != 5_000 || got.PendingCents != 0 {
		t.Fatalf("balance not restored: %+v", got)
	}
	rows := f.transactions(t, balance.SellerID)
	if len(rows) != 1 || rows[0].Kind != enums.TransactionKindWithdrawalFailed {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].FailureReason == nil || *rows[0].FailureReason == "" {
		t.Fatal("failure reason not recorded")
	}
}

func TestRequestWithdrawalBankRejectCompensates(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := f.seedBalance(t, 5_000)
	f.gateway.result = &bank.TransferResult{
		DocumentKey: "KEY-3", ResultCode: bank.ResultCodeInvalidAccount,
	}

	_, err := f.svc.RequestWithdrawal(context.Background(), balance.SellerID, 4_000)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	got := f.balance(t, balance.SellerID)
	if got.AvailableCents != 5_000 || got.PendingCents != 0 {
		t.Fatalf("balance not restored: %+v", got)
	}
}

func TestRequestWithdrawalOverdraw(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := f.seedBalance(t, 1_000)

	_, err := f.svc.RequestWithdrawal(context.Background(), balance.SellerID, 4_000)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.gateway.calls) != 0 {
		t.Fatal("gateway must not be called on overdraw")
	}
	if rows := f.transactions(t, balance.SellerID); len(rows) != 0 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestRequestWithdrawalIncompleteBankDetails(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := &models.SellerBalance{SellerID: uuid.New(), AvailableCents: 5_000}
	if err := f.db.Create(balance).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	_, err := f.svc.RequestWithdrawal(context.Background(), balance.SellerID, 1_000)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCommitTransferFromReconciliation(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := f.seedBalance(t, 0)
	if err := f.db.Model(balance).Update("pending_cents", 3_000).Error; err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	key := "KEY-R1"
	txRow := &models.BalanceTransaction{
		ID:                  uuid.New(),
		AccountType:         enums.AccountTypeSeller,
		AccountID:           balance.SellerID,
		AmountCents:         -3_000,
		Kind:                enums.TransactionKindWithdrawalPending,
		Description:         "withdrawal",
		TransferDocumentKey: &key,
	}
	if err := f.db.Create(txRow).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	if err := f.svc.CommitTransfer(context.Background(), txRow.ID, ""); err != nil {
		t.Fatalf("commit: %v", err)
	}
	// Second commit is a no-op.
	if err := f.svc.CommitTransfer(context.Background(), txRow.ID, ""); err != nil {
		t.Fatalf("repeat commit: %v", err)
	}

	got := f.balance(t, balance.SellerID)
	if got.PendingCents != 0 || got.TotalWithdrawnCents != 3_000 {
		t.Fatalf("balance = %+v", got)
	}
}

func TestFailTransferRestoresAvailable(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := f.seedBalance(t, 1_000)
	if err := f.db.Model(balance).Update("pending_cents", 3_000).Error; err != nil {
		t.Fatalf("seed pending: %v", err)
	}
	txRow := &models.BalanceTransaction{
		ID:          uuid.New(),
		AccountType: enums.AccountTypeSeller,
		AccountID:   balance.SellerID,
		AmountCents: -3_000,
		Kind:        enums.TransactionKindWithdrawalPending,
		Description: "withdrawal",
	}
	if err := f.db.Create(txRow).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	if err := f.svc.FailTransfer(context.Background(), txRow.ID, "recipient account rejected by bank"); err != nil {
		t.Fatalf("fail transfer: %v", err)
	}

	got := f.balance(t, balance.SellerID)
	if got.AvailableCents != 4_000 || got.PendingCents != 0 {
		t.Fatalf("balance = %+v", got)
	}
	rows := f.transactions(t, balance.SellerID)
	if rows[0].Kind != enums.TransactionKindWithdrawalFailed || rows[0].FailureReason == nil {
		t.Fatalf("row = %+v", rows[0])
	}
}

func TestPendingTransfersSkipsFreshRows(t *testing.T) {
	t.Parallel()

	f := newLedgerFixture(t)
	balance := f.seedBalance(t, 0)
	key := "KEY-P1"
	txRow := &models.BalanceTransaction{
		ID:                  uuid.New(),
		AccountType:         enums.AccountTypeSeller,
		AccountID:           balance.SellerID,
		AmountCents:         -500,
		Kind:                enums.TransactionKindWithdrawalPending,
		Description:         "withdrawal",
		TransferDocumentKey: &key,
	}
	if err := f.db.Create(txRow).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	rows, err := f.svc.PendingTransfers(context.Background(), time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("fresh row should be skipped, got %d", len(rows))
	}

	rows, err = f.svc.PendingTransfers(context.Background(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
}
