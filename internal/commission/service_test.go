package commission

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

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
	calls  int
}

func (f *fakeGateway) TransferToSeller(ctx context.Context, req bank.TransferRequest) (*bank.TransferResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeNotifier struct {
	alerts []string
}

func (f *fakeNotifier) SendTransferSignatureAlert(ctx context.Context, documentKey string, amountCents int64) error {
	f.alerts = append(f.alerts, documentKey)
	return nil
}

type commissionFixture struct {
	db       *gorm.DB
	svc      Service
	gateway  *fakeGateway
	notifier *fakeNotifier
}

func newCommissionFixture(t *testing.T) *commissionFixture {
	t.Helper()
	db := dbtest.Open(t)
	gateway := &fakeGateway{}
	notif := &fakeNotifier{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(ServiceParams{
		Logger:      logg,
		Repo:        NewRepository(db),
		Tx:          &gormTxRunner{db: db},
		Gateway:     gateway,
		Notifier:    notif,
		DefaultRate: decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &commissionFixture{db: db, svc: svc, gateway: gateway, notifier: notif}
}

func (f *commissionFixture) seedReferrer(t *testing.T, refCode string, customRate *decimal.Decimal) *models.Referrer {
	t.Helper()
	referrer := &models.Referrer{
		ID:                uuid.New(),
		RefCode:           refCode,
		Name:              "Pia Berg",
		Email:             "pia@example.com",
		CommissionPercent: customRate,
		BankCode:          "088",
		BankAccountNo:     "0507654321",
		AccountHolder:     "Pia Berg",
	}
	if err := f.db.Create(referrer).Error; err != nil {
		t.Fatalf("seed referrer: %v", err)
	}
	return referrer
}

func (f *commissionFixture) commissionByOrder(t *testing.T, orderID uuid.UUID) *models.Commission {
	t.Helper()
	var commission models.Commission
	if err := f.db.First(&commission, "order_id = ?", orderID).Error; err != nil {
		t.Fatalf("load commission: %v", err)
	}
	return &commission
}

func (f *commissionFixture) referrer(t *testing.T, id uuid.UUID) *models.Referrer {
	t.Helper()
	var referrer models.Referrer
	if err := f.db.First(&referrer, "id = ?", id).Error; err != nil {
		t.Fatalf("load referrer: %v", err)
	}
	return &referrer
}

func TestProcessOrderDefaultRate(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	f.seedReferrer(t, "LW-PIA", nil)
	orderID := uuid.New()

	if err := f.svc.ProcessOrder(context.Background(), orderID, 100_000, "LW-PIA"); err != nil {
		t.Fatalf("process: %v", err)
	}

	commission := f.commissionByOrder(t, orderID)
	if commission.AmountCents != 3_000 || commission.Status != enums.CommissionStatusPending {
		t.Fatalf("commission = %+v", commission)
	}
}

func TestProcessOrderCustomRate(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	rate := decimal.NewFromFloat(7.5)
	f.seedReferrer(t, "LW-VIP", &rate)
	orderID := uuid.New()

	if err := f.svc.ProcessOrder(context.Background(), orderID, 100_000, "LW-VIP"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := f.commissionByOrder(t, orderID); got.AmountCents != 7_500 {
		t.Fatalf("amount = %d, want 7500", got.AmountCents)
	}
}

func TestProcessOrderDuplicateIsNoop(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	f.seedReferrer(t, "LW-PIA", nil)
	orderID := uuid.New()

	for i := 0; i < 3; i++ {
		if err := f.svc.ProcessOrder(context.Background(), orderID, 50_000, "LW-PIA"); err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}

	var count int64
	f.db.Model(&models.Commission{}).Where("order_id = ?", orderID).Count(&count)
	if count != 1 {
		t.Fatalf("commissions = %d, want 1", count)
	}
}

func TestProcessOrderUnknownRefCode(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	err := f.svc.ProcessOrder(context.Background(), uuid.New(), 1_000, "NOPE")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApproveCreditsReferrerOnce(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	referrer := f.seedReferrer(t, "LW-PIA", nil)
	orderID := uuid.New()
	if err := f.svc.ProcessOrder(context.Background(), orderID, 100_000, "LW-PIA"); err != nil {
		t.Fatalf("process: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.svc.Approve(context.Background(), orderID); err != nil {
			t.Fatalf("approve %d: %v", i, err)
		}
	}

	got := f.referrer(t, referrer.ID)
	if got.AvailableCents != 3_000 {
		t.Fatalf("available = %d, want 3000", got.AvailableCents)
	}
	commission := f.commissionByOrder(t, orderID)
	if commission.Status != enums.CommissionStatusApproved || commission.ApprovedAt == nil {
		t.Fatalf("commission = %+v", commission)
	}
	var rows []models.BalanceTransaction
	f.db.Where("account_id = ?", referrer.ID).Find(&rows)
	if len(rows) != 1 || rows[0].Kind != enums.TransactionKindCommissionCredit {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestApproveWithoutCommissionIsNoop(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	if err := f.svc.Approve(context.Background(), uuid.New()); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestCancelPendingCommission(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	referrer := f.seedReferrer(t, "LW-PIA", nil)
	orderID := uuid.New()
	if err := f.svc.ProcessOrder(context.Background(), orderID, 10_000, "LW-PIA"); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := f.svc.Cancel(context.Background(), orderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	commission := f.commissionByOrder(t, orderID)
	if commission.Status != enums.CommissionStatusCancelled {
		t.Fatalf("status = %s", commission.Status)
	}
	// Pending cancellation never touched the balance.
	if got := f.referrer(t, referrer.ID); got.AvailableCents != 0 {
		t.Fatalf("available = %d, want 0", got.AvailableCents)
	}
}

func TestCancelApprovedCommissionReverses(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	referrer := f.seedReferrer(t, "LW-PIA", nil)
	orderID := uuid.New()
	if err := f.svc.ProcessOrder(context.Background(), orderID, 100_000, "LW-PIA"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := f.svc.Approve(context.Background(), orderID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := f.svc.Cancel(context.Background(), orderID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got := f.referrer(t, referrer.ID)
	if got.AvailableCents != 0 {
		t.Fatalf("available = %d, want 0 after reversal", got.AvailableCents)
	}
	var rows []models.BalanceTransaction
	f.db.Where("account_id = ? AND kind = ?", referrer.ID, enums.TransactionKindCommissionReversal).Find(&rows)
	if len(rows) != 1 || rows[0].AmountCents != -3_000 {
		t.Fatalf("reversal rows = %+v", rows)
	}
}

func TestRequestWithdrawalSettlesApprovedFIFO(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	referrer := f.seedReferrer(t, "LW-PIA", nil)

	// Three approved commissions, staggered in time.
	base := time.Now().Add(-time.Hour)
	var ids []uuid.UUID
	for i, amount := range []int64{1_000, 2_000, 3_000} {
		commission := &models.Commission{
			ID:          uuid.New(),
			OrderID:     uuid.New(),
			ReferrerID:  referrer.ID,
			RefCode:     referrer.RefCode,
			Percent:     decimal.NewFromInt(3),
			AmountCents: amount,
			Status:      enums.CommissionStatusApproved,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := f.db.Create(commission).Error; err != nil {
			t.Fatalf("seed commission: %v", err)
		}
		ids = append(ids, commission.ID)
	}
	if err := f.db.Model(referrer).Update("available_cents", 6_000).Error; err != nil {
		t.Fatalf("seed available: %v", err)
	}

	f.gateway.result = &bank.TransferResult{
		DocumentKey: "KEY-C1", ResultCode: bank.ResultCodeCompleted,
	}

	result, err := f.svc.RequestWithdrawal(context.Background(), referrer.ID, 3_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.Status != WithdrawalStatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}

	got := f.referrer(t, referrer.ID)
	if got.AvailableCents != 3_000 || got.PendingCents != 0 || got.TotalWithdrawnCents != 3_000 {
		t.Fatalf("referrer = %+v", got)
	}

	// 3000 withdrawn covers the 1000 row and runs into the 2000 row; the
	// newest 3000 row stays approved.
	wantStatus := []enums.CommissionStatus{
		enums.CommissionStatusPaid,
		enums.CommissionStatusPaid,
		enums.CommissionStatusApproved,
	}
	for i, id := range ids {
		var commission models.Commission
		if err := f.db.First(&commission, "id = ?", id).Error; err != nil {
			t.Fatalf("load commission: %v", err)
		}
		if commission.Status != wantStatus[i] {
			t.Fatalf("commission %d status = %s, want %s", i, commission.Status, wantStatus[i])
		}
	}
}

func TestRequestWithdrawalRejectCompensates(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	referrer := f.seedReferrer(t, "LW-PIA", nil)
	if err := f.db.Model(referrer).Update("available_cents", 5_000).Error; err != nil {
		t.Fatalf("seed available: %v", err)
	}
	f.gateway.result = &bank.TransferResult{ResultCode: bank.ResultCodeLimitExceeded}

	_, err := f.svc.RequestWithdrawal(context.Background(), referrer.ID, 4_000)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}

	got := f.referrer(t, referrer.ID)
	if got.AvailableCents != 5_000 || got.PendingCents != 0 {
		t.Fatalf("referrer not restored: %+v", got)
	}
	var rows []models.BalanceTransaction
	f.db.Where("account_id = ?", referrer.ID).Find(&rows)
	if len(rows) != 1 || rows[0].Kind != enums.TransactionKindWithdrawalFailed {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestRequestWithdrawalNeedsSignature(t *testing.T) {
	t.Parallel()

	f := newCommissionFixture(t)
	referrer := f.seedReferrer(t, "LW-PIA", nil)
	if err := f.db.Model(referrer).Update("available_cents", 5_000).Error; err != nil {
		t.Fatalf("seed available: %v", err)
	}
	f.gateway.result = &bank.TransferResult{
		DocumentKey: "KEY-C2", ResultCode: bank.ResultCodePendingSignature,
	}

	result, err := f.svc.RequestWithdrawal(context.Background(), referrer.ID, 4_000)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if result.Status != WithdrawalStatusPending {
		t.Fatalf("status = %s", result.Status)
	}
	got := f.referrer(t, referrer.ID)
	if got.AvailableCents != 1_000 || got.PendingCents != 4_000 {
		t.Fatalf("referrer = %+v", got)
	}
	if len(f.notifier.alerts) != 1 || f.notifier.alerts[0] != "KEY-C2" {
		t.Fatalf("alerts = %v", f.notifier.alerts)
	}
}
