package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/littlewears/littlewears-backend/pkg/bank"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
)

type fakeTransferSource struct {
	rows []models.BalanceTransaction
}

func (f *fakeTransferSource) PendingTransfers(ctx context.Context, olderThan time.Time) ([]models.BalanceTransaction, error) {
	return f.rows, nil
}

type fakeSettler struct {
	committed []uuid.UUID
	failed    map[uuid.UUID]string
}

func newFakeSettler() *fakeSettler {
	return &fakeSettler{failed: map[uuid.UUID]string{}}
}

func (f *fakeSettler) CommitTransfer(ctx context.Context, txID uuid.UUID, documentKey string) error {
	f.committed = append(f.committed, txID)
	return nil
}

func (f *fakeSettler) FailTransfer(ctx context.Context, txID uuid.UUID, reason string) error {
	f.failed[txID] = reason
	return nil
}

type fakeBankStatus struct {
	statuses map[string]*bank.DocumentStatus
	errs     map[string]error
}

func (f *fakeBankStatus) GetDocumentStatus(ctx context.Context, documentKey string) (*bank.DocumentStatus, error) {
	if err, ok := f.errs[documentKey]; ok {
		return nil, err
	}
	return f.statuses[documentKey], nil
}

func pendingRow(accountType enums.AccountType, key string) models.BalanceTransaction {
	k := key
	return models.BalanceTransaction{
		ID:                  uuid.New(),
		AccountType:         accountType,
		AccountID:           uuid.New(),
		AmountCents:         -1_000,
		Kind:                enums.TransactionKindWithdrawalPending,
		TransferDocumentKey: &k,
	}
}

func TestTransferReconcileSettlesTerminalStates(t *testing.T) {
	t.Parallel()

	completedSeller := pendingRow(enums.AccountTypeSeller, "KEY-OK")
	rejected := pendingRow(enums.AccountTypeSeller, "KEY-BAD")
	stillPending := pendingRow(enums.AccountTypeSeller, "KEY-WAIT")
	referrerRow := pendingRow(enums.AccountTypeReferrer, "KEY-REF")

	sellers := newFakeSettler()
	referrers := newFakeSettler()
	bankStatus := &fakeBankStatus{statuses: map[string]*bank.DocumentStatus{
		"KEY-OK":   {DocumentKey: "KEY-OK", ResultCode: bank.ResultCodeCompleted},
		"KEY-BAD":  {DocumentKey: "KEY-BAD", ResultCode: bank.ResultCodeInvalidAccount, Message: "recipient account rejected by bank"},
		"KEY-WAIT": {DocumentKey: "KEY-WAIT", ResultCode: bank.ResultCodePendingSignature},
		"KEY-REF":  {DocumentKey: "KEY-REF", ResultCode: bank.ResultCodeCompleted},
	}}
	source := &fakeTransferSource{rows: []models.BalanceTransaction{
		completedSeller, rejected, stillPending, referrerRow,
	}}

	job, err := NewTransferReconcileJob(testLogger(), source, sellers, referrers, bankStatus)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(sellers.committed) != 1 || sellers.committed[0] != completedSeller.ID {
		t.Fatalf("seller commits = %v", sellers.committed)
	}
	if reason, ok := sellers.failed[rejected.ID]; !ok || reason != "recipient account rejected by bank" {
		t.Fatalf("seller failures = %v", sellers.failed)
	}
	if _, touched := sellers.failed[stillPending.ID]; touched {
		t.Fatal("still-pending transfer must be left alone")
	}
	// Referrer rows settle through the commission side, FIFO flip included.
	if len(referrers.committed) != 1 || referrers.committed[0] != referrerRow.ID {
		t.Fatalf("referrer commits = %v", referrers.committed)
	}
}

func TestTransferReconcileIsolatesBankFailures(t *testing.T) {
	t.Parallel()

	broken := pendingRow(enums.AccountTypeSeller, "KEY-DOWN")
	healthy := pendingRow(enums.AccountTypeSeller, "KEY-OK")

	sellers := newFakeSettler()
	bankStatus := &fakeBankStatus{
		statuses: map[string]*bank.DocumentStatus{
			"KEY-OK": {DocumentKey: "KEY-OK", ResultCode: bank.ResultCodeCompleted},
		},
		errs: map[string]error{
			"KEY-DOWN": pkgerrors.New(pkgerrors.CodeDependency, "bank API unreachable"),
		},
	}
	source := &fakeTransferSource{rows: []models.BalanceTransaction{broken, healthy}}

	job, err := NewTransferReconcileJob(testLogger(), source, sellers, newFakeSettler(), bankStatus)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}

	runErr := job.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected aggregated error")
	}
	if len(sellers.committed) != 1 || sellers.committed[0] != healthy.ID {
		t.Fatalf("healthy transfer not settled: %v", sellers.committed)
	}
}
