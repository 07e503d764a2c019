package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/littlewears/littlewears-backend/pkg/bank"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

// Pending withdrawals younger than this are still settling inline and are
// not the reconciler's business yet.
const defaultReconcileMinAge = 2 * time.Minute

type pendingTransferSource interface {
	PendingTransfers(ctx context.Context, olderThan time.Time) ([]models.BalanceTransaction, error)
}

type transferSettler interface {
	CommitTransfer(ctx context.Context, txID uuid.UUID, documentKey string) error
	FailTransfer(ctx context.Context, txID uuid.UUID, reason string) error
}

type documentStatusSource interface {
	GetDocumentStatus(ctx context.Context, documentKey string) (*bank.DocumentStatus, error)
}

// TransferReconcileJob polls the bank for every withdrawal still pending a
// signature and settles the ledger on a terminal result. The bank's result
// code is the only authority; a still-pending document is left untouched.
type TransferReconcileJob struct {
	logg      *logger.Logger
	source    pendingTransferSource
	sellers   transferSettler
	referrers transferSettler
	bank      documentStatusSource
	minAge    time.Duration
	now       func() time.Time
}

// NewTransferReconcileJob wires the reconciler.
func NewTransferReconcileJob(
	logg *logger.Logger,
	source pendingTransferSource,
	sellers transferSettler,
	referrers transferSettler,
	bankSource documentStatusSource,
) (*TransferReconcileJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if source == nil {
		return nil, fmt.Errorf("pending transfer source required")
	}
	if sellers == nil {
		return nil, fmt.Errorf("seller settler required")
	}
	if referrers == nil {
		return nil, fmt.Errorf("referrer settler required")
	}
	if bankSource == nil {
		return nil, fmt.Errorf("bank status source required")
	}
	return &TransferReconcileJob{
		logg:      logg,
		source:    source,
		sellers:   sellers,
		referrers: referrers,
		bank:      bankSource,
		minAge:    defaultReconcileMinAge,
		now:       time.Now,
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *TransferReconcileJob) Name() string {
	return "transfer-reconcile"
}

// Run reconciles each pending transfer in isolation; one bank hiccup never
// stops the rest of the sweep.
func (j *TransferReconcileJob) Run(ctx context.Context) error {
	olderThan := j.now().UTC().Add(-j.minAge)
	pending, err := j.source.PendingTransfers(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("load pending transfers: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	var errs error
	committed, reversed := 0, 0
	for _, txRow := range pending {
		if txRow.TransferDocumentKey == nil || *txRow.TransferDocumentKey == "" {
			continue
		}
		outcome, err := j.reconcile(ctx, txRow)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("transfer %s: %w", txRow.ID, err))
			continue
		}
		switch outcome {
		case outcomeCommitted:
			committed++
		case outcomeReversed:
			reversed++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"pending":   len(pending),
		"committed": committed,
		"reversed":  reversed,
	})
	j.logg.Info(logCtx, "pending transfers reconciled")
	return errs
}

type reconcileOutcome int

const (
	outcomeUnchanged reconcileOutcome = iota
	outcomeCommitted
	outcomeReversed
)

func (j *TransferReconcileJob) reconcile(ctx context.Context, txRow models.BalanceTransaction) (reconcileOutcome, error) {
	status, err := j.bank.GetDocumentStatus(ctx, *txRow.TransferDocumentKey)
	if err != nil {
		return outcomeUnchanged, err
	}

	settler := j.sellers
	if txRow.AccountType == enums.AccountTypeReferrer {
		settler = j.referrers
	}

	switch {
	case status.Completed():
		if err := settler.CommitTransfer(ctx, txRow.ID, ""); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeCommitted, nil
	case status.IsTerminal():
		if err := settler.FailTransfer(ctx, txRow.ID, status.Message); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeReversed, nil
	default:
		return outcomeUnchanged, nil
	}
}
