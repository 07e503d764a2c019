package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/littlewears/littlewears-backend/pkg/bank"
	"github.com/littlewears/littlewears-backend/pkg/config"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
	pkgerrors "github.com/littlewears/littlewears-backend/pkg/errors"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

// Withdrawal terminal statuses surfaced to the API.
const (
	WithdrawalStatusCompleted = "completed"
	WithdrawalStatusPending   = "pending"
)

var oneHundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type transferGateway interface {
	TransferToSeller(ctx context.Context, req bank.TransferRequest) (*bank.TransferResult, error)
}

type notifier interface {
	SendTransferSignatureAlert(ctx context.Context, documentKey string, amountCents int64) error
}

// WithdrawalResult reports how a referrer withdrawal landed.
type WithdrawalResult struct {
	TransactionID uuid.UUID
	Status        string
	DocumentKey   *string
}

// Service owns the referral commission lifecycle: one commission per
// attributed order, approval on delivery, cancellation, and referrer payouts.
type Service interface {
	ProcessOrder(ctx context.Context, orderID uuid.UUID, totalCents int64, refCode string) error
	Approve(ctx context.Context, orderID uuid.UUID) error
	Cancel(ctx context.Context, orderID uuid.UUID) error
	RequestWithdrawal(ctx context.Context, referrerID uuid.UUID, amountCents int64) (*WithdrawalResult, error)
	CommitTransfer(ctx context.Context, txID uuid.UUID, documentKey string) error
	FailTransfer(ctx context.Context, txID uuid.UUID, reason string) error
}

// ServiceParams configure the commission service.
type ServiceParams struct {
	Logger      *logger.Logger
	Repo        Repository
	Tx          txRunner
	Gateway     transferGateway
	Notifier    notifier
	DefaultRate decimal.Decimal
}

type service struct {
	logg        *logger.Logger
	repo        Repository
	tx          txRunner
	gateway     transferGateway
	notifier    notifier
	defaultRate decimal.Decimal
}

// NewService wires the commission service and validates its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("commission repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("transfer gateway required")
	}
	if params.DefaultRate.IsZero() {
		return nil, fmt.Errorf("default commission rate required")
	}
	return &service{
		logg:        params.Logger,
		repo:        params.Repo,
		tx:          params.Tx,
		gateway:     params.Gateway,
		notifier:    params.Notifier,
		defaultRate: params.DefaultRate,
	}, nil
}

// DefaultRateFromConfig parses the configured default commission percentage.
func DefaultRateFromConfig(cfg config.FeesConfig) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(cfg.DefaultCommissionPercent)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse default commission percent %q: %w", cfg.DefaultCommissionPercent, err)
	}
	return rate, nil
}

// ProcessOrder records a pending commission for an attributed order. A
// duplicate call for the same order is a logged no-op; the unique index on
// order_id is the backstop when two calls race.
func (s *service) ProcessOrder(ctx context.Context, orderID uuid.UUID, totalCents int64, refCode string) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if refCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "referral code required")
	}

	referrer, err := s.repo.FindReferrerByCode(ctx, refCode)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "unknown referral code")
		}
		return fmt.Errorf("resolve referral code: %w", err)
	}

	rate := s.defaultRate
	if referrer.CommissionPercent != nil && !referrer.CommissionPercent.IsZero() {
		rate = *referrer.CommissionPercent
	}
	amount := decimal.NewFromInt(totalCents).Mul(rate).Div(oneHundred).Round(0).IntPart()

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"ref_code": refCode,
	})

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByOrderForUpdate(ctx, orderID); err == nil {
			s.logg.Warn(logCtx, "commission already recorded for order; skipping")
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check existing commission: %w", err)
		}

		err := repo.CreateCommission(ctx, &models.Commission{
			ID:          uuid.New(),
			OrderID:     orderID,
			ReferrerID:  referrer.ID,
			RefCode:     refCode,
			Percent:     rate,
			AmountCents: amount,
			Status:      enums.CommissionStatusPending,
		})
		if err != nil {
			if isDuplicate(err) {
				s.logg.Warn(logCtx, "commission insert raced a duplicate; skipping")
				return nil
			}
			return fmt.Errorf("create commission: %w", err)
		}
		s.logg.Info(logCtx, "commission recorded")
		return nil
	})
}

// Approve flips a pending commission to approved and credits the referrer's
// available balance. Orders without a commission and already-approved rows
// are no-ops so delivery settlement can retry.
func (s *service) Approve(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		commission, err := repo.FindByOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("load commission: %w", err)
		}

		switch commission.Status {
		case enums.CommissionStatusApproved, enums.CommissionStatusPaid:
			return nil
		case enums.CommissionStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled commission cannot be approved")
		}

		referrer, err := repo.FindReferrerForUpdate(ctx, commission.ReferrerID)
		if err != nil {
			return fmt.Errorf("load referrer: %w", err)
		}
		if err := repo.UpdateReferrer(ctx, referrer.ID, map[string]any{
			"available_cents": referrer.AvailableCents + commission.AmountCents,
		}); err != nil {
			return fmt.Errorf("credit referrer: %w", err)
		}

		oid := orderID
		if err := repo.CreateTransaction(ctx, &models.BalanceTransaction{
			ID:          uuid.New(),
			AccountType: enums.AccountTypeReferrer,
			AccountID:   referrer.ID,
			OrderID:     &oid,
			AmountCents: commission.AmountCents,
			Kind:        enums.TransactionKindCommissionCredit,
			Description: fmt.Sprintf("commission for order %s at %s%%", orderID, commission.Percent),
		}); err != nil {
			return fmt.Errorf("record commission credit: %w", err)
		}

		return repo.UpdateCommission(ctx, commission.ID, map[string]any{
			"status":      enums.CommissionStatusApproved,
			"approved_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	})
}

// Cancel voids a commission for a cancelled order. An approved commission
// debits the credit back first; a paid one is immutable.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		commission, err := repo.FindByOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("load commission: %w", err)
		}

		switch commission.Status {
		case enums.CommissionStatusCancelled:
			return nil
		case enums.CommissionStatusPaid:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "paid commission cannot be cancelled")
		case enums.CommissionStatusApproved:
			referrer, err := repo.FindReferrerForUpdate(ctx, commission.ReferrerID)
			if err != nil {
				return fmt.Errorf("load referrer: %w", err)
			}
			if err := repo.UpdateReferrer(ctx, referrer.ID, map[string]any{
				"available_cents": referrer.AvailableCents - commission.AmountCents,
			}); err != nil {
				return fmt.Errorf("debit referrer: %w", err)
			}
			oid := orderID
			if err := repo.CreateTransaction(ctx, &models.BalanceTransaction{
				ID:          uuid.New(),
				AccountType: enums.AccountTypeReferrer,
				AccountID:   referrer.ID,
				OrderID:     &oid,
				AmountCents: -commission.AmountCents,
				Kind:        enums.TransactionKindCommissionReversal,
				Description: fmt.Sprintf("commission reversal for order %s", orderID),
			}); err != nil {
				return fmt.Errorf("record commission reversal: %w", err)
			}
		}

		return repo.UpdateCommission(ctx, commission.ID, map[string]any{
			"status":       enums.CommissionStatusCancelled,
			"cancelled_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	})
}

// RequestWithdrawal pays out a referrer's available balance through the bank,
// with the same debit-pending, commit-or-compensate pattern sellers get.
func (s *service) RequestWithdrawal(ctx context.Context, referrerID uuid.UUID, amountCents int64) (*WithdrawalResult, error) {
	if referrerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referrer id required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}

	var (
		txRow    *models.BalanceTransaction
		referrer *models.Referrer
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		referrer, err = repo.FindReferrerForUpdate(ctx, referrerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "referrer not found")
			}
			return fmt.Errorf("load referrer: %w", err)
		}
		if referrer.BankCode == "" || referrer.BankAccountNo == "" || referrer.AccountHolder == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "referrer bank details incomplete")
		}
		if amountCents > referrer.AvailableCents {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal exceeds available balance")
		}

		if err := repo.UpdateReferrer(ctx, referrerID, map[string]any{
			"available_cents": referrer.AvailableCents - amountCents,
			"pending_cents":   referrer.PendingCents + amountCents,
		}); err != nil {
			return fmt.Errorf("debit referrer: %w", err)
		}

		txRow = &models.BalanceTransaction{
			ID:          uuid.New(),
			AccountType: enums.AccountTypeReferrer,
			AccountID:   referrerID,
			AmountCents: -amountCents,
			Kind:        enums.TransactionKindWithdrawalPending,
			Description: fmt.Sprintf("commission withdrawal of %d cents to %s", amountCents, referrer.BankCode),
		}
		return repo.CreateTransaction(ctx, txRow)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"referrer_id":    referrerID.String(),
		"transaction_id": txRow.ID.String(),
	})

	result, err := s.gateway.TransferToSeller(ctx, bank.TransferRequest{
		BankCode:      referrer.BankCode,
		AccountNo:     referrer.BankAccountNo,
		AccountHolder: referrer.AccountHolder,
		AmountCents:   amountCents,
		Reference:     txRow.ID.String(),
	})
	if err != nil {
		if ferr := s.FailTransfer(ctx, txRow.ID, err.Error()); ferr != nil {
			s.logg.Error(logCtx, "commission withdrawal reversal failed after gateway error", ferr)
			return nil, ferr
		}
		return nil, err
	}

	switch {
	case result.ResultCode == bank.ResultCodeCompleted:
		if err := s.CommitTransfer(ctx, txRow.ID, result.DocumentKey); err != nil {
			return nil, err
		}
		key := result.DocumentKey
		return &WithdrawalResult{TransactionID: txRow.ID, Status: WithdrawalStatusCompleted, DocumentKey: &key}, nil

	case result.ResultCode == bank.ResultCodePendingSignature:
		if err := s.repo.UpdateTransaction(ctx, txRow.ID, map[string]any{
			"transfer_document_key": result.DocumentKey,
		}); err != nil {
			return nil, fmt.Errorf("store transfer document key: %w", err)
		}
		if s.notifier != nil {
			if nerr := s.notifier.SendTransferSignatureAlert(ctx, result.DocumentKey, amountCents); nerr != nil {
				s.logg.Error(logCtx, "signature alert failed", nerr)
			}
		}
		key := result.DocumentKey
		return &WithdrawalResult{TransactionID: txRow.ID, Status: WithdrawalStatusPending, DocumentKey: &key}, nil

	default:
		reason := result.Message
		if reason == "" {
			reason = bank.ResultMessage(result.ResultCode)
		}
		if ferr := s.FailTransfer(ctx, txRow.ID, reason); ferr != nil {
			s.logg.Error(logCtx, "commission withdrawal reversal failed after bank reject", ferr)
			return nil, ferr
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, reason)
	}
}

// CommitTransfer settles a referrer withdrawal and walks approved
// commissions oldest-first, flipping them to paid until the withdrawn amount
// is exhausted. Already-settled rows are a no-op.
func (s *service) CommitTransfer(ctx context.Context, txID uuid.UUID, documentKey string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txRow, err := repo.FindTransactionForUpdate(ctx, txID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "ledger transaction not found")
			}
			return fmt.Errorf("load ledger transaction: %w", err)
		}
		if txRow.Kind == enums.TransactionKindWithdrawalCompleted {
			return nil
		}
		if txRow.Kind != enums.TransactionKindWithdrawalPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not a pending withdrawal")
		}
		if txRow.AccountType != enums.AccountTypeReferrer {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction does not belong to a referrer account")
		}

		amount := -txRow.AmountCents
		referrer, err := repo.FindReferrerForUpdate(ctx, txRow.AccountID)
		if err != nil {
			return fmt.Errorf("load referrer: %w", err)
		}
		if err := repo.UpdateReferrer(ctx, referrer.ID, map[string]any{
			"pending_cents":         referrer.PendingCents - amount,
			"total_withdrawn_cents": referrer.TotalWithdrawnCents + amount,
		}); err != nil {
			return fmt.Errorf("settle referrer balance: %w", err)
		}

		if err := s.settlePaid(ctx, repo, referrer.ID, amount); err != nil {
			return err
		}

		updates := map[string]any{"kind": enums.TransactionKindWithdrawalCompleted}
		if documentKey != "" {
			updates["transfer_document_key"] = documentKey
		}
		return repo.UpdateTransaction(ctx, txRow.ID, updates)
	})
}

// FailTransfer reverses a referrer withdrawal back to available.
func (s *service) FailTransfer(ctx context.Context, txID uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		txRow, err := repo.FindTransactionForUpdate(ctx, txID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "ledger transaction not found")
			}
			return fmt.Errorf("load ledger transaction: %w", err)
		}
		if txRow.Kind == enums.TransactionKindWithdrawalFailed {
			return nil
		}
		if txRow.Kind != enums.TransactionKindWithdrawalPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not a pending withdrawal")
		}
		if txRow.AccountType != enums.AccountTypeReferrer {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction does not belong to a referrer account")
		}

		amount := -txRow.AmountCents
		referrer, err := repo.FindReferrerForUpdate(ctx, txRow.AccountID)
		if err != nil {
			return fmt.Errorf("load referrer: %w", err)
		}
		if err := repo.UpdateReferrer(ctx, referrer.ID, map[string]any{
			"pending_cents":   referrer.PendingCents - amount,
			"available_cents": referrer.AvailableCents + amount,
		}); err != nil {
			return fmt.Errorf("restore referrer balance: %w", err)
		}

		return repo.UpdateTransaction(ctx, txRow.ID, map[string]any{
			"kind":           enums.TransactionKindWithdrawalFailed,
			"failure_reason": reason,
		})
	})
}

// settlePaid marks approved commissions as paid, oldest first, until the
// withdrawn amount is covered. FIFO keeps each paid row traceable to a payout.
func (s *service) settlePaid(ctx context.Context, repo Repository, referrerID uuid.UUID, amountCents int64) error {
	commissions, err := repo.FindApprovedOldestFirst(ctx, referrerID)
	if err != nil {
		return fmt.Errorf("load approved commissions: %w", err)
	}

	remaining := amountCents
	for _, commission := range commissions {
		if remaining <= 0 {
			break
		}
		if err := repo.UpdateCommission(ctx, commission.ID, map[string]any{
			"status":  enums.CommissionStatusPaid,
			"paid_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}); err != nil {
			return fmt.Errorf("mark commission paid: %w", err)
		}
		remaining -= commission.AmountCents
	}
	return nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || pkgerrors.IsUniqueViolation(err)
}
