package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/littlewears/littlewears-backend/pkg/bank"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type transferGateway interface {
	TransferToSeller(ctx context.Context, req bank.TransferRequest) (*bank.TransferResult, error)
}

type notifier interface {
	SendWithdrawalCompleted(ctx context.Context, sellerID uuid.UUID, amountCents int64) error
	SendTransferSignatureAlert(ctx context.Context, documentKey string, amountCents int64) error
}

// WithdrawalResult reports how a withdrawal request landed.
type WithdrawalResult struct {
	TransactionID uuid.UUID
	Status        string
	DocumentKey   *string
}

// Service owns the seller side of the money ledger: delivery settlement,
// withdrawal requests against the bank, and terminal transfer settlement.
type Service interface {
	AccrueEarnings(ctx context.Context, orderID uuid.UUID) error
	RequestWithdrawal(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*WithdrawalResult, error)
	CommitTransfer(ctx context.Context, txID uuid.UUID, documentKey string) error
	FailTransfer(ctx context.Context, txID uuid.UUID, reason string) error
	PendingTransfers(ctx context.Context, olderThan time.Time) ([]models.BalanceTransaction, error)
}

// ServiceParams configure the ledger service.
type ServiceParams struct {
	Logger   *logger.Logger
	Repo     Repository
	Tx       txRunner
	Orders   orderLoader
	Gateway  transferGateway
	Notifier notifier
	Fees     Fees
}

type service struct {
	logg     *logger.Logger
	repo     Repository
	tx       txRunner
	orders   orderLoader
	gateway  transferGateway
	notifier notifier
	fees     Fees
}

// NewService wires the ledger service and validates its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("transfer gateway required")
	}
	return &service{
		logg:     params.Logger,
		repo:     params.Repo,
		tx:       params.Tx,
		orders:   params.Orders,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		fees:     params.Fees,
	}, nil
}

// AccrueEarnings credits every seller on a delivered order with their net
// revenue. One sale_credit row per seller per order; the unique guard on
// (account, order, kind) makes re-invocation a logged no-op.
func (s *service) AccrueEarnings(ctx context.Context, orderID uuid.UUID) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return fmt.Errorf("load order: %w", err)
	}
	if order.Status != enums.OrderStatusDelivered {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "earnings accrue on delivered orders only")
	}

	credits := creditsBySeller(order, s.fees)

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, credit := range credits {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id":  order.ID.String(),
				"seller_id": credit.sellerID.String(),
			})

			exists, err := repo.HasSaleCredit(ctx, credit.sellerID, order.ID)
			if err != nil {
				return fmt.Errorf("check sale credit: %w", err)
			}
			if exists {
				s.logg.Warn(logCtx, "sale credit already recorded; skipping")
				continue
			}

			if err := s.creditSeller(ctx, repo, order.ID, credit); err != nil {
				if IsDuplicateRow(err) {
					s.logg.Warn(logCtx, "sale credit raced a duplicate; skipping")
					continue
				}
				return err
			}
			s.logg.Info(logCtx, "seller earnings accrued")
		}
		return nil
	})
}

func (s *service) creditSeller(ctx context.Context, repo Repository, orderID uuid.UUID, credit sellerCredit) error {
	balance, err := repo.GetBalanceForUpdate(ctx, credit.sellerID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("load seller balance: %w", err)
		}
		balance = &models.SellerBalance{SellerID: credit.sellerID}
		if err := repo.CreateBalance(ctx, balance); err != nil {
			return fmt.Errorf("create seller balance: %w", err)
		}
	}

	if err := repo.UpdateBalance(ctx, credit.sellerID, map[string]any{
		"available_cents":      balance.AvailableCents + credit.netCents,
		"total_earnings_cents": balance.TotalEarningsCents + credit.netCents,
	}); err != nil {
		return fmt.Errorf("credit seller balance: %w", err)
	}

	oid := orderID
	return repo.CreateTransaction(ctx, &models.BalanceTransaction{
		ID:          uuid.New(),
		AccountType: enums.AccountTypeSeller,
		AccountID:   credit.sellerID,
		OrderID:     &oid,
		AmountCents: credit.netCents,
		Kind:        enums.TransactionKindSaleCredit,
		Description: credit.description,
	})
}

// RequestWithdrawal moves amount from available to pending, then asks the
// bank for a transfer. A gateway failure or terminal rejection reverses the
// debit before the error propagates.
func (s *service) RequestWithdrawal(ctx context.Context, sellerID uuid.UUID, amountCents int64) (*WithdrawalResult, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "withdrawal amount must be positive")
	}

	var (
		txRow   *models.BalanceTransaction
		balance *models.SellerBalance
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		balance, err = repo.GetBalanceForUpdate(ctx, sellerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "seller balance not found")
			}
			return fmt.Errorf("load seller balance: %w", err)
		}
		if balance.BankCode == "" || balance.BankAccountNo == "" || balance.AccountHolder == "" || balance.TaxID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "seller bank details incomplete")
		}
		if amountCents > balance.AvailableCents {
			return pkgerrors.New(pkgerrors.CodeConflict, "withdrawal exceeds available balance")
		}

		if err := repo.UpdateBalance(ctx, sellerID, map[string]any{
			"available_cents": balance.AvailableCents - amountCents,
			"pending_cents":   balance.PendingCents + amountCents,
		}); err != nil {
			return fmt.Errorf("debit seller balance: %w", err)
		}

		txRow = &models.BalanceTransaction{
			ID:          uuid.New(),
			AccountType: enums.AccountTypeSeller,
			AccountID:   sellerID,
			AmountCents: -amountCents,
			Kind:        enums.TransactionKindWithdrawalPending,
			Description: fmt.Sprintf("withdrawal of %d cents to %s", amountCents, balance.BankCode),
		}
		return repo.CreateTransaction(ctx, txRow)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"seller_id":      sellerID.String(),
		"transaction_id": txRow.ID.String(),
	})

	result, err := s.gateway.TransferToSeller(ctx, bank.TransferRequest{
		BankCode:      balance.BankCode,
		AccountNo:     balance.BankAccountNo,
		AccountHolder: balance.AccountHolder,
		AmountCents:   amountCents,
		Reference:     txRow.ID.String(),
	})
	if err != nil {
		// Compensate before surfacing: the debit must not outlive a transfer
		// that never reached the bank.
		if ferr := s.FailTransfer(ctx, txRow.ID, err.Error()); ferr != nil {
			s.logg.Error(logCtx, "withdrawal reversal failed after gateway error", ferr)
			return nil, ferr
		}
		return nil, err
	}

	switch {
	case result.ResultCode == bank.ResultCodeCompleted:
		if err := s.CommitTransfer(ctx, txRow.ID, result.DocumentKey); err != nil {
			return nil, err
		}
		s.notifyCompleted(ctx, sellerID, amountCents)
		key := result.DocumentKey
		return &WithdrawalResult{TransactionID: txRow.ID, Status: WithdrawalStatusCompleted, DocumentKey: &key}, nil

	case result.ResultCode == bank.ResultCodePendingSignature:
		if err := s.repo.UpdateTransaction(ctx, txRow.ID, map[string]any{
			"transfer_document_key": result.DocumentKey,
		}); err != nil {
			return nil, fmt.Errorf("store transfer document key: %w", err)
		}
		s.notifySignatureNeeded(ctx, result.DocumentKey, amountCents)
		key := result.DocumentKey
		return &WithdrawalResult{TransactionID: txRow.ID, Status: WithdrawalStatusPending, DocumentKey: &key}, nil

	default:
		reason := result.Message
		if reason == "" {
			reason = bank.ResultMessage(result.ResultCode)
		}
		if ferr := s.FailTransfer(ctx, txRow.ID, reason); ferr != nil {
			s.logg.Error(logCtx, "withdrawal reversal failed after bank reject", ferr)
			return nil, ferr
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, reason)
	}
}

// CommitTransfer settles a pending withdrawal as completed: pending becomes
// withdrawn and the row kind flips. Already-settled rows are a no-op so the
// reconciliation sweep can retry safely.
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
		if txRow.AccountType != enums.AccountTypeSeller {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction does not belong to a seller account")
		}

		amount := -txRow.AmountCents
		balance, err := repo.GetBalanceForUpdate(ctx, txRow.AccountID)
		if err != nil {
			return fmt.Errorf("load seller balance: %w", err)
		}
		if err := repo.UpdateBalance(ctx, txRow.AccountID, map[string]any{
			"pending_cents":         balance.PendingCents - amount,
			"total_withdrawn_cents": balance.TotalWithdrawnCents + amount,
		}); err != nil {
			return fmt.Errorf("settle seller balance: %w", err)
		}

		updates := map[string]any{"kind": enums.TransactionKindWithdrawalCompleted}
		if documentKey != "" {
			updates["transfer_document_key"] = documentKey
		}
		return repo.UpdateTransaction(ctx, txRow.ID, updates)
	})
}

// FailTransfer reverses a pending withdrawal: the amount returns to available
// and the row records why.
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
		if txRow.AccountType != enums.AccountTypeSeller {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction does not belong to a seller account")
		}

		amount := -txRow.AmountCents
		balance, err := repo.GetBalanceForUpdate(ctx, txRow.AccountID)
		if err != nil {
			return fmt.Errorf("load seller balance: %w", err)
		}
		if err := repo.UpdateBalance(ctx, txRow.AccountID, map[string]any{
			"pending_cents":   balance.PendingCents - amount,
			"available_cents": balance.AvailableCents + amount,
		}); err != nil {
			return fmt.Errorf("restore seller balance: %w", err)
		}

		return repo.UpdateTransaction(ctx, txRow.ID, map[string]any{
			"kind":           enums.TransactionKindWithdrawalFailed,
			"failure_reason": reason,
		})
	})
}

func (s *service) PendingTransfers(ctx context.Context, olderThan time.Time) ([]models.BalanceTransaction, error) {
	return s.repo.FindPendingWithdrawals(ctx, olderThan)
}

func (s *service) notifyCompleted(ctx context.Context, sellerID uuid.UUID, amountCents int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendWithdrawalCompleted(ctx, sellerID, amountCents); err != nil {
		s.logg.Error(s.logg.WithSellerID(ctx, sellerID.String()), "withdrawal notification failed", err)
	}
}

func (s *service) notifySignatureNeeded(ctx context.Context, documentKey string, amountCents int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendTransferSignatureAlert(ctx, documentKey, amountCents); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "document_key", documentKey), "signature alert failed", err)
	}
}

type sellerCredit struct {
	sellerID    uuid.UUID
	netCents    int64
	description string
}

// creditsBySeller aggregates line nets per seller so the per-account unique
// guard holds even when one seller has several lines on the order.
func creditsBySeller(order *models.Order, fees Fees) []sellerCredit {
	type agg struct {
		net   int64
		parts []string
	}
	bySeller := map[uuid.UUID]*agg{}
	for _, item := range order.Items {
		split := splitLine(item, fees)
		entry, ok := bySeller[item.SellerID]
		if !ok {
			entry = &agg{}
			bySeller[item.SellerID] = entry
		}
		entry.net += split.NetCents
		entry.parts = append(entry.parts, fmt.Sprintf(
			"%s x%d: revenue %d, platform fee %d, delivery fee %d, net %d",
			item.Name, item.Qty, split.RevenueCents, split.PlatformCents, split.DeliveryCents, split.NetCents))
	}

	credits := make([]sellerCredit, 0, len(bySeller))
	for sellerID, entry := range bySeller {
		credits = append(credits, sellerCredit{
			sellerID:    sellerID,
			netCents:    entry.net,
			description: fmt.Sprintf("sale credit for order %s (%s)", order.ID, strings.Join(entry.parts, "; ")),
		})
	}
	sort.Slice(credits, func(i, j int) bool {
		return credits[i].sellerID.String() < credits[j].sellerID.String()
	})
	return credits
}
