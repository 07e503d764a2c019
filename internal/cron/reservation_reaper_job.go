package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/logger"
)

type expiredOrderFinder interface {
	FindExpiredPending(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

type expiredOrderCanceller interface {
	CancelExpired(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// ReservationReaperJob cancels pending orders whose stock reservation has
// expired and restores their stock. Each order is handled in its own
// transaction; an order paid between the scan and the cancel is left alone.
type ReservationReaperJob struct {
	logg   *logger.Logger
	finder expiredOrderFinder
	orders expiredOrderCanceller
	now    func() time.Time
}

// NewReservationReaperJob wires the reaper.
func NewReservationReaperJob(logg *logger.Logger, finder expiredOrderFinder, orders expiredOrderCanceller) (*ReservationReaperJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if finder == nil {
		return nil, fmt.Errorf("order finder required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	return &ReservationReaperJob{
		logg:   logg,
		finder: finder,
		orders: orders,
		now:    time.Now,
	}, nil
}

// Name identifies the job in logs and metrics.
func (j *ReservationReaperJob) Name() string {
	return "reservation-reaper"
}

// Run sweeps expired pending orders. Per-order failures are aggregated so one
// bad order never stops the rest of the sweep.
func (j *ReservationReaperJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC()
	expired, err := j.finder.FindExpiredPending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("scan expired orders: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	var errs error
	reaped := 0
	for _, order := range expired {
		done, err := j.orders.CancelExpired(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if done {
			reaped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": len(expired),
		"reaped":  reaped,
	})
	j.logg.Info(logCtx, "expired reservations reaped")
	return errs
}
