package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/littlewears/littlewears-backend/pkg/config"
	"github.com/littlewears/littlewears-backend/pkg/db/models"
	"github.com/littlewears/littlewears-backend/pkg/enums"
)

var oneHundred = decimal.NewFromInt(100)

// Fees are the parsed revenue-split rates. Rates stay decimal so fractional
// percentages round once, at the cent boundary.
type Fees struct {
	PlatformPercent       decimal.Decimal
	DeliveryPercent       decimal.Decimal
	DeliveryFeeFloorCents int64
}

// FeesFromConfig parses the configured percentage strings.
func FeesFromConfig(cfg config.FeesConfig) (Fees, error) {
	platform, err := decimal.NewFromString(cfg.PlatformFeePercent)
	if err != nil {
		return Fees{}, fmt.Errorf("parse platform fee percent %q: %w", cfg.PlatformFeePercent, err)
	}
	delivery, err := decimal.NewFromString(cfg.DeliveryFeePercent)
	if err != nil {
		return Fees{}, fmt.Errorf("parse delivery fee percent %q: %w", cfg.DeliveryFeePercent, err)
	}
	return Fees{
		PlatformPercent:       platform,
		DeliveryPercent:       delivery,
		DeliveryFeeFloorCents: cfg.DeliveryFeeFloorCents,
	}, nil
}

// lineSplit is the fee breakdown for one order line.
type lineSplit struct {
	RevenueCents  int64
	PlatformCents int64
	DeliveryCents int64
	NetCents      int64
}

// splitLine computes the seller's net for one frozen line. The delivery fee
// applies to platform-fulfilled lines only and never drives the net below
// zero on small lines.
func splitLine(item models.OrderLineItem, fees Fees) lineSplit {
	revenue := item.UnitPriceCents * int64(item.Qty)
	platform := percentOf(revenue, fees.PlatformPercent)

	var delivery int64
	if item.DeliveryMethod == enums.DeliveryMethodPlatformFulfilled {
		delivery = percentOf(revenue, fees.DeliveryPercent)
		if delivery < fees.DeliveryFeeFloorCents {
			delivery = fees.DeliveryFeeFloorCents
		}
	}

	net := revenue - platform - delivery
	if net < 0 {
		net = 0
	}
	return lineSplit{
		RevenueCents:  revenue,
		PlatformCents: platform,
		DeliveryCents: delivery,
		NetCents:      net,
	}
}

func percentOf(amountCents int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amountCents).
		Mul(percent).
		Div(oneHundred).
		Round(0).
		IntPart()
}
