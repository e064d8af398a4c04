package service

import (
	"github.com/shopspring/decimal"

	"wagerbook/config"
)

// FeeSchedule computes the platform fee on a settled pot. Each bracket's rate
// applies only to the part of the amount inside that bracket.
type FeeSchedule struct {
	brackets []config.FeeBracket
	floor    int64
}

// NewFeeSchedule creates a fee schedule from configuration
func NewFeeSchedule(cfg config.FeeConfig) *FeeSchedule {
	brackets := cfg.Brackets
	if len(brackets) == 0 {
		brackets = config.DefaultFeeBrackets()
	}
	return &FeeSchedule{brackets: brackets, floor: cfg.Floor}
}

// PlatformFee returns max(floor, sum of marginal bracket contributions) in cents,
// rounded half-up
func (f *FeeSchedule) PlatformFee(amount int64) int64 {
	if amount <= 0 {
		return 0
	}

	total := decimal.Zero
	var lower int64
	for _, b := range f.brackets {
		upper := b.UpperBound
		if upper == 0 || upper > amount {
			upper = amount
		}
		if upper > lower {
			portion := decimal.NewFromInt(upper - lower)
			total = total.Add(portion.Mul(b.Rate))
		}
		if upper == amount {
			break
		}
		lower = upper
	}

	fee := total.Round(0).IntPart()
	if fee < f.floor {
		fee = f.floor
	}
	return fee
}

// Payout returns what the winner receives from a pot
func (f *FeeSchedule) Payout(amount int64) int64 {
	payout := amount - f.PlatformFee(amount)
	if payout < 0 {
		return 0
	}
	return payout
}
