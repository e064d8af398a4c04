package infrastructure

import (
	"context"
	"fmt"

	"wagerbook/config"
	"wagerbook/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// StaticRateProvider converts with fixed rates. Fiat is USD; crypto uses the
// configured USD price of the asset.
type StaticRateProvider struct {
	usdPerUnit decimal.Decimal
}

// NewStaticRateProvider creates a rate provider from crypto settings
func NewStaticRateProvider(cfg config.CryptoConfig) *StaticRateProvider {
	return &StaticRateProvider{usdPerUnit: cfg.UsdRate}
}

// FromCents returns the rail-native amount for a ledger amount
func (p *StaticRateProvider) FromCents(_ context.Context, rail models.Rail, cents int64) (decimal.Decimal, error) {
	usd := decimal.NewFromInt(cents).Div(hundred)
	switch rail {
	case models.RailFiat:
		return usd, nil
	case models.RailCrypto:
		if !p.usdPerUnit.IsPositive() {
			return decimal.Zero, fmt.Errorf("crypto rate is not configured")
		}
		return usd.Div(p.usdPerUnit), nil
	default:
		return decimal.Zero, fmt.Errorf("no rate for rail %s", rail)
	}
}

// ToCents returns the ledger amount for a rail-native amount, rounded to the nearest cent
func (p *StaticRateProvider) ToCents(_ context.Context, rail models.Rail, amount decimal.Decimal) (int64, error) {
	var usd decimal.Decimal
	switch rail {
	case models.RailFiat:
		usd = amount
	case models.RailCrypto:
		if !p.usdPerUnit.IsPositive() {
			return 0, fmt.Errorf("crypto rate is not configured")
		}
		usd = amount.Mul(p.usdPerUnit)
	default:
		return 0, fmt.Errorf("no rate for rail %s", rail)
	}
	return usd.Mul(hundred).Round(0).IntPart(), nil
}
