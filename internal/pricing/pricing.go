// Package pricing converts raw token amounts into human-scale prices and peg
// deviations. All arithmetic runs on shopspring decimals so 18-decimal assets
// at eight-figure notionals never round through float64.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	bpsScale = decimal.NewFromInt(10_000)

	// Peg is the reference rate every tracked stablecoin is measured against.
	Peg = decimal.NewFromInt(1)
)

// ToDecimal scales a raw integer amount down by 10^decimals.
func ToDecimal(raw string, decimals int32) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse raw amount %q: %w", raw, err)
	}
	return value.Shift(-decimals), nil
}

// Ratio returns buy-asset units received per one sell-asset unit, from the raw
// amounts a provider reported.
func Ratio(sellRaw, buyRaw string, sellDecimals, buyDecimals int32) (decimal.Decimal, error) {
	sell, err := ToDecimal(sellRaw, sellDecimals)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if sell.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("sell amount is zero")
	}
	buy, err := ToDecimal(buyRaw, buyDecimals)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return buy.Div(sell), nil
}

// DeviationBps converts a price into a signed basis-point deviation from the
// peg, rounded to two decimal places (half away from zero). Positive means
// the asset trades above the peg, negative below.
func DeviationBps(price, peg decimal.Decimal) decimal.Decimal {
	return price.Sub(peg).Div(peg).Mul(bpsScale).Round(2)
}

// DeviationFromPeg is DeviationBps against the standard 1.0 peg.
func DeviationFromPeg(price decimal.Decimal) decimal.Decimal {
	return DeviationBps(price, Peg)
}
