package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pure decision rules. Everything here is a function of its inputs so the
// state machine transitions stay testable without a store or gateway.

// limitPriceFor computes the limit buy price from the reference price and the
// instrument's configured ratio.
func limitPriceFor(reference, ratio decimal.Decimal) decimal.Decimal {
	return formatPrice(reference.Mul(ratio))
}

// buySignal reports whether a tick triggers a buy: the last price fell to or
// below the limit ratio of the reference price.
func buySignal(last, reference, ratio decimal.Decimal) (decimal.Decimal, bool) {
	if !last.IsPositive() || !reference.IsPositive() {
		return decimal.Decimal{}, false
	}
	limit := limitPriceFor(reference, ratio)
	if last.GreaterThan(limit) {
		return decimal.Decimal{}, false
	}
	return limit, true
}

// sizeFor converts the per-trade quote amount into a base-currency size at
// the given price.
func sizeFor(quoteAmount, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return formatSize(quoteAmount.Div(price))
}

// formatPrice truncates to the exchange's precision expectations: whole
// units above 100, two decimals above 1, otherwise two significant decimals
// past the leading zeros.
func formatPrice(d decimal.Decimal) decimal.Decimal {
	switch {
	case d.GreaterThan(oneHundred):
		return d.Truncate(0)
	case d.GreaterThan(decimal.NewFromInt(1)):
		return d.Truncate(2)
	case d.IsPositive():
		exp := int32(0)
		threshold := decimal.New(1, 0)
		for d.LessThan(threshold) && exp < 18 {
			exp++
			threshold = decimal.New(1, -exp)
		}
		return d.Truncate(exp + 2)
	}
	return d
}

func formatSize(d decimal.Decimal) decimal.Decimal {
	return formatPrice(d)
}

// nextHourClose is the planned liquidation time: the close of the hourly bar
// after the one containing now.
func nextHourClose(now time.Time) time.Time {
	return now.Truncate(time.Hour).Add(time.Hour)
}
