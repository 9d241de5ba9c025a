package strategy

import "github.com/shopspring/decimal"

var defaultMarginMultiplier = decimal.RequireFromString("1.2")

// MarginSnapshot is recomputed on every health cycle.
type MarginSnapshot struct {
	AccountValue          decimal.Decimal
	MaintenanceMarginUsed decimal.Decimal
	LiquidationPrice      decimal.NullDecimal
	MarkPrice             decimal.Decimal
}

type MarginCheck struct {
	Threshold          decimal.Decimal
	MarginWarning      bool
	LiquidationWarning bool
}

func (c MarginCheck) Warn() bool {
	return c.MarginWarning || c.LiquidationWarning
}

// CheckMargin flags an account value at or under multiplier times the
// maintenance margin, and a mark price at or above the liquidation price.
// The price comparison assumes the perp leg is short.
func CheckMargin(snap MarginSnapshot, multiplier decimal.Decimal) MarginCheck {
	if !multiplier.IsPositive() {
		multiplier = defaultMarginMultiplier
	}
	threshold := snap.MaintenanceMarginUsed.Mul(multiplier)
	check := MarginCheck{
		Threshold:     threshold,
		MarginWarning: snap.AccountValue.LessThanOrEqual(threshold),
	}
	if snap.LiquidationPrice.Valid {
		check.LiquidationWarning = snap.MarkPrice.GreaterThanOrEqual(snap.LiquidationPrice.Decimal)
	}
	return check
}
