package exec

import "github.com/shopspring/decimal"

const (
	PerpMaxDecimals = 6
	SpotMaxDecimals = 8

	priceSigFigs = 5
)

var integerPriceAbove = decimal.NewFromInt(100_000)

// RoundPrice brings px onto the exchange tick grid: integers above 100k,
// otherwise five significant figures and at most maxDecimals-szDecimals
// decimal places.
func RoundPrice(px decimal.Decimal, maxDecimals, szDecimals int) decimal.Decimal {
	if px.IsZero() {
		return px
	}
	if px.GreaterThan(integerPriceAbove) {
		return px.Round(0)
	}
	px = roundSigFigs(px, priceSigFigs)
	decimals := maxDecimals - szDecimals
	if decimals < 0 {
		decimals = 0
	}
	return px.Round(int32(decimals))
}

// TruncateSize cuts sz to szDecimals places. It never rounds up.
func TruncateSize(sz decimal.Decimal, szDecimals int) decimal.Decimal {
	if szDecimals < 0 {
		szDecimals = 0
	}
	return sz.Truncate(int32(szDecimals))
}

// SlippagePrice is the aggressive limit used to emulate a market order:
// mid moved by slippage against the taker.
func SlippagePrice(mid decimal.Decimal, isBuy bool, slippage decimal.Decimal) decimal.Decimal {
	if isBuy {
		return mid.Mul(decimal.NewFromInt(1).Add(slippage))
	}
	return mid.Mul(decimal.NewFromInt(1).Sub(slippage))
}

func roundSigFigs(v decimal.Decimal, figs int) decimal.Decimal {
	// position of the leading digit relative to the decimal point
	lead := v.NumDigits() + int(v.Exponent())
	return v.Round(int32(figs - lead))
}
