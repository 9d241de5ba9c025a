package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func liq(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(d(s))
}

func TestCheckMarginSafe(t *testing.T) {
	check := CheckMargin(MarginSnapshot{
		AccountValue:          d("58.747197"),
		MaintenanceMarginUsed: d("6.892666"),
		LiquidationPrice:      liq("43.7769086"),
		MarkPrice:             d("21.1"),
	}, d("1.2"))
	assert.True(t, check.Threshold.Equal(d("8.2711992")), "threshold %s", check.Threshold)
	assert.False(t, check.MarginWarning)
	assert.False(t, check.LiquidationWarning)
	assert.False(t, check.Warn())
}

func TestCheckMarginAccountValueAtThreshold(t *testing.T) {
	check := CheckMargin(MarginSnapshot{
		AccountValue:          d("12"),
		MaintenanceMarginUsed: d("10"),
		LiquidationPrice:      liq("50"),
		MarkPrice:             d("20"),
	}, d("1.2"))
	assert.True(t, check.MarginWarning)
	assert.False(t, check.LiquidationWarning)
	assert.True(t, check.Warn())
}

func TestCheckMarginMarkAtLiquidation(t *testing.T) {
	check := CheckMargin(MarginSnapshot{
		AccountValue:          d("100"),
		MaintenanceMarginUsed: d("10"),
		LiquidationPrice:      liq("50"),
		MarkPrice:             d("50"),
	}, d("1.2"))
	assert.False(t, check.MarginWarning)
	assert.True(t, check.LiquidationWarning)
	assert.True(t, check.Warn())
}

func TestCheckMarginBothDisjuncts(t *testing.T) {
	check := CheckMargin(MarginSnapshot{
		AccountValue:          d("5"),
		MaintenanceMarginUsed: d("10"),
		LiquidationPrice:      liq("50"),
		MarkPrice:             d("60"),
	}, d("1.2"))
	assert.True(t, check.MarginWarning)
	assert.True(t, check.LiquidationWarning)
}

func TestCheckMarginNullLiquidationPrice(t *testing.T) {
	check := CheckMargin(MarginSnapshot{
		AccountValue:          d("100"),
		MaintenanceMarginUsed: d("10"),
		MarkPrice:             d("1000000"),
	}, d("1.2"))
	assert.False(t, check.Warn())
}

func TestCheckMarginDefaultsMultiplier(t *testing.T) {
	check := CheckMargin(MarginSnapshot{AccountValue: d("12"), MaintenanceMarginUsed: d("10")}, decimal.Zero)
	assert.True(t, check.Threshold.Equal(d("12")))
	assert.True(t, check.MarginWarning)
}
