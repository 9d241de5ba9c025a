package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const wireDecimals = 8

func LimitOrderWire(asset int, isBuy bool, size, limit decimal.Decimal, reduceOnly bool, tif Tif, cloid string) (OrderWire, error) {
	if tif == "" {
		return OrderWire{}, errors.New("tif is required")
	}
	price, err := decimalToWire(limit)
	if err != nil {
		return OrderWire{}, fmt.Errorf("limit price: %w", err)
	}
	sizeWire, err := decimalToWire(size)
	if err != nil {
		return OrderWire{}, fmt.Errorf("size: %w", err)
	}
	return OrderWire{
		Asset:      asset,
		IsBuy:      isBuy,
		Price:      price,
		Size:       sizeWire,
		ReduceOnly: reduceOnly,
		OrderType:  OrderTypeWire{Limit: &LimitOrderType{Tif: tif}},
		Cloid:      cloid,
	}, nil
}

// decimalToWire renders x with at most eight decimals and no trailing zeros.
// Values that need more precision are refused rather than silently rounded.
func decimalToWire(x decimal.Decimal) (string, error) {
	rounded := x.Round(wireDecimals)
	if !rounded.Equal(x) {
		return "", fmt.Errorf("wire encoding causes rounding: %s", x)
	}
	if rounded.IsZero() {
		return "0", nil
	}
	return rounded.String(), nil
}
