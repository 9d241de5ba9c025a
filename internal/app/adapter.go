package app

import (
	"context"
	"errors"
	"fmt"

	"hl-funding-arb/internal/exec"
	"hl-funding-arb/internal/hl/exchange"

	"github.com/shopspring/decimal"
)

// orderPlacer is the part of exchange.Client the adapter needs.
type orderPlacer interface {
	PlaceOrder(ctx context.Context, order exchange.OrderWire) (exchange.OrderStatus, error)
	CancelOrder(ctx context.Context, asset int, orderID int64) error
}

// exchangeAdapter turns executor orders into signed exchange actions.
type exchangeAdapter struct {
	client orderPlacer
}

func (e *exchangeAdapter) PlaceOrder(ctx context.Context, order exec.Order) (exec.OrderResult, error) {
	if e.client == nil {
		return exec.OrderResult{}, errors.New("exchange client is required")
	}
	tif := exchange.TifGtc
	if order.Tif != "" {
		tif = exchange.Tif(order.Tif)
	}
	wire, err := exchange.LimitOrderWire(order.Asset, order.IsBuy, order.Size, order.LimitPrice, order.ReduceOnly, tif, order.ClientOrderID)
	if err != nil {
		return exec.OrderResult{}, fmt.Errorf("%w: %w", exec.ErrRejected, err)
	}
	status, err := e.client.PlaceOrder(ctx, wire)
	if err != nil {
		if errors.Is(err, exchange.ErrOrderError) {
			return exec.OrderResult{}, fmt.Errorf("%w: %w", exec.ErrRejected, err)
		}
		return exec.OrderResult{}, err
	}
	return orderResult(status)
}

func (e *exchangeAdapter) CancelOrder(ctx context.Context, cancel exec.Cancel) error {
	if e.client == nil {
		return errors.New("exchange client is required")
	}
	if cancel.OrderID == 0 {
		return errors.New("cancel order id is required")
	}
	return e.client.CancelOrder(ctx, cancel.Asset, cancel.OrderID)
}

func orderResult(status exchange.OrderStatus) (exec.OrderResult, error) {
	switch {
	case status.Resting != nil:
		return exec.OrderResult{Status: exec.StatusResting, OrderID: status.Resting.OrderID}, nil
	case status.Filled != nil:
		size, err := decimal.NewFromString(status.Filled.TotalSz)
		if err != nil {
			return exec.OrderResult{}, fmt.Errorf("filled size %q: %w", status.Filled.TotalSz, err)
		}
		avg, err := decimal.NewFromString(status.Filled.AvgPx)
		if err != nil {
			return exec.OrderResult{}, fmt.Errorf("filled avg price %q: %w", status.Filled.AvgPx, err)
		}
		return exec.OrderResult{
			Status:     exec.StatusFilled,
			OrderID:    status.Filled.OrderID,
			FilledSize: size,
			AvgPrice:   avg,
		}, nil
	case status.Error != "":
		return exec.OrderResult{}, fmt.Errorf("%w: %s", exec.ErrRejected, status.Error)
	}
	return exec.OrderResult{}, errors.New("empty order status")
}
