package pnl

import (
	"fmt"
	"time"

	"hl-funding-arb/internal/market"

	"github.com/shopspring/decimal"
)

const humanLayout = "2006-01-02 15:04:05"

type Kind string

const (
	KindShort Kind = "short"
	KindLong  Kind = "long"
	KindSpot  Kind = "spot"
)

func (k Kind) Valid() bool {
	switch k {
	case KindShort, KindLong, KindSpot:
		return true
	default:
		return false
	}
}

// Position is a leg to be valued. Size is always the absolute size.
// EntryPrice is invalid when the account holds nothing in Coin.
type Position struct {
	Coin       string
	EntryPrice decimal.NullDecimal
	Size       decimal.Decimal
	Kind       Kind
}

type Fees struct {
	Taker decimal.Decimal
	Maker decimal.Decimal
}

// Rate returns the fee applied when closing a position of the given kind:
// perp legs cross the spread, the spot leg rests.
func (f Fees) Rate(kind Kind) decimal.Decimal {
	if kind == KindSpot {
		return f.Maker
	}
	return f.Taker
}

type Result struct {
	Kind           Kind            `json:"position_type"`
	Coin           string          `json:"coin"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	ExecutionPrice decimal.Decimal `json:"execution_price"`
	Size           decimal.Decimal `json:"position_size"`
	Fee            decimal.Decimal `json:"fee"`
	PnL            decimal.Decimal `json:"pnl"`
	TimeMS         int64           `json:"timestamp"`
}

func (r Result) Human() string {
	return time.UnixMilli(r.TimeMS).Format(humanLayout)
}

type Estimator struct {
	fees Fees
}

func NewEstimator(fees Fees) *Estimator {
	return &Estimator{fees: fees}
}

func (e *Estimator) Fees() Fees {
	return e.fees
}

// Estimate values pos as if it were closed right now against book: shorts buy
// back through the asks, longs and spot sell into the bids.
func (e *Estimator) Estimate(book market.Book, pos Position) (Result, error) {
	if !pos.Kind.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidPositionType, pos.Kind)
	}
	if !pos.EntryPrice.Valid {
		return Result{}, fmt.Errorf("%w: %s", ErrNoPosition, pos.Coin)
	}
	side := book.Bids
	if pos.Kind == KindShort {
		side = book.Asks
	}
	walk, ok := market.Walk(side, pos.Size)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s has an empty side", ErrNoLiquidity, book.Coin)
	}
	execPrice, ok := walk.AvgPrice()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNoLiquidity, book.Coin)
	}
	entry := pos.EntryPrice.Decimal
	var gross decimal.Decimal
	if pos.Kind == KindShort {
		gross = entry.Sub(execPrice).Mul(pos.Size)
	} else {
		gross = execPrice.Sub(entry).Mul(pos.Size)
	}
	fee := walk.Notional.Mul(e.fees.Rate(pos.Kind))
	coin := pos.Coin
	if coin == "" {
		coin = book.Coin
	}
	return Result{
		Kind:           pos.Kind,
		Coin:           coin,
		EntryPrice:     entry,
		ExecutionPrice: execPrice,
		Size:           pos.Size,
		Fee:            fee,
		PnL:            gross.Sub(fee),
		TimeMS:         book.TimeMS,
	}, nil
}

// Total sums the net PnL of every result.
func Total(results ...Result) decimal.Decimal {
	total := decimal.Zero
	for _, res := range results {
		total = total.Add(res.PnL)
	}
	return total
}
