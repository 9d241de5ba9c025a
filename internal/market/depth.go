package market

import "github.com/shopspring/decimal"

type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Side is one half of the book, best price first. Walk consumes it in slice
// order and never re-sorts.
type Side []Level

type Book struct {
	Coin   string
	Bids   Side
	Asks   Side
	TimeMS int64
}

// Mid is the midpoint of the top of book. ok is false when either side is empty.
func (b Book) Mid() (decimal.Decimal, bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return decimal.Zero, false
	}
	return b.Bids[0].Price.Add(b.Asks[0].Price).Div(decimal.NewFromInt(2)), true
}

func (s Side) Best() (Level, bool) {
	if len(s) == 0 {
		return Level{}, false
	}
	return s[0], true
}

func (s Side) Depth() decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range s {
		total = total.Add(lvl.Size)
	}
	return total
}

type WalkResult struct {
	Executed decimal.Decimal
	Notional decimal.Decimal
}

func (w WalkResult) AvgPrice() (decimal.Decimal, bool) {
	if w.Executed.IsZero() {
		return decimal.Zero, false
	}
	return w.Notional.Div(w.Executed), true
}

// Walk simulates a market sweep of size against side. The second return value
// is false when the side has no levels at all.
func Walk(side Side, size decimal.Decimal) (WalkResult, bool) {
	if len(side) == 0 {
		return WalkResult{}, false
	}
	remaining := size
	res := WalkResult{Executed: decimal.Zero, Notional: decimal.Zero}
	for _, lvl := range side {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		res.Executed = res.Executed.Add(take)
		res.Notional = res.Notional.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}
	return res, true
}
