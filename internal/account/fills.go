package account

import (
	"context"

	"hl-funding-arb/internal/hl/rest"

	"github.com/shopspring/decimal"
)

// Fill is one execution from the user's trade history. Dir is the exchange
// direction label ("Buy", "Sell", "Open Short", "Close Short", ...).
type Fill struct {
	OrderID int64
	TID     int64
	Coin    string
	Dir     string
	Side    string
	Price   decimal.Decimal
	Size    decimal.Decimal
	TimeMS  int64
	Hash    string
}

// UserFills returns recent fills newest first.
func (a *Account) UserFills(ctx context.Context) ([]Fill, error) {
	if a.user == "" {
		return nil, ErrNoUser
	}
	resp, err := a.rest.InfoAny(ctx, rest.InfoRequest{Type: "userFills", User: a.user})
	if err != nil {
		return nil, err
	}
	return parseFills(resp), nil
}

// UserFillsByTime returns fills in [startMS, endMS] oldest first. endMS <= 0
// means up to now.
func (a *Account) UserFillsByTime(ctx context.Context, startMS, endMS int64) ([]Fill, error) {
	if a.user == "" {
		return nil, ErrNoUser
	}
	req := rest.InfoRequest{Type: "userFillsByTime", User: a.user, StartTime: startMS}
	if endMS > 0 {
		req.EndTime = endMS
	}
	resp, err := a.rest.InfoAny(ctx, req)
	if err != nil {
		return nil, err
	}
	return parseFills(resp), nil
}

func parseFills(payload any) []Fill {
	list, ok := payload.([]any)
	if !ok {
		return nil
	}
	fills := make([]Fill, 0, len(list))
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fills = append(fills, Fill{
			OrderID: int64FromAny(entry["oid"]),
			TID:     int64FromAny(entry["tid"]),
			Coin:    stringFromAny(entry["coin"]),
			Dir:     stringFromAny(entry["dir"]),
			Side:    stringFromAny(entry["side"]),
			Price:   decimalOrZero(entry["px"]),
			Size:    decimalOrZero(entry["sz"]),
			TimeMS:  int64FromAny(entry["time"]),
			Hash:    stringFromAny(entry["hash"]),
		})
	}
	return fills
}
