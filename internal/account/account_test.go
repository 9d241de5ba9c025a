package account

import (
	"context"
	"encoding/json"
	"testing"

	"hl-funding-arb/internal/hl/rest"
	"hl-funding-arb/internal/hl/ws"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeInfo struct {
	resp map[string]any
	last rest.InfoRequest
}

func (f *fakeInfo) Info(ctx context.Context, req any) (map[string]any, error) {
	_ = ctx
	f.last = req.(rest.InfoRequest)
	return f.resp, nil
}

func (f *fakeInfo) InfoAny(ctx context.Context, req any) (any, error) {
	_ = ctx
	f.last = req.(rest.InfoRequest)
	return nil, nil
}

func TestUserStateParsesMarginAndPositions(t *testing.T) {
	info := &fakeInfo{resp: map[string]any{
		"marginSummary":              map[string]any{"accountValue": "60.1"},
		"crossMarginSummary":         map[string]any{"accountValue": "58.747197"},
		"crossMaintenanceMarginUsed": "6.892666",
		"withdrawable":               "17.39",
		"assetPositions": []any{
			map[string]any{
				"type": "oneWay",
				"position": map[string]any{
					"coin":          "HYPE",
					"szi":           "-1.96",
					"entryPx":       "25.454",
					"liquidationPx": "43.7769086",
				},
			},
			map[string]any{
				"position": map[string]any{"coin": "BTC", "szi": "0.01", "entryPx": "30000", "liquidationPx": nil},
			},
		},
		"time": float64(1736481449739),
	}}
	acct := New(info, nil, zap.NewNop(), "0xabc")
	state, err := acct.UserState(context.Background())
	if err != nil {
		t.Fatalf("user state: %v", err)
	}
	if info.last.Type != "clearinghouseState" || info.last.User != "0xabc" {
		t.Fatalf("unexpected request %+v", info.last)
	}
	if !state.AccountValue.Equal(d("58.747197")) {
		t.Fatalf("expected cross account value, got %s", state.AccountValue)
	}
	if !state.MaintenanceMarginUsed.Equal(d("6.892666")) {
		t.Fatalf("unexpected maintenance margin %s", state.MaintenanceMarginUsed)
	}
	hype, ok := state.Position("HYPE")
	if !ok {
		t.Fatalf("expected HYPE position")
	}
	if !hype.Size.Equal(d("-1.96")) || !hype.EntryPrice.Valid || !hype.LiquidationPrice.Decimal.Equal(d("43.7769086")) {
		t.Fatalf("unexpected HYPE position %+v", hype)
	}
	btc, _ := state.Position("BTC")
	if btc.LiquidationPrice.Valid {
		t.Fatalf("expected null liquidation price for BTC")
	}
	if _, ok := state.Position("ETH"); ok {
		t.Fatalf("expected no ETH position")
	}
}

func TestUserStateZeroSizeIsNoPosition(t *testing.T) {
	state := UserState{Positions: map[string]Position{"HYPE": {Coin: "HYPE", Size: decimal.Zero}}}
	if _, ok := state.Position("HYPE"); ok {
		t.Fatalf("zero size should not count as open")
	}
}

func TestSpotState(t *testing.T) {
	info := &fakeInfo{resp: map[string]any{
		"balances": []any{
			map[string]any{"coin": "USDC", "token": float64(0), "hold": "0.0", "total": "100.5"},
			map[string]any{"coin": "HYPE", "token": float64(150), "hold": "1", "total": "4.2"},
		},
	}}
	acct := New(info, nil, zap.NewNop(), "0xabc")
	spot, err := acct.SpotState(context.Background())
	if err != nil {
		t.Fatalf("spot state: %v", err)
	}
	if !spot.Total("USDC").Equal(d("100.5")) || !spot.Total("HYPE").Equal(d("4.2")) {
		t.Fatalf("unexpected balances %+v", spot.Balances)
	}
	if !spot.Total("PURR").IsZero() {
		t.Fatalf("missing coin should be zero")
	}
}

func TestOrderStatus(t *testing.T) {
	info := &fakeInfo{resp: map[string]any{
		"status": "order",
		"order": map[string]any{
			"status": "open",
			"order":  map[string]any{"oid": float64(77), "origSz": "3", "sz": "1.25"},
		},
	}}
	acct := New(info, nil, zap.NewNop(), "0xabc")
	st, err := acct.OrderStatus(context.Background(), 77)
	if err != nil {
		t.Fatalf("order status: %v", err)
	}
	if info.last.OID != 77 || info.last.Type != "orderStatus" {
		t.Fatalf("unexpected request %+v", info.last)
	}
	if !st.Open() || st.Filled() || !st.Executed().Equal(d("1.75")) {
		t.Fatalf("unexpected order state %+v", st)
	}

	info.resp = map[string]any{"status": "unknownOid"}
	if _, err := acct.OrderStatus(context.Background(), 78); err == nil {
		t.Fatalf("expected error for unknown oid")
	}
}

func TestHandleMessageTracksFillsOnce(t *testing.T) {
	acct := New(nil, nil, zap.NewNop(), "0xabc")
	data, _ := json.Marshal(map[string]any{
		"user": "0xabc",
		"fills": []any{
			map[string]any{"oid": 5, "sz": "1.5", "px": "21", "hash": "0xa", "tid": 1},
			map[string]any{"oid": 5, "sz": "0.5", "px": "21", "hash": "0xa", "tid": 2},
			map[string]any{"oid": 6, "sz": "2", "px": "21", "hash": "0xb", "tid": 3},
		},
	})
	msg := ws.Message{Channel: "userFills", Data: data}
	acct.handleMessage(msg)
	acct.handleMessage(msg)
	if got := acct.FillSize(5); !got.Equal(d("2")) {
		t.Fatalf("expected 2 filled for oid 5, got %s", got)
	}
	if got := acct.FillSize(6); !got.Equal(d("2")) {
		t.Fatalf("expected 2 filled for oid 6, got %s", got)
	}
	acct.handleMessage(ws.Message{Channel: "trades", Data: data})
	if got := acct.FillSize(5); !got.Equal(d("2")) {
		t.Fatalf("other channels must be ignored, got %s", got)
	}
}
