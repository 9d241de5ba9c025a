package market

import (
	"context"
	"errors"
	"testing"

	"hl-funding-arb/internal/hl/rest"

	"go.uber.org/zap"
)

type fakeInfo struct {
	responses map[string]any
	calls     map[string]int
}

func (f *fakeInfo) Info(ctx context.Context, req any) (map[string]any, error) {
	resp, err := f.InfoAny(ctx, req)
	if err != nil {
		return nil, err
	}
	m, _ := resp.(map[string]any)
	return m, nil
}

func (f *fakeInfo) InfoAny(ctx context.Context, req any) (any, error) {
	_ = ctx
	r := req.(rest.InfoRequest)
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[r.Type]++
	resp, ok := f.responses[r.Type]
	if !ok {
		return nil, errors.New("unsupported " + r.Type)
	}
	return resp, nil
}

func newFakeInfo() *fakeInfo {
	return &fakeInfo{responses: map[string]any{
		"metaAndAssetCtxs": []any{
			map[string]any{"universe": []any{map[string]any{"name": "HYPE", "szDecimals": float64(2)}}},
			[]any{map[string]any{"funding": "0.0000125", "markPx": "21.55"}},
		},
		"spotMeta": map[string]any{
			"universe": []any{map[string]any{"name": "@107", "index": float64(107), "tokens": []any{float64(150), float64(0)}}},
			"tokens": []any{
				map[string]any{"name": "USDC", "index": float64(0), "szDecimals": float64(8)},
				map[string]any{"name": "HYPE", "index": float64(150), "szDecimals": float64(2)},
			},
		},
		"l2Book": map[string]any{
			"coin": "@107",
			"time": float64(1700000000000),
			"levels": []any{
				[]any{map[string]any{"px": "21.5", "sz": "10"}},
				[]any{map[string]any{"px": "21.6", "sz": "4"}},
			},
		},
	}}
}

func TestFundingFallsBackToSpotMeta(t *testing.T) {
	info := newFakeInfo()
	md := New(info, zap.NewNop())
	funding, err := md.Funding(context.Background(), "HYPE")
	if err != nil {
		t.Fatalf("funding: %v", err)
	}
	if !funding.Rate.Equal(d("0.0000125")) || !funding.MarkPrice.Equal(d("21.55")) {
		t.Fatalf("unexpected funding %+v", funding)
	}
	spot, ok := md.SpotContext("HYPE")
	if !ok || spot.BookKey != "@107" {
		t.Fatalf("expected HYPE spot context, got %+v", spot)
	}
	if _, err := md.Funding(context.Background(), "HYPE"); err != nil {
		t.Fatalf("funding: %v", err)
	}
	if info.calls["metaAndAssetCtxs"] != 1 {
		t.Fatalf("expected cached contexts, got %d refreshes", info.calls["metaAndAssetCtxs"])
	}
	if _, err := md.Funding(context.Background(), "DOGE"); err == nil {
		t.Fatalf("expected error for unknown perp")
	}
}

func TestL2Book(t *testing.T) {
	md := New(newFakeInfo(), nil)
	book, err := md.L2Book(context.Background(), "@107")
	if err != nil {
		t.Fatalf("l2 book: %v", err)
	}
	mid, ok := book.Mid()
	if !ok || !mid.Equal(d("21.55")) {
		t.Fatalf("unexpected mid %s", mid)
	}
}
