package exchange

import (
	"errors"
	"testing"
)

func orderResponse(status any) map[string]any {
	return map[string]any{
		"status": "ok",
		"response": map[string]any{
			"type": "order",
			"data": map[string]any{
				"statuses": []any{status},
			},
		},
	}
}

func TestParseOrderStatusFilled(t *testing.T) {
	resp := orderResponse(map[string]any{
		"filled": map[string]any{
			"oid":     float64(292577153770),
			"totalSz": "0.02",
			"avgPx":   "1891.4",
		},
	})
	got, err := ParseOrderStatus(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Filled == nil || got.Filled.OrderID != 292577153770 {
		t.Fatalf("expected filled order 292577153770, got %+v", got)
	}
	if got.Filled.TotalSz != "0.02" || got.Filled.AvgPx != "1891.4" {
		t.Fatalf("unexpected fill details %+v", got.Filled)
	}
}

func TestParseOrderStatusResting(t *testing.T) {
	resp := orderResponse(map[string]any{
		"resting": map[string]any{"oid": float64(77738308), "cloid": "0xabc"},
	})
	got, err := ParseOrderStatus(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Resting == nil || got.Resting.OrderID != 77738308 || got.Resting.Cloid != "0xabc" {
		t.Fatalf("unexpected resting status %+v", got)
	}
}

func TestParseOrderStatusErrors(t *testing.T) {
	resp := orderResponse(map[string]any{"error": "Order must have minimum value of $10."})
	got, err := ParseOrderStatus(resp)
	if !errors.Is(err, ErrOrderError) {
		t.Fatalf("expected order error, got %v", err)
	}
	if got.Error == "" {
		t.Fatalf("expected error message to be kept")
	}

	failed := map[string]any{"status": "err", "response": "User or API Wallet does not exist."}
	if _, err := ParseOrderStatus(failed); !errors.Is(err, ErrActionFailed) {
		t.Fatalf("expected action failure, got %v", err)
	}
	if _, err := ParseOrderStatus(orderResponse("waitingForFill")); !errors.Is(err, ErrActionFailed) {
		t.Fatalf("expected action failure for bare status, got %v", err)
	}
}
