package account

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hl-funding-arb/internal/hl/rest"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestUserFillsByTime(t *testing.T) {
	startMS := int64(1700000000000)
	var gotPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			t.Errorf("expected /info, got %s", r.URL.Path)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotPayload); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"oid":123,"coin":"@107","dir":"Buy","side":"B","sz":"1.5","px":"21.4","time":1700000000001,"hash":"0x1","tid":9}]`))
	}))
	defer server.Close()

	restClient := rest.New(server.URL, 5*time.Second, zap.NewNop())
	acct := New(restClient, nil, zap.NewNop(), "0xabc")
	fills, err := acct.UserFillsByTime(context.Background(), startMS, 0)
	if err != nil {
		t.Fatalf("user fills: %v", err)
	}
	if gotPayload["type"] != "userFillsByTime" {
		t.Fatalf("expected type userFillsByTime, got %v", gotPayload["type"])
	}
	if gotPayload["user"] != "0xabc" {
		t.Fatalf("expected user 0xabc, got %v", gotPayload["user"])
	}
	startVal, ok := gotPayload["startTime"].(float64)
	if !ok || int64(startVal) != startMS {
		t.Fatalf("expected startTime %d, got %v", startMS, gotPayload["startTime"])
	}
	if _, ok := gotPayload["endTime"]; ok {
		t.Fatalf("expected endTime to be omitted")
	}
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	fill := fills[0]
	if fill.OrderID != 123 || fill.Dir != "Buy" || fill.Coin != "@107" {
		t.Fatalf("unexpected fill %+v", fill)
	}
	if !fill.Size.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected size 1.5, got %s", fill.Size)
	}
}

func TestUserFillsRequiresUser(t *testing.T) {
	acct := New(nil, nil, nil, " ")
	if _, err := acct.UserFills(context.Background()); err != ErrNoUser {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
}
