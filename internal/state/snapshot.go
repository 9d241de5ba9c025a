package state

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ArbSnapshotKey = "arb:last_snapshot"
	PnLReportKey   = "arb:last_pnl_report"
)

// ArbSnapshot is the last known hedge state. Fault is set while trading is
// halted after a one-legged transition.
type ArbSnapshot struct {
	State       string `json:"state"`
	Coin        string `json:"coin"`
	SpotPair    string `json:"spot_pair"`
	Fault       string `json:"fault,omitempty"`
	UpdatedAtMS int64  `json:"updated_at_ms"`
}

type PnLReport struct {
	Coin        string          `json:"coin"`
	PerpPnL     decimal.Decimal `json:"perp_pnl"`
	SpotPnL     decimal.Decimal `json:"spot_pnl"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	UpdatedAtMS int64           `json:"updated_at_ms"`
}

func LoadArbSnapshot(ctx context.Context, store Store) (ArbSnapshot, bool, error) {
	var snapshot ArbSnapshot
	ok, err := load(ctx, store, ArbSnapshotKey, &snapshot)
	return snapshot, ok, err
}

func SaveArbSnapshot(ctx context.Context, store Store, snapshot ArbSnapshot) error {
	return save(ctx, store, ArbSnapshotKey, snapshot)
}

func LoadPnLReport(ctx context.Context, store Store) (PnLReport, bool, error) {
	var report PnLReport
	ok, err := load(ctx, store, PnLReportKey, &report)
	return report, ok, err
}

func SavePnLReport(ctx context.Context, store Store, report PnLReport) error {
	return save(ctx, store, PnLReportKey, report)
}

func load(ctx context.Context, store Store, key string, out any) (bool, error) {
	if store == nil {
		return false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

func save(ctx context.Context, store Store, key string, v any) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload))
}
