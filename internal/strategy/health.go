package strategy

import (
	"context"
	"fmt"
	"time"

	"hl-funding-arb/internal/config"
	"hl-funding-arb/internal/state"
	"hl-funding-arb/internal/timescale"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// HealthMonitor checks margin and liquidation distance while the hedge is
// open and reports the mark-to-book PnL of both legs.
type HealthMonitor struct {
	cfg        config.StrategyConfig
	multiplier decimal.Decimal
	deps       Deps
	sm         *StateMachine
	reporter   *Reporter
	log        *zap.Logger
}

func NewHealthMonitor(cfg config.StrategyConfig, sm *StateMachine, reporter *Reporter, deps Deps) *HealthMonitor {
	deps = deps.withDefaults()
	return &HealthMonitor{
		cfg:        cfg,
		multiplier: decimal.NewFromFloat(cfg.MarginMultiplier),
		deps:       deps,
		sm:         sm,
		reporter:   reporter,
		log:        deps.Log.With(zap.String("loop", "health"), zap.String("coin", cfg.Coin)),
	}
}

func (h *HealthMonitor) Run(ctx context.Context) error {
	for {
		wait := h.cfg.HealthInterval
		if err := h.Check(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.deps.Metrics.CycleErrors.Inc()
			h.log.Warn("health check failed", zap.Error(err))
			wait = h.cfg.ErrorBackoff
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

func (h *HealthMonitor) Check(ctx context.Context) error {
	current := h.sm.Current()
	if current != StateHedged {
		h.log.Info("hedge not open, skipping health check", zap.String("state", string(current)))
		return nil
	}
	user, err := h.deps.Account.UserState(ctx)
	if err != nil {
		return fmt.Errorf("%w: user state: %w", ErrCollaborator, err)
	}
	funding, err := h.deps.Market.Funding(ctx, h.cfg.Coin)
	if err != nil {
		return fmt.Errorf("%w: mark price: %w", ErrCollaborator, err)
	}
	pos, _ := user.Position(h.cfg.Coin)
	snap := MarginSnapshot{
		AccountValue:          user.AccountValue,
		MaintenanceMarginUsed: user.MaintenanceMarginUsed,
		LiquidationPrice:      pos.LiquidationPrice,
		MarkPrice:             funding.MarkPrice,
	}
	check := CheckMargin(snap, h.multiplier)
	h.deps.Metrics.HealthChecks.Inc()
	h.log.Info("account health",
		zap.String("account_value", snap.AccountValue.String()),
		zap.String("maintenance_margin", snap.MaintenanceMarginUsed.String()),
		zap.String("threshold", check.Threshold.String()),
		zap.String("liquidation_px", nullString(snap.LiquidationPrice)),
		zap.String("mark_px", snap.MarkPrice.String()),
	)
	if check.MarginWarning {
		h.deps.Metrics.HealthWarnings.Inc()
		h.log.Warn("account value close to maintenance margin threshold")
		h.deps.Notifier.Notify(ctx, fmt.Sprintf("Warning: %s account value %s is at or below %s (maintenance margin x %s). Consider reducing the position.",
			h.cfg.Coin, snap.AccountValue, check.Threshold, h.multiplier))
	}
	if check.LiquidationWarning {
		h.deps.Metrics.HealthWarnings.Inc()
		h.log.Warn("mark price at or above liquidation price")
		h.deps.Notifier.Notify(ctx, fmt.Sprintf("Warning: %s mark price %s is at or above the liquidation price %s.",
			h.cfg.Coin, snap.MarkPrice, snap.LiquidationPrice.Decimal))
	}
	if !check.Warn() {
		h.log.Info("account is safe")
	}
	h.deps.History.EnqueueHealth(timescale.HealthCheck{
		Time:                  time.Now().UTC(),
		Coin:                  h.cfg.Coin,
		State:                 string(current),
		AccountValue:          snap.AccountValue,
		MaintenanceMarginUsed: snap.MaintenanceMarginUsed,
		Threshold:             check.Threshold,
		LiquidationPrice:      snap.LiquidationPrice,
		MarkPrice:             snap.MarkPrice,
		MarginWarning:         check.MarginWarning,
		LiquidationWarning:    check.LiquidationWarning,
	})

	report, err := h.reporter.Report(ctx)
	if err != nil {
		return err
	}
	h.deps.Metrics.TotalPnL.Set(report.Total.InexactFloat64())
	h.deps.Notifier.Notify(ctx, fmt.Sprintf("PnL Alert! Total PnL: $%s", report.Total.StringFixed(2)))
	h.deps.History.EnqueuePnL(report.history())
	if err := state.SavePnLReport(ctx, h.deps.Store, report.snapshot()); err != nil {
		h.log.Warn("save pnl report failed", zap.Error(err))
	}
	return nil
}

func nullString(v decimal.NullDecimal) string {
	if !v.Valid {
		return "none"
	}
	return v.Decimal.String()
}
