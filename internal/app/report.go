package app

import (
	"context"
	"fmt"
	"time"

	"hl-funding-arb/internal/account"
	"hl-funding-arb/internal/config"
	"hl-funding-arb/internal/hl/rest"
	"hl-funding-arb/internal/market"
	"hl-funding-arb/internal/strategy"

	"go.uber.org/zap"
)

// Report builds a read-only reporter and values the current position once.
// Only the account address is needed; no key is loaded. A non-zero since
// reads the spot cost basis from fills at or after it.
func Report(ctx context.Context, cfg *config.Config, log *zap.Logger, since time.Time) (strategy.Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := walletFromEnv()
	if err != nil {
		return strategy.Report{}, err
	}
	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	marketData := market.New(restClient, log)
	if err := marketData.RefreshContexts(ctx); err != nil {
		return strategy.Report{}, fmt.Errorf("load market contexts: %w", err)
	}
	reporter := strategy.NewReporter(cfg.Strategy.Coin, cfg.Strategy.SpotPair, estimator(cfg.Fees), strategy.Deps{
		Market:  marketData,
		Account: account.New(restClient, nil, log, w.Account),
		Log:     log,
	})
	return reporter.WithFillsSince(since).Report(ctx)
}
