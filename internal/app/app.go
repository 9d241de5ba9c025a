package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hl-funding-arb/internal/account"
	"hl-funding-arb/internal/alerts"
	"hl-funding-arb/internal/config"
	"hl-funding-arb/internal/exec"
	"hl-funding-arb/internal/hl/exchange"
	"hl-funding-arb/internal/hl/rest"
	"hl-funding-arb/internal/hl/ws"
	"hl-funding-arb/internal/market"
	"hl-funding-arb/internal/metrics"
	"hl-funding-arb/internal/pnl"
	"hl-funding-arb/internal/state/sqlite"
	"hl-funding-arb/internal/strategy"
	"hl-funding-arb/internal/timescale"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	exchange  *exchange.Client
	market    *market.MarketData
	account   *account.Account
	metrics   *metrics.Prometheus
	timescale *timescale.Writer
	funding   *strategy.FundingLoop
	health    *strategy.HealthMonitor
}

// wallet holds the signing identity read from the environment. Account is
// the address whose balances are traded; it differs from Wallet when an API
// wallet signs for a main account.
type wallet struct {
	PrivateKey string
	Wallet     string
	Account    string
	Vault      string
}

func walletFromEnv() (wallet, error) {
	w := wallet{
		PrivateKey: strings.TrimSpace(os.Getenv("HL_PRIVATE_KEY")),
		Wallet:     strings.TrimSpace(os.Getenv("HL_WALLET_ADDRESS")),
		Account:    strings.TrimSpace(os.Getenv("HL_ACCOUNT_ADDRESS")),
		Vault:      strings.TrimSpace(os.Getenv("HL_VAULT_ADDRESS")),
	}
	if w.Wallet == "" {
		return wallet{}, errors.New("HL_WALLET_ADDRESS is required")
	}
	if w.Account == "" {
		w.Account = w.Wallet
	}
	return w, nil
}

func isMainnet(baseURL string) bool {
	return !strings.Contains(strings.ToLower(baseURL), "testnet")
}

func estimator(fees config.FeesConfig) *pnl.Estimator {
	return pnl.NewEstimator(pnl.Fees{
		Taker: decimal.NewFromFloat(fees.Taker),
		Maker: decimal.NewFromFloat(fees.Maker),
	})
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := walletFromEnv()
	if err != nil {
		return nil, err
	}
	if w.PrivateKey == "" {
		return nil, errors.New("HL_PRIVATE_KEY is required")
	}
	signer, err := exchange.NewSigner(w.PrivateKey, isMainnet(cfg.REST.BaseURL))
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(w.Wallet, signer.Address().Hex()) {
		return nil, fmt.Errorf("wallet address does not match private key: got %s expected %s", w.Wallet, signer.Address().Hex())
	}
	exClient, err := exchange.NewClient(cfg.REST.BaseURL, cfg.REST.Timeout, signer, w.Vault)
	if err != nil {
		return nil, err
	}
	exClient.SetLogger(log)

	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	history, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}

	restClient := rest.New(cfg.REST.BaseURL, cfg.REST.Timeout, log)
	marketData := market.New(restClient, log)
	accountWS := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.PingInterval, log)
	accountClient := account.New(restClient, accountWS, log, w.Account)
	executor := exec.New(&exchangeAdapter{client: exClient}, store, log)
	prom := metrics.NewPrometheus()

	deps := strategy.Deps{
		Market:    marketData,
		Account:   accountClient,
		Orders:    executor,
		Transfers: exClient,
		Notifier:  alerts.NewTelegram(cfg.Telegram, log),
		Store:     store,
		Metrics:   prom.Metrics,
		Log:       log,
	}
	// a nil *timescale.Writer in the interface would still be non-nil
	if history != nil {
		deps.History = history
	}
	sm := strategy.NewStateMachine(strategy.StateFlat)
	reporter := strategy.NewReporter(cfg.Strategy.Coin, cfg.Strategy.SpotPair, estimator(cfg.Fees), deps)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		exchange:  exClient,
		market:    marketData,
		account:   accountClient,
		metrics:   prom,
		timescale: history,
		funding:   strategy.NewFundingLoop(cfg.Strategy, sm, deps),
		health:    strategy.NewHealthMonitor(cfg.Strategy, sm, reporter, deps),
	}, nil
}

// Run reconciles the starting state and then runs the funding loop and the
// health monitor until ctx ends or either loop fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()
	if err := a.exchange.InitNonceStore(ctx, a.store); err != nil {
		a.log.Warn("nonce store init failed", zap.Error(err))
	} else if st, ok := a.exchange.NonceState(); ok {
		a.log.Info("nonce persistence enabled", zap.String("nonce_key", st.Key), zap.Uint64("nonce_seed", st.Last))
	}
	if err := a.market.RefreshContexts(ctx); err != nil {
		return fmt.Errorf("load market contexts: %w", err)
	}
	if _, ok := a.market.PerpContext(a.cfg.Strategy.Coin); !ok {
		return fmt.Errorf("perp %s not listed", a.cfg.Strategy.Coin)
	}
	if _, ok := a.market.SpotContext(a.cfg.Strategy.SpotPair); !ok {
		return fmt.Errorf("spot pair %s not listed", a.cfg.Strategy.SpotPair)
	}
	if err := a.funding.Reconcile(ctx); err != nil {
		return err
	}
	if err := a.account.Start(ctx); err != nil {
		a.log.Warn("user fill stream unavailable, polling order status only", zap.Error(err))
	}
	a.timescale.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Metrics.EnabledValue() {
		srv := a.metricsServer()
		g.Go(func() error {
			a.log.Info("metrics listening", zap.String("address", srv.Addr), zap.String("path", a.cfg.Metrics.Path))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		return a.funding.Run(ctx)
	})
	g.Go(func() error {
		return a.health.Run(ctx)
	})
	return g.Wait()
}

func (a *App) metricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.metrics.Handler())
	return &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *App) close() {
	if err := a.timescale.Close(); err != nil {
		a.log.Warn("timescale close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("state store close failed", zap.Error(err))
	}
}
