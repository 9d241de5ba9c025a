package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"hl-funding-arb/internal/hl/rest"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const spotAssetOffset = 10000

type InfoClient interface {
	Info(ctx context.Context, req any) (map[string]any, error)
	InfoAny(ctx context.Context, req any) (any, error)
}

type PerpContext struct {
	Name        string
	Index       int
	FundingRate decimal.Decimal
	OraclePrice decimal.Decimal
	MarkPrice   decimal.Decimal
	SzDecimals  int
}

type SpotContext struct {
	Symbol         string
	Base           string
	Quote          string
	Index          int
	BaseSzDecimals int
	// BookKey is the coin name the info endpoints use for this pair, "@107"
	// for most pairs and the plain symbol for a few legacy ones.
	BookKey string
}

func (s SpotContext) AssetID() int {
	return spotAssetOffset + s.Index
}

// Funding is one funding poll for a perp.
type Funding struct {
	Coin      string
	Rate      decimal.Decimal
	MarkPrice decimal.Decimal
}

type MarketData struct {
	rest InfoClient
	log  *zap.Logger

	mu               sync.RWMutex
	perpCtx          map[string]PerpContext
	spotCtx          map[string]SpotContext
	lastCtxRefresh   time.Time
	ctxRefreshWindow time.Duration
}

func New(restClient InfoClient, log *zap.Logger) *MarketData {
	if log == nil {
		log = zap.NewNop()
	}
	return &MarketData{
		rest:             restClient,
		log:              log,
		perpCtx:          make(map[string]PerpContext),
		spotCtx:          make(map[string]SpotContext),
		ctxRefreshWindow: 30 * time.Second,
	}
}

// RefreshContexts reloads perp and spot metadata unless the cached copy is
// younger than the refresh window.
func (m *MarketData) RefreshContexts(ctx context.Context) error {
	if !m.shouldRefresh() {
		return nil
	}
	perpResp, err := m.rest.InfoAny(ctx, rest.InfoRequest{Type: "metaAndAssetCtxs"})
	if err != nil {
		return err
	}
	spotResp, err := m.rest.InfoAny(ctx, rest.InfoRequest{Type: "spotMetaAndAssetCtxs"})
	if err != nil {
		m.log.Debug("spotMetaAndAssetCtxs failed, falling back to spotMeta", zap.Error(err))
		spotResp, err = m.rest.InfoAny(ctx, rest.InfoRequest{Type: "spotMeta"})
		if err != nil {
			return err
		}
	}
	perpCtx, err := parsePerpContexts(perpResp)
	if err != nil {
		return err
	}
	spotCtx, err := parseSpotContexts(spotResp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.perpCtx = perpCtx
	m.spotCtx = spotCtx
	m.lastCtxRefresh = time.Now().UTC()
	m.mu.Unlock()
	return nil
}

func (m *MarketData) shouldRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastCtxRefresh.IsZero() {
		return true
	}
	return time.Since(m.lastCtxRefresh) >= m.ctxRefreshWindow
}

// Funding returns the current funding rate and mark price of coin.
func (m *MarketData) Funding(ctx context.Context, coin string) (Funding, error) {
	if err := m.RefreshContexts(ctx); err != nil {
		return Funding{}, err
	}
	perp, ok := m.PerpContext(coin)
	if !ok {
		return Funding{}, fmt.Errorf("perp %s not found", coin)
	}
	return Funding{Coin: coin, Rate: perp.FundingRate, MarkPrice: perp.MarkPrice}, nil
}

// L2Book fetches a book snapshot. coin is a perp name or a spot BookKey.
func (m *MarketData) L2Book(ctx context.Context, coin string) (Book, error) {
	resp, err := m.rest.Info(ctx, rest.InfoRequest{Type: "l2Book", Coin: coin})
	if err != nil {
		return Book{}, err
	}
	return parseBook(coin, resp)
}

func (m *MarketData) PerpContext(coin string) (PerpContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctx, ok := m.perpCtx[coin]
	return ctx, ok
}

// SpotContext resolves a pair by symbol ("HYPE/USDC"), raw name ("@107") or
// bare base token ("HYPE", quoted in USDC).
func (m *MarketData) SpotContext(pair string) (SpotContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ctx, ok := m.spotCtx[pair]; ok {
		return ctx, true
	}
	if !strings.Contains(pair, "/") {
		ctx, ok := m.spotCtx[pair+"/USDC"]
		return ctx, ok
	}
	return SpotContext{}, false
}
