package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hl-funding-arb/internal/account"
	"hl-funding-arb/internal/pnl"
	"hl-funding-arb/internal/state"
	"hl-funding-arb/internal/timescale"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// spotEntryDirection is the fill label of the spot purchases that built the
// current position.
const spotEntryDirection = "Buy"

type ContextRefresher interface {
	RefreshContexts(ctx context.Context) error
}

// Report values both legs as if closed now against the live books. A leg
// with no position is nil and contributes nothing to Total.
type Report struct {
	Coin   string          `json:"coin"`
	Perp   *pnl.Result     `json:"perp,omitempty"`
	Spot   *pnl.Result     `json:"spot,omitempty"`
	Total  decimal.Decimal `json:"total_pnl"`
	TimeMS int64           `json:"timestamp"`
}

func (r Report) perpPnL() (decimal.Decimal, decimal.Decimal) {
	if r.Perp == nil {
		return decimal.Zero, decimal.Zero
	}
	return r.Perp.PnL, r.Perp.ExecutionPrice
}

func (r Report) spotPnL() (decimal.Decimal, decimal.Decimal) {
	if r.Spot == nil {
		return decimal.Zero, decimal.Zero
	}
	return r.Spot.PnL, r.Spot.ExecutionPrice
}

func (r Report) history() timescale.PnLReport {
	perp, perpPx := r.perpPnL()
	spot, spotPx := r.spotPnL()
	return timescale.PnLReport{
		Time:          time.UnixMilli(r.TimeMS).UTC(),
		Coin:          r.Coin,
		PerpPnL:       perp,
		PerpExecPrice: perpPx,
		SpotPnL:       spot,
		SpotExecPrice: spotPx,
		TotalPnL:      r.Total,
	}
}

func (r Report) snapshot() state.PnLReport {
	perp, _ := r.perpPnL()
	spot, _ := r.spotPnL()
	return state.PnLReport{
		Coin:        r.Coin,
		PerpPnL:     perp,
		SpotPnL:     spot,
		TotalPnL:    r.Total,
		UpdatedAtMS: r.TimeMS,
	}
}

type Reporter struct {
	coin      string
	spotPair  string
	market    Market
	account   Account
	estimator *pnl.Estimator
	since     time.Time
	log       *zap.Logger
}

func NewReporter(coin, spotPair string, estimator *pnl.Estimator, deps Deps) *Reporter {
	deps = deps.withDefaults()
	return &Reporter{
		coin:      coin,
		spotPair:  spotPair,
		market:    deps.Market,
		account:   deps.Account,
		estimator: estimator,
		log:       deps.Log.With(zap.String("component", "pnl"), zap.String("coin", coin)),
	}
}

// WithFillsSince bounds the spot cost basis to fills at or after since,
// read oldest first from the by-time history. A zero since restores the
// default recent-fills window.
func (r *Reporter) WithFillsSince(since time.Time) *Reporter {
	r.since = since
	return r
}

func (r *Reporter) Report(ctx context.Context) (Report, error) {
	if refresher, ok := r.market.(ContextRefresher); ok {
		if err := refresher.RefreshContexts(ctx); err != nil {
			return Report{}, fmt.Errorf("%w: contexts: %w", ErrCollaborator, err)
		}
	}
	report := Report{Coin: r.coin, TimeMS: time.Now().UnixMilli()}
	perp, err := r.perpLeg(ctx)
	if err != nil {
		return Report{}, err
	}
	spot, err := r.spotLeg(ctx)
	if err != nil {
		return Report{}, err
	}
	report.Perp = perp
	report.Spot = spot
	var results []pnl.Result
	if perp != nil {
		results = append(results, *perp)
		r.log.Info("perp pnl", zap.String("at", perp.Human()), zap.String("pnl", perp.PnL.String()))
	}
	if spot != nil {
		results = append(results, *spot)
		r.log.Info("spot pnl", zap.String("at", spot.Human()), zap.String("pnl", spot.PnL.String()))
	}
	report.Total = pnl.Total(results...)
	r.log.Info("total pnl at market", zap.String("pnl", report.Total.String()))
	return report, nil
}

func (r *Reporter) perpLeg(ctx context.Context) (*pnl.Result, error) {
	user, err := r.account.UserState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: user state: %w", ErrCollaborator, err)
	}
	pos, ok := user.Position(r.coin)
	if !ok {
		r.log.Info("no perp position found")
		return nil, nil
	}
	kind := pnl.KindLong
	if pos.Size.IsNegative() {
		kind = pnl.KindShort
	}
	book, err := r.market.L2Book(ctx, r.coin)
	if err != nil {
		return nil, fmt.Errorf("%w: perp book: %w", ErrCollaborator, err)
	}
	res, err := r.estimator.Estimate(book, pnl.Position{
		Coin:       r.coin,
		EntryPrice: pos.EntryPrice,
		Size:       pos.Size.Abs(),
		Kind:       kind,
	})
	if errors.Is(err, pnl.ErrNoPosition) {
		r.log.Info("perp position has no entry price")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("perp pnl: %w", err)
	}
	return &res, nil
}

func (r *Reporter) spotLeg(ctx context.Context) (*pnl.Result, error) {
	spotCtx, ok := r.market.SpotContext(r.spotPair)
	if !ok {
		return nil, fmt.Errorf("%w: spot pair %s not listed", ErrCollaborator, r.spotPair)
	}
	fills, newestFirst, err := r.fills(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: user fills: %w", ErrCollaborator, err)
	}
	history := make([]pnl.Fill, 0, len(fills))
	for i, fill := range fills {
		if fill.Coin != spotCtx.BookKey && fill.Coin != spotCtx.Symbol {
			continue
		}
		history = append(history, pnl.Fill{Direction: fill.Dir, Price: fill.Price, Size: fill.Size, Seq: i})
	}
	run, err := pnl.LatestConsecutiveRun(history, spotEntryDirection, newestFirst)
	if errors.Is(err, pnl.ErrUnknownDirection) || errors.Is(err, pnl.ErrNoMatchingFills) {
		r.log.Info("no spot buys in fill history", zap.String("pair", spotCtx.Symbol), zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	book, err := r.market.L2Book(ctx, spotCtx.BookKey)
	if err != nil {
		return nil, fmt.Errorf("%w: spot book: %w", ErrCollaborator, err)
	}
	res, err := r.estimator.Estimate(book, pnl.Position{
		Coin:       spotCtx.Symbol,
		EntryPrice: decimal.NewNullDecimal(run.VWAP),
		Size:       run.TotalSize,
		Kind:       pnl.KindSpot,
	})
	if err != nil {
		return nil, fmt.Errorf("spot pnl: %w", err)
	}
	return &res, nil
}

func (r *Reporter) fills(ctx context.Context) ([]account.Fill, bool, error) {
	if r.since.IsZero() {
		fills, err := r.account.UserFills(ctx)
		return fills, true, err
	}
	fills, err := r.account.UserFillsByTime(ctx, r.since.UnixMilli(), 0)
	return fills, false, err
}
