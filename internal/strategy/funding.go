package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hl-funding-arb/internal/config"
	"hl-funding-arb/internal/exec"
	"hl-funding-arb/internal/market"
	"hl-funding-arb/internal/metrics"
	"hl-funding-arb/internal/state"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const quoteCoin = "USDC"

var two = decimal.NewFromInt(2)

// Deps are the collaborators shared by the funding loop, the health monitor
// and the PnL reporter.
type Deps struct {
	Market    Market
	Account   Account
	Orders    Orders
	Transfers Transfers
	Notifier  Notifier
	Store     state.Store
	Metrics   *metrics.Metrics
	History   History
	Log       *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNoop()
	}
	if d.History == nil {
		d.History = nopHistory{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return d
}

// FundingLoop polls the funding rate and opens or closes the hedge.
type FundingLoop struct {
	cfg      config.StrategyConfig
	slippage decimal.Decimal
	deps     Deps
	sm       *StateMachine
	log      *zap.Logger

	fault error
}

func NewFundingLoop(cfg config.StrategyConfig, sm *StateMachine, deps Deps) *FundingLoop {
	deps = deps.withDefaults()
	return &FundingLoop{
		cfg:      cfg,
		slippage: decimal.NewFromFloat(cfg.Slippage),
		deps:     deps,
		sm:       sm,
		log:      deps.Log.With(zap.String("loop", "funding"), zap.String("coin", cfg.Coin)),
	}
}

// Fault is the partial-hedge error that halted trading, if any.
func (f *FundingLoop) Fault() error {
	return f.fault
}

// Reconcile derives the starting state from the account: an open perp
// position in the coin means HEDGED. The spot leg is not checked and is
// assumed to mirror the perp.
func (f *FundingLoop) Reconcile(ctx context.Context) error {
	if prev, ok, err := state.LoadArbSnapshot(ctx, f.deps.Store); err != nil {
		f.log.Warn("load arb snapshot failed", zap.Error(err))
	} else if ok {
		f.log.Info("previous arb snapshot",
			zap.String("state", prev.State),
			zap.Int64("updated_at_ms", prev.UpdatedAtMS),
		)
		if prev.Fault != "" {
			f.log.Warn("previous run halted on a partial hedge, check both legs", zap.String("fault", prev.Fault))
		}
	}
	user, err := f.deps.Account.UserState(ctx)
	if err != nil {
		return fmt.Errorf("%w: reconcile: %w", ErrCollaborator, err)
	}
	if pos, ok := user.Position(f.cfg.Coin); ok {
		f.setState(StateHedged)
		f.log.Info("perp position open, assuming spot leg is open too",
			zap.String("size", pos.Size.String()),
			zap.String("entry_px", pos.EntryPrice.Decimal.String()),
		)
	} else {
		f.setState(StateFlat)
		f.log.Info("no perp position, starting flat")
	}
	f.saveSnapshot(ctx)
	return nil
}

func (f *FundingLoop) Run(ctx context.Context) error {
	for {
		wait := f.cfg.FundingInterval
		if err := f.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait = f.cfg.ErrorBackoff
		}
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
}

// Cycle runs one funding poll and the transition it calls for.
func (f *FundingLoop) Cycle(ctx context.Context) error {
	if f.fault != nil {
		f.log.Error("trading halted after partial hedge, restart required", zap.Error(f.fault))
		f.deps.Notifier.Notify(ctx, fmt.Sprintf("Trading halted for %s: %v", f.cfg.Coin, f.fault))
		return nil
	}
	funding, err := f.deps.Market.Funding(ctx, f.cfg.Coin)
	if err != nil {
		return f.fail(ctx, fmt.Errorf("%w: funding: %w", ErrCollaborator, err))
	}
	f.deps.Metrics.FundingPolls.Inc()
	f.deps.Metrics.FundingRate.Set(funding.Rate.InexactFloat64())
	f.deps.Notifier.Notify(ctx, fmt.Sprintf("Current funding rate for %s: %s", f.cfg.Coin, funding.Rate))

	current := f.sm.Current()
	action := Decide(current, funding.Rate)
	f.log.Info("funding polled",
		zap.String("rate", funding.Rate.String()),
		zap.String("state", string(current)),
		zap.String("action", string(action)),
	)
	switch action {
	case ActionOpen:
		err = f.open(ctx)
	case ActionClose:
		err = f.close(ctx)
	}
	if err != nil {
		return f.fail(ctx, err)
	}
	return nil
}

func (f *FundingLoop) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return err
	}
	f.deps.Metrics.CycleErrors.Inc()
	if errors.Is(err, ErrPartialHedge) {
		f.fault = err
		f.deps.Metrics.PartialHedges.Inc()
		f.log.Error("partial hedge, halting trading", zap.Error(err))
		f.deps.Notifier.Notify(ctx, fmt.Sprintf("Partial hedge on %s, trading halted: %v", f.cfg.Coin, err))
		f.saveSnapshot(ctx)
		return err
	}
	f.log.Warn("funding cycle failed", zap.Error(err))
	f.deps.Notifier.Notify(ctx, fmt.Sprintf("Error in funding rate check: %v", err))
	return err
}

func (f *FundingLoop) open(ctx context.Context) error {
	spotCtx, perpCtx, err := f.contexts()
	if err != nil {
		return err
	}
	allocation, err := f.rebalance(ctx)
	if err != nil {
		return err
	}
	price, err := f.bestSpotBid(ctx, spotCtx)
	if err != nil {
		return err
	}
	size := exec.TruncateSize(allocation.Div(price), spotCtx.BaseSzDecimals)
	if !size.IsPositive() {
		return fmt.Errorf("%w: allocation %s buys nothing of %s at %s", ErrCollaborator, allocation, spotCtx.Symbol, price)
	}
	f.log.Info("placing spot buy",
		zap.String("pair", spotCtx.Symbol),
		zap.String("size", size.String()),
		zap.String("px", price.String()),
	)
	bought, err := f.placeAndWait(ctx, exec.Order{
		Asset:         spotCtx.AssetID(),
		IsBuy:         true,
		Size:          size,
		LimitPrice:    price,
		Tif:           exec.TifGtc,
		ClientOrderID: exec.NewClientOrderID(),
	})
	if err != nil {
		if bought.IsPositive() {
			return fmt.Errorf("%w: spot buy filled %s of %s: %w", ErrPartialHedge, bought, size, err)
		}
		return fmt.Errorf("%w: spot buy: %w", ErrCollaborator, err)
	}

	spot, err := f.deps.Account.SpotState(ctx)
	if err != nil {
		return fmt.Errorf("%w: spot balance after buy: %w", ErrPartialHedge, err)
	}
	balance := spot.Total(spotCtx.Base)
	perpSize := exec.TruncateSize(balance, perpCtx.SzDecimals)
	if !perpSize.IsPositive() {
		return fmt.Errorf("%w: spot balance %s %s is too small to short", ErrPartialHedge, balance, spotCtx.Base)
	}
	res, err := f.marketOrder(ctx, perpCtx, false, perpSize, false)
	if err != nil {
		return fmt.Errorf("%w: perp short: %w", ErrPartialHedge, err)
	}

	f.setState(StateHedged)
	f.deps.Metrics.HedgesOpened.Inc()
	f.log.Info("hedge opened",
		zap.String("spot_size", bought.String()),
		zap.String("perp_size", res.FilledSize.String()),
		zap.String("perp_avg_px", res.AvgPrice.String()),
	)
	f.deps.Notifier.Notify(ctx, fmt.Sprintf("Opened %s hedge: bought %s spot, shorted %s perp @ %s",
		f.cfg.Coin, bought, res.FilledSize, res.AvgPrice))
	f.saveSnapshot(ctx)
	return nil
}

func (f *FundingLoop) close(ctx context.Context) error {
	spotCtx, perpCtx, err := f.contexts()
	if err != nil {
		return err
	}
	spot, err := f.deps.Account.SpotState(ctx)
	if err != nil {
		return fmt.Errorf("%w: spot balance: %w", ErrCollaborator, err)
	}
	balance := exec.TruncateSize(spot.Total(spotCtx.Base), spotCtx.BaseSzDecimals)
	sold := decimal.Zero
	if balance.IsPositive() {
		price, err := f.bestSpotBid(ctx, spotCtx)
		if err != nil {
			return err
		}
		f.log.Info("placing spot sell",
			zap.String("pair", spotCtx.Symbol),
			zap.String("size", balance.String()),
			zap.String("px", price.String()),
		)
		sold, err = f.placeAndWait(ctx, exec.Order{
			Asset:         spotCtx.AssetID(),
			IsBuy:         false,
			Size:          balance,
			LimitPrice:    price,
			Tif:           exec.TifGtc,
			ClientOrderID: exec.NewClientOrderID(),
		})
		if err != nil {
			if sold.IsPositive() {
				return fmt.Errorf("%w: spot sell filled %s of %s: %w", ErrPartialHedge, sold, balance, err)
			}
			return fmt.Errorf("%w: spot sell: %w", ErrCollaborator, err)
		}
	} else {
		f.log.Info("no spot balance to sell", zap.String("coin", spotCtx.Base))
	}

	legFault := ErrCollaborator
	if sold.IsPositive() {
		legFault = ErrPartialHedge
	}
	user, err := f.deps.Account.UserState(ctx)
	if err != nil {
		return fmt.Errorf("%w: perp position: %w", legFault, err)
	}
	covered := decimal.Zero
	if pos, ok := user.Position(f.cfg.Coin); ok {
		res, err := f.marketOrder(ctx, perpCtx, true, pos.Size.Abs(), true)
		if err != nil {
			return fmt.Errorf("%w: perp close: %w", legFault, err)
		}
		covered = res.FilledSize
	} else {
		f.log.Info("no perp position to close")
	}

	f.setState(StateFlat)
	f.deps.Metrics.HedgesClosed.Inc()
	f.log.Info("hedge closed", zap.String("spot_sold", sold.String()), zap.String("perp_covered", covered.String()))
	f.deps.Notifier.Notify(ctx, fmt.Sprintf("Closed %s hedge: sold %s spot, covered %s perp", f.cfg.Coin, sold, covered))
	f.saveSnapshot(ctx)
	return nil
}

// rebalance splits USDC evenly between the spot and perp wallets and returns
// the per-side allocation.
func (f *FundingLoop) rebalance(ctx context.Context) (decimal.Decimal, error) {
	spot, err := f.deps.Account.SpotState(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: spot balance: %w", ErrCollaborator, err)
	}
	user, err := f.deps.Account.UserState(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: perp balance: %w", ErrCollaborator, err)
	}
	usdcSpot := spot.Total(quoteCoin)
	usdcPerp := user.Withdrawable
	allocation := usdcSpot.Add(usdcPerp).Div(two)
	diff := usdcPerp.Sub(usdcSpot)
	amount := diff.Abs().Div(two).Truncate(6)
	if amount.IsPositive() {
		toPerp := diff.IsNegative()
		if err := f.deps.Transfers.USDClassTransfer(ctx, amount, toPerp); err != nil {
			return decimal.Zero, fmt.Errorf("%w: usd class transfer: %w", ErrCollaborator, err)
		}
		f.log.Info("rebalanced usdc",
			zap.String("amount", amount.String()),
			zap.Bool("to_perp", toPerp),
		)
	}
	f.log.Info("usdc allocation",
		zap.String("usdc_spot", usdcSpot.String()),
		zap.String("usdc_perp", usdcPerp.String()),
		zap.String("allocation", allocation.String()),
	)
	return allocation, nil
}

func (f *FundingLoop) contexts() (market.SpotContext, market.PerpContext, error) {
	perpCtx, ok := f.deps.Market.PerpContext(f.cfg.Coin)
	if !ok {
		return market.SpotContext{}, market.PerpContext{}, fmt.Errorf("%w: perp %s not listed", ErrCollaborator, f.cfg.Coin)
	}
	spotCtx, ok := f.deps.Market.SpotContext(f.cfg.SpotPair)
	if !ok {
		return market.SpotContext{}, market.PerpContext{}, fmt.Errorf("%w: spot pair %s not listed", ErrCollaborator, f.cfg.SpotPair)
	}
	return spotCtx, perpCtx, nil
}

func (f *FundingLoop) bestSpotBid(ctx context.Context, spotCtx market.SpotContext) (decimal.Decimal, error) {
	book, err := f.deps.Market.L2Book(ctx, spotCtx.BookKey)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: spot book: %w", ErrCollaborator, err)
	}
	best, ok := book.Bids.Best()
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s has no bids", ErrCollaborator, spotCtx.Symbol)
	}
	price := exec.RoundPrice(best.Price, exec.SpotMaxDecimals, spotCtx.BaseSzDecimals)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s best bid %s", ErrCollaborator, spotCtx.Symbol, best.Price)
	}
	return price, nil
}

// marketOrder emulates a market order with an IOC limit at mid moved by the
// configured slippage. Anything short of a complete fill is an error.
func (f *FundingLoop) marketOrder(ctx context.Context, perpCtx market.PerpContext, isBuy bool, size decimal.Decimal, reduceOnly bool) (exec.OrderResult, error) {
	book, err := f.deps.Market.L2Book(ctx, perpCtx.Name)
	if err != nil {
		return exec.OrderResult{}, fmt.Errorf("perp book: %w", err)
	}
	mid, ok := book.Mid()
	if !ok {
		return exec.OrderResult{}, fmt.Errorf("perp book %s has no mid", perpCtx.Name)
	}
	px := exec.RoundPrice(exec.SlippagePrice(mid, isBuy, f.slippage), exec.PerpMaxDecimals, perpCtx.SzDecimals)
	f.log.Info("placing perp market order",
		zap.Bool("is_buy", isBuy),
		zap.String("size", size.String()),
		zap.String("limit_px", px.String()),
		zap.Bool("reduce_only", reduceOnly),
	)
	res, err := f.place(ctx, exec.Order{
		Asset:         perpCtx.Index,
		IsBuy:         isBuy,
		Size:          size,
		LimitPrice:    px,
		ReduceOnly:    reduceOnly,
		Tif:           exec.TifIoc,
		ClientOrderID: exec.NewClientOrderID(),
	})
	if err != nil {
		return res, err
	}
	if res.Status != exec.StatusFilled || res.FilledSize.LessThan(size) {
		return res, fmt.Errorf("ioc filled %s of %s", res.FilledSize, size)
	}
	return res, nil
}

func (f *FundingLoop) place(ctx context.Context, order exec.Order) (exec.OrderResult, error) {
	res, err := f.deps.Orders.PlaceOrder(ctx, order)
	if err != nil {
		f.deps.Metrics.OrdersFailed.Inc()
		return res, err
	}
	f.deps.Metrics.OrdersPlaced.Inc()
	return res, nil
}

// placeAndWait places a resting order and blocks until it fills, ends, or the
// fill timeout passes. The returned size is what executed either way.
func (f *FundingLoop) placeAndWait(ctx context.Context, order exec.Order) (decimal.Decimal, error) {
	res, err := f.place(ctx, order)
	if err != nil {
		return decimal.Zero, err
	}
	if res.Status == exec.StatusFilled {
		return res.FilledSize, nil
	}
	return f.waitFill(ctx, order.Asset, res.OrderID, order.Size)
}

func (f *FundingLoop) waitFill(ctx context.Context, asset int, oid int64, size decimal.Decimal) (decimal.Decimal, error) {
	deadline := time.Now().Add(f.cfg.FillTimeout)
	executed := decimal.Zero
	for {
		st, err := f.deps.Account.OrderStatus(ctx, oid)
		if err != nil {
			f.log.Debug("order status failed", zap.Int64("oid", oid), zap.Error(err))
		} else {
			if st.Filled() {
				return filledSize(st.OrigSize, size), nil
			}
			executed = decimal.Max(executed, st.Executed())
			if !st.Open() {
				return executed, fmt.Errorf("order %d ended %s", oid, st.Status)
			}
		}
		if f.deps.Account.FillsEnabled() {
			streamed := f.deps.Account.FillSize(oid)
			if streamed.GreaterThanOrEqual(size) {
				return size, nil
			}
			executed = decimal.Max(executed, streamed)
		}
		if !time.Now().Before(deadline) {
			return f.cancelUnfilled(ctx, asset, oid, size, executed)
		}
		f.log.Info("waiting for order fill", zap.Int64("oid", oid), zap.String("executed", executed.String()))
		if !sleepCtx(ctx, f.cfg.FillPollInterval) {
			return executed, ctx.Err()
		}
	}
}

func (f *FundingLoop) cancelUnfilled(ctx context.Context, asset int, oid int64, size, executed decimal.Decimal) (decimal.Decimal, error) {
	if err := f.deps.Orders.CancelOrder(ctx, exec.Cancel{Asset: asset, OrderID: oid}); err != nil {
		f.log.Warn("cancel after fill timeout failed", zap.Int64("oid", oid), zap.Error(err))
	}
	if st, err := f.deps.Account.OrderStatus(ctx, oid); err == nil {
		if st.Filled() {
			return filledSize(st.OrigSize, size), nil
		}
		executed = decimal.Max(executed, st.Executed())
	}
	return executed, fmt.Errorf("%w: order %d after %s", ErrFillTimeout, oid, f.cfg.FillTimeout)
}

func filledSize(orig, requested decimal.Decimal) decimal.Decimal {
	if orig.IsPositive() {
		return orig
	}
	return requested
}

func (f *FundingLoop) setState(s State) {
	f.sm.Set(s)
	if s == StateHedged {
		f.deps.Metrics.Hedged.Set(1)
	} else {
		f.deps.Metrics.Hedged.Set(0)
	}
}

func (f *FundingLoop) saveSnapshot(ctx context.Context) {
	snap := state.ArbSnapshot{
		State:       string(f.sm.Current()),
		Coin:        f.cfg.Coin,
		SpotPair:    f.cfg.SpotPair,
		UpdatedAtMS: time.Now().UnixMilli(),
	}
	if f.fault != nil {
		snap.Fault = f.fault.Error()
	}
	if err := state.SaveArbSnapshot(ctx, f.deps.Store, snap); err != nil {
		f.log.Warn("save arb snapshot failed", zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
