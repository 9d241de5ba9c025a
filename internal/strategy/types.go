package strategy

import (
	"context"
	"errors"

	"hl-funding-arb/internal/account"
	"hl-funding-arb/internal/exec"
	"hl-funding-arb/internal/market"
	"hl-funding-arb/internal/timescale"

	"github.com/shopspring/decimal"
)

type State string

const (
	StateFlat   State = "FLAT"
	StateHedged State = "HEDGED"
)

type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
	ActionHold  Action = "HOLD"
)

var (
	// ErrCollaborator wraps failures of the exchange or account APIs that
	// happened before any order executed. The loop backs off and retries.
	ErrCollaborator = errors.New("collaborator fault")
	// ErrPartialHedge means one leg executed and the other did not. Trading
	// stays halted until restart.
	ErrPartialHedge = errors.New("partial hedge")
	ErrFillTimeout  = errors.New("order not filled before timeout")
)

type Market interface {
	Funding(ctx context.Context, coin string) (market.Funding, error)
	L2Book(ctx context.Context, coin string) (market.Book, error)
	PerpContext(coin string) (market.PerpContext, bool)
	SpotContext(pair string) (market.SpotContext, bool)
}

type Account interface {
	UserState(ctx context.Context) (account.UserState, error)
	SpotState(ctx context.Context) (account.SpotState, error)
	OrderStatus(ctx context.Context, oid int64) (account.OrderState, error)
	UserFills(ctx context.Context) ([]account.Fill, error)
	UserFillsByTime(ctx context.Context, startMS, endMS int64) ([]account.Fill, error)
	FillsEnabled() bool
	FillSize(oid int64) decimal.Decimal
}

type Orders interface {
	PlaceOrder(ctx context.Context, order exec.Order) (exec.OrderResult, error)
	CancelOrder(ctx context.Context, cancel exec.Cancel) error
}

type Transfers interface {
	USDClassTransfer(ctx context.Context, amount decimal.Decimal, toPerp bool) error
}

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type History interface {
	EnqueueHealth(check timescale.HealthCheck)
	EnqueuePnL(report timescale.PnLReport)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string) {}

type nopHistory struct{}

func (nopHistory) EnqueueHealth(timescale.HealthCheck) {}
func (nopHistory) EnqueuePnL(timescale.PnLReport)      {}
