package exec

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"hl-funding-arb/internal/state"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrRejected marks an order the exchange refused outright. It is never retried.
var ErrRejected = errors.New("order rejected")

type Tif string

const (
	TifGtc Tif = "Gtc"
	TifIoc Tif = "Ioc"
)

type Order struct {
	Asset         int
	IsBuy         bool
	Size          decimal.Decimal
	LimitPrice    decimal.Decimal
	ReduceOnly    bool
	Tif           Tif
	ClientOrderID string
}

type Cancel struct {
	Asset   int
	OrderID int64
}

type Status string

const (
	StatusResting Status = "resting"
	StatusFilled  Status = "filled"
)

type OrderResult struct {
	Status     Status          `json:"status"`
	OrderID    int64           `json:"oid"`
	FilledSize decimal.Decimal `json:"filled_size"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
}

type Exchange interface {
	PlaceOrder(ctx context.Context, order Order) (OrderResult, error)
	CancelOrder(ctx context.Context, cancel Cancel) error
}

type Executor struct {
	exchange Exchange
	store    state.Store
	log      *zap.Logger

	attempts int
	backoff  time.Duration

	mu    sync.Mutex
	cache map[string]OrderResult
}

func New(exchange Exchange, store state.Store, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		exchange: exchange,
		store:    store,
		log:      log,
		attempts: 5,
		backoff:  200 * time.Millisecond,
		cache:    make(map[string]OrderResult),
	}
}

// NewClientOrderID returns a 128-bit client order id in the 0x-prefixed hex
// form the exchange expects.
func NewClientOrderID() string {
	id := uuid.New()
	return "0x" + hex.EncodeToString(id[:])
}

// PlaceOrder submits order with retries. Orders carrying a client id are
// idempotent: a repeated id returns the first result without touching the
// exchange, across restarts when a store is configured.
func (e *Executor) PlaceOrder(ctx context.Context, order Order) (OrderResult, error) {
	if order.ClientOrderID == "" {
		return e.placeWithRetry(ctx, order)
	}
	cacheKey := "cloid:" + order.ClientOrderID
	e.mu.Lock()
	if res, ok := e.cache[cacheKey]; ok {
		e.mu.Unlock()
		return res, nil
	}
	e.mu.Unlock()
	if e.store != nil {
		raw, ok, err := e.store.Get(ctx, cacheKey)
		if err != nil {
			return OrderResult{}, err
		}
		if ok {
			var res OrderResult
			if err := json.Unmarshal([]byte(raw), &res); err != nil {
				return OrderResult{}, fmt.Errorf("decode cached order %s: %w", order.ClientOrderID, err)
			}
			e.remember(cacheKey, res)
			return res, nil
		}
	}
	res, err := e.placeWithRetry(ctx, order)
	if err != nil {
		return OrderResult{}, err
	}
	if e.store != nil {
		if payload, err := json.Marshal(res); err != nil {
			e.log.Warn("failed to encode order result", zap.Error(err))
		} else if err := e.store.Set(ctx, cacheKey, string(payload)); err != nil {
			e.log.Warn("failed to persist order result", zap.Error(err))
		}
	}
	e.remember(cacheKey, res)
	return res, nil
}

func (e *Executor) CancelOrder(ctx context.Context, cancel Cancel) error {
	return e.retry(ctx, func() error {
		return e.exchange.CancelOrder(ctx, cancel)
	})
}

func (e *Executor) remember(key string, res OrderResult) {
	e.mu.Lock()
	e.cache[key] = res
	e.mu.Unlock()
}

func (e *Executor) placeWithRetry(ctx context.Context, order Order) (OrderResult, error) {
	if !order.Size.IsPositive() || !order.LimitPrice.IsPositive() {
		return OrderResult{}, fmt.Errorf("%w: size %s price %s", ErrRejected, order.Size, order.LimitPrice)
	}
	var res OrderResult
	err := e.retry(ctx, func() error {
		var err error
		res, err = e.exchange.PlaceOrder(ctx, order)
		return err
	})
	if err != nil {
		return OrderResult{}, err
	}
	if res.OrderID == 0 {
		return OrderResult{}, errors.New("empty order id")
	}
	return res, nil
}

func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := e.backoff
	for attempt := 0; attempt < e.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		if attempt == e.attempts-1 {
			return fmt.Errorf("retry failed: %w", err)
		}
		e.log.Debug("exchange call failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}
