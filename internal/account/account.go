package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"hl-funding-arb/internal/hl/rest"
	"hl-funding-arb/internal/hl/ws"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNoUser = errors.New("account user is required")

type InfoClient interface {
	Info(ctx context.Context, req any) (map[string]any, error)
	InfoAny(ctx context.Context, req any) (any, error)
}

type Account struct {
	rest InfoClient
	ws   *ws.Client
	log  *zap.Logger
	user string

	mu           sync.RWMutex
	fillsEnabled bool
	fillsByOrder map[int64]decimal.Decimal
	seenFillKeys map[string]struct{}
	seenOrder    []string
}

const maxSeenFillKeys = 2000

// Position is one perp position. Size keeps the exchange sign: negative is short.
type Position struct {
	Coin             string
	Size             decimal.Decimal
	EntryPrice       decimal.NullDecimal
	LiquidationPrice decimal.NullDecimal
}

type UserState struct {
	Positions             map[string]Position
	AccountValue          decimal.Decimal
	MaintenanceMarginUsed decimal.Decimal
	Withdrawable          decimal.Decimal
	TimeMS                int64
}

// Position returns the open position in coin. A zero-size entry counts as none.
func (s UserState) Position(coin string) (Position, bool) {
	pos, ok := s.Positions[coin]
	if !ok || pos.Size.IsZero() {
		return Position{}, false
	}
	return pos, true
}

type SpotBalance struct {
	Coin  string
	Total decimal.Decimal
	Hold  decimal.Decimal
}

type SpotState struct {
	Balances map[string]SpotBalance
}

func (s SpotState) Total(coin string) decimal.Decimal {
	return s.Balances[coin].Total
}

// OrderState is the orderStatus view of one order.
type OrderState struct {
	OrderID       int64
	Status        string
	OrigSize      decimal.Decimal
	RemainingSize decimal.Decimal
}

func (o OrderState) Filled() bool {
	return o.Status == "filled"
}

// Open reports whether the order can still trade.
func (o OrderState) Open() bool {
	return o.Status == "open" || o.Status == "triggered"
}

func (o OrderState) Executed() decimal.Decimal {
	if o.OrigSize.IsZero() {
		return decimal.Zero
	}
	return o.OrigSize.Sub(o.RemainingSize)
}

func New(restClient InfoClient, wsClient *ws.Client, log *zap.Logger, user string) *Account {
	if log == nil {
		log = zap.NewNop()
	}
	return &Account{
		rest:         restClient,
		ws:           wsClient,
		log:          log,
		user:         strings.TrimSpace(user),
		fillsByOrder: make(map[int64]decimal.Decimal),
		seenFillKeys: make(map[string]struct{}),
	}
}

func (a *Account) User() string {
	return a.user
}

func (a *Account) UserState(ctx context.Context) (UserState, error) {
	if a.user == "" {
		return UserState{}, ErrNoUser
	}
	resp, err := a.rest.Info(ctx, rest.InfoRequest{Type: "clearinghouseState", User: a.user})
	if err != nil {
		return UserState{}, err
	}
	return parseUserState(resp)
}

func (a *Account) SpotState(ctx context.Context) (SpotState, error) {
	if a.user == "" {
		return SpotState{}, ErrNoUser
	}
	resp, err := a.rest.Info(ctx, rest.InfoRequest{Type: "spotClearinghouseState", User: a.user})
	if err != nil {
		return SpotState{}, err
	}
	return SpotState{Balances: parseBalances(resp)}, nil
}

func (a *Account) OrderStatus(ctx context.Context, oid int64) (OrderState, error) {
	if a.user == "" {
		return OrderState{}, ErrNoUser
	}
	resp, err := a.rest.Info(ctx, rest.InfoRequest{Type: "orderStatus", User: a.user, OID: oid})
	if err != nil {
		return OrderState{}, err
	}
	return parseOrderStatus(oid, resp)
}

// Start subscribes to the user's fill stream so FillSize can answer without
// polling.
func (a *Account) Start(ctx context.Context) error {
	if a.ws == nil {
		return nil
	}
	if a.user == "" {
		return ErrNoUser
	}
	if err := a.ws.Subscribe(ctx, ws.Subscription{Type: "userFills", User: a.user}); err != nil {
		return err
	}
	a.mu.Lock()
	a.fillsEnabled = true
	a.mu.Unlock()
	go func() {
		if err := a.ws.Run(ctx, a.handleMessage); err != nil && ctx.Err() == nil {
			a.log.Warn("account ws stopped", zap.Error(err))
		}
	}()
	return nil
}

func (a *Account) FillsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fillsEnabled
}

// FillSize is the streamed executed size of oid so far.
func (a *Account) FillSize(oid int64) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fillsByOrder[oid]
}

func (a *Account) handleMessage(msg ws.Message) {
	if msg.Channel != "userFills" {
		return
	}
	var payload map[string]any
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		a.log.Debug("account ws decode failed", zap.Error(err))
		return
	}
	a.applyFills(parseFills(payload["fills"]))
}

func (a *Account) applyFills(fills []Fill) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, fill := range fills {
		if fill.OrderID == 0 || fill.Size.IsZero() {
			continue
		}
		key := fill.Hash + ":" + strconv.FormatInt(fill.TID, 10)
		if fill.Hash == "" && fill.TID == 0 {
			key = fmt.Sprintf("%d:%d:%s:%s", fill.OrderID, fill.TimeMS, fill.Size, fill.Price)
		}
		if _, ok := a.seenFillKeys[key]; ok {
			continue
		}
		a.seenFillKeys[key] = struct{}{}
		a.seenOrder = append(a.seenOrder, key)
		a.fillsByOrder[fill.OrderID] = a.fillsByOrder[fill.OrderID].Add(fill.Size.Abs())
	}
	if len(a.seenOrder) > maxSeenFillKeys {
		evict := a.seenOrder[:len(a.seenOrder)-maxSeenFillKeys]
		for _, key := range evict {
			delete(a.seenFillKeys, key)
		}
		a.seenOrder = append([]string(nil), a.seenOrder[len(a.seenOrder)-maxSeenFillKeys:]...)
	}
}

func parseUserState(payload map[string]any) (UserState, error) {
	if payload == nil {
		return UserState{}, errors.New("clearinghouseState: empty response")
	}
	summary, ok := payload["crossMarginSummary"].(map[string]any)
	if !ok {
		summary, _ = payload["marginSummary"].(map[string]any)
	}
	if summary == nil {
		return UserState{}, errors.New("clearinghouseState: margin summary missing")
	}
	state := UserState{
		Positions:             parsePositions(payload),
		AccountValue:          decimalOrZero(summary["accountValue"]),
		MaintenanceMarginUsed: decimalOrZero(payload["crossMaintenanceMarginUsed"]),
		Withdrawable:          decimalOrZero(payload["withdrawable"]),
		TimeMS:                int64FromAny(payload["time"]),
	}
	return state, nil
}

func parsePositions(payload map[string]any) map[string]Position {
	positions := make(map[string]Position)
	raw, ok := payload["assetPositions"].([]any)
	if !ok {
		return positions
	}
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		pos := entry
		if nested, ok := entry["position"].(map[string]any); ok {
			pos = nested
		}
		coin := stringFromAny(pos["coin"])
		if coin == "" {
			continue
		}
		positions[coin] = Position{
			Coin:             coin,
			Size:             decimalOrZero(pos["szi"]),
			EntryPrice:       nullDecimal(pos["entryPx"]),
			LiquidationPrice: nullDecimal(pos["liquidationPx"]),
		}
	}
	return positions
}

func parseBalances(payload map[string]any) map[string]SpotBalance {
	balances := make(map[string]SpotBalance)
	raw, ok := payload["balances"].([]any)
	if !ok {
		return balances
	}
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		coin := stringFromAny(entry["coin"])
		if coin == "" {
			coin = stringFromAny(entry["token"])
		}
		if coin == "" {
			continue
		}
		balances[coin] = SpotBalance{
			Coin:  coin,
			Total: decimalOrZero(entry["total"]),
			Hold:  decimalOrZero(entry["hold"]),
		}
	}
	return balances
}

func parseOrderStatus(oid int64, payload map[string]any) (OrderState, error) {
	if stringFromAny(payload["status"]) != "order" {
		return OrderState{}, fmt.Errorf("order %d: status %v", oid, payload["status"])
	}
	wrapper, ok := payload["order"].(map[string]any)
	if !ok {
		return OrderState{}, fmt.Errorf("order %d: order missing", oid)
	}
	order, _ := wrapper["order"].(map[string]any)
	state := OrderState{
		OrderID: oid,
		Status:  stringFromAny(wrapper["status"]),
	}
	if order != nil {
		state.OrigSize = decimalOrZero(order["origSz"])
		state.RemainingSize = decimalOrZero(order["sz"])
	}
	return state, nil
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func decimalFromAny(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func decimalOrZero(v any) decimal.Decimal {
	d, _ := decimalFromAny(v)
	return d
}

func nullDecimal(v any) decimal.NullDecimal {
	d, ok := decimalFromAny(v)
	return decimal.NullDecimal{Decimal: d, Valid: ok}
}

func int64FromAny(v any) int64 {
	switch val := v.(type) {
	case float64:
		return int64(val)
	case int64:
		return val
	case int:
		return int64(val)
	case json.Number:
		i, _ := val.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return i
	default:
		return 0
	}
}
