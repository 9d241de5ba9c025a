package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"hl-funding-arb/internal/account"
	"hl-funding-arb/internal/exec"
	"hl-funding-arb/internal/market"
	"hl-funding-arb/internal/timescale"

	"github.com/shopspring/decimal"
)

func level(px, sz string) market.Level {
	return market.Level{Price: d(px), Size: d(sz)}
}

var (
	hypePerp = market.PerpContext{Name: "HYPE", Index: 159, SzDecimals: 2}
	hypeSpot = market.SpotContext{
		Symbol:         "HYPE/USDC",
		Base:           "HYPE",
		Quote:          "USDC",
		Index:          107,
		BaseSzDecimals: 2,
		BookKey:        "@107",
	}
)

type fakeMarket struct {
	mu           sync.Mutex
	funding      market.Funding
	fundingErr   error
	fundingCalls int
	books        map[string]market.Book
}

func newFakeMarket(rate string) *fakeMarket {
	return &fakeMarket{
		funding: market.Funding{Coin: "HYPE", Rate: d(rate), MarkPrice: d("21")},
		books: map[string]market.Book{
			"@107": {Coin: "@107", Bids: market.Side{level("21.5", "10")}, Asks: market.Side{level("21.6", "10")}, TimeMS: 1},
			"HYPE": {Coin: "HYPE", Bids: market.Side{level("21.4", "5")}, Asks: market.Side{level("21.6", "5")}, TimeMS: 1},
		},
	}
}

func (m *fakeMarket) Funding(ctx context.Context, coin string) (market.Funding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fundingCalls++
	return m.funding, m.fundingErr
}

func (m *fakeMarket) L2Book(ctx context.Context, coin string) (market.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	book, ok := m.books[coin]
	if !ok {
		return market.Book{}, fmt.Errorf("no book for %s", coin)
	}
	return book, nil
}

func (m *fakeMarket) PerpContext(coin string) (market.PerpContext, bool) {
	return hypePerp, coin == hypePerp.Name
}

func (m *fakeMarket) SpotContext(pair string) (market.SpotContext, bool) {
	return hypeSpot, pair == hypeSpot.Symbol
}

type fakeAccount struct {
	mu             sync.Mutex
	user           account.UserState
	userErr        error
	userCalls      int
	spotStates     []account.SpotState
	spotCalls      int
	orders         map[int64]account.OrderState
	fills          []account.Fill
	fillsByTime    []account.Fill
	byTimeStarts   []int64
	fillsEnabled   bool
	streamedFills  map[int64]decimal.Decimal
	orderStatusErr error
}

func (a *fakeAccount) UserState(ctx context.Context) (account.UserState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userCalls++
	return a.user, a.userErr
}

// SpotState walks spotStates one call at a time and then repeats the last.
func (a *fakeAccount) SpotState(ctx context.Context) (account.SpotState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.spotStates) == 0 {
		return account.SpotState{}, errors.New("no spot state")
	}
	idx := a.spotCalls
	if idx >= len(a.spotStates) {
		idx = len(a.spotStates) - 1
	}
	a.spotCalls++
	return a.spotStates[idx], nil
}

func (a *fakeAccount) OrderStatus(ctx context.Context, oid int64) (account.OrderState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.orderStatusErr != nil {
		return account.OrderState{}, a.orderStatusErr
	}
	st, ok := a.orders[oid]
	if !ok {
		return account.OrderState{}, fmt.Errorf("order %d unknown", oid)
	}
	return st, nil
}

func (a *fakeAccount) UserFills(ctx context.Context) ([]account.Fill, error) {
	return a.fills, nil
}

func (a *fakeAccount) UserFillsByTime(ctx context.Context, startMS, endMS int64) ([]account.Fill, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byTimeStarts = append(a.byTimeStarts, startMS)
	return a.fillsByTime, nil
}

func (a *fakeAccount) FillsEnabled() bool {
	return a.fillsEnabled
}

func (a *fakeAccount) FillSize(oid int64) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.streamedFills[oid]
}

type fakeOrders struct {
	mu      sync.Mutex
	placed  []exec.Order
	results []exec.OrderResult
	errs    []error
	cancels []exec.Cancel
}

func (o *fakeOrders) PlaceOrder(ctx context.Context, order exec.Order) (exec.OrderResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := len(o.placed)
	o.placed = append(o.placed, order)
	var res exec.OrderResult
	var err error
	if i < len(o.results) {
		res = o.results[i]
	}
	if i < len(o.errs) {
		err = o.errs[i]
	}
	return res, err
}

func (o *fakeOrders) CancelOrder(ctx context.Context, cancel exec.Cancel) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels = append(o.cancels, cancel)
	return nil
}

type transfer struct {
	amount decimal.Decimal
	toPerp bool
}

type fakeTransfers struct {
	calls []transfer
	err   error
}

func (t *fakeTransfers) USDClassTransfer(ctx context.Context, amount decimal.Decimal, toPerp bool) error {
	t.calls = append(t.calls, transfer{amount: amount, toPerp: toPerp})
	return t.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
}

func (n *recordingNotifier) contains(sub string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, msg := range n.messages {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

type recordingHistory struct {
	health []timescale.HealthCheck
	pnl    []timescale.PnLReport
}

func (h *recordingHistory) EnqueueHealth(check timescale.HealthCheck) {
	h.health = append(h.health, check)
}

func (h *recordingHistory) EnqueuePnL(report timescale.PnLReport) {
	h.pnl = append(h.pnl, report)
}

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string]string)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}

func spotBalances(pairs ...string) account.SpotState {
	balances := make(map[string]account.SpotBalance)
	for i := 0; i+1 < len(pairs); i += 2 {
		balances[pairs[i]] = account.SpotBalance{Coin: pairs[i], Total: d(pairs[i+1])}
	}
	return account.SpotState{Balances: balances}
}

func shortPosition(size, entry, liquidation string) account.Position {
	pos := account.Position{
		Coin:       "HYPE",
		Size:       d(size),
		EntryPrice: decimal.NewNullDecimal(d(entry)),
	}
	if liquidation != "" {
		pos.LiquidationPrice = decimal.NewNullDecimal(d(liquidation))
	}
	return pos
}
