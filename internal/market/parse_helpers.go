package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func parsePerpContexts(payload any) (map[string]PerpContext, error) {
	universe, ctxs := extractUniverseAndCtxs(payload, "assetCtxs")
	if len(universe) == 0 || len(ctxs) == 0 {
		return nil, errors.New("metaAndAssetCtxs missing universe or asset contexts")
	}
	result := make(map[string]PerpContext)
	for i, entry := range universe {
		meta, ok := toMap(entry)
		if !ok {
			continue
		}
		name := stringFromMap(meta, "name", "coin", "symbol")
		if name == "" {
			continue
		}
		ctx, ok := indexedMap(ctxs, i)
		if !ok {
			continue
		}
		result[name] = PerpContext{
			Name:        name,
			Index:       intFromAny(meta["index"], i),
			FundingRate: decimalFromMap(ctx, "funding", "fundingRate"),
			OraclePrice: decimalFromMap(ctx, "oraclePx", "oraclePrice"),
			MarkPrice:   decimalFromMap(ctx, "markPx", "markPrice"),
			SzDecimals:  intFromAny(meta["szDecimals"], 0),
		}
	}
	if len(result) == 0 {
		return nil, errors.New("no perp contexts parsed")
	}
	return result, nil
}

func parseSpotContexts(payload any) (map[string]SpotContext, error) {
	universe, tokens := extractSpotUniverseAndTokens(payload)
	if len(universe) == 0 {
		return nil, errors.New("spot meta missing universe")
	}
	tokenMeta := tokenMetaByIndex(tokens)
	result := make(map[string]SpotContext)
	for i, entry := range universe {
		meta, ok := toMap(entry)
		if !ok {
			continue
		}
		rawName := stringFromMap(meta, "name", "symbol", "coin")
		base, quote, baseDecimals := baseQuoteFromTokens(meta, tokenMeta)
		name := spotSymbol(meta, base, quote)
		if name == "" {
			continue
		}
		bookKey := rawName
		if bookKey == "" {
			bookKey = name
		}
		ctx := SpotContext{
			Symbol:         name,
			Base:           base,
			Quote:          quote,
			Index:          intFromAny(meta["index"], i),
			BaseSzDecimals: baseDecimals,
			BookKey:        bookKey,
		}
		result[name] = ctx
		if rawName != "" && rawName != name {
			result[rawName] = ctx
		}
	}
	if len(result) == 0 {
		return nil, errors.New("no spot contexts parsed")
	}
	return result, nil
}

// parseBook reads an l2Book payload: levels[0] are bids, levels[1] asks, each
// entry {"px","sz","n"} with string numbers.
func parseBook(coin string, payload map[string]any) (Book, error) {
	levels, ok := toSlice(payload["levels"])
	if !ok || len(levels) != 2 {
		return Book{}, fmt.Errorf("l2Book %s: expected two sides, got %v", coin, payload["levels"])
	}
	bids, err := parseSide(levels[0])
	if err != nil {
		return Book{}, fmt.Errorf("l2Book %s bids: %w", coin, err)
	}
	asks, err := parseSide(levels[1])
	if err != nil {
		return Book{}, fmt.Errorf("l2Book %s asks: %w", coin, err)
	}
	name := stringFromMap(payload, "coin")
	if name == "" {
		name = coin
	}
	return Book{
		Coin:   name,
		Bids:   bids,
		Asks:   asks,
		TimeMS: int64(intFromAny(payload["time"], 0)),
	}, nil
}

func parseSide(raw any) (Side, error) {
	items, ok := toSlice(raw)
	if !ok {
		return nil, errors.New("side is not a list")
	}
	side := make(Side, 0, len(items))
	for i, item := range items {
		lvl, ok := toMap(item)
		if !ok {
			return nil, fmt.Errorf("level %d is not an object", i)
		}
		px, okPx := decimalFromAny(lvl["px"])
		sz, okSz := decimalFromAny(lvl["sz"])
		if !okPx || !okSz {
			return nil, fmt.Errorf("level %d missing px or sz", i)
		}
		if px.IsNegative() || sz.IsNegative() {
			return nil, fmt.Errorf("level %d has negative px or sz", i)
		}
		side = append(side, Level{Price: px, Size: sz})
	}
	return side, nil
}

func extractUniverseAndCtxs(payload any, ctxKey string) ([]any, []any) {
	if arr, ok := toSlice(payload); ok && len(arr) >= 2 {
		metaMap, _ := toMap(arr[0])
		if metaMap != nil {
			if universe, ok := toSlice(metaMap["universe"]); ok {
				ctxs, _ := toSlice(arr[1])
				return universe, ctxs
			}
		}
	}
	if metaMap, ok := toMap(payload); ok {
		universe, _ := toSlice(metaMap["universe"])
		ctxs, _ := toSlice(metaMap[ctxKey])
		return universe, ctxs
	}
	return nil, nil
}

func extractSpotUniverseAndTokens(payload any) ([]any, []any) {
	if arr, ok := toSlice(payload); ok && len(arr) >= 1 {
		payload = arr[0]
	}
	if metaMap, ok := toMap(payload); ok {
		universe, _ := toSlice(metaMap["universe"])
		tokens, _ := toSlice(metaMap["tokens"])
		return universe, tokens
	}
	return nil, nil
}

type tokenMeta struct {
	name       string
	szDecimals int
}

func tokenMetaByIndex(tokens []any) map[int]tokenMeta {
	if len(tokens) == 0 {
		return nil
	}
	names := make(map[int]tokenMeta, len(tokens))
	for i, item := range tokens {
		meta, ok := toMap(item)
		if !ok {
			continue
		}
		name := stringFromMap(meta, "name")
		if name == "" {
			continue
		}
		names[intFromAny(meta["index"], i)] = tokenMeta{
			name:       name,
			szDecimals: intFromAny(meta["szDecimals"], 0),
		}
	}
	return names
}

func baseQuoteFromTokens(meta map[string]any, tokenNames map[int]tokenMeta) (string, string, int) {
	tokens, ok := toSlice(meta["tokens"])
	if !ok || len(tokens) < 2 || tokenNames == nil {
		return stringFromMap(meta, "base"), stringFromMap(meta, "quote"), 0
	}
	base := tokenNames[intFromAny(tokens[0], -1)]
	quote := tokenNames[intFromAny(tokens[1], -1)]
	return base.name, quote.name, base.szDecimals
}

func spotSymbol(meta map[string]any, base, quote string) string {
	name := stringFromMap(meta, "name", "symbol", "coin")
	if name != "" && !strings.HasPrefix(name, "@") {
		return name
	}
	if base != "" && quote != "" {
		return base + "/" + quote
	}
	return name
}

func indexedMap(items []any, idx int) (map[string]any, bool) {
	if idx < 0 || idx >= len(items) {
		return nil, false
	}
	return toMap(items[idx])
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func decimalFromMap(m map[string]any, keys ...string) decimal.Decimal {
	for _, key := range keys {
		if d, ok := decimalFromAny(m[key]); ok {
			return d
		}
	}
	return decimal.Zero
}

// decimalFromAny accepts the exchange's string numbers as well as plain JSON numbers.
func decimalFromAny(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func intFromAny(v any, fallback int) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case int64:
		return int(val)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return fallback
}
