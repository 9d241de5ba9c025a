package exchange

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrActionFailed = errors.New("exchange action failed")
	ErrOrderError   = errors.New("order error")
)

// CheckStatus returns ErrActionFailed unless the response carries status "ok".
func CheckStatus(resp map[string]any) error {
	if resp == nil {
		return fmt.Errorf("%w: empty response", ErrActionFailed)
	}
	status, _ := resp["status"].(string)
	if status == "ok" {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrActionFailed, resp["response"])
}

// ParseOrderStatus extracts the first order status from an order response.
func ParseOrderStatus(resp map[string]any) (OrderStatus, error) {
	if err := CheckStatus(resp); err != nil {
		return OrderStatus{}, err
	}
	body, _ := resp["response"].(map[string]any)
	data, _ := body["data"].(map[string]any)
	statuses, _ := data["statuses"].([]any)
	if len(statuses) == 0 {
		return OrderStatus{}, fmt.Errorf("%w: no order statuses", ErrActionFailed)
	}
	entry, ok := statuses[0].(map[string]any)
	if !ok {
		// statuses like "waitingForFill" arrive as bare strings
		return OrderStatus{}, fmt.Errorf("%w: unexpected status %v", ErrActionFailed, statuses[0])
	}
	if msg, ok := entry["error"].(string); ok {
		return OrderStatus{Error: msg}, fmt.Errorf("%w: %s", ErrOrderError, msg)
	}
	if resting, ok := entry["resting"].(map[string]any); ok {
		oid, ok := int64FromAny(resting["oid"])
		if !ok {
			return OrderStatus{}, fmt.Errorf("%w: resting order without oid", ErrActionFailed)
		}
		cloid, _ := resting["cloid"].(string)
		return OrderStatus{Resting: &RestingStatus{OrderID: oid, Cloid: cloid}}, nil
	}
	if filled, ok := entry["filled"].(map[string]any); ok {
		oid, ok := int64FromAny(filled["oid"])
		if !ok {
			return OrderStatus{}, fmt.Errorf("%w: filled order without oid", ErrActionFailed)
		}
		return OrderStatus{Filled: &FilledStatus{
			OrderID: oid,
			TotalSz: stringFromAny(filled["totalSz"]),
			AvgPx:   stringFromAny(filled["avgPx"]),
		}}, nil
	}
	return OrderStatus{}, fmt.Errorf("%w: unrecognised status %v", ErrActionFailed, entry)
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func int64FromAny(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}
