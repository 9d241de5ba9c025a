package exchange

import (
	"bytes"
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// actionWriter encodes L1 actions with a fixed key order. The action hash the
// exchange verifies depends on it, so struct tags are not used here.
type actionWriter struct {
	enc *msgpack.Encoder
	err error
}

func newActionWriter(buf *bytes.Buffer) *actionWriter {
	return &actionWriter{enc: msgpack.NewEncoder(buf)}
}

func (w *actionWriter) mapLen(n int) {
	if w.err == nil {
		w.err = w.enc.EncodeMapLen(n)
	}
}

func (w *actionWriter) arrayLen(n int) {
	if w.err == nil {
		w.err = w.enc.EncodeArrayLen(n)
	}
}

func (w *actionWriter) str(s string) {
	if w.err == nil {
		w.err = w.enc.EncodeString(s)
	}
}

func (w *actionWriter) keyString(key, value string) {
	w.str(key)
	w.str(value)
}

func (w *actionWriter) keyInt(key string, value int64) {
	w.str(key)
	if w.err == nil {
		w.err = w.enc.EncodeInt(value)
	}
}

func (w *actionWriter) keyBool(key string, value bool) {
	w.str(key)
	if w.err == nil {
		w.err = w.enc.EncodeBool(value)
	}
}

func EncodeOrderAction(action OrderAction) ([]byte, error) {
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}
	if len(action.Orders) == 0 {
		return nil, errors.New("action orders are required")
	}
	if action.Grouping == "" {
		action.Grouping = "na"
	}
	for _, order := range action.Orders {
		if order.OrderType.Limit == nil {
			return nil, errors.New("limit order type required")
		}
	}
	var buf bytes.Buffer
	w := newActionWriter(&buf)
	w.mapLen(3)
	w.keyString("type", action.Type)
	w.str("orders")
	w.arrayLen(len(action.Orders))
	for _, order := range action.Orders {
		writeOrder(w, order)
	}
	w.keyString("grouping", action.Grouping)
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

func EncodeCancelAction(action CancelAction) ([]byte, error) {
	if action.Type == "" {
		return nil, errors.New("action type is required")
	}
	if len(action.Cancels) == 0 {
		return nil, errors.New("action cancels are required")
	}
	var buf bytes.Buffer
	w := newActionWriter(&buf)
	w.mapLen(2)
	w.keyString("type", action.Type)
	w.str("cancels")
	w.arrayLen(len(action.Cancels))
	for _, cancel := range action.Cancels {
		w.mapLen(2)
		w.keyInt("a", int64(cancel.Asset))
		w.keyInt("o", cancel.OrderID)
	}
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

func writeOrder(w *actionWriter, order OrderWire) {
	fields := 6
	if order.Cloid != "" {
		fields++
	}
	w.mapLen(fields)
	w.keyInt("a", int64(order.Asset))
	w.keyBool("b", order.IsBuy)
	w.keyString("p", order.Price)
	w.keyString("s", order.Size)
	w.keyBool("r", order.ReduceOnly)
	w.str("t")
	w.mapLen(1)
	w.str("limit")
	w.mapLen(1)
	w.keyString("tif", string(order.OrderType.Limit.Tif))
	if order.Cloid != "" {
		w.keyString("c", order.Cloid)
	}
}
