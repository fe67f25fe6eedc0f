package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"quotebot/internal/book/entity"
)

// ErrMalformedEvent событие потока не удалось разобрать. Событие отбрасывается, сессия продолжается.
var ErrMalformedEvent = errors.New("malformed book event")

// Normalize превращает payload add_order/remove_order в BookEvent.
// Числа принимаются как строкой, так и числом; отсутствующие необязательные поля равны нулю.
func Normalize(action entity.Action, payload []byte) (entity.BookEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return entity.BookEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if fields == nil {
		return entity.BookEvent{}, fmt.Errorf("%w: payload is not an object", ErrMalformedEvent)
	}

	orderID, err := stringField(fields, "order_id", "id")
	if err != nil {
		return entity.BookEvent{}, err
	}
	if orderID == "" {
		return entity.BookEvent{}, fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}
	pair, err := stringField(fields, "trading_pair")
	if err != nil {
		return entity.BookEvent{}, err
	}
	sideRaw, err := stringField(fields, "order_type", "type")
	if err != nil {
		return entity.BookEvent{}, err
	}

	order := entity.Order{
		OrderID:     orderID,
		TradingPair: strings.ToLower(pair),
		RawData:     string(payload),
	}
	if side, ok := entity.ParseSide(sideRaw); ok {
		order.Side = side
	}

	switch action {
	case entity.ActionRemove:
		return entity.BookEvent{Action: action, Order: order}, nil
	case entity.ActionAdd:
	default:
		return entity.BookEvent{}, fmt.Errorf("%w: unknown action %q", ErrMalformedEvent, action)
	}

	if order.TradingPair == "" {
		return entity.BookEvent{}, fmt.Errorf("%w: missing trading_pair for %s", ErrMalformedEvent, orderID)
	}
	if !order.Side.Valid() {
		return entity.BookEvent{}, fmt.Errorf("%w: bad order_type %q for %s", ErrMalformedEvent, sideRaw, orderID)
	}

	price, ok, err := decimalField(fields, "price")
	if err != nil {
		return entity.BookEvent{}, err
	}
	if !ok || !price.IsPositive() {
		return entity.BookEvent{}, fmt.Errorf("%w: missing or non-positive price for %s", ErrMalformedEvent, orderID)
	}
	order.Price = price

	if order.Amount, _, err = decimalField(fields, "amount", "max_amount"); err != nil {
		return entity.BookEvent{}, err
	}
	if order.MinAmount, _, err = decimalField(fields, "min_amount"); err != nil {
		return entity.BookEvent{}, err
	}
	if order.Volume, _, err = decimalField(fields, "volume"); err != nil {
		return entity.BookEvent{}, err
	}

	return entity.BookEvent{Action: action, Order: order}, nil
}

func lookup(fields map[string]interface{}, keys ...string) (string, interface{}) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return k, v
		}
	}
	return "", nil
}

func stringField(fields map[string]interface{}, keys ...string) (string, error) {
	key, v := lookup(fields, keys...)
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(val), nil
	case json.Number:
		return val.String(), nil
	default:
		return "", fmt.Errorf("%w: field %s has type %T", ErrMalformedEvent, key, v)
	}
}

func decimalField(fields map[string]interface{}, keys ...string) (decimal.Decimal, bool, error) {
	key, v := lookup(fields, keys...)
	var raw string
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false, nil
	case json.Number:
		raw = val.String()
	case string:
		raw = strings.TrimSpace(val)
		if raw == "" {
			return decimal.Zero, false, nil
		}
	default:
		return decimal.Zero, false, fmt.Errorf("%w: field %s has type %T", ErrMalformedEvent, key, v)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: field %s: %v", ErrMalformedEvent, key, err)
	}
	return d, true, nil
}
