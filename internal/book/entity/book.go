package entity

import "github.com/shopspring/decimal"

// BookEntry одна позиция в выдаче top-of-book
type BookEntry struct {
	Price     decimal.Decimal `db:"price" json:"price"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	MinAmount decimal.Decimal `db:"min_amount" json:"min_amount"`
	OrderID   string          `db:"order_id" json:"order_id"`
}

// TopOfBook: Asks по возрастанию цены, Bids по убыванию
type TopOfBook struct {
	TradingPair string      `json:"trading_pair"`
	Asks        []BookEntry `json:"asks"`
	Bids        []BookEntry `json:"bids"`
}

// Side возвращает упорядоченную сторону стакана
func (b TopOfBook) Side(side Side) []BookEntry {
	if side == SideSell {
		return b.Asks
	}
	return b.Bids
}

// Contains ищет заявку по order_id на указанной стороне
func (b TopOfBook) Contains(side Side, orderID string) bool {
	for _, e := range b.Side(side) {
		if e.OrderID == orderID {
			return true
		}
	}
	return false
}

// Exclude возвращает копию стакана без заявки orderID
func (b TopOfBook) Exclude(orderID string) TopOfBook {
	return TopOfBook{
		TradingPair: b.TradingPair,
		Asks:        without(b.Asks, orderID),
		Bids:        without(b.Bids, orderID),
	}
}

// Limit обрезает обе стороны до depth позиций; depth <= 0 оставляет всё
func (b TopOfBook) Limit(depth int) TopOfBook {
	if depth <= 0 {
		return b
	}
	out := b
	if len(out.Asks) > depth {
		out.Asks = out.Asks[:depth]
	}
	if len(out.Bids) > depth {
		out.Bids = out.Bids[:depth]
	}
	return out
}

func without(entries []BookEntry, orderID string) []BookEntry {
	out := make([]BookEntry, 0, len(entries))
	for _, e := range entries {
		if e.OrderID != orderID {
			out = append(out, e)
		}
	}
	return out
}
