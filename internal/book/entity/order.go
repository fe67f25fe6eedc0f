package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side сторона заявки в стакане
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide нормализует сторону из сырого значения биржи ("BUY", " sell " и т.п.)
func ParseSide(s string) (Side, bool) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, true
	case SideSell:
		return SideSell, true
	}
	return "", false
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Order представляет одну стоящую заявку зеркального стакана
type Order struct {
	OrderID     string          `db:"order_id" json:"order_id"`
	TradingPair string          `db:"trading_pair" json:"trading_pair"`
	Side        Side            `db:"side" json:"side"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	MinAmount   decimal.Decimal `db:"min_amount" json:"min_amount"`
	Volume      decimal.Decimal `db:"volume" json:"volume"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	RawData     string          `db:"raw_data" json:"-"` // исходный payload для аудита
}

// Action тип события стакана
type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// BookEvent единица работы между FeedClient и пулом воркеров
type BookEvent struct {
	Action Action `json:"action"`
	Order  Order  `json:"order"`
}
