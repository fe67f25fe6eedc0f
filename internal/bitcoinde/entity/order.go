package entity

import (
	"time"

	"github.com/shopspring/decimal"

	book "quotebot/internal/book/entity"
)

// OrderRequest параметры новой заявки
type OrderRequest struct {
	TradingPair string
	Side        book.Side
	Amount      decimal.Decimal // max_amount_currency_to_trade
	MinAmount   decimal.Decimal // min_amount_currency_to_trade, ноль = весь объем
	Price       decimal.Decimal
	EndDatetime time.Time // ноль = срок по умолчанию на бирже
}

// OpenOrder собственная заявка из ответа биржи
type OpenOrder struct {
	OrderID     string          `json:"order_id"`
	TradingPair string          `json:"trading_pair"`
	Side        book.Side       `json:"type"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"max_amount_currency_to_trade"`
	MinAmount   decimal.Decimal `json:"min_amount_currency_to_trade"`
	State       int             `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
}

// APIErrorItem элемент массива errors в ответе
type APIErrorItem struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}
