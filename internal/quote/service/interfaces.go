package service

import (
	"context"

	exchange "quotebot/internal/bitcoinde/entity"
	book "quotebot/internal/book/entity"
)

// ExchangeClient подписанные вызовы биржи. Все вызовы блокирующие и могут временно падать.
type ExchangeClient interface {
	CreateOrder(ctx context.Context, req exchange.OrderRequest) (string, error)
	DeleteOrder(ctx context.Context, tradingPair, orderID string) error
	ListOwnOrders(ctx context.Context, tradingPair string) ([]exchange.OpenOrder, error)
}

// BookReader чтение зеркала стакана
type BookReader interface {
	TopOfBook(ctx context.Context, tradingPair string) (book.TopOfBook, error)
}
