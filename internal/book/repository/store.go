package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"quotebot/internal/book/entity"
	"quotebot/internal/metrics"
)

// ErrUnavailable оборачивает любую ошибку хранилища. Позволяет вызывающему
// отличить "хранилище недоступно" от "стакан действительно пуст".
var ErrUnavailable = errors.New("order store unavailable")

// OrderStore зеркало стакана: одна строка на order_id
type OrderStore interface {
	// Upsert идемпотентен: повторное добавление только обновляет created_at
	Upsert(ctx context.Context, order entity.Order) error
	// Remove идемпотентен: удаление отсутствующего id не ошибка
	Remove(ctx context.Context, orderID string) error
	TopOfBook(ctx context.Context, tradingPair string) (entity.TopOfBook, error)
	Count(ctx context.Context, tradingPair string) (int, error)
	Stats(ctx context.Context) (map[string]int, error)
	Pairs(ctx context.Context) ([]string, error)
	// Cleanup удаляет строки старше cutoff и возвращает их количество
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

func unavailable(op string, err error) error {
	metrics.StoreErrorsTotal.WithLabelValues(op).Inc()
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// splitBook раскладывает строки по сторонам и сортирует: asks по возрастанию, bids по убыванию.
// При равной цене раньше идёт более старая заявка.
func splitBook(tradingPair string, orders []entity.Order) entity.TopOfBook {
	book := entity.TopOfBook{
		TradingPair: tradingPair,
		Asks:        make([]entity.BookEntry, 0),
		Bids:        make([]entity.BookEntry, 0),
	}

	var asks, bids []entity.Order
	for _, o := range orders {
		switch o.Side {
		case entity.SideSell:
			asks = append(asks, o)
		case entity.SideBuy:
			bids = append(bids, o)
		}
	}

	sort.SliceStable(asks, func(i, j int) bool {
		if c := asks[i].Price.Cmp(asks[j].Price); c != 0 {
			return c < 0
		}
		return asks[i].CreatedAt.Before(asks[j].CreatedAt)
	})
	sort.SliceStable(bids, func(i, j int) bool {
		if c := bids[i].Price.Cmp(bids[j].Price); c != 0 {
			return c > 0
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})

	for _, o := range asks {
		book.Asks = append(book.Asks, toEntry(o))
	}
	for _, o := range bids {
		book.Bids = append(book.Bids, toEntry(o))
	}
	return book
}

func toEntry(o entity.Order) entity.BookEntry {
	return entity.BookEntry{
		Price:     o.Price,
		Amount:    o.Amount,
		MinAmount: o.MinAmount,
		OrderID:   o.OrderID,
	}
}
