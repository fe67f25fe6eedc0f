package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"quotebot/internal/book/entity"
)

// MemoryStore хранит зеркало в памяти процесса. Используется когда DATABASE_URL не задан и в тестах.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]entity.Order
	now    func() time.Time
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]entity.Order),
		now:    time.Now,
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, order entity.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	s.mu.Lock()
	s.orders[order.OrderID] = order
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, orderID string) error {
	s.mu.Lock()
	delete(s.orders, orderID)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) TopOfBook(ctx context.Context, tradingPair string) (entity.TopOfBook, error) {
	s.mu.RLock()
	rows := make([]entity.Order, 0)
	for _, o := range s.orders {
		if o.TradingPair == tradingPair {
			rows = append(rows, o)
		}
	}
	s.mu.RUnlock()
	return splitBook(tradingPair, rows), nil
}

func (s *MemoryStore) Count(ctx context.Context, tradingPair string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, o := range s.orders {
		if o.TradingPair == tradingPair {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[string]int)
	for _, o := range s.orders {
		stats[o.TradingPair]++
	}
	return stats, nil
}

func (s *MemoryStore) Pairs(ctx context.Context) ([]string, error) {
	stats, _ := s.Stats(ctx)
	pairs := make([]string, 0, len(stats))
	for p := range stats {
		pairs = append(pairs, p)
	}
	sort.Strings(pairs)
	return pairs, nil
}

func (s *MemoryStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, o := range s.orders {
		if o.CreatedAt.Before(cutoff) {
			delete(s.orders, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

var _ OrderStore = (*MemoryStore)(nil)
