package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"quotebot/internal/book/entity"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS book_orders (
		order_id     TEXT PRIMARY KEY,
		trading_pair TEXT NOT NULL,
		side         TEXT NOT NULL,
		price        NUMERIC(20,8) NOT NULL,
		amount       NUMERIC(20,8) NOT NULL DEFAULT 0,
		min_amount   NUMERIC(20,8) NOT NULL DEFAULT 0,
		volume       NUMERIC(20,8) NOT NULL DEFAULT 0,
		raw_data     TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_book_orders_pair ON book_orders (trading_pair)`,
	`CREATE INDEX IF NOT EXISTS idx_book_orders_created_at ON book_orders (created_at)`,
}

const upsertOrderQuery = `
	INSERT INTO book_orders (order_id, trading_pair, side, price, amount, min_amount, volume, raw_data, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (order_id) DO UPDATE SET
		trading_pair = EXCLUDED.trading_pair,
		side         = EXCLUDED.side,
		price        = EXCLUDED.price,
		amount       = EXCLUDED.amount,
		min_amount   = EXCLUDED.min_amount,
		volume       = EXCLUDED.volume,
		raw_data     = EXCLUDED.raw_data,
		created_at   = EXCLUDED.created_at
`

// PostgresOrderStore реализация OrderStore для PostgreSQL.
// Записи сериализуются мьютексом, чтения идут параллельно друг другу, но не параллельно записи.
type PostgresOrderStore struct {
	DB  *sqlx.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewPostgresOrderStore создает репозиторий стакана
func NewPostgresOrderStore(db *sqlx.DB) *PostgresOrderStore {
	return &PostgresOrderStore{DB: db, now: time.Now}
}

// EnsureSchema создает таблицу и индексы, если их нет
func (s *PostgresOrderStore) EnsureSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return unavailable("schema", err)
		}
	}
	return nil
}

func (s *PostgresOrderStore) Upsert(ctx context.Context, o entity.Order) error {
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.DB.ExecContext(ctx, upsertOrderQuery,
		o.OrderID, o.TradingPair, string(o.Side), o.Price, o.Amount, o.MinAmount, o.Volume, o.RawData, createdAt,
	)
	if err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

func (s *PostgresOrderStore) Remove(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.DB.ExecContext(ctx, "DELETE FROM book_orders WHERE order_id = $1", orderID); err != nil {
		return unavailable("remove", err)
	}
	return nil
}

func (s *PostgresOrderStore) TopOfBook(ctx context.Context, tradingPair string) (entity.TopOfBook, error) {
	query := `
		SELECT order_id, side, price, amount, min_amount, created_at
		FROM book_orders
		WHERE trading_pair = $1
	`
	var rows []entity.Order

	s.mu.RLock()
	err := s.DB.SelectContext(ctx, &rows, query, tradingPair)
	s.mu.RUnlock()
	if err != nil {
		return entity.TopOfBook{TradingPair: tradingPair}, unavailable("top_of_book", err)
	}
	return splitBook(tradingPair, rows), nil
}

func (s *PostgresOrderStore) Count(ctx context.Context, tradingPair string) (int, error) {
	var n int
	s.mu.RLock()
	err := s.DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM book_orders WHERE trading_pair = $1", tradingPair)
	s.mu.RUnlock()
	if err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

func (s *PostgresOrderStore) Stats(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.DB.QueryContext(ctx, "SELECT trading_pair, COUNT(*) FROM book_orders GROUP BY trading_pair")
	if err != nil {
		return nil, unavailable("stats", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var (
			pair string
			n    int
		)
		if err := rows.Scan(&pair, &n); err != nil {
			return nil, unavailable("stats", err)
		}
		stats[pair] = n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("stats", err)
	}
	return stats, nil
}

func (s *PostgresOrderStore) Pairs(ctx context.Context) ([]string, error) {
	pairs := make([]string, 0)
	s.mu.RLock()
	err := s.DB.SelectContext(ctx, &pairs, "SELECT DISTINCT trading_pair FROM book_orders ORDER BY trading_pair")
	s.mu.RUnlock()
	if err != nil {
		return nil, unavailable("pairs", err)
	}
	return pairs, nil
}

func (s *PostgresOrderStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.DB.ExecContext(ctx, "DELETE FROM book_orders WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, unavailable("cleanup", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("cleanup", err)
	}
	return n, nil
}

func (s *PostgresOrderStore) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *PostgresOrderStore) Close() error {
	return s.DB.Close()
}

var _ OrderStore = (*PostgresOrderStore)(nil)
