package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quotebot/internal/book/entity"
	"quotebot/internal/book/repository"
)

type staticFeed bool

func (f staticFeed) IsConnected() bool { return bool(f) }

type staticQueue struct{ pending, shards int }

func (q staticQueue) Len() int    { return q.pending }
func (q staticQueue) Shards() int { return q.shards }

type downStore struct{ *repository.MemoryStore }

func (downStore) TopOfBook(context.Context, string) (entity.TopOfBook, error) {
	return entity.TopOfBook{}, errors.Join(repository.ErrUnavailable, errors.New("dial tcp: refused"))
}

func (downStore) Ping(context.Context) error { return repository.ErrUnavailable }

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/book", h.Routes)
	r.Get("/api/feed", h.FeedState)
	r.Get("/health", h.Health)
	return r
}

func seed(t *testing.T) *repository.MemoryStore {
	t.Helper()
	s := repository.NewMemoryStore()
	for _, o := range []entity.Order{
		{OrderID: "a1", TradingPair: "btceur", Side: entity.SideSell, Price: decimal.NewFromInt(101)},
		{OrderID: "a2", TradingPair: "btceur", Side: entity.SideSell, Price: decimal.NewFromInt(102)},
		{OrderID: "b1", TradingPair: "btceur", Side: entity.SideBuy, Price: decimal.NewFromInt(100)},
		{OrderID: "e1", TradingPair: "etheur", Side: entity.SideBuy, Price: decimal.NewFromInt(2000)},
	} {
		require.NoError(t, s.Upsert(context.Background(), o))
	}
	return s
}

func TestTopOfBookHandler(t *testing.T) {
	h := NewHandler(seed(t), staticFeed(true), staticQueue{0, 4}, zap.NewNop())
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book/BTCEUR?depth=1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var book entity.TopOfBook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "a1", book.Asks[0].OrderID)
	require.Len(t, book.Bids, 1)
}

func TestTopOfBookHandlerBadDepth(t *testing.T) {
	h := NewHandler(seed(t), staticFeed(true), staticQueue{}, zap.NewNop())
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book/btceur?depth=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCountAndStatsHandlers(t *testing.T) {
	h := NewHandler(seed(t), staticFeed(true), staticQueue{}, zap.NewNop())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book/btceur/count", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"trading_pair":"btceur","count":3}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pairs":["btceur","etheur"],"rows_by_pair":{"btceur":3,"etheur":1}}`, rec.Body.String())
}

func TestUnavailableStoreIsNotAnEmptyBook(t *testing.T) {
	h := NewHandler(downStore{repository.NewMemoryStore()}, staticFeed(false), staticQueue{}, zap.NewNop())
	router := newRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book/btceur", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"store":"unavailable","feed_connected":false}`, rec.Body.String())
}

func TestFeedStateHandler(t *testing.T) {
	h := NewHandler(seed(t), staticFeed(true), staticQueue{pending: 2, shards: 4}, zap.NewNop())
	rec := httptest.NewRecorder()
	newRouter(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	assert.JSONEq(t, `{"connected":true,"queue_pending":2,"workers":4}`, rec.Body.String())
}
