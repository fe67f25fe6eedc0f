package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quotebot/internal/book/entity"
	"quotebot/internal/book/repository"
)

// fakeMarket эмулирует socket.io сервер потока рынка
type fakeMarket struct {
	frames    []string
	dropFirst bool // закрыть первое соединение после отправки событий

	conns  atomic.Int32
	joined atomic.Int32
}

func (m *fakeMarket) handler(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := m.conns.Add(1)

	conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":5000}`))
	conn.WriteMessage(websocket.TextMessage, []byte("40"))

	_, msg, err := conn.ReadMessage()
	if err != nil || string(msg) != "40/market," {
		return
	}
	conn.WriteMessage(websocket.TextMessage, []byte("40/market"))

	_, msg, err = conn.ReadMessage()
	if err != nil || string(msg) != `42/market,["join"]` {
		return
	}
	m.joined.Add(1)

	for _, f := range m.frames {
		conn.WriteMessage(websocket.TextMessage, []byte(f))
	}
	if m.dropFirst && n == 1 {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedClientPipeline(t *testing.T) {
	market := &fakeMarket{frames: []string{
		`42/market,["add_order",{"order_id":"A1","order_type":"sell","trading_pair":"btceur","price":"101","amount":"1"}]`,
		`2`,
		`42/market,["remove_order",{"order_id":"A1","trading_pair":"btceur"}]`,
		`42/market,["add_order",{"order_id":"bad"}]`,
		`42/market,["unrelated",{}]`,
		`42/other,["add_order",{"order_id":"X","order_type":"buy","trading_pair":"btceur","price":"1"}]`,
		`42/market,["add_order",{"order_id":"B1","order_type":"buy","trading_pair":"btceur","price":"99.5","amount":2}]`,
	}}
	srv := httptest.NewServer(http.HandlerFunc(market.handler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewIngestQueue(4, 16)
	store := repository.NewMemoryStore()
	pool := NewWorkerPool(q, store, 5*time.Millisecond, zap.NewNop())
	pool.Start(ctx)

	feed := NewFeedClient(FeedConfig{URL: wsURL(srv), ReconnectDelay: 10 * time.Millisecond}, q, zap.NewNop())

	var (
		mu       sync.Mutex
		observed []entity.BookEvent
	)
	feed.SetObserver(func(ev entity.BookEvent) {
		mu.Lock()
		observed = append(observed, ev)
		mu.Unlock()
	})

	require.NoError(t, feed.Connect(ctx))
	require.NoError(t, feed.Connect(ctx), "second Connect is a no-op")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, feed.IsConnected())

	stopCtx, stopCancel := context.WithTimeout(ctx, 2*time.Second)
	defer stopCancel()
	require.NoError(t, feed.Disconnect(stopCtx))
	assert.Zero(t, q.Len())
	assert.False(t, feed.IsConnected())

	cancel()
	pool.Wait()

	book, err := store.TopOfBook(context.Background(), "btceur")
	require.NoError(t, err)
	assert.Empty(t, book.Asks)
	require.Len(t, book.Bids, 1)
	assert.Equal(t, "B1", book.Bids[0].OrderID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, entity.ActionAdd, observed[0].Action)
	assert.Equal(t, entity.ActionRemove, observed[1].Action)
	assert.Equal(t, "B1", observed[2].Order.OrderID)
	assert.Equal(t, int32(1), market.conns.Load())
}

func TestFeedClientReconnects(t *testing.T) {
	market := &fakeMarket{dropFirst: true}
	srv := httptest.NewServer(http.HandlerFunc(market.handler))
	defer srv.Close()

	q := NewIngestQueue(1, 4)
	feed := NewFeedClient(FeedConfig{URL: wsURL(srv), ReconnectDelay: 10 * time.Millisecond}, q, zap.NewNop())

	require.NoError(t, feed.Connect(context.Background()))
	require.Eventually(t, func() bool {
		return market.joined.Load() >= 2 && feed.IsConnected()
	}, 3*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, feed.Disconnect(ctx))
}

func TestFeedClientRetriesUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	q := NewIngestQueue(1, 4)
	feed := NewFeedClient(FeedConfig{URL: url, ReconnectDelay: 5 * time.Millisecond}, q, zap.NewNop())
	require.NoError(t, feed.Connect(context.Background()))

	time.Sleep(30 * time.Millisecond)
	assert.False(t, feed.IsConnected())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, feed.Disconnect(ctx))
}

func TestFeedClientSessionOutlivesConnectContext(t *testing.T) {
	market := &fakeMarket{}
	srv := httptest.NewServer(http.HandlerFunc(market.handler))
	defer srv.Close()

	q := NewIngestQueue(1, 4)
	feed := NewFeedClient(FeedConfig{URL: wsURL(srv), ReconnectDelay: 10 * time.Millisecond}, q, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, feed.Connect(ctx))
	require.Eventually(t, feed.IsConnected, 2*time.Second, 5*time.Millisecond)

	// сигнал завершения процесса не рвет сессию до Disconnect
	cancel()
	time.Sleep(50 * time.Millisecond)
	assert.True(t, feed.IsConnected())
	assert.Equal(t, int32(1), market.conns.Load())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, feed.Disconnect(stopCtx))
	assert.False(t, feed.IsConnected())
}
