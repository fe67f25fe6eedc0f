package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"quotebot/internal/book/entity"
	"quotebot/internal/metrics"
	"quotebot/pkg/socketio"
)

const (
	DefaultFeedURL       = "wss://ws.bitcoin.de/socket.io/?EIO=3&transport=websocket"
	DefaultFeedNamespace = "/market"

	eventAddOrder    = "add_order"
	eventRemoveOrder = "remove_order"
)

var errSessionClosed = errors.New("feed session closed by server")

// FeedConfig параметры подключения к потоку стакана
type FeedConfig struct {
	URL            string
	Namespace      string
	ReconnectDelay time.Duration
	ProxyAddr      string // SOCKS5 host:port, пусто без прокси
}

// FeedClient держит сессию с потоком рынка, нормализует события и кладет их в IngestQueue.
// При потере соединения переподключается бесконечно с фиксированной задержкой.
type FeedClient struct {
	cfg    FeedConfig
	queue  *IngestQueue
	log    *zap.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	observer func(entity.BookEvent)

	writeMu   sync.Mutex
	connected atomic.Bool
}

func NewFeedClient(cfg FeedConfig, queue *IngestQueue, log *zap.Logger) *FeedClient {
	if cfg.URL == "" {
		cfg.URL = DefaultFeedURL
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultFeedNamespace
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}

	c := &FeedClient{
		cfg:   cfg,
		queue: queue,
		log:   log.Named("feed"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}

	// Настройка прокси если указан
	if cfg.ProxyAddr != "" {
		proxyURL := &url.URL{Scheme: "socks5", Host: cfg.ProxyAddr}
		proxyDialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			c.log.Error("Failed to create proxy dialer", zap.Error(err))
		} else {
			c.dialer.NetDial = proxyDialer.Dial
		}
	}
	return c
}

// SetObserver задает колбэк, вызываемый после успешной постановки события в очередь
func (c *FeedClient) SetObserver(fn func(entity.BookEvent)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (c *FeedClient) IsConnected() bool {
	return c.connected.Load()
}

// Connect запускает фоновую сессию. Повторный вызов на работающем клиенте ничего не делает.
// Сессию завершает только Disconnect, отмена ctx на нее не влияет.
func (c *FeedClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.queue.Reopen()

	go c.loop(sessionCtx, c.done)
	c.log.Info("Feed client started", zap.String("url", c.cfg.URL), zap.String("namespace", c.cfg.Namespace))
	return nil
}

// Disconnect перестает принимать новые события, ждет обработки уже принятых и закрывает сессию
func (c *FeedClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	c.queue.Close()
	c.log.Info("Waiting for ingest queue to drain", zap.Int("pending", c.queue.Len()))
	joinErr := c.queue.Join(ctx)
	if joinErr != nil {
		c.log.Warn("Ingest queue not drained before deadline", zap.Int("pending", c.queue.Len()), zap.Error(joinErr))
	} else {
		c.log.Info("Ingest queue drained")
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	c.log.Info("Feed client stopped")
	return joinErr
}

func (c *FeedClient) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		err := c.session(ctx)
		c.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("Feed session lost, reconnecting", zap.Error(err), zap.Duration("delay", c.cfg.ReconnectDelay))
		metrics.FeedReconnectsTotal.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *FeedClient) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to feed: %w", err)
	}
	defer conn.Close()

	// Закрывается при Disconnect или выходе из session
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		// Разблокирует ReadMessage
		c.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	readTimeout := time.Duration(0)
	for {
		if readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		frame, err := socketio.Parse(msg)
		if err != nil {
			c.log.Warn("Dropping malformed frame", zap.ByteString("frame", msg), zap.Error(err))
			continue
		}

		switch frame.Engine {
		case socketio.EngineOpen:
			hs, err := frame.Handshake()
			if err != nil {
				return err
			}
			readTimeout = hs.Interval() + hs.Timeout()
			if hs.Interval() > 0 {
				go c.keepAlive(sessionCtx, conn, hs.Interval())
			}
			if err := c.write(conn, websocket.TextMessage, socketio.EncodeConnect(c.cfg.Namespace)); err != nil {
				return fmt.Errorf("namespace connect: %w", err)
			}
			c.log.Debug("Engine.IO session opened", zap.String("sid", hs.SID))

		case socketio.EnginePing:
			if err := c.write(conn, websocket.TextMessage, socketio.EncodePong()); err != nil {
				return fmt.Errorf("pong: %w", err)
			}

		case socketio.EngineClose:
			return errSessionClosed

		case socketio.EngineMessage:
			if frame.Namespace != c.cfg.Namespace {
				continue
			}
			switch frame.Socket {
			case socketio.SocketConnect:
				join, err := socketio.EncodeEvent(c.cfg.Namespace, "join")
				if err != nil {
					return err
				}
				if err := c.write(conn, websocket.TextMessage, join); err != nil {
					return fmt.Errorf("join: %w", err)
				}
				c.setConnected(true)
				c.log.Info("Feed connected", zap.String("namespace", c.cfg.Namespace))
			case socketio.SocketDisconnect:
				return errSessionClosed
			case socketio.SocketError:
				return fmt.Errorf("namespace error: %s", frame.Data)
			case socketio.SocketEvent:
				c.dispatch(ctx, frame)
			}
		}
	}
}

func (c *FeedClient) dispatch(ctx context.Context, frame socketio.Frame) {
	name, args, err := frame.Event()
	if err != nil {
		c.log.Warn("Dropping malformed event", zap.Error(err))
		metrics.FeedEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return
	}

	var action entity.Action
	switch name {
	case eventAddOrder:
		action = entity.ActionAdd
	case eventRemoveOrder:
		action = entity.ActionRemove
	default:
		c.log.Debug("Ignoring event", zap.String("event", name))
		return
	}
	if len(args) == 0 {
		c.log.Warn("Dropping event without payload", zap.String("event", name))
		metrics.FeedEventsTotal.WithLabelValues(string(action), "malformed").Inc()
		return
	}

	c.handle(ctx, action, args[0])
}

func (c *FeedClient) handle(ctx context.Context, action entity.Action, payload json.RawMessage) {
	ev, err := Normalize(action, payload)
	if err != nil {
		c.log.Warn("Dropping malformed event", zap.String("action", string(action)), zap.Error(err))
		metrics.FeedEventsTotal.WithLabelValues(string(action), "malformed").Inc()
		return
	}

	if err := c.queue.Enqueue(ctx, ev); err != nil {
		c.log.Debug("Event not enqueued", zap.String("order_id", ev.Order.OrderID), zap.Error(err))
		metrics.FeedEventsTotal.WithLabelValues(string(action), "rejected").Inc()
		return
	}
	metrics.FeedEventsTotal.WithLabelValues(string(action), "ok").Inc()
	c.log.Debug("Queued book event", zap.String("action", string(action)), zap.String("order_id", ev.Order.OrderID))

	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()
	if observer != nil {
		observer(ev)
	}
}

// keepAlive отправляет ping Engine.IO v3 с интервалом из handshake
func (c *FeedClient) keepAlive(ctx context.Context, conn *websocket.Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(conn, websocket.TextMessage, socketio.EncodePing()); err != nil {
				c.log.Warn("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *FeedClient) write(conn *websocket.Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(messageType, data)
}

func (c *FeedClient) setConnected(v bool) {
	c.connected.Store(v)
	if v {
		metrics.FeedConnected.Set(1)
	} else {
		metrics.FeedConnected.Set(0)
	}
}
