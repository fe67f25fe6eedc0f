package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	exchange "quotebot/internal/bitcoinde/entity"
	"quotebot/internal/book/repository"
	"quotebot/internal/metrics"
	"quotebot/internal/quote/entity"
)

const exchangeCallTimeout = 30 * time.Second

// Engine держит одну собственную заявку первой в стакане внутри ценового коридора.
// Один экземпляр на торговую пару; опрашивает зеркало каждые CheckInterval.
type Engine struct {
	cfg      entity.EngineConfig
	band     Band
	store    BookReader
	exchange ExchangeClient
	log      *zap.Logger
	runID    string
	now      func() time.Time

	mu         sync.Mutex
	state      entity.State
	own        *entity.OwnOrder
	lastAction string
	lastError  string
	startedAt  time.Time
	updatedAt  time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewEngine ожидает конфиг после WithDefaults и Validate
func NewEngine(cfg entity.EngineConfig, store BookReader, client ExchangeClient, log *zap.Logger) *Engine {
	runID := uuid.NewString()
	e := &Engine{
		cfg:      cfg,
		band:     Band{MinPrice: cfg.MinPrice, MaxPrice: cfg.MaxPrice, Tick: cfg.Tick},
		store:    store,
		exchange: client,
		log:      log.Named("quote").With(zap.String("pair", cfg.TradingPair), zap.String("side", string(cfg.Side)), zap.String("run_id", runID)),
		runID:    runID,
		now:      time.Now,
		state:    entity.StateNoOwnOrder,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.startedAt = e.now()
	e.updatedAt = e.startedAt
	metrics.QuoteEngineState.WithLabelValues(cfg.TradingPair).Set(float64(entity.StateNoOwnOrder))
	return e
}

// Run крутит цикл до Stop, отмены ctx или обнаружения исполнения заявки.
// На выходе снимает оставшуюся заявку и переходит в Stopped.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	e.log.Info("Quote engine started",
		zap.String("min_price", e.cfg.MinPrice.String()),
		zap.String("max_price", e.cfg.MaxPrice.String()),
		zap.String("amount", e.cfg.Amount.String()),
	)

	for {
		if e.stopRequested() || ctx.Err() != nil {
			break
		}
		wait := e.tick(ctx)
		if e.State() == entity.StateStopped {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
		case <-e.stopCh:
		case <-timer.C:
		}
		timer.Stop()
	}

	e.shutdown()
}

// Stop просит цикл завершиться. Текущий вызов биржи не прерывается.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Done закрывается после выхода из Run
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) State() entity.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Snapshot() entity.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := entity.Snapshot{
		RunID:      e.runID,
		Config:     e.cfg,
		State:      e.state,
		LastAction: e.lastAction,
		LastError:  e.lastError,
		StartedAt:  e.startedAt,
		UpdatedAt:  e.updatedAt,
	}
	if e.own != nil {
		own := *e.own
		snap.OwnOrder = &own
	}
	return snap
}

func (e *Engine) stopRequested() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

// tick один шаг автомата. Возвращает паузу до следующего шага.
func (e *Engine) tick(ctx context.Context) time.Duration {
	switch e.State() {
	case entity.StateNoOwnOrder:
		return e.placeInitial(ctx)
	case entity.StateOwnOrderResting:
		return e.checkResting(ctx)
	case entity.StateReplacing:
		// Перестановка завершается в пределах одного шага
		e.transition(entity.StateOwnOrderResting, "resume")
		return 0
	default:
		return 0
	}
}

func (e *Engine) placeInitial(ctx context.Context) time.Duration {
	callCtx, cancel := e.callContext(ctx)
	orders, err := e.exchange.ListOwnOrders(callCtx, e.cfg.TradingPair)
	cancel()
	if err != nil {
		e.fail("list_orders", err)
		return e.cfg.CheckInterval
	}
	for _, o := range orders {
		if o.TradingPair == e.cfg.TradingPair && o.Side == e.cfg.Side {
			e.setOwn(&entity.OwnOrder{
				OrderID:     o.OrderID,
				TradingPair: e.cfg.TradingPair,
				Side:        e.cfg.Side,
				Price:       o.Price,
				PlacedAt:    e.now(),
			})
			e.log.Info("Adopted existing own order", zap.String("order_id", o.OrderID), zap.String("price", o.Price.String()))
			e.record("adopt")
			e.transition(entity.StateOwnOrderResting, "adopt")
			return e.cfg.CheckInterval
		}
	}

	top, err := e.store.TopOfBook(ctx, e.cfg.TradingPair)
	if err != nil {
		e.storeFailure(err)
		return e.cfg.CheckInterval
	}
	price, reason := InitialPrice(e.cfg.Side, top, e.band)
	e.log.Info("Placing initial order", zap.String("price", price.String()), zap.String("reason", reason))

	if !e.create(ctx, price) {
		return e.cfg.OrderInterval
	}
	e.transition(entity.StateOwnOrderResting, "create")
	return e.cfg.OrderInterval
}

func (e *Engine) checkResting(ctx context.Context) time.Duration {
	top, err := e.store.TopOfBook(ctx, e.cfg.TradingPair)
	if err != nil {
		// Недоступное хранилище не означает исполнение заявки
		e.storeFailure(err)
		return e.cfg.CheckInterval
	}

	e.mu.Lock()
	if e.own == nil {
		e.mu.Unlock()
		e.transition(entity.StateNoOwnOrder, "no own order")
		return 0
	}
	own := *e.own
	e.mu.Unlock()

	if !top.Contains(own.Side, own.OrderID) {
		if !own.Confirmed && e.now().Sub(own.PlacedAt) < e.cfg.ConfirmTimeout {
			e.log.Debug("Own order not yet visible in mirror", zap.String("order_id", own.OrderID))
			return e.cfg.CheckInterval
		}
		e.log.Info("Own order disappeared from book, treating as filled", zap.String("order_id", own.OrderID))
		e.setOwn(nil)
		e.record("filled")
		e.transition(entity.StateStopped, "own order gone")
		return 0
	}
	if !own.Confirmed {
		e.mu.Lock()
		if e.own != nil {
			e.own.Confirmed = true
		}
		e.mu.Unlock()
	}

	d := Decide(PricingInput{
		Side:       own.Side,
		OwnOrderID: own.OrderID,
		OwnPrice:   own.Price,
		Book:       top,
		Band:       e.band,
	})
	if !d.Reprice {
		e.log.Debug("No reprice", zap.String("reason", d.Reason), zap.String("price", own.Price.String()))
		return e.cfg.CheckInterval
	}

	e.log.Info("Reprice required",
		zap.String("from", own.Price.String()),
		zap.String("to", d.Price.String()),
		zap.String("reason", d.Reason),
	)
	e.transition(entity.StateReplacing, d.Reason)
	e.replace(ctx, own, d.Price)
	return e.cfg.OrderInterval
}

// replace снимает заявку own и выставляет новую по price
func (e *Engine) replace(ctx context.Context, own entity.OwnOrder, price decimal.Decimal) {
	callCtx, cancel := e.callContext(ctx)
	err := e.exchange.DeleteOrder(callCtx, own.TradingPair, own.OrderID)
	cancel()
	if err != nil {
		// Вторую заявку не создаем: старая, возможно, еще стоит
		e.fail("cancel", err)
		e.transition(entity.StateOwnOrderResting, "cancel failed")
		return
	}
	e.setOwn(nil)
	e.record("cancel")

	if e.stopRequested() {
		e.transition(entity.StateNoOwnOrder, "stopped between cancel and create")
		return
	}

	if !e.create(ctx, price) {
		e.transition(entity.StateNoOwnOrder, "create failed")
		return
	}
	e.transition(entity.StateOwnOrderResting, "replaced")
}

// create выставляет заявку и при успехе запоминает ее как OwnOrder
func (e *Engine) create(ctx context.Context, price decimal.Decimal) bool {
	req := exchange.OrderRequest{
		TradingPair: e.cfg.TradingPair,
		Side:        e.cfg.Side,
		Amount:      e.cfg.Amount,
		MinAmount:   e.cfg.MinAmount,
		Price:       price,
	}
	if e.cfg.TTL > 0 {
		req.EndDatetime = e.now().Add(e.cfg.TTL)
	}

	callCtx, cancel := e.callContext(ctx)
	orderID, err := e.exchange.CreateOrder(callCtx, req)
	cancel()
	if err != nil {
		e.fail("create", err)
		return false
	}

	e.setOwn(&entity.OwnOrder{
		OrderID:     orderID,
		TradingPair: e.cfg.TradingPair,
		Side:        e.cfg.Side,
		Price:       price,
		PlacedAt:    e.now(),
	})
	e.record("create")
	e.log.Info("Own order placed", zap.String("order_id", orderID), zap.String("price", price.String()))
	return true
}

// shutdown best-effort снимает оставшуюся заявку
func (e *Engine) shutdown() {
	e.mu.Lock()
	own := e.own
	e.mu.Unlock()

	if own != nil {
		ctx, cancel := context.WithTimeout(context.Background(), exchangeCallTimeout)
		err := e.exchange.DeleteOrder(ctx, own.TradingPair, own.OrderID)
		cancel()
		if err != nil {
			e.fail("cancel", err)
			e.log.Warn("Failed to cancel own order on stop", zap.String("order_id", own.OrderID))
		} else {
			e.record("cancel")
			e.setOwn(nil)
		}
	}
	if e.State() != entity.StateStopped {
		e.transition(entity.StateStopped, "stop")
	}
	e.log.Info("Quote engine stopped")
}

// callContext контекст вызова биржи: отмена ctx не прерывает уже начатый вызов
func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), exchangeCallTimeout)
}

func (e *Engine) transition(to entity.State, reason string) {
	e.mu.Lock()
	from := e.state
	e.state = to
	e.updatedAt = e.now()
	e.mu.Unlock()

	metrics.QuoteEngineState.WithLabelValues(e.cfg.TradingPair).Set(float64(to))
	if from != to {
		e.log.Info("State transition", zap.Stringer("from", from), zap.Stringer("to", to), zap.String("reason", reason))
	}
}

func (e *Engine) setOwn(own *entity.OwnOrder) {
	e.mu.Lock()
	e.own = own
	e.updatedAt = e.now()
	e.mu.Unlock()
}

func (e *Engine) record(action string) {
	e.mu.Lock()
	e.lastAction = action
	e.lastError = ""
	e.mu.Unlock()
	metrics.QuoteEngineActionsTotal.WithLabelValues(e.cfg.TradingPair, action).Inc()
}

func (e *Engine) fail(action string, err error) {
	e.mu.Lock()
	e.lastAction = action
	e.lastError = err.Error()
	e.mu.Unlock()
	metrics.QuoteEngineActionsTotal.WithLabelValues(e.cfg.TradingPair, action+"_failed").Inc()
	e.log.Error("Exchange call failed", zap.String("action", action), zap.Error(err))
}

func (e *Engine) storeFailure(err error) {
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()
	if errors.Is(err, repository.ErrUnavailable) {
		e.log.Warn("Order store unavailable, skipping tick", zap.Error(err))
		return
	}
	e.log.Error("Order store read failed, skipping tick", zap.Error(err))
}
