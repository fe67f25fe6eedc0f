package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quotebot/internal/book/entity"
	"quotebot/internal/book/repository"
	"quotebot/internal/metrics"
)

const applyTimeout = 10 * time.Second

// WorkerPool применяет события очереди к OrderStore, по одному воркеру на шард
type WorkerPool struct {
	queue      *IngestQueue
	store      repository.OrderStore
	popTimeout time.Duration
	log        *zap.Logger
	wg         sync.WaitGroup
}

func NewWorkerPool(queue *IngestQueue, store repository.OrderStore, popTimeout time.Duration, log *zap.Logger) *WorkerPool {
	if popTimeout <= 0 {
		popTimeout = time.Second
	}
	return &WorkerPool{
		queue:      queue,
		store:      store,
		popTimeout: popTimeout,
		log:        log.Named("worker"),
	}
}

// Start запускает воркеры. Они работают, пока ctx не отменен.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.queue.Shards(); i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.log.Info("Worker pool started", zap.Int("workers", p.queue.Shards()))
}

// Wait ждет завершения всех воркеров
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(ctx context.Context, shard int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.log.Debug("Worker stopped", zap.Int("shard", shard))
			return
		default:
		}

		ev, ok := p.queue.Pop(shard, p.popTimeout)
		if !ok {
			continue
		}
		p.apply(ctx, ev)
		p.queue.Done()
	}
}

func (p *WorkerPool) apply(ctx context.Context, ev entity.BookEvent) {
	// Событие уже принято: доводим запись до конца даже при остановке пула
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), applyTimeout)
	defer cancel()

	var err error
	switch ev.Action {
	case entity.ActionAdd:
		err = p.store.Upsert(opCtx, ev.Order)
	case entity.ActionRemove:
		err = p.store.Remove(opCtx, ev.Order.OrderID)
	default:
		p.log.Warn("Unknown book action", zap.String("action", string(ev.Action)), zap.String("order_id", ev.Order.OrderID))
		metrics.WorkerEventsTotal.WithLabelValues(string(ev.Action), "skipped").Inc()
		return
	}

	if err != nil {
		p.log.Error("Failed to apply book event",
			zap.String("action", string(ev.Action)),
			zap.String("order_id", ev.Order.OrderID),
			zap.Error(err),
		)
		metrics.WorkerEventsTotal.WithLabelValues(string(ev.Action), "error").Inc()
		return
	}
	metrics.WorkerEventsTotal.WithLabelValues(string(ev.Action), "ok").Inc()
	p.log.Debug("Applied book event", zap.String("action", string(ev.Action)), zap.String("order_id", ev.Order.OrderID))
}
