package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"quotebot/internal/book/entity"
	"quotebot/internal/metrics"
)

var ErrQueueClosed = errors.New("ingest queue closed")

// IngestQueue буфер между сетевым приёмом и записью в хранилище.
// Очередь разбита на шарды по хэшу order_id: у каждого шарда ровно один воркер,
// поэтому события одного order_id применяются строго в порядке поступления.
type IngestQueue struct {
	shards []chan entity.BookEvent

	mu      sync.Mutex
	closed  bool
	pending int
	idle    chan struct{} // закрыт, когда pending == 0
}

// NewIngestQueue создает очередь из shards шардов ёмкостью capacity каждый
func NewIngestQueue(shards, capacity int) *IngestQueue {
	if shards < 1 {
		shards = 1
	}
	if capacity < 1 {
		capacity = 1
	}
	q := &IngestQueue{
		shards: make([]chan entity.BookEvent, shards),
		idle:   make(chan struct{}),
	}
	for i := range q.shards {
		q.shards[i] = make(chan entity.BookEvent, capacity)
	}
	close(q.idle)
	return q
}

func (q *IngestQueue) Shards() int { return len(q.shards) }

// ShardFor номер шарда для order_id
func (q *IngestQueue) ShardFor(orderID string) int {
	return int(xxhash.Sum64String(orderID) % uint64(len(q.shards)))
}

// Enqueue кладет событие в шард его order_id. Блокируется, если шард заполнен.
func (q *IngestQueue) Enqueue(ctx context.Context, ev entity.BookEvent) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending++
	if q.pending == 1 {
		q.idle = make(chan struct{})
	}
	metrics.IngestQueueDepth.Set(float64(q.pending))
	q.mu.Unlock()

	select {
	case q.shards[q.ShardFor(ev.Order.OrderID)] <- ev:
		return nil
	case <-ctx.Done():
		q.Done()
		return ctx.Err()
	}
}

// Pop ждет событие шарда не дольше timeout
func (q *IngestQueue) Pop(shard int, timeout time.Duration) (entity.BookEvent, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-q.shards[shard]:
		return ev, true
	case <-timer.C:
		return entity.BookEvent{}, false
	}
}

// Done подтверждает обработку одного события, полученного через Pop
func (q *IngestQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == 0 {
		return
	}
	q.pending--
	metrics.IngestQueueDepth.Set(float64(q.pending))
	if q.pending == 0 {
		close(q.idle)
	}
}

// Join блокируется, пока все принятые события не будут обработаны
func (q *IngestQueue) Join(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len количество принятых, но ещё не обработанных событий
func (q *IngestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

// Close запрещает новые Enqueue. Уже принятые события остаются доступны через Pop.
func (q *IngestQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Reopen снова разрешает Enqueue после Close
func (q *IngestQueue) Reopen() {
	q.mu.Lock()
	q.closed = false
	q.mu.Unlock()
}
