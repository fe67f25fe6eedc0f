package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quotebot/internal/book/repository"
	"quotebot/internal/metrics"
)

const (
	DefaultRetention       = 30 * 24 * time.Hour
	DefaultCleanupInterval = time.Hour
)

// Janitor периодически удаляет устаревшие строки зеркала и обновляет метрики по парам
type Janitor struct {
	store     repository.OrderStore
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func NewJanitor(store repository.OrderStore, retention, interval time.Duration, log *zap.Logger) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		log:       log.Named("janitor"),
		now:       time.Now,
	}
}

// Run выполняет очистку сразу и затем каждые interval, пока ctx не отменен
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce один проход очистки. Возвращает число удаленных строк.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.retention)
	removed, err := j.store.Cleanup(ctx, cutoff)
	if err != nil {
		j.log.Error("Cleanup failed", zap.Error(err))
		return 0
	}
	if removed > 0 {
		j.log.Info("Removed stale orders", zap.Int64("rows", removed), zap.Time("cutoff", cutoff))
	}

	stats, err := j.store.Stats(ctx)
	if err != nil {
		j.log.Error("Stats failed", zap.Error(err))
		return removed
	}
	metrics.StoreRows.Reset()
	for pair, n := range stats {
		metrics.StoreRows.WithLabelValues(pair).Set(float64(n))
	}
	j.log.Debug("Order store stats", zap.Any("rows_by_pair", stats))
	return removed
}
