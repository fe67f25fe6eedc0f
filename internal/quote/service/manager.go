package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"quotebot/internal/quote/entity"
)

var (
	ErrEngineRunning  = errors.New("quote engine already running for pair")
	ErrEngineNotFound = errors.New("quote engine not found")
)

// Manager запускает не более одного движка на торговую пару
type Manager struct {
	store    BookReader
	exchange ExchangeClient
	log      *zap.Logger

	mu      sync.Mutex
	engines map[string]*Engine
}

func NewManager(store BookReader, client ExchangeClient, log *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		exchange: client,
		log:      log,
		engines:  make(map[string]*Engine),
	}
}

// Start запускает движок для cfg.TradingPair. Движок живет до Stop/StopAll,
// отмена ctx запроса его не останавливает.
func (m *Manager) Start(ctx context.Context, cfg entity.EngineConfig) (entity.Snapshot, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return entity.Snapshot{}, fmt.Errorf("invalid engine config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.engines[cfg.TradingPair]; ok {
		select {
		case <-existing.Done():
		default:
			return entity.Snapshot{}, fmt.Errorf("%w: %s", ErrEngineRunning, cfg.TradingPair)
		}
	}

	engine := NewEngine(cfg, m.store, m.exchange, m.log)
	m.engines[cfg.TradingPair] = engine
	go engine.Run(context.WithoutCancel(ctx))
	return engine.Snapshot(), nil
}

// Stop останавливает движок пары и ждет его завершения
func (m *Manager) Stop(pair string) (entity.Snapshot, error) {
	m.mu.Lock()
	engine, ok := m.engines[pair]
	m.mu.Unlock()
	if !ok {
		return entity.Snapshot{}, fmt.Errorf("%w: %s", ErrEngineNotFound, pair)
	}

	engine.Stop()
	<-engine.Done()
	return engine.Snapshot(), nil
}

// StopAll останавливает все движки параллельно
func (m *Manager) StopAll() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range engines {
		wg.Add(1)
		go func(e *Engine) {
			defer wg.Done()
			e.Stop()
			<-e.Done()
		}(e)
	}
	wg.Wait()
	m.log.Info("All quote engines stopped", zap.Int("count", len(engines)))
}

// Get снимок движка пары
func (m *Manager) Get(pair string) (entity.Snapshot, error) {
	m.mu.Lock()
	engine, ok := m.engines[pair]
	m.mu.Unlock()
	if !ok {
		return entity.Snapshot{}, fmt.Errorf("%w: %s", ErrEngineNotFound, pair)
	}
	return engine.Snapshot(), nil
}

// List снимки всех движков, включая остановленные, по паре
func (m *Manager) List() []entity.Snapshot {
	m.mu.Lock()
	out := make([]entity.Snapshot, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e.Snapshot())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Config.TradingPair < out[j].Config.TradingPair })
	return out
}
