// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	bitcoinde "quotebot/internal/bitcoinde/service"
	"quotebot/internal/book/entity"
	"quotebot/internal/book/repository"
	bookservice "quotebot/internal/book/service"
	bookhttp "quotebot/internal/book/transport/http"
	"quotebot/internal/config"
	"quotebot/internal/metrics"
	operatorservice "quotebot/internal/operator/service"
	operatorhttp "quotebot/internal/operator/transport/http"
	quoteservice "quotebot/internal/quote/service"
	quotehttp "quotebot/internal/quote/transport/http"
	"quotebot/pkg/db"
	"quotebot/pkg/logger"
	"quotebot/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("QuoteBot starting", zap.String("addr", cfg.HTTPAddr))
	if !cfg.EnvFileLoaded {
		log.Warn(".env file not found, using process environment")
	}
	metrics.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- ХРАНИЛИЩЕ ---
	store := openStore(ctx, cfg, log)

	// --- ПРИЁМ СТАКАНА ---
	queue := bookservice.NewIngestQueue(cfg.IngestWorkers, cfg.IngestQueueSize)
	workersCtx, stopWorkers := context.WithCancel(context.Background())
	pool := bookservice.NewWorkerPool(queue, store, cfg.IngestPopTimeout, log)
	pool.Start(workersCtx)

	janitor := bookservice.NewJanitor(store, cfg.StoreRetention, cfg.StoreCleanupInterval, log)
	go janitor.Run(workersCtx)

	feed := bookservice.NewFeedClient(bookservice.FeedConfig{
		URL:            cfg.FeedURL,
		Namespace:      cfg.FeedNamespace,
		ReconnectDelay: cfg.FeedReconnectDelay,
		ProxyAddr:      cfg.FeedProxy,
	}, queue, log)
	feed.SetObserver(func(ev entity.BookEvent) {
		log.Debug("Book event accepted", zap.String("action", string(ev.Action)), zap.String("order_id", ev.Order.OrderID))
	})
	// Сессию закрывает только feed.Disconnect после слива очереди
	if err := feed.Connect(context.Background()); err != nil {
		log.Fatal("Feed client start failed", zap.Error(err))
	}

	// --- КОТИРОВАНИЕ ---
	exchange := bitcoinde.NewClient(cfg.ExchangeAPIKey, cfg.ExchangeAPISecret, cfg.ExchangeBaseURL, cfg.ExchangeProxy, log)
	manager := quoteservice.NewManager(store, exchange, log)
	if cfg.QuoteAutostart {
		for _, ec := range cfg.QuotePairs {
			if _, err := manager.Start(ctx, ec); err != nil {
				log.Error("Quote engine autostart failed", zap.String("pair", ec.TradingPair), zap.Error(err))
			}
		}
	}

	// --- HTTP ---
	auth := operatorservice.NewAuthService(cfg.OperatorUser, cfg.OperatorPasswordHash, cfg.JWTSecret, operatorservice.DefaultTokenTTL)
	if cfg.OperatorPasswordHash == "" {
		log.Warn("OPERATOR_PASSWORD_HASH is empty, operator login disabled")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg, log, store, feed, queue, manager, auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	}

	// Движки снимают свои заявки до остановки приёма
	manager.StopAll()

	if err := feed.Disconnect(shutdownCtx); err != nil {
		log.Error("Feed disconnect did not drain the queue", zap.Error(err))
	}
	stopWorkers()
	pool.Wait()

	if err := store.Close(); err != nil {
		log.Error("Store close failed", zap.Error(err))
	}
	log.Info("QuoteBot stopped")
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) repository.OrderStore {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL is empty, using in-memory order store")
		return repository.NewMemoryStore()
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}
	store := repository.NewPostgresOrderStore(database)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal("Order store schema setup failed", zap.Error(err))
	}
	log.Info("Connected to PostgreSQL")
	return store
}

func newRouter(
	cfg *config.Config,
	log *zap.Logger,
	store repository.OrderStore,
	feed *bookservice.FeedClient,
	queue *bookservice.IngestQueue,
	manager *quoteservice.Manager,
	auth *operatorservice.AuthService,
) http.Handler {
	bookHandler := bookhttp.NewHandler(store, feed, queue, log)
	quoteHandler := quotehttp.NewHandler(manager, log)
	authHandler := operatorhttp.NewHandler(auth, log)
	limiter := middleware.NewRateLimiter(100, time.Minute, log)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.MetricsMiddleware)
	r.Use(limiter.Middleware)

	r.Get("/health", bookHandler.Health)
	r.With(middleware.ValidateRequest).Post("/auth/login", authHandler.Login)

	if cfg.MetricsUser != "" {
		r.With(middleware.BasicAuth(cfg.MetricsUser, cfg.MetricsPassword)).Handle("/metrics", promhttp.Handler())
	} else {
		log.Warn("METRICS_USER is empty, /metrics is not exposed")
	}

	// Защищённые маршруты оператора
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.JWTAuth(cfg.JWTSecret))
		pr.Get("/api/feed", bookHandler.FeedState)
		pr.Route("/api/book", bookHandler.Routes)
		pr.Route("/api/engines", quoteHandler.Routes)
	})
	return r
}
