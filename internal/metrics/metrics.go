package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP метрики
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Метрики потока стакана
	FeedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_events_total",
			Help: "Market stream notifications by action and outcome",
		},
		[]string{"action", "status"},
	)
	FeedConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_connected",
			Help: "1 while the market stream session is established",
		},
	)
	FeedReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Number of market stream reconnect attempts",
		},
	)

	// Очередь и воркеры
	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Book events accepted but not yet applied",
		},
	)
	WorkerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_events_total",
			Help: "Book events applied to the order store by action and outcome",
		},
		[]string{"action", "status"},
	)

	// Хранилище
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_store_errors_total",
			Help: "Order store failures by operation",
		},
		[]string{"op"},
	)
	StoreRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "order_store_rows",
			Help: "Mirrored orders per trading pair, refreshed by the janitor",
		},
		[]string{"pair"},
	)

	// QuoteEngine
	QuoteEngineState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quote_engine_state",
			Help: "Current quote engine state (0=no_own_order,1=resting,2=replacing,3=stopped)",
		},
		[]string{"pair"},
	)
	QuoteEngineActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_engine_actions_total",
			Help: "Quote engine actions per pair",
		},
		[]string{"pair", "action"},
	)

	// Биржевой API
	ExchangeAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_api_requests_total",
			Help: "Total number of exchange API requests",
		},
		[]string{"endpoint", "status"},
	)
	ExchangeAPIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "exchange_api_request_duration_seconds",
			Help: "Duration of exchange API requests in seconds",
		},
		[]string{"endpoint"},
	)
)

func InitMetrics() {
	// Регистрация HTTP метрик
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsInFlight)

	// Поток и приём
	prometheus.MustRegister(FeedEventsTotal)
	prometheus.MustRegister(FeedConnected)
	prometheus.MustRegister(FeedReconnectsTotal)
	prometheus.MustRegister(IngestQueueDepth)
	prometheus.MustRegister(WorkerEventsTotal)

	prometheus.MustRegister(StoreErrorsTotal)
	prometheus.MustRegister(StoreRows)

	prometheus.MustRegister(QuoteEngineState)
	prometheus.MustRegister(QuoteEngineActionsTotal)

	prometheus.MustRegister(ExchangeAPIRequestsTotal)
	prometheus.MustRegister(ExchangeAPIRequestDuration)

	// Стандартные метрики Go
	prometheus.MustRegister(prometheus.NewGoCollector())
	prometheus.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
