package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	book "quotebot/internal/book/entity"
	"quotebot/internal/quote/entity"
	"quotebot/pkg/crypto"
)

type Config struct {
	HTTPAddr string `validate:"required"`
	LogLevel string `validate:"oneof=debug info warn error"`
	LogFile  string

	DatabaseURL string // пусто = зеркало в памяти

	FeedURL            string        `validate:"required,url"`
	FeedNamespace      string        `validate:"required,startswith=/"`
	FeedReconnectDelay time.Duration `validate:"gt=0"`
	FeedProxy          string

	IngestWorkers    int           `validate:"gte=1,lte=256"`
	IngestQueueSize  int           `validate:"gte=1"`
	IngestPopTimeout time.Duration `validate:"gt=0"`

	StoreRetention       time.Duration `validate:"gt=0"`
	StoreCleanupInterval time.Duration `validate:"gt=0"`

	ExchangeBaseURL   string `validate:"required,url"`
	ExchangeAPIKey    string
	ExchangeAPISecret string
	ExchangeProxy     string
	EncryptionSecret  string

	JWTSecret            string `validate:"required"`
	OperatorUser         string `validate:"required"`
	OperatorPasswordHash string
	MetricsUser          string
	MetricsPassword      string
	CORSOrigins          []string

	QuoteAutostart bool
	QuotePairs     []entity.EngineConfig

	// EnvFileLoaded false, если .env не найден
	EnvFileLoaded bool
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	loaded := godotenv.Load() == nil

	cfg := &Config{
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:              os.Getenv("LOG_FILE"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		FeedURL:              getEnv("FEED_URL", "wss://ws.bitcoin.de/socket.io/?EIO=3&transport=websocket"),
		FeedNamespace:        getEnv("FEED_NAMESPACE", "/market"),
		FeedProxy:            os.Getenv("FEED_PROXY"),
		ExchangeBaseURL:      getEnv("EXCHANGE_BASE_URL", "https://api.bitcoin.de/v4"),
		ExchangeAPIKey:       os.Getenv("EXCHANGE_API_KEY"),
		ExchangeAPISecret:    os.Getenv("EXCHANGE_API_SECRET"),
		ExchangeProxy:        os.Getenv("EXCHANGE_PROXY"),
		EncryptionSecret:     os.Getenv("ENCRYPTION_SECRET"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		OperatorUser:         getEnv("OPERATOR_USER", "operator"),
		OperatorPasswordHash: os.Getenv("OPERATOR_PASSWORD_HASH"),
		MetricsUser:          os.Getenv("METRICS_USER"),
		MetricsPassword:      os.Getenv("METRICS_PASSWORD"),
		CORSOrigins:          splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		EnvFileLoaded:        loaded,
	}

	var err error
	if cfg.FeedReconnectDelay, err = durationEnv("FEED_RECONNECT_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.IngestWorkers, err = intEnv("INGEST_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.IngestQueueSize, err = intEnv("INGEST_QUEUE_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.IngestPopTimeout, err = durationEnv("INGEST_POP_TIMEOUT", time.Second); err != nil {
		return nil, err
	}
	if cfg.StoreRetention, err = durationEnv("STORE_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StoreCleanupInterval, err = durationEnv("STORE_CLEANUP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.QuoteAutostart, err = boolEnv("QUOTE_AUTOSTART", false); err != nil {
		return nil, err
	}

	// Секрет биржи может храниться зашифрованным
	if enc := os.Getenv("EXCHANGE_API_SECRET_ENC"); enc != "" {
		if cfg.EncryptionSecret == "" {
			return nil, fmt.Errorf("EXCHANGE_API_SECRET_ENC is set but ENCRYPTION_SECRET is empty")
		}
		secret, err := crypto.DecryptAES(enc, cfg.EncryptionSecret)
		if err != nil {
			return nil, fmt.Errorf("decrypt EXCHANGE_API_SECRET_ENC: %w", err)
		}
		cfg.ExchangeAPISecret = secret
	}

	for _, pair := range splitList(os.Getenv("QUOTE_PAIRS")) {
		ec, err := engineConfig(strings.ToLower(pair))
		if err != nil {
			return nil, err
		}
		cfg.QuotePairs = append(cfg.QuotePairs, ec)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// engineConfig читает QUOTE_<PAIR>_* для одной пары
func engineConfig(pair string) (entity.EngineConfig, error) {
	prefix := "QUOTE_" + strings.ToUpper(pair) + "_"
	ec := entity.EngineConfig{
		TradingPair: pair,
		Side:        book.Side(strings.ToLower(os.Getenv(prefix + "SIDE"))),
	}

	decimals := []struct {
		key string
		dst *decimal.Decimal
	}{
		{"AMOUNT", &ec.Amount},
		{"MIN_AMOUNT", &ec.MinAmount},
		{"MIN_PRICE", &ec.MinPrice},
		{"MAX_PRICE", &ec.MaxPrice},
		{"TICK", &ec.Tick},
	}
	for _, d := range decimals {
		raw := os.Getenv(prefix + d.key)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return ec, fmt.Errorf("%s%s: %w", prefix, d.key, err)
		}
		*d.dst = v
	}

	var err error
	if ec.CheckInterval, err = durationEnv(prefix+"CHECK_INTERVAL", 0); err != nil {
		return ec, err
	}
	if ec.OrderInterval, err = durationEnv(prefix+"ORDER_INTERVAL", 0); err != nil {
		return ec, err
	}
	if ec.TTL, err = durationEnv(prefix+"TTL", 0); err != nil {
		return ec, err
	}
	if ec.ConfirmTimeout, err = durationEnv(prefix+"CONFIRM_TIMEOUT", 0); err != nil {
		return ec, err
	}

	ec = ec.WithDefaults()
	if err := ec.Validate(); err != nil {
		return ec, fmt.Errorf("quote pair %s: %w", pair, err)
	}
	return ec, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// durationEnv принимает "90s", "5m" или число секунд
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
