package dto

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	book "quotebot/internal/book/entity"
	"quotebot/internal/quote/entity"
)

var Validate = validator.New()

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartEngineRequest тело POST /api/engines, интервалы в секундах
type StartEngineRequest struct {
	TradingPair           string          `json:"trading_pair" validate:"required,alphanum"`
	Side                  string          `json:"side" validate:"required,oneof=buy sell"`
	Amount                decimal.Decimal `json:"amount"`
	MinAmount             decimal.Decimal `json:"min_amount"`
	MinPrice              decimal.Decimal `json:"min_price"`
	MaxPrice              decimal.Decimal `json:"max_price"`
	Tick                  decimal.Decimal `json:"tick"`
	CheckIntervalSeconds  int             `json:"check_interval_seconds" validate:"gte=0"`
	OrderIntervalSeconds  int             `json:"order_interval_seconds" validate:"gte=0"`
	TTLSeconds            int             `json:"ttl_seconds" validate:"gte=0"`
	ConfirmTimeoutSeconds int             `json:"confirm_timeout_seconds" validate:"gte=0"` // 0 = по умолчанию
}

func (r StartEngineRequest) EngineConfig() entity.EngineConfig {
	return entity.EngineConfig{
		TradingPair:   r.TradingPair,
		Side:          book.Side(r.Side),
		Amount:        r.Amount,
		MinAmount:     r.MinAmount,
		MinPrice:      r.MinPrice,
		MaxPrice:      r.MaxPrice,
		Tick:          r.Tick,
		CheckInterval: time.Duration(r.CheckIntervalSeconds) * time.Second,
		OrderInterval: time.Duration(r.OrderIntervalSeconds) * time.Second,
		TTL:           time.Duration(r.TTLSeconds) * time.Second,

		ConfirmTimeout: time.Duration(r.ConfirmTimeoutSeconds) * time.Second,
	}
}
