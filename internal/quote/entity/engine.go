package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	book "quotebot/internal/book/entity"
)

const (
	DefaultCheckInterval  = 30 * time.Second
	DefaultOrderInterval  = 15 * time.Second
	DefaultConfirmTimeout = time.Minute
)

var DefaultTick = decimal.New(1, -2) // 0.01

var validate = validator.New()

// EngineConfig настройки одного движка котирования
type EngineConfig struct {
	TradingPair    string          `json:"trading_pair" validate:"required,alphanum,lowercase"`
	Side           book.Side       `json:"side" validate:"required,oneof=buy sell"`
	Amount         decimal.Decimal `json:"amount"`
	MinAmount      decimal.Decimal `json:"min_amount"`
	MinPrice       decimal.Decimal `json:"min_price"`
	MaxPrice       decimal.Decimal `json:"max_price"`
	Tick           decimal.Decimal `json:"tick"`
	CheckInterval  time.Duration   `json:"check_interval"`
	OrderInterval  time.Duration   `json:"order_interval"`
	TTL            time.Duration   `json:"ttl"`             // срок жизни заявки на бирже, 0 = по умолчанию
	ConfirmTimeout time.Duration   `json:"confirm_timeout"` // сколько ждать появления новой заявки в зеркале
}

// WithDefaults заполняет необязательные поля
func (c EngineConfig) WithDefaults() EngineConfig {
	c.TradingPair = strings.ToLower(strings.TrimSpace(c.TradingPair))
	if !c.Tick.IsPositive() {
		c.Tick = DefaultTick
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.OrderInterval <= 0 {
		c.OrderInterval = DefaultOrderInterval
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = DefaultConfirmTimeout
	}
	return c
}

func (c EngineConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch {
	case !c.Amount.IsPositive():
		return errors.New("amount must be positive")
	case c.MinAmount.IsNegative():
		return errors.New("min_amount must not be negative")
	case c.MinAmount.GreaterThan(c.Amount):
		return errors.New("min_amount must not exceed amount")
	case !c.MinPrice.IsPositive():
		return errors.New("min_price must be positive")
	case c.MaxPrice.LessThan(c.MinPrice):
		return fmt.Errorf("max_price %s is below min_price %s", c.MaxPrice, c.MinPrice)
	case !c.Tick.IsPositive():
		return errors.New("tick must be positive")
	case c.TTL < 0:
		return errors.New("ttl must not be negative")
	}
	return nil
}

// State состояние движка
type State int

const (
	StateNoOwnOrder State = iota
	StateOwnOrderResting
	StateReplacing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNoOwnOrder:
		return "no_own_order"
	case StateOwnOrderResting:
		return "own_order_resting"
	case StateReplacing:
		return "replacing"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateNoOwnOrder, StateOwnOrderResting, StateReplacing, StateStopped} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown engine state %q", b)
}

// OwnOrder собственная стоящая заявка движка. Не сохраняется.
type OwnOrder struct {
	OrderID     string          `json:"order_id"`
	TradingPair string          `json:"trading_pair"`
	Side        book.Side       `json:"side"`
	Price       decimal.Decimal `json:"price"`
	PlacedAt    time.Time       `json:"placed_at"`
	Confirmed   bool            `json:"confirmed"` // заявка хотя бы раз видна в зеркале
}

// Snapshot состояние движка для оператора
type Snapshot struct {
	RunID      string       `json:"run_id"`
	Config     EngineConfig `json:"config"`
	State      State        `json:"state"`
	OwnOrder   *OwnOrder    `json:"own_order,omitempty"`
	LastAction string       `json:"last_action,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}
