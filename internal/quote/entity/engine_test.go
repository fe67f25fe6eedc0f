package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	book "quotebot/internal/book/entity"
)

func validConfig() EngineConfig {
	return EngineConfig{
		TradingPair: " BTCEUR ",
		Side:        book.SideSell,
		Amount:      decimal.NewFromInt(1),
		MinPrice:    decimal.NewFromInt(95),
		MaxPrice:    decimal.NewFromInt(105),
	}.WithDefaults()
}

func TestWithDefaults(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "btceur", cfg.TradingPair)
	assert.True(t, cfg.Tick.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, DefaultCheckInterval, cfg.CheckInterval)
	assert.Equal(t, DefaultOrderInterval, cfg.OrderInterval)
	assert.Equal(t, DefaultConfirmTimeout, cfg.ConfirmTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*EngineConfig){
		"missing pair":        func(c *EngineConfig) { c.TradingPair = "" },
		"bad side":            func(c *EngineConfig) { c.Side = "hold" },
		"zero amount":         func(c *EngineConfig) { c.Amount = decimal.Zero },
		"min above amount":    func(c *EngineConfig) { c.MinAmount = decimal.NewFromInt(2) },
		"negative min amount": func(c *EngineConfig) { c.MinAmount = decimal.NewFromInt(-1) },
		"zero min price":      func(c *EngineConfig) { c.MinPrice = decimal.Zero },
		"inverted band":       func(c *EngineConfig) { c.MaxPrice = decimal.NewFromInt(90) },
		"negative ttl":        func(c *EngineConfig) { c.TTL = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStateJSON(t *testing.T) {
	out, err := json.Marshal(Snapshot{State: StateOwnOrderResting})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"state":"own_order_resting"`)
	assert.Equal(t, "stopped", StateStopped.String())
}

func TestStateUnmarshal(t *testing.T) {
	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"state":"replacing"}`), &s))
	assert.Equal(t, StateReplacing, s.State)

	assert.Error(t, json.Unmarshal([]byte(`{"state":"sleeping"}`), &s))
}
