package service

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"quotebot/internal/bitcoinde/entity"
	"quotebot/internal/metrics"
)

const DefaultBaseURL = "https://api.bitcoin.de/v4"

// ErrExchangeAPI базовая ошибка вызова биржи
var ErrExchangeAPI = errors.New("exchange api error")

// APIError ответ биржи с ошибкой
type APIError struct {
	Endpoint   string
	StatusCode int
	Errors     []entity.APIErrorItem
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		msgs := make([]string, 0, len(e.Errors))
		for _, it := range e.Errors {
			msgs = append(msgs, fmt.Sprintf("%d %s", it.Code, it.Message))
		}
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return ErrExchangeAPI }

// Client подписанный REST клиент bitcoin.de
type Client struct {
	APIKey     string
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	cb         *gobreaker.CircuitBreaker
	lastNonce  atomic.Int64
	log        *zap.Logger
}

// NewClient создает клиента. proxyAddr - SOCKS5 host:port или пусто.
func NewClient(apiKey, secretKey, baseURL, proxyAddr string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		APIKey:    apiKey,
		SecretKey: secretKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		log:       log.Named("bitcoinde"),
	}

	// Настройка circuit breaker
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bitcoinde-api",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Отказ биржи по существу запроса (4xx) не говорит о недоступности API
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.log.Warn("Circuit breaker state changed", zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	if proxyAddr != "" {
		proxyURL := &url.URL{Scheme: "socks5h", Host: proxyAddr}
		dialer, err := proxy.FromURL(proxyURL, proxy.Direct)
		if err != nil {
			c.log.Error("Failed to create SOCKS5 dialer", zap.Error(err))
		} else {
			c.HTTPClient.Transport = &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				},
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			}
		}
	}
	return c
}

// nextNonce строго возрастающий nonce в микросекундах
func (c *Client) nextNonce() string {
	for {
		last := c.lastNonce.Load()
		n := time.Now().UnixMicro()
		if n <= last {
			n = last + 1
		}
		if c.lastNonce.CompareAndSwap(last, n) {
			return strconv.FormatInt(n, 10)
		}
	}
}

// sign HMAC-SHA256 над method#uri#api_key#nonce#md5(body)
func (c *Client) sign(method, uri, nonce, body string) string {
	sum := md5.Sum([]byte(body))
	message := strings.Join([]string{method, uri, c.APIKey, nonce, hex.EncodeToString(sum[:])}, "#")
	h := hmac.New(sha256.New, []byte(c.SecretKey))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

type envelope struct {
	Errors []entity.APIErrorItem `json:"errors"`
}

// do выполняет подписанный запрос через circuit breaker и разбирает JSON в out
func (c *Client) do(ctx context.Context, name, method, path string, query, form url.Values, out interface{}) error {
	start := time.Now()
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.roundTrip(ctx, name, method, path, query, form, out)
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ExchangeAPIRequestsTotal.WithLabelValues(name, status).Inc()
	metrics.ExchangeAPIRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrExchangeAPI, name, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, name, method, path string, query, form url.Values, out interface{}) error {
	uri := c.BaseURL + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	body := ""
	if len(form) > 0 {
		// Encode сортирует ключи, как требует подпись
		body = form.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, uri, strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	nonce := c.nextNonce()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-API-KEY", c.APIKey)
	req.Header.Set("X-API-NONCE", nonce)
	req.Header.Set("X-API-SIGNATURE", c.sign(method, uri, nonce, body))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	_ = json.Unmarshal(respBody, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || len(env.Errors) > 0 {
		return &APIError{Endpoint: name, StatusCode: resp.StatusCode, Errors: env.Errors, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// CreateOrder выставляет заявку и возвращает ее order_id
func (c *Client) CreateOrder(ctx context.Context, req entity.OrderRequest) (string, error) {
	minAmount := req.MinAmount
	if minAmount.IsZero() {
		minAmount = req.Amount
	}
	form := url.Values{}
	form.Set("type", string(req.Side))
	form.Set("max_amount_currency_to_trade", req.Amount.String())
	form.Set("min_amount_currency_to_trade", minAmount.String())
	form.Set("price", req.Price.String())
	if !req.EndDatetime.IsZero() {
		form.Set("end_datetime", req.EndDatetime.Format(time.RFC3339))
	}

	var resp struct {
		OrderID string `json:"order_id"`
	}
	if err := c.do(ctx, "create_order", http.MethodPost, "/"+req.TradingPair+"/orders", nil, form, &resp); err != nil {
		c.log.Error("CreateOrder failed", zap.String("pair", req.TradingPair), zap.String("price", req.Price.String()), zap.Error(err))
		return "", err
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("%w: create_order: empty order_id", ErrExchangeAPI)
	}
	c.log.Info("Order created",
		zap.String("pair", req.TradingPair),
		zap.String("side", string(req.Side)),
		zap.String("price", req.Price.String()),
		zap.String("order_id", resp.OrderID),
	)
	return resp.OrderID, nil
}

// DeleteOrder отменяет заявку
func (c *Client) DeleteOrder(ctx context.Context, tradingPair, orderID string) error {
	path := "/" + tradingPair + "/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, "delete_order", http.MethodDelete, path, nil, nil, nil); err != nil {
		c.log.Error("DeleteOrder failed", zap.String("pair", tradingPair), zap.String("order_id", orderID), zap.Error(err))
		return err
	}
	c.log.Info("Order deleted", zap.String("pair", tradingPair), zap.String("order_id", orderID))
	return nil
}

// ListOwnOrders возвращает собственные открытые заявки по паре
func (c *Client) ListOwnOrders(ctx context.Context, tradingPair string) ([]entity.OpenOrder, error) {
	var resp struct {
		Orders []entity.OpenOrder `json:"orders"`
	}
	if err := c.do(ctx, "list_orders", http.MethodGet, "/"+tradingPair+"/orders/my_own", nil, nil, &resp); err != nil {
		return nil, err
	}
	for i := range resp.Orders {
		if resp.Orders[i].TradingPair == "" {
			resp.Orders[i].TradingPair = tradingPair
		}
	}
	return resp.Orders, nil
}
