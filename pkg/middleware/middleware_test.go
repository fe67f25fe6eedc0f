package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quotebot/pkg/jwt"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestBasicAuth(t *testing.T) {
	h := BasicAuth("admin", "pass")(http.HandlerFunc(okHandler))

	cases := []struct {
		name       string
		user, pass string
		set        bool
		want       int
	}{
		{"missing", "", "", false, http.StatusUnauthorized},
		{"wrong password", "admin", "nope", true, http.StatusUnauthorized},
		{"ok", "admin", "pass", true, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tc.set {
				req.SetBasicAuth(tc.user, tc.pass)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestJWTAuth(t *testing.T) {
	var got string
	h := JWTAuth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = r.Context().Value(OperatorKey).(string)
	}))

	token, err := jwt.GenerateToken("secret", "operator", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/engines", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "operator", got)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer broken"} {
		req := httptest.NewRequest(http.MethodGet, "/api/engines", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, zap.NewNop())
	h := rl.Middleware(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// другой IP считается отдельно
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestValidateRequest(t *testing.T) {
	h := ValidateRequest(http.HandlerFunc(okHandler))

	cases := []struct {
		name        string
		method      string
		contentType string
		body        string
		want        int
	}{
		{"plain text", http.MethodPost, "text/plain", `{}`, http.StatusUnsupportedMediaType},
		{"no content type", http.MethodPost, "", `{}`, http.StatusUnsupportedMediaType},
		{"empty body", http.MethodPost, "application/json", "", http.StatusBadRequest},
		{"json with charset", http.MethodPost, "application/json; charset=utf-8", `{"a":1}`, http.StatusOK},
		{"get passes", http.MethodGet, "", "", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/", strings.NewReader(tc.body))
			if tc.contentType != "" {
				req.Header.Set("Content-Type", tc.contentType)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHandleValidationError(t *testing.T) {
	type payload struct {
		Side string `validate:"oneof=buy sell"`
	}
	err := validator.New().Struct(payload{Side: "hold"})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	HandleValidationError(rec, fmt.Errorf("invalid engine config: %w", err))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, map[string]string{"Side": "oneof"}, resp.Fields)

	rec = httptest.NewRecorder()
	HandleValidationError(rec, ErrEmptyBody)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrEmptyBody.Error())
}

func TestMetricsMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/api/book/{pair}", okHandler)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/book/btceur", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
