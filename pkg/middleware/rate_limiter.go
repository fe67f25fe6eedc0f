package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiter ограничивает число запросов с одного IP за окно
type RateLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	requests  map[string]int
	lastReset time.Time
	log       *zap.Logger
}

func NewRateLimiter(limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		window:    window,
		requests:  make(map[string]int),
		lastReset: time.Now(),
		log:       log.Named("rate-limiter"),
	}
}

func (r *RateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Сбрасываем счетчики при истечении окна
	if time.Since(r.lastReset) > r.window {
		r.requests = make(map[string]int)
		r.lastReset = time.Now()
	}

	count := r.requests[ip]
	if count >= r.limit {
		return false
	}
	r.requests[ip] = count + 1
	return true
}

func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip := clientIP(req)
		if !r.Allow(ip) {
			r.log.Warn("Rate limit exceeded", zap.String("ip", ip))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
