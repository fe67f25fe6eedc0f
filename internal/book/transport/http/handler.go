package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quotebot/internal/book/repository"
)

// FeedStatus состояние приёма для диагностики
type FeedStatus interface {
	IsConnected() bool
}

// QueueStatus глубина очереди приёма
type QueueStatus interface {
	Len() int
	Shards() int
}

type Handler struct {
	Store repository.OrderStore
	Feed  FeedStatus
	Queue QueueStatus
	log   *zap.Logger
}

func NewHandler(store repository.OrderStore, feed FeedStatus, queue QueueStatus, log *zap.Logger) *Handler {
	return &Handler{Store: store, Feed: feed, Queue: queue, log: log.Named("book-http")}
}

// Routes монтируется в /api/book
func (h *Handler) Routes(r chi.Router) {
	r.Get("/stats", h.Stats)
	r.Get("/{pair}", h.TopOfBook)
	r.Get("/{pair}/count", h.Count)
}

// TopOfBook GET /api/book/{pair}?depth=N
func (h *Handler) TopOfBook(w http.ResponseWriter, r *http.Request) {
	pair := strings.ToLower(chi.URLParam(r, "pair"))

	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			http.Error(w, "invalid depth", http.StatusBadRequest)
			return
		}
		depth = d
	}

	book, err := h.Store.TopOfBook(r.Context(), pair)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book.Limit(depth))
}

// Count GET /api/book/{pair}/count
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	pair := strings.ToLower(chi.URLParam(r, "pair"))
	n, err := h.Store.Count(r.Context(), pair)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trading_pair": pair,
		"count":        n,
	})
}

// Stats GET /api/book/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Store.Stats(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	pairs, err := h.Store.Pairs(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pairs":        pairs,
		"rows_by_pair": stats,
	})
}

// FeedState GET /api/feed
func (h *Handler) FeedState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected":     h.Feed.IsConnected(),
		"queue_pending": h.Queue.Len(),
		"workers":       h.Queue.Shards(),
	})
}

// Health GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	storeState := "ok"
	if err := h.Store.Ping(r.Context()); err != nil {
		h.log.Warn("Store health check failed", zap.Error(err))
		status = http.StatusServiceUnavailable
		storeState = "unavailable"
	}
	writeJSON(w, status, map[string]interface{}{
		"store":          storeState,
		"feed_connected": h.Feed.IsConnected(),
	})
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	h.log.Error("Order store request failed", zap.Error(err))
	if errors.Is(err, repository.ErrUnavailable) {
		http.Error(w, "order store unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
