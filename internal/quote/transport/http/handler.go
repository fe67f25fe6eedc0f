package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"quotebot/internal/api/dto"
	"quotebot/internal/quote/service"
	"quotebot/pkg/middleware"
)

type Handler struct {
	Manager *service.Manager
	log     *zap.Logger
}

func NewHandler(m *service.Manager, log *zap.Logger) *Handler {
	return &Handler{Manager: m, log: log.Named("quote-http")}
}

// Routes монтируется в /api/engines
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.With(middleware.ValidateRequest).Post("/", h.Start)
	r.Get("/{pair}", h.Get)
	r.Delete("/{pair}", h.Stop)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Manager.List())
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req dto.StartEngineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		middleware.HandleValidationError(w, err)
		return
	}

	snap, err := h.Manager.Start(r.Context(), req.EngineConfig())
	switch {
	case errors.Is(err, service.ErrEngineRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		middleware.HandleValidationError(w, err)
		return
	}

	h.log.Info("Quote engine started by operator", zap.String("pair", snap.Config.TradingPair), zap.String("run_id", snap.RunID))
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Manager.Get(strings.ToLower(chi.URLParam(r, "pair")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	pair := strings.ToLower(chi.URLParam(r, "pair"))
	snap, err := h.Manager.Stop(pair)
	if err != nil {
		if errors.Is(err, service.ErrEngineNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.log.Info("Quote engine stopped by operator", zap.String("pair", pair))
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
