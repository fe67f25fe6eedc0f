package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"quotebot/internal/api/dto"
	"quotebot/internal/operator/service"
)

type Handler struct {
	Auth *service.AuthService
	log  *zap.Logger
}

func NewHandler(auth *service.AuthService, log *zap.Logger) *Handler {
	return &Handler{Auth: auth, log: log.Named("auth-http")}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := dto.Validate.Struct(req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	token, expires, err := h.Auth.Login(req.Username, req.Password)
	if err != nil {
		h.log.Warn("Operator login rejected", zap.String("username", req.Username), zap.String("remote", r.RemoteAddr))
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.log.Info("Operator logged in", zap.String("username", req.Username))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dto.LoginResponse{Token: token, ExpiresAt: expires})
}
