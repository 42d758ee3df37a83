package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prudhvinik1/lansync/internal/logger"
	"github.com/prudhvinik1/lansync/internal/services"
	"go.uber.org/zap"
)

type authHandler struct {
	auth Authenticator
}

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// issueToken handles POST /auth/token
func (h *authHandler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	resp, err := h.auth.Login(req.Password)
	if errors.Is(err, services.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	if err != nil {
		logger.From(r.Context()).Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: resp.Token, ExpiresAt: resp.ExpiresAt})
}
