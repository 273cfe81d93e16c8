package http

import (
	"net/http"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/service"
	"github.com/cobaltgrid/identity/pkg/httpx"
	"github.com/cobaltgrid/identity/pkg/idx"
)

type LoginHandler struct {
	AuthService *service.AuthService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	OTPCode  string `json:"otp_code,omitempty"`
}

type loginResponse struct {
	User   domain.Profile   `json:"user"`
	Tokens domain.TokenPair `json:"tokens"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	res, err := h.AuthService.LoginWithPassword(r.Context(), req.Email, req.Password, req.OTPCode, sessionMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{User: res.User, Tokens: res.Tokens})
}

type RefreshHandler struct {
	AuthService *service.AuthService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	tokens, err := h.AuthService.Refresh(r.Context(), req.RefreshToken, sessionMeta(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokens)
}

type LogoutHandler struct {
	AuthService *service.AuthService
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.AuthService.Logout(r.Context(), req.RefreshToken); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LogoutAllHandler ends every session of the authenticated user.
type LogoutAllHandler struct {
	AuthService *service.AuthService
}

type logoutAllResponse struct {
	RevokedSessions int64 `json:"revoked_sessions"`
}

func (h *LogoutAllHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := idx.Parse(httpx.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials or token")
		return
	}

	n, err := h.AuthService.LogoutAll(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, logoutAllResponse{RevokedSessions: n})
}
