package http

import (
	"net/http"

	"github.com/cobaltgrid/identity/internal/identity/service"
	"github.com/cobaltgrid/identity/pkg/httpx"
	"github.com/cobaltgrid/identity/pkg/idx"
)

type TOTPSetupHandler struct {
	TOTPService *service.TOTPService
}

type totpSetupResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

func (h *TOTPSetupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := idx.Parse(httpx.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials or token")
		return
	}

	res, err := h.TOTPService.Setup(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, totpSetupResponse{Secret: res.Secret, URL: res.URL})
}

type TOTPVerifyHandler struct {
	TOTPService *service.TOTPService
}

type totpVerifyRequest struct {
	Code string `json:"code"`
}

func (h *TOTPVerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := idx.Parse(httpx.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials or token")
		return
	}

	var req totpVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	if err := h.TOTPService.Verify(r.Context(), userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
