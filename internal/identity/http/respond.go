package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cobaltgrid/identity/internal/identity/service"
	"github.com/cobaltgrid/identity/pkg/httpx"
	"github.com/cobaltgrid/identity/pkg/slogx"
)

// writeServiceError maps service sentinels onto HTTP statuses. Unknown
// errors are logged and reported as an opaque 500 so no store or
// hashing detail crosses the boundary.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials or token")
	case errors.Is(err, service.ErrOTPRequired):
		httpx.WriteError(w, http.StatusUnauthorized, "otp_required", "A one-time code is required to complete login")
	case errors.Is(err, service.ErrInvalidOTP):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_otp", "The one-time code is invalid")
	case errors.Is(err, service.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "No matching resource")
	case errors.Is(err, service.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", "The resource is already in its target state")
	case errors.Is(err, service.ErrExpired):
		httpx.WriteError(w, http.StatusGone, "expired", "The invitation has expired")
	case errors.Is(err, service.ErrPasswordRequired):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "A password is required")
	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err.Error())
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}

// decodeJSON bounds and parses a JSON request body, answering 400 on
// malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return false
	}
	return true
}

// sessionMeta captures audit metadata from the request.
func sessionMeta(r *http.Request) service.SessionMeta {
	return service.SessionMeta{
		UserAgent: r.UserAgent(),
		IP:        httpx.IPKeyExtractor(r),
	}
}
