package http

import (
	"net/http"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/pkg/httpx"
)

type healthResponse struct {
	Status string        `json:"status"`
	Uptime string        `json:"uptime"`
	Checks *healthChecks `json:"checks,omitempty"`
}

type healthChecks struct {
	Database string `json:"database"`
}

// LivezHandler always reports ok while the process is up.
type LivezHandler struct {
	StartTime time.Time
}

func (h *LivezHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(h.StartTime).String(),
	})
}

// ReadyzHandler reports degraded when the database is unreachable.
type ReadyzHandler struct {
	Store store.Store
}

func (h *ReadyzHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := &healthChecks{Database: "ok"}
	status := "ok"
	code := http.StatusOK

	if err := h.Store.Ping(r.Context()); err != nil {
		checks.Database = "error: " + err.Error()
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, healthResponse{Status: status, Checks: checks})
}
