package http

import (
	"net/http"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/service"
	"github.com/cobaltgrid/identity/pkg/httpx"
)

// AdminCreateUserHandler provisions an account directly, bypassing the
// invitation flow. Restricted to platform administrators by the route
// middleware.
type AdminCreateUserHandler struct {
	AdminService *service.AdminService
}

type adminCreateUserRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"first_name,omitempty"`
	LastName  string  `json:"last_name,omitempty"`
	Role      string  `json:"role"`
	TenantID  *string `json:"tenant_id,omitempty"`
}

func (h *AdminCreateUserHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req adminCreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	role := domain.Role(req.Role)
	if !domain.ValidRole(role) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "unknown role")
		return
	}
	if role.TenantScoped() && req.TenantID == nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required for tenant roles")
		return
	}

	profile, err := h.AdminService.CreateUser(r.Context(), service.CreateUserParams{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      role,
		TenantID:  req.TenantID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, profile)
}
