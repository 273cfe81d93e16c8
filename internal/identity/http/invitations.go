package http

import (
	"net/http"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/service"
	"github.com/cobaltgrid/identity/pkg/httpx"
	"github.com/cobaltgrid/identity/pkg/idx"
)

type InvitationCreateHandler struct {
	InvitationService *service.InvitationService
}

type invitationCreateRequest struct {
	Email             string  `json:"email"`
	Role              string  `json:"role"`
	TenantID          *string `json:"tenant_id,omitempty"`
	AuthType          string  `json:"auth_type"`
	IssueTempPassword bool    `json:"issue_temp_password,omitempty"`
}

type invitationCreateResponse struct {
	InvitationID string    `json:"invitation_id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (h *InvitationCreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req invitationCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email is required")
		return
	}

	target := domain.Role(req.Role)
	if !domain.ValidRole(target) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "unknown role")
		return
	}
	authType := domain.AuthType(req.AuthType)
	if !domain.ValidAuthType(authType) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "auth_type must be totp or otp")
		return
	}

	// The inviter's role bounds who they may onboard.
	inviterRole := domain.Role(httpx.RoleFromContext(ctx))
	if !inviterRole.CanInvite(target) {
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "role may not invite this target role")
		return
	}

	// Tenant admins invite into their own tenant only.
	tenantID := req.TenantID
	if inviterRole == domain.RoleClientAdmin {
		own := httpx.TenantIDFromContext(ctx)
		if own == "" || (tenantID != nil && *tenantID != own) {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "cannot invite outside your tenant")
			return
		}
		tenantID = &own
	}
	if target.TenantScoped() && tenantID == nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "tenant_id is required for tenant roles")
		return
	}

	invitedBy, err := idx.Parse(httpx.UserIDFromContext(ctx))
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid credentials or token")
		return
	}

	res, err := h.InvitationService.Create(ctx, service.CreateInvitationParams{
		Email:             req.Email,
		Role:              target,
		TenantID:          tenantID,
		AuthType:          authType,
		InvitedBy:         invitedBy,
		IssueTempPassword: req.IssueTempPassword,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, invitationCreateResponse{
		InvitationID: res.Invitation.ID.String(),
		Token:        res.Token,
		ExpiresAt:    res.Invitation.ExpiresAt,
	})
}

// InvitationDescribeHandler serves the public pre-acceptance view of
// an invitation so the onboarding page can show who is being invited
// and which credential flow applies.
type InvitationDescribeHandler struct {
	InvitationService *service.InvitationService
}

type invitationDescribeResponse struct {
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	AuthType  string    `json:"auth_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *InvitationDescribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	inv, err := h.InvitationService.Describe(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, invitationDescribeResponse{
		Email:     inv.Email,
		Role:      string(inv.Role),
		AuthType:  string(inv.AuthType),
		ExpiresAt: inv.ExpiresAt,
	})
}

type InvitationAcceptHandler struct {
	InvitationService *service.InvitationService
}

type invitationAcceptRequest struct {
	Token     string `json:"token"`
	Password  string `json:"password,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type invitationAcceptResponse struct {
	User       domain.Profile `json:"user"`
	TOTPSecret string         `json:"totp_secret,omitempty"`
	TOTPUrl    string         `json:"totp_url,omitempty"`
}

func (h *InvitationAcceptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req invitationAcceptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	res, err := h.InvitationService.Accept(r.Context(), service.AcceptInvitationParams{
		Token:     req.Token,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, invitationAcceptResponse{
		User:       res.User,
		TOTPSecret: res.TOTPSecret,
		TOTPUrl:    res.TOTPUrl,
	})
}
