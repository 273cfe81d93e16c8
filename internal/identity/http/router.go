// Package http wires the identity service's HTTP surface: login and
// token rotation, invitation management, TOTP enrollment, admin user
// creation and health probes.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/service"
	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/pkg/httpx"
	"github.com/cobaltgrid/identity/pkg/jwtx"
	"github.com/cobaltgrid/identity/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	codec     *jwtx.Codec
	startTime time.Time
	logger    *slog.Logger
	store     store.Store

	AuthService       *service.AuthService
	InvitationService *service.InvitationService
	TOTPService       *service.TOTPService
	AdminService      *service.AdminService
}

func NewRouter(codec *jwtx.Codec, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:       http.NewServeMux(),
		codec:     codec,
		startTime: time.Now(),
		store:     st,
		logger:    logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerInvitations()
	r.registerTOTP()
	r.registerAdmin()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	login := &LoginHandler{AuthService: r.AuthService}
	refresh := &RefreshHandler{AuthService: r.AuthService}
	logout := &LogoutHandler{AuthService: r.AuthService}
	logoutAll := &LogoutAllHandler{AuthService: r.AuthService}

	// Credential endpoints carry the strictest limits.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(login, httpx.RateLimitByIP(httpx.StrictLimit)),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(refresh, httpx.RateLimitByIP(httpx.ModerateLimit)),
	)
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(logout, httpx.RateLimitByIP(httpx.ModerateLimit)),
	)
	r.Mux.Handle("POST /v1/auth/logout-all",
		httpx.Chain(logoutAll,
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerInvitations() {
	create := &InvitationCreateHandler{InvitationService: r.InvitationService}
	describe := &InvitationDescribeHandler{InvitationService: r.InvitationService}
	accept := &InvitationAcceptHandler{InvitationService: r.InvitationService}

	r.Mux.Handle("POST /v1/invitations",
		httpx.Chain(create,
			httpx.AuthnMiddleware(r.codec),
			httpx.RequireAnyRole(string(domain.RoleSuperAdmin), string(domain.RoleClientAdmin)),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/invitations/{token}",
		httpx.Chain(describe, httpx.RateLimitByIP(httpx.LenientLimit)),
	)
	r.Mux.Handle("POST /v1/invitations/accept",
		httpx.Chain(accept, httpx.RateLimitByIP(httpx.StrictLimit)),
	)
}

func (r *Router) registerTOTP() {
	setup := &TOTPSetupHandler{TOTPService: r.TOTPService}
	verify := &TOTPVerifyHandler{TOTPService: r.TOTPService}

	r.Mux.Handle("POST /v1/totp/setup",
		httpx.Chain(setup,
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/totp/verify",
		httpx.Chain(verify,
			httpx.AuthnMiddleware(r.codec),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	createUser := &AdminCreateUserHandler{AdminService: r.AdminService}

	r.Mux.Handle("POST /v1/admin/users",
		httpx.Chain(createUser,
			httpx.AuthnMiddleware(r.codec),
			httpx.RequireAnyRole(string(domain.RoleSuperAdmin)),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", &LivezHandler{StartTime: r.startTime})
	r.Mux.Handle("GET /readyz", &ReadyzHandler{Store: r.store})
}
