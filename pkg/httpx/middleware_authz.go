package httpx

import "net/http"

// RequireAnyRole allows the request through when the authenticated subject
// holds at least one of the listed roles. Pair with AuthnMiddleware, which
// must run first.
func RequireAnyRole(allowed ...string) Middleware {
	want := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		want[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if _, ok := want[role]; !ok {
				WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
