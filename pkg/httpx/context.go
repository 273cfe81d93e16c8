package httpx

import "context"

type ctxKey string

const (
	CtxKeyUserID   ctxKey = "user_id"
	CtxKeyRole     ctxKey = "role"
	CtxKeyTenantID ctxKey = "tenant_id"
)

// UserIDFromContext returns the authenticated subject, if any.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}

// RoleFromContext returns the authenticated subject's role, if any.
func RoleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRole).(string); ok {
		return v
	}
	return ""
}

// TenantIDFromContext returns the authenticated subject's tenant, if any.
func TenantIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyTenantID).(string); ok {
		return v
	}
	return ""
}
