package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(t *testing.T, h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIPBlocksAfterBurst(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerWindow: 3, Window: time.Minute, Burst: 3}
	h := RateLimitByIP(cfg)(okHandler())

	for i := range 3 {
		rec := doRequest(t, h, "10.0.0.1:4000")
		require.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i)
	}

	rec := doRequest(t, h, "10.0.0.1:4000")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	h := RateLimitByIP(cfg)(okHandler())

	require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1:4000").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(t, h, "10.0.0.1:4000").Code)

	// A different client IP gets its own bucket
	require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.2:4000").Code)
}

func TestIPKeyExtractorPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	require.Equal(t, "203.0.113.7", IPKeyExtractor(req))
}

func TestRateLimitByUserFallsBackToIP(t *testing.T) {
	cfg := RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}
	h := RateLimitByUser(cfg)(okHandler())

	authed := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		req = req.WithContext(context.WithValue(req.Context(), CtxKeyUserID, userID))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, authed("user-1").Code)
	require.Equal(t, http.StatusTooManyRequests, authed("user-1").Code)

	// Same IP, different user: separate bucket.
	require.Equal(t, http.StatusOK, authed("user-2").Code)

	// Unauthenticated traffic from the same IP has its own bucket too.
	require.Equal(t, http.StatusOK, doRequest(t, h, "10.0.0.1:4000").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(t, h, "10.0.0.1:4000").Code)
}
