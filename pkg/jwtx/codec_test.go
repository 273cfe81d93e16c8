package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCodec() *Codec {
	return &Codec{
		Issuer:        "identity-test",
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func TestSignAndVerifyAccess(t *testing.T) {
	t.Parallel()

	c := testCodec()
	now := time.Now().UTC()

	token, err := c.SignAccess("user-1", "client_admin", "tenant-9", now)
	require.NoError(t, err)

	claims, err := c.VerifyAccess(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "client_admin", claims.Role)
	require.Equal(t, "tenant-9", claims.TenantID)
	require.Equal(t, "identity-test", claims.Issuer)
}

func TestSignAndVerifyRefresh(t *testing.T) {
	t.Parallel()

	c := testCodec()
	token, err := c.SignRefresh("user-1", time.Now().UTC())
	require.NoError(t, err)

	claims, err := c.VerifyRefresh(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
}

func TestContextsAreIndependent(t *testing.T) {
	t.Parallel()

	c := testCodec()
	now := time.Now().UTC()

	access, err := c.SignAccess("user-1", "operator", "", now)
	require.NoError(t, err)
	refresh, err := c.SignRefresh("user-1", now)
	require.NoError(t, err)

	// An access token must not verify under the refresh context, and vice versa.
	_, err = c.VerifyRefresh(access)
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = c.VerifyAccess(refresh)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	c := testCodec()
	c.AccessTTL = time.Second

	token, err := c.SignAccess("user-1", "operator", "", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)

	_, err = c.VerifyAccess(token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	c := testCodec()
	token, err := c.SignAccess("user-1", "operator", "", time.Now().UTC())
	require.NoError(t, err)

	other := testCodec()
	other.AccessSecret = []byte("a-different-secret")
	_, err = other.VerifyAccess(token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyWrongIssuer(t *testing.T) {
	t.Parallel()

	c := testCodec()
	token, err := c.SignAccess("user-1", "operator", "", time.Now().UTC())
	require.NoError(t, err)

	other := testCodec()
	other.Issuer = "someone-else"
	_, err = other.VerifyAccess(token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseTTL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"15m", 15 * time.Minute},
		{"12h", 12 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"1d", 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := ParseTTL(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "7", "d", "7w", "1.5h", "7dd", "-7d"} {
		got, err := ParseTTL(bad)
		require.ErrorIs(t, err, ErrInvalidTTL, bad)
		require.Equal(t, DefaultRefreshTTL, got, "fallback must be the documented default")
	}
}
