package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/cobaltgrid/identity/internal/identity/domain"
)

func newAuthService(t *testing.T) (*AuthService, *domain.User) {
	t.Helper()

	st := newTestStore(t)
	h := newTestHasher()
	u := createActiveUser(t, st, h, "admin@acme.test", "correct horse")
	return &AuthService{Store: st, Hasher: h, Codec: newTestCodec()}, &u
}

func TestLoginWithPassword(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	res, err := svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", "", SessionMeta{UserAgent: "test-agent", IP: "203.0.113.7"})
	require.NoError(t, err)
	require.Equal(t, "admin@acme.test", res.User.Email)
	require.NotEmpty(t, res.Tokens.AccessToken)
	require.NotEmpty(t, res.Tokens.RefreshToken)
	require.Equal(t, "Bearer", res.Tokens.TokenType)
	require.EqualValues(t, 15*60, res.Tokens.ExpiresIn)

	// Access token carries role and tenant claims.
	claims, err := svc.Codec.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, string(domain.RoleClientAdmin), claims.Role)
	require.Equal(t, "tenant-1", claims.TenantID)
}

func TestLoginDoesNotDistinguishUnknownEmailFromWrongPassword(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.LoginWithPassword(ctx, "nobody@acme.test", "correct horse", "", SessionMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.LoginWithPassword(ctx, "admin@acme.test", "wrong password", "", SessionMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	svc, u := newAuthService(t)
	ctx := context.Background()

	require.NoError(t, svc.Store.Users().UpdateStatus(ctx, u.ID, domain.UserStatusDisabled))

	_, err := svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", "", SessionMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginTOTPGate(t *testing.T) {
	svc, u := newAuthService(t)
	ctx := context.Background()

	const secret = "JBSWY3DPEHPK3PXP"
	require.NoError(t, svc.Store.Users().UpdateTOTPSecret(ctx, u.ID, secret))
	require.NoError(t, svc.Store.Users().EnableTOTP(ctx, u.ID))

	// Correct password without a code is a distinct condition so the
	// caller can re-prompt.
	_, err := svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", "", SessionMeta{})
	require.ErrorIs(t, err, ErrOTPRequired)

	_, err = svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", "000000", SessionMeta{})
	require.ErrorIs(t, err, ErrInvalidOTP)

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)
	res, err := svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", code, SessionMeta{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Tokens.AccessToken)

	// Wrong password still wins over the OTP gate.
	_, err = svc.LoginWithPassword(ctx, "admin@acme.test", "wrong password", code, SessionMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	res, err := svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", "", SessionMeta{})
	require.NoError(t, err)
	rt1 := res.Tokens.RefreshToken

	pair2, err := svc.Refresh(ctx, rt1, SessionMeta{})
	require.NoError(t, err)
	require.NotEmpty(t, pair2.RefreshToken)
	require.NotEqual(t, rt1, pair2.RefreshToken)

	// Rotation invalidates the predecessor: replaying rt1 always fails.
	_, err = svc.Refresh(ctx, rt1, SessionMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)

	// The successor still works.
	_, err = svc.Refresh(ctx, pair2.RefreshToken, SessionMeta{})
	require.NoError(t, err)
}

func TestRefreshConcurrentReplaySingleWinner(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	res, err := svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", "", SessionMeta{})
	require.NoError(t, err)
	rt := res.Tokens.RefreshToken

	// Two callers race the same refresh token. Write transactions begin
	// immediate, so one rotates and the other observes the revocation.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, rt, SessionMeta{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var rotated, rejected int
	for err := range errs {
		switch {
		case err == nil:
			rotated++
		case errors.Is(err, ErrUnauthorized):
			rejected++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	require.Equal(t, 1, rotated)
	require.Equal(t, 1, rejected)
}

func TestRefreshRejectsForgedAndUnknownTokens(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "not-a-jwt", SessionMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)

	// Well-formed token signed by us but never persisted (e.g. the
	// store record was purged): still unauthorized.
	orphan, err := svc.Codec.SignRefresh("01K00000000000000000000000", time.Now().UTC())
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, orphan, SessionMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _ := newAuthService(t)
	ctx := context.Background()

	res, err := svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", "", SessionMeta{})
	require.NoError(t, err)
	rt := res.Tokens.RefreshToken

	require.NoError(t, svc.Logout(ctx, rt))
	// Second logout of the same token is a no-op, as is garbage input.
	require.NoError(t, svc.Logout(ctx, rt))
	require.NoError(t, svc.Logout(ctx, "garbage"))

	// The revoked token can no longer refresh.
	_, err = svc.Refresh(ctx, rt, SessionMeta{})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutAllEndsEverySession(t *testing.T) {
	svc, u := newAuthService(t)
	ctx := context.Background()

	var tokens []string
	for range 3 {
		res, err := svc.LoginWithPassword(ctx, "admin@acme.test", "correct horse", "", SessionMeta{})
		require.NoError(t, err)
		tokens = append(tokens, res.Tokens.RefreshToken)
	}

	n, err := svc.LogoutAll(ctx, u.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	for _, rt := range tokens {
		_, err := svc.Refresh(ctx, rt, SessionMeta{})
		require.ErrorIs(t, err, ErrUnauthorized)
	}
}
