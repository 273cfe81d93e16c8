package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/pkg/cryptox"
	"github.com/cobaltgrid/identity/pkg/idx"
	"github.com/cobaltgrid/identity/pkg/jwtx"
	"github.com/cobaltgrid/identity/pkg/slogx"
)

// AuthService orchestrates login, refresh rotation and logout.
type AuthService struct {
	Store  store.Store
	Hasher *cryptox.Hasher
	Codec  *jwtx.Codec
}

// SessionMeta is audit metadata captured at the transport boundary and
// stored alongside the refresh-token record.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// LoginResult pairs the sanitized user with freshly issued tokens.
type LoginResult struct {
	User   domain.Profile
	Tokens domain.TokenPair
}

// LoginWithPassword authenticates by email and password, gated by TOTP
// when the account has it enabled. Unknown emails and wrong passwords
// both fail ErrUnauthorized so responses cannot be used for account
// enumeration.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password, otpCode string, meta SessionMeta) (*LoginResult, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	user, err := s.Store.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if !user.Active() {
		l.Info("login rejected for inactive account", slog.String("user_id", user.ID.String()))
		return nil, ErrUnauthorized
	}

	ok, err := s.Hasher.Verify(password, user.PasswordHash, user.PasswordAlgo)
	if err != nil {
		return nil, err
	}
	if !ok {
		l.Info("login failed password verification", slog.String("user_id", user.ID.String()))
		return nil, ErrUnauthorized
	}

	if user.TOTPEnabled {
		if otpCode == "" {
			return nil, ErrOTPRequired
		}
		if user.TOTPSecret == nil || !totp.Validate(otpCode, *user.TOTPSecret) {
			l.Info("login failed otp verification", slog.String("user_id", user.ID.String()))
			return nil, ErrInvalidOTP
		}
	}

	tokens, err := s.issueTokens(ctx, s.Store.RefreshTokens(), user, meta, now)
	if err != nil {
		return nil, err
	}

	l.Info("login succeeded",
		slog.String("user_id", user.ID.String()),
		slog.String("role", string(user.Role)),
	)
	return &LoginResult{User: user.Profile(), Tokens: tokens}, nil
}

// Refresh rotates a refresh token: the presented record is revoked and
// a new one issued in the same transaction. Two concurrent calls with
// the same token yield exactly one success because the revoke is
// conditional on the record still being live.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta SessionMeta) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	claims, err := s.Codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	hash := cryptox.FingerprintToken(refreshToken)

	var tokens domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		record, err := tx.RefreshTokens().FindValidByHash(ctx, hash, now)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Valid signature but no live record: either revoked by
				// logout or already rotated and now replayed.
				l.Warn("refresh token replay or revoked token presented",
					slog.String("subject", claims.Subject))
				return ErrUnauthorized
			}
			return err
		}

		if record.UserID.String() != claims.Subject {
			return ErrUnauthorized
		}

		user, err := tx.Users().FindByID(ctx, record.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUnauthorized
			}
			return err
		}
		if !user.Active() {
			return ErrUnauthorized
		}

		if err := tx.RefreshTokens().RevokeByID(ctx, record.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// A concurrent rotation won the race.
				return ErrUnauthorized
			}
			return err
		}

		tokens, err = s.issueTokens(ctx, tx.RefreshTokens(), user, meta, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Logout revokes the record matching the presented refresh token. It
// is idempotent: invalid tokens and already-revoked records are not
// errors.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	now := time.Now().UTC()

	if _, err := s.Codec.VerifyRefresh(refreshToken); err != nil {
		return nil
	}

	hash := cryptox.FingerprintToken(refreshToken)
	record, err := s.Store.RefreshTokens().FindValidByHash(ctx, hash, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	if err := s.Store.RefreshTokens().RevokeByID(ctx, record.ID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// LogoutAll revokes every live refresh token for the user and reports
// how many sessions were ended.
func (s *AuthService) LogoutAll(ctx context.Context, userID idx.ID) (int64, error) {
	now := time.Now().UTC()
	n, err := s.Store.RefreshTokens().RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, err
	}
	slogx.FromContext(ctx).Info("revoked all sessions",
		slog.String("user_id", userID.String()),
		slog.Int64("revoked", n),
	)
	return n, nil
}

func (s *AuthService) issueTokens(ctx context.Context, tokens store.RefreshTokenStore, user domain.User, meta SessionMeta, now time.Time) (domain.TokenPair, error) {
	var tenantID string
	if user.TenantID != nil {
		tenantID = *user.TenantID
	}

	access, err := s.Codec.SignAccess(user.ID.String(), string(user.Role), tenantID, now)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.Codec.SignRefresh(user.ID.String(), now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	record := domain.RefreshToken{
		ID:        idx.New(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(refresh),
		ExpiresAt: now.Add(s.Codec.RefreshTTL),
		CreatedAt: now,
	}
	if meta.UserAgent != "" {
		record.UserAgent = &meta.UserAgent
	}
	if meta.IP != "" {
		record.IP = &meta.IP
	}
	if err := tokens.Create(ctx, record); err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Codec.AccessTTL.Seconds()),
	}, nil
}
