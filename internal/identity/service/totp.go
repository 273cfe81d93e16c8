package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/pkg/idx"
	"github.com/cobaltgrid/identity/pkg/slogx"
)

// TOTPService drives authenticator enrollment. An account moves from
// unset to pending when a secret is stored, and to enabled once the
// holder verifies a code. There is no path back to unset.
type TOTPService struct {
	Store  store.Store
	Issuer string
}

// SetupResult carries the freshly generated secret for one-time
// display; it is never retrievable again.
type SetupResult struct {
	Secret string
	URL    string
}

// Setup generates a new secret for the user and stores it pending
// verification. Calling Setup again before verification replaces the
// pending secret.
func (s *TOTPService) Setup(ctx context.Context, userID idx.ID) (*SetupResult, error) {
	user, err := s.Store.Users().FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if user.TOTPEnabled {
		return nil, ErrConflict
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Store.Users().UpdateTOTPSecret(ctx, userID, key.Secret()); err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("totp enrollment started", slog.String("user_id", userID.String()))
	return &SetupResult{Secret: key.Secret(), URL: key.URL()}, nil
}

// Verify checks a code against the pending secret and enables TOTP on
// success. A failed code leaves the enrollment state untouched.
func (s *TOTPService) Verify(ctx context.Context, userID idx.ID, code string) error {
	user, err := s.Store.Users().FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.TOTPSecret == nil {
		return ErrNotFound
	}

	// Allow one period of clock skew either side.
	valid, err := totp.ValidateCustom(code, *user.TOTPSecret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return ErrInvalidOTP
	}

	if user.TOTPEnabled {
		return nil
	}
	if err := s.Store.Users().EnableTOTP(ctx, userID); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("totp enabled", slog.String("user_id", userID.String()))
	return nil
}
