package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/events"
	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/pkg/cryptox"
	"github.com/cobaltgrid/identity/pkg/idx"
	"github.com/cobaltgrid/identity/pkg/slogx"
)

// DefaultInvitationTTL applies when no TTL is configured.
const DefaultInvitationTTL = 48 * time.Hour

// InvitationService creates invitations and performs exactly-once
// acceptance. Role-target rules are enforced at the transport boundary;
// this service trusts its role argument.
type InvitationService struct {
	Store     store.Store
	Hasher    *cryptox.Hasher
	Publisher events.Publisher

	// TOTPIssuer names this deployment in enrollment URIs.
	TOTPIssuer string

	// TTL bounds how long an invitation stays acceptable.
	TTL time.Duration
}

// CreateInvitationParams carries inputs for Create.
type CreateInvitationParams struct {
	Email     string
	Role      domain.Role
	TenantID  *string
	AuthType  domain.AuthType
	InvitedBy idx.ID

	// IssueTempPassword generates a one-time credential delivered with
	// the invitation event. Ignored for the totp auth type, where the
	// invitee must choose a password at acceptance.
	IssueTempPassword bool
}

// CreateInvitationResult returns the stored invitation plus the raw
// token, which exists only in this response and the published event.
type CreateInvitationResult struct {
	Invitation domain.Invitation
	Token      string
}

// Create persists a new invitation and publishes invitation.created.
// The invitation row is the source of truth: a publish failure is
// logged and swallowed, never surfaced to the caller.
func (s *InvitationService) Create(ctx context.Context, p CreateInvitationParams) (*CreateInvitationResult, error) {
	l := slogx.FromContext(ctx)
	now := time.Now().UTC()

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	inv := domain.Invitation{
		ID:        idx.New(),
		Email:     p.Email,
		TokenHash: cryptox.FingerprintToken(token),
		Role:      p.Role,
		TenantID:  p.TenantID,
		InvitedBy: p.InvitedBy,
		AuthType:  p.AuthType,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
	}

	var tempPassword string
	if p.IssueTempPassword && p.AuthType != domain.AuthTypeTOTP {
		tempPassword, err = cryptox.GeneratePassword()
		if err != nil {
			return nil, err
		}
		digest, _, err := s.Hasher.Hash(tempPassword)
		if err != nil {
			return nil, err
		}
		inv.TemporaryPasswordHash = &digest
	}

	if err := s.Store.Invitations().Create(ctx, inv); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrConflict
		}
		return nil, err
	}

	payload := events.InvitationCreatedPayload{
		InvitationID:      inv.ID.String(),
		Email:             inv.Email,
		Token:             token,
		AuthType:          string(inv.AuthType),
		TemporaryPassword: tempPassword,
	}
	if err := s.Publisher.Publish(ctx, events.TypeInvitationCreated, payload); err != nil {
		// Best effort: the invitation exists and the token is returned
		// to the caller, so delivery can be retried out of band.
		l.Error("invitation.created publish failed",
			slog.String("invitation_id", inv.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	l.Info("invitation created",
		slog.String("invitation_id", inv.ID.String()),
		slog.String("role", string(inv.Role)),
		slog.String("auth_type", string(inv.AuthType)),
	)
	return &CreateInvitationResult{Invitation: inv, Token: token}, nil
}

// Describe resolves an invitation by its raw token for the public
// pre-acceptance page, without mutating anything. Unlike Accept, a
// past-deadline link always reads as expired, even when it was used
// before the deadline.
func (s *InvitationService) Describe(ctx context.Context, token string) (domain.Invitation, error) {
	now := time.Now().UTC()

	inv, err := s.Store.Invitations().FindByTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invitation{}, ErrNotFound
		}
		return domain.Invitation{}, err
	}

	if !now.Before(inv.ExpiresAt) {
		return domain.Invitation{}, ErrExpired
	}
	if inv.AcceptedAt != nil {
		return domain.Invitation{}, ErrConflict
	}
	return inv, nil
}

// AcceptInvitationParams carries inputs for Accept. Password is
// optional unless the invitation's auth type is totp.
type AcceptInvitationParams struct {
	Token     string
	Password  string
	FirstName string
	LastName  string
}

// AcceptResult reports the account created by a successful acceptance.
// For totp invitations it also carries the enrollment secret and URI,
// shown exactly once.
type AcceptResult struct {
	User       domain.Profile
	TOTPSecret string
	TOTPUrl    string
}

// Accept consumes an invitation and creates its user inside a single
// transaction. Two concurrent acceptances of the same token yield
// exactly one success: marking the invitation accepted is conditional
// on it still being open, and the loser rolls back its user row.
func (s *InvitationService) Accept(ctx context.Context, p AcceptInvitationParams) (*AcceptResult, error) {
	now := time.Now().UTC()
	hash := cryptox.FingerprintToken(p.Token)

	var result AcceptResult
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		inv, err := tx.Invitations().FindByTokenHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}

		switch inv.Status(now) {
		case domain.InvitationStatusAccepted:
			return ErrConflict
		case domain.InvitationStatusExpired:
			return ErrExpired
		}

		user := domain.User{
			ID:            idx.New(),
			Email:         inv.Email,
			FirstName:     p.FirstName,
			LastName:      p.LastName,
			Role:          inv.Role,
			TenantID:      inv.TenantID,
			Status:        domain.UserStatusActive,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		switch {
		case inv.AuthType == domain.AuthTypeTOTP:
			// The invitee must choose their password; no temporary
			// credential is ever issued for totp invitations.
			if p.Password == "" {
				return ErrPasswordRequired
			}
			digest, algo, err := s.Hasher.Hash(p.Password)
			if err != nil {
				return err
			}
			user.PasswordHash, user.PasswordAlgo = digest, algo

			key, err := totp.Generate(totp.GenerateOpts{
				Issuer:      s.TOTPIssuer,
				AccountName: inv.Email,
			})
			if err != nil {
				return err
			}
			secret := key.Secret()
			user.TOTPSecret = &secret
			user.TOTPEnabled = true
			result.TOTPSecret = secret
			result.TOTPUrl = key.URL()

		case p.Password != "":
			digest, algo, err := s.Hasher.Hash(p.Password)
			if err != nil {
				return err
			}
			user.PasswordHash, user.PasswordAlgo = digest, algo

		case inv.TemporaryPasswordHash != nil:
			// Reuse the stored digest verbatim: the plaintext was
			// delivered out of band at creation and cannot be rederived.
			user.PasswordHash = *inv.TemporaryPasswordHash
			user.PasswordAlgo = s.defaultAlgo()

		default:
			return ErrPasswordRequired
		}

		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrConflict
			}
			return err
		}

		if err := tx.Invitations().MarkAccepted(ctx, inv.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrConflict
			}
			return err
		}

		result.User = user.Profile()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("invitation accepted",
		slog.String("user_id", result.User.ID),
		slog.String("role", string(result.User.Role)),
	)
	return &result, nil
}

func (s *InvitationService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultInvitationTTL
	}
	return s.TTL
}

func (s *InvitationService) defaultAlgo() cryptox.Algorithm {
	if s.Hasher.Default != "" {
		return s.Hasher.Default
	}
	return cryptox.AlgoArgon2id
}
