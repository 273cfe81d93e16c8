package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/pkg/cryptox"
	"github.com/cobaltgrid/identity/pkg/idx"
	"github.com/cobaltgrid/identity/pkg/slogx"
)

// AdminService creates accounts directly, bypassing the invitation
// flow. Reserved for platform administrators.
type AdminService struct {
	Store  store.Store
	Hasher *cryptox.Hasher
}

// CreateUserParams carries inputs for CreateUser.
type CreateUserParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      domain.Role
	TenantID  *string
}

// CreateUser provisions an active, verified account with the given
// credentials. A duplicate email fails ErrConflict.
func (s *AdminService) CreateUser(ctx context.Context, p CreateUserParams) (*domain.Profile, error) {
	now := time.Now().UTC()

	digest, algo, err := s.Hasher.Hash(p.Password)
	if err != nil {
		return nil, err
	}

	user := domain.User{
		ID:            idx.New(),
		Email:         p.Email,
		FirstName:     p.FirstName,
		LastName:      p.LastName,
		PasswordHash:  digest,
		PasswordAlgo:  algo,
		Role:          p.Role,
		TenantID:      p.TenantID,
		Status:        domain.UserStatusActive,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.Store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrConflict
		}
		return nil, err
	}

	slogx.FromContext(ctx).Info("user created by admin",
		slog.String("user_id", user.ID.String()),
		slog.String("role", string(user.Role)),
	)
	profile := user.Profile()
	return &profile, nil
}
