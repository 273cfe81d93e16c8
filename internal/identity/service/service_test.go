package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/internal/identity/store/drivers/sqlite"
	"github.com/cobaltgrid/identity/pkg/cryptox"
	"github.com/cobaltgrid/identity/pkg/idx"
	"github.com/cobaltgrid/identity/pkg/jwtx"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestHasher() *cryptox.Hasher {
	// Bcrypt at minimum cost keeps the suite fast; algorithm choice is
	// covered by the cryptox tests.
	return &cryptox.Hasher{Default: cryptox.AlgoBcrypt, BcryptCost: 4}
}

func newTestCodec() *jwtx.Codec {
	return &jwtx.Codec{
		Issuer:        "identity-test",
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func createActiveUser(t *testing.T, st store.Store, h *cryptox.Hasher, email, password string) domain.User {
	t.Helper()

	digest, algo, err := h.Hash(password)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	tenant := "tenant-1"
	u := domain.User{
		ID:            idx.New(),
		Email:         email,
		PasswordHash:  digest,
		PasswordAlgo:  algo,
		Role:          domain.RoleClientAdmin,
		TenantID:      &tenant,
		Status:        domain.UserStatusActive,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, st.Users().Create(context.Background(), u))
	return u
}

// capturePublisher records published events; failPublisher always errors.
type capturePublisher struct {
	taskTypes []string
	payloads  []any
}

func (p *capturePublisher) Publish(_ context.Context, taskType string, payload any) error {
	p.taskTypes = append(p.taskTypes, taskType)
	p.payloads = append(p.payloads, payload)
	return nil
}

type failPublisher struct{}

func (failPublisher) Publish(context.Context, string, any) error {
	return errors.New("queue unreachable")
}
