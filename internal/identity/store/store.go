// Package store defines the persistence boundary for the identity
// service. Drivers live under drivers/ and implement Store; services
// depend only on these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/pkg/idx"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyExists is returned when an insert violates a
	// uniqueness constraint.
	ErrAlreadyExists = errors.New("store: already exists")
)

// UserStore persists accounts.
type UserStore interface {
	Create(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, id idx.ID) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	// UpdateTOTPSecret stores a pending authenticator secret without
	// enabling it.
	UpdateTOTPSecret(ctx context.Context, id idx.ID, secret string) error
	// EnableTOTP flips the enrollment flag once the holder has proven
	// possession of the secret.
	EnableTOTP(ctx context.Context, id idx.ID) error
	UpdateStatus(ctx context.Context, id idx.ID, status domain.UserStatus) error
}

// RefreshTokenStore persists refresh-token fingerprints. Rows are
// append-only; revocation writes a tombstone timestamp.
type RefreshTokenStore interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	// FindValidByHash returns the token with the given fingerprint
	// only if it is unrevoked and unexpired at now. A revoked or
	// expired row yields ErrNotFound.
	FindValidByHash(ctx context.Context, hash string, now time.Time) (domain.RefreshToken, error)
	// RevokeByID tombstones a single token. The update is conditional
	// on the row still being unrevoked; losing the race yields
	// ErrNotFound so callers can detect reuse of a rotated token.
	RevokeByID(ctx context.Context, id idx.ID, now time.Time) error
	// RevokeAllForUser tombstones every live token for a user. It is
	// idempotent and reports how many rows it touched.
	RevokeAllForUser(ctx context.Context, userID idx.ID, now time.Time) (int64, error)
}

// InvitationStore persists onboarding invitations.
type InvitationStore interface {
	Create(ctx context.Context, inv domain.Invitation) error
	FindByTokenHash(ctx context.Context, hash string) (domain.Invitation, error)
	// MarkAccepted stamps the acceptance time. The update is
	// conditional on the invitation still being unaccepted; losing
	// the race yields ErrNotFound.
	MarkAccepted(ctx context.Context, id idx.ID, now time.Time) error
	// ExpirePending deletes invitations whose deadline passed before
	// cutoff and which were never accepted. Returns rows removed.
	ExpirePending(ctx context.Context, cutoff time.Time) (int64, error)
}

// Tx is the set of repositories visible inside a transaction.
type Tx interface {
	Users() UserStore
	RefreshTokens() RefreshTokenStore
	Invitations() InvitationStore
}

// Store is the root persistence handle.
type Store interface {
	Tx

	// WithTx runs fn inside a single transaction, committing on nil
	// and rolling back on error.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}
