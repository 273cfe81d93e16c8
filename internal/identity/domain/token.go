package domain

import (
	"time"

	"github.com/cobaltgrid/identity/pkg/idx"
)

// RefreshToken is the persisted record of an issued refresh token.
// Only the SHA-256 fingerprint of the signed token is stored; the
// token itself never touches the database. Records are append-only:
// rotation and logout set RevokedAt rather than deleting the row, so
// reuse of a rotated token is detectable.
type RefreshToken struct {
	ID        idx.ID
	UserID    idx.ID
	TokenHash string
	UserAgent *string
	IP        *string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Revoked reports whether the token has been tombstoned.
func (t RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token's lifetime has elapsed at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair carries a freshly issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
