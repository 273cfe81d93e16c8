package domain

import (
	"time"

	"github.com/cobaltgrid/identity/pkg/cryptox"
	"github.com/cobaltgrid/identity/pkg/idx"
)

// UserStatus tracks where an account sits in its lifecycle.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInvited  UserStatus = "invited"
	UserStatusDisabled UserStatus = "disabled"
)

// User is an account as persisted. PasswordAlgo tags the scheme the
// digest was produced with so old hashes stay verifiable after the
// default scheme changes.
type User struct {
	ID            idx.ID
	Email         string
	FirstName     string
	LastName      string
	PasswordHash  string
	PasswordAlgo  cryptox.Algorithm
	Role          Role
	TenantID      *string
	Status        UserStatus
	EmailVerified bool
	TOTPEnabled   bool
	TOTPSecret    *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the sanitized projection of a user safe to return over
// the wire. Never expose hashes or TOTP secrets.
type Profile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name,omitempty"`
	LastName      string     `json:"last_name,omitempty"`
	Role          Role       `json:"role"`
	TenantID      *string    `json:"tenant_id,omitempty"`
	Status        UserStatus `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	TOTPEnabled   bool       `json:"totp_enabled"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Profile returns the wire-safe view of u.
func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID.String(),
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Role:          u.Role,
		TenantID:      u.TenantID,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
		TOTPEnabled:   u.TOTPEnabled,
		CreatedAt:     u.CreatedAt,
	}
}

// Active reports whether the account may authenticate.
func (u User) Active() bool {
	return u.Status == UserStatusActive
}
