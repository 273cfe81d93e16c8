package domain

import (
	"time"

	"github.com/cobaltgrid/identity/pkg/idx"
)

// AuthType selects the second factor an invited user will enroll with.
type AuthType string

const (
	// AuthTypeTOTP provisions an authenticator-app secret at acceptance.
	AuthTypeTOTP AuthType = "totp"
	// AuthTypeOTP relies on one-time codes delivered out of band.
	AuthTypeOTP AuthType = "otp"
)

// ValidAuthType reports whether a is a known auth type.
func ValidAuthType(a AuthType) bool {
	return a == AuthTypeTOTP || a == AuthTypeOTP
}

// InvitationStatus is the derived state of an invitation.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusExpired  InvitationStatus = "expired"
)

// Invitation records a pending onboarding offer. The raw token is
// delivered to the invitee out of band; only its fingerprint is
// stored. TemporaryPasswordHash, when set, is copied verbatim onto
// the created user at acceptance so the invitee's first login uses
// the generated credential.
type Invitation struct {
	ID                    idx.ID
	Email                 string
	TokenHash             string
	Role                  Role
	TenantID              *string
	InvitedBy             idx.ID
	AuthType              AuthType
	TemporaryPasswordHash *string
	ExpiresAt             time.Time
	AcceptedAt            *time.Time
	CreatedAt             time.Time
}

// Status derives the invitation's state at now. Acceptance wins over
// expiry: an invitation accepted before its deadline stays accepted.
func (i Invitation) Status(now time.Time) InvitationStatus {
	if i.AcceptedAt != nil {
		return InvitationStatusAccepted
	}
	if !now.Before(i.ExpiresAt) {
		return InvitationStatusExpired
	}
	return InvitationStatusPending
}
