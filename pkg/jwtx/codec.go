// Package jwtx signs and verifies the two token families the identity
// service issues: short-lived access tokens carrying authorization claims,
// and longer-lived refresh tokens carrying only a subject. Each family has
// its own secret so a leaked access secret cannot be used to mint refresh
// tokens (or vice versa).
package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cobaltgrid/identity/pkg/idx"
)

var (
	// ErrTokenInvalid reports a token that failed signature or structural checks.
	ErrTokenInvalid = errors.New("jwtx: token invalid")

	// ErrTokenExpired reports a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("jwtx: token expired")
)

// AccessClaims are embedded in access tokens. Role and tenant travel in the
// token so authorization middleware can act without a database round trip.
type AccessClaims struct {
	jwt.RegisteredClaims

	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// RefreshClaims carry only the subject; everything else about a refresh
// token lives in its persisted store record.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

// Codec holds the two independent HS256 signing contexts.
type Codec struct {
	Issuer string

	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SignAccess mints an access token for the subject with its role and
// optional tenant claim.
func (c *Codec) SignAccess(subject, role, tenantID string, now time.Time) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: c.registered(subject, now, c.AccessTTL),
		Role:             role,
		TenantID:         tenantID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.AccessSecret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign access token: %w", err)
	}
	return signed, nil
}

// SignRefresh mints a refresh token for the subject.
func (c *Codec) SignRefresh(subject string, now time.Time) (string, error) {
	claims := RefreshClaims{RegisteredClaims: c.registered(subject, now, c.RefreshTTL)}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(c.RefreshSecret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccess checks signature, issuer and expiry against the access context.
func (c *Codec) VerifyAccess(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := c.verify(token, &claims, c.AccessSecret); err != nil {
		return AccessClaims{}, err
	}
	return claims, nil
}

// VerifyRefresh checks signature, issuer and expiry against the refresh context.
func (c *Codec) VerifyRefresh(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.verify(token, &claims, c.RefreshSecret); err != nil {
		return RefreshClaims{}, err
	}
	return claims, nil
}

func (c *Codec) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	// A unique jti keeps two tokens minted for the same subject in the
	// same second from serializing identically.
	return jwt.RegisteredClaims{
		ID:        idx.New().String(),
		Issuer:    c.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *Codec) verify(token string, claims jwt.Claims, secret []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	return nil
}
