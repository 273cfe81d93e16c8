package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/events"
	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/pkg/cryptox"
	"github.com/cobaltgrid/identity/pkg/idx"
)

func newInvitationService(t *testing.T, pub events.Publisher) (*InvitationService, domain.User) {
	t.Helper()

	st := newTestStore(t)
	h := newTestHasher()
	inviter := createActiveUser(t, st, h, "admin@acme.test", "correct horse")
	return &InvitationService{
		Store:      st,
		Hasher:     h,
		Publisher:  pub,
		TOTPIssuer: "identity-test",
		TTL:        48 * time.Hour,
	}, inviter
}

func TestCreateInvitationPublishesEvent(t *testing.T) {
	pub := &capturePublisher{}
	svc, inviter := newInvitationService(t, pub)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:             "newhire@acme.test",
		Role:              domain.RoleClientUser,
		TenantID:          inviter.TenantID,
		AuthType:          domain.AuthTypeOTP,
		InvitedBy:         inviter.ID,
		IssueTempPassword: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.NotNil(t, res.Invitation.TemporaryPasswordHash)
	require.Equal(t, domain.InvitationStatusPending, res.Invitation.Status(time.Now().UTC()))

	require.Equal(t, []string{events.TypeInvitationCreated}, pub.taskTypes)
	payload := pub.payloads[0].(events.InvitationCreatedPayload)
	require.Equal(t, "newhire@acme.test", payload.Email)
	require.Equal(t, res.Token, payload.Token)
	require.NotEmpty(t, payload.TemporaryPassword)

	// Only the fingerprint is persisted; the temp password plaintext
	// exists solely in the event payload.
	stored, err := svc.Store.Invitations().FindByTokenHash(ctx, cryptox.FingerprintToken(res.Token))
	require.NoError(t, err)
	require.NotEqual(t, res.Token, stored.TokenHash)
	require.NotEqual(t, payload.TemporaryPassword, *stored.TemporaryPasswordHash)
}

func TestCreateInvitationSurvivesPublishFailure(t *testing.T) {
	svc, inviter := newInvitationService(t, failPublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:     "newhire@acme.test",
		Role:      domain.RoleClientUser,
		AuthType:  domain.AuthTypeOTP,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	// The invitation is the source of truth and remains acceptable.
	_, err = svc.Store.Invitations().FindByTokenHash(ctx, cryptox.FingerprintToken(res.Token))
	require.NoError(t, err)
}

func TestCreateInvitationSkipsTempPasswordForTOTP(t *testing.T) {
	pub := &capturePublisher{}
	svc, inviter := newInvitationService(t, pub)

	res, err := svc.Create(context.Background(), CreateInvitationParams{
		Email:             "newhire@acme.test",
		Role:              domain.RoleClientUser,
		AuthType:          domain.AuthTypeTOTP,
		InvitedBy:         inviter.ID,
		IssueTempPassword: true,
	})
	require.NoError(t, err)
	require.Nil(t, res.Invitation.TemporaryPasswordHash)
	payload := pub.payloads[0].(events.InvitationCreatedPayload)
	require.Empty(t, payload.TemporaryPassword)
}

func TestAcceptInvitationCreatesActiveUser(t *testing.T) {
	svc, inviter := newInvitationService(t, &capturePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:     "newhire@acme.test",
		Role:      domain.RoleClientUser,
		TenantID:  inviter.TenantID,
		AuthType:  domain.AuthTypeOTP,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	accepted, err := svc.Accept(ctx, AcceptInvitationParams{
		Token:     res.Token,
		Password:  "chosen password",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	require.Equal(t, domain.RoleClientUser, accepted.User.Role)
	require.Equal(t, domain.UserStatusActive, accepted.User.Status)
	require.True(t, accepted.User.EmailVerified)
	require.False(t, accepted.User.TOTPEnabled)
	require.Empty(t, accepted.TOTPSecret)

	user, err := svc.Store.Users().FindByEmail(ctx, "newhire@acme.test")
	require.NoError(t, err)
	ok, err := svc.Hasher.Verify("chosen password", user.PasswordHash, user.PasswordAlgo)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcceptInvitationIsExactlyOnce(t *testing.T) {
	svc, inviter := newInvitationService(t, &capturePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:     "newhire@acme.test",
		Role:      domain.RoleClientUser,
		AuthType:  domain.AuthTypeOTP,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, AcceptInvitationParams{Token: res.Token, Password: "pw one"})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, AcceptInvitationParams{Token: res.Token, Password: "pw two"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestAcceptInvitationConcurrentExactlyOnce(t *testing.T) {
	svc, inviter := newInvitationService(t, &capturePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:     "newhire@acme.test",
		Role:      domain.RoleClientUser,
		AuthType:  domain.AuthTypeOTP,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	// Two racing acceptances of the same token. The loser's transaction
	// starts after the winner commits and sees the invitation already
	// accepted.
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Accept(ctx, AcceptInvitationParams{Token: res.Token, Password: "chosen password"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var accepted, conflicted int
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrConflict):
			conflicted++
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	require.Equal(t, 1, accepted)
	require.Equal(t, 1, conflicted)

	// Exactly one account exists for the invitee.
	_, err = svc.Store.Users().FindByEmail(ctx, "newhire@acme.test")
	require.NoError(t, err)
}

func TestAcceptInvitationExpiry(t *testing.T) {
	svc, inviter := newInvitationService(t, &capturePublisher{})
	ctx := context.Background()

	svc.TTL = time.Millisecond
	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:     "late@acme.test",
		Role:      domain.RoleClientUser,
		AuthType:  domain.AuthTypeOTP,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = svc.Accept(ctx, AcceptInvitationParams{Token: res.Token, Password: "pw"})
	require.ErrorIs(t, err, ErrExpired)

	// An expired acceptance creates nothing.
	_, err = svc.Store.Users().FindByEmail(ctx, "late@acme.test")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestAcceptInvitationUnknownToken(t *testing.T) {
	svc, _ := newInvitationService(t, &capturePublisher{})

	_, err := svc.Accept(context.Background(), AcceptInvitationParams{Token: "no-such-token", Password: "pw"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAcceptInvitationReusesTempPasswordHash(t *testing.T) {
	pub := &capturePublisher{}
	svc, inviter := newInvitationService(t, pub)
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:             "newhire@acme.test",
		Role:              domain.RoleClientUser,
		AuthType:          domain.AuthTypeOTP,
		InvitedBy:         inviter.ID,
		IssueTempPassword: true,
	})
	require.NoError(t, err)
	tempPassword := pub.payloads[0].(events.InvitationCreatedPayload).TemporaryPassword

	// No password supplied: the stored temporary hash is reused
	// verbatim, so the out-of-band credential logs the user in.
	_, err = svc.Accept(ctx, AcceptInvitationParams{Token: res.Token})
	require.NoError(t, err)

	user, err := svc.Store.Users().FindByEmail(ctx, "newhire@acme.test")
	require.NoError(t, err)
	require.Equal(t, *res.Invitation.TemporaryPasswordHash, user.PasswordHash)
	ok, err := svc.Hasher.Verify(tempPassword, user.PasswordHash, user.PasswordAlgo)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcceptInvitationWithoutAnyCredentialFails(t *testing.T) {
	svc, inviter := newInvitationService(t, &capturePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:     "newhire@acme.test",
		Role:      domain.RoleClientUser,
		AuthType:  domain.AuthTypeOTP,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	_, err = svc.Accept(ctx, AcceptInvitationParams{Token: res.Token})
	require.ErrorIs(t, err, ErrPasswordRequired)
}

func TestAcceptTOTPInvitationEnrollsAuthenticator(t *testing.T) {
	svc, inviter := newInvitationService(t, &capturePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:     "newhire@acme.test",
		Role:      domain.RoleClientUser,
		AuthType:  domain.AuthTypeTOTP,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	// A chosen password is mandatory for totp invitations.
	_, err = svc.Accept(ctx, AcceptInvitationParams{Token: res.Token})
	require.ErrorIs(t, err, ErrPasswordRequired)

	accepted, err := svc.Accept(ctx, AcceptInvitationParams{Token: res.Token, Password: "chosen password"})
	require.NoError(t, err)
	require.True(t, accepted.User.TOTPEnabled)
	require.NotEmpty(t, accepted.TOTPSecret)
	require.Contains(t, accepted.TOTPUrl, "identity-test")

	// The provisioned secret produces valid codes.
	code, err := totp.GenerateCode(accepted.TOTPSecret, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, totp.Validate(code, accepted.TOTPSecret))
}

func TestDescribeInvitation(t *testing.T) {
	svc, inviter := newInvitationService(t, &capturePublisher{})
	ctx := context.Background()

	res, err := svc.Create(ctx, CreateInvitationParams{
		Email:     "newhire@acme.test",
		Role:      domain.RoleClientUser,
		AuthType:  domain.AuthTypeOTP,
		InvitedBy: inviter.ID,
	})
	require.NoError(t, err)

	inv, err := svc.Describe(ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, "newhire@acme.test", inv.Email)

	_, err = svc.Describe(ctx, "no-such-token")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Accept(ctx, AcceptInvitationParams{Token: res.Token, Password: "pw"})
	require.NoError(t, err)
	_, err = svc.Describe(ctx, res.Token)
	require.ErrorIs(t, err, ErrConflict)
}

func TestDescribeReportsExpiredOverAccepted(t *testing.T) {
	svc, inviter := newInvitationService(t, &capturePublisher{})
	ctx := context.Background()

	// An invitation accepted before its deadline, seen after it.
	past := time.Now().UTC().Add(-time.Hour)
	token := "stale-token"
	require.NoError(t, svc.Store.Invitations().Create(ctx, domain.Invitation{
		ID:         idx.New(),
		Email:      "old@acme.test",
		TokenHash:  cryptox.FingerprintToken(token),
		Role:       domain.RoleClientUser,
		InvitedBy:  inviter.ID,
		AuthType:   domain.AuthTypeOTP,
		ExpiresAt:  past,
		AcceptedAt: &past,
		CreatedAt:  past.Add(-time.Hour),
	}))

	_, err := svc.Describe(ctx, token)
	require.ErrorIs(t, err, ErrExpired)
}
