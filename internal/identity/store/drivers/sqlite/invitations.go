package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/pkg/idx"
)

type invitationsRepo struct {
	db dbtx
}

const invitationColumns = `id, email, token_hash, role, tenant_id, invited_by,
	auth_type, temp_password_hash, expires_at, accepted_at, created_at`

func (r *invitationsRepo) Create(ctx context.Context, inv domain.Invitation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invitations (`+invitationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Email, inv.TokenHash, string(inv.Role), mapOptionalString(inv.TenantID),
		inv.InvitedBy, string(inv.AuthType), mapOptionalString(inv.TemporaryPasswordHash),
		inv.ExpiresAt, nil, inv.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *invitationsRepo) FindByTokenHash(ctx context.Context, hash string) (domain.Invitation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+invitationColumns+` FROM invitations WHERE token_hash = ?`, hash)
	return scanInvitation(row)
}

// MarkAccepted is conditional on the invitation still being open so
// two racing acceptances cannot both succeed.
func (r *invitationsRepo) MarkAccepted(ctx context.Context, id idx.ID, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invitations SET accepted_at = ?
		WHERE id = ? AND accepted_at IS NULL`, now, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *invitationsRepo) ExpirePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM invitations
		WHERE accepted_at IS NULL AND expires_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanInvitation(row *sql.Row) (domain.Invitation, error) {
	var (
		inv          domain.Invitation
		role         string
		authType     string
		tenantID     sql.NullString
		tempPassword sql.NullString
		acceptedAt   sql.NullTime
	)
	err := row.Scan(
		&inv.ID, &inv.Email, &inv.TokenHash, &role, &tenantID, &inv.InvitedBy,
		&authType, &tempPassword, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt,
	)
	if err != nil {
		return domain.Invitation{}, mapNotFound(err)
	}
	inv.Role = domain.Role(role)
	inv.AuthType = domain.AuthType(authType)
	inv.TenantID = mapNullStringPtr(tenantID)
	inv.TemporaryPasswordHash = mapNullStringPtr(tempPassword)
	inv.AcceptedAt = mapNullTimePtr(acceptedAt)
	return inv, nil
}
