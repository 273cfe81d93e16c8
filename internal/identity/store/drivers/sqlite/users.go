package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/internal/identity/store"
	"github.com/cobaltgrid/identity/pkg/cryptox"
	"github.com/cobaltgrid/identity/pkg/idx"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, first_name, last_name, password_hash, password_algo,
	role, tenant_id, status, email_verified, totp_enabled, totp_secret,
	created_at, updated_at`

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FirstName, u.LastName, u.PasswordHash, string(u.PasswordAlgo),
		string(u.Role), mapOptionalString(u.TenantID), string(u.Status),
		u.EmailVerified, u.TOTPEnabled, mapOptionalString(u.TOTPSecret),
		u.CreatedAt, u.UpdatedAt,
	)
	return mapConstraint(err)
}

func (r *usersRepo) FindByID(ctx context.Context, id idx.ID) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) UpdateTOTPSecret(ctx context.Context, id idx.ID, secret string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET totp_secret = ?, totp_enabled = 0, updated_at = ?
		WHERE id = ?`, secret, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) EnableTOTP(ctx context.Context, id idx.ID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET totp_enabled = 1, updated_at = ?
		WHERE id = ? AND totp_secret IS NOT NULL`, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *usersRepo) UpdateStatus(ctx context.Context, id idx.ID, status domain.UserStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET status = ?, updated_at = ?
		WHERE id = ?`, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u          domain.User
		algo, role string
		status     string
		tenantID   sql.NullString
		totpSecret sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &algo,
		&role, &tenantID, &status, &u.EmailVerified, &u.TOTPEnabled, &totpSecret,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.PasswordAlgo = cryptox.Algorithm(algo)
	u.Role = domain.Role(role)
	u.Status = domain.UserStatus(status)
	u.TenantID = mapNullStringPtr(tenantID)
	u.TOTPSecret = mapNullStringPtr(totpSecret)
	return u, nil
}
