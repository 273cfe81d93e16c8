package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cobaltgrid/identity/internal/identity/domain"
	"github.com/cobaltgrid/identity/pkg/idx"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshTokenColumns = `id, user_id, token_hash, user_agent, ip,
	expires_at, revoked_at, created_at`

func (r *refreshTokensRepo) Create(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, mapOptionalString(t.UserAgent), mapOptionalString(t.IP),
		t.ExpiresAt, nil, t.CreatedAt,
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) FindValidByHash(ctx context.Context, hash string, now time.Time) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+refreshTokenColumns+` FROM refresh_tokens
		WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		hash, now)
	return scanRefreshToken(row)
}

// RevokeByID is conditional on the row still being live so that two
// racing rotations cannot both succeed.
func (r *refreshTokensRepo) RevokeByID(ctx context.Context, id idx.ID, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE id = ? AND revoked_at IS NULL`, now, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, userID idx.ID, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL`, now, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanRefreshToken(row *sql.Row) (domain.RefreshToken, error) {
	var (
		t         domain.RefreshToken
		userAgent sql.NullString
		ip        sql.NullString
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &userAgent, &ip,
		&t.ExpiresAt, &revokedAt, &t.CreatedAt,
	)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.UserAgent = mapNullStringPtr(userAgent)
	t.IP = mapNullStringPtr(ip)
	t.RevokedAt = mapNullTimePtr(revokedAt)
	return t, nil
}
