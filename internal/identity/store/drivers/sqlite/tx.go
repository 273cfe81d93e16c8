package sqlite

import (
	"database/sql"

	"github.com/cobaltgrid/identity/internal/identity/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Users() store.UserStore                 { return &usersRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokenStore { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) Invitations() store.InvitationStore     { return &invitationsRepo{db: t.tx} }
