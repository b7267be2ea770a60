package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/google/uuid"
)

const (
	accountColumns = `id, username, email, password_hash, display_name, bio, role, actor_uri, inbox_uri,
		public_key, private_key, portable_public_key, portable_key_fingerprint, known_actor_uris,
		is_active, is_banned, created_at, updated_at`

	sqlInsertAccount = `INSERT INTO accounts(` + accountColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectAccountById       = `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	sqlSelectAccountByUsername = `SELECT ` + accountColumns + ` FROM accounts WHERE username = ?`
	sqlSelectAccountByEmail    = `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`
	sqlSelectAccountByActorURI = `SELECT ` + accountColumns + ` FROM accounts WHERE actor_uri = ?`
	// several accounts can share a fingerprint once a recovery has happened;
	// the live one wins, then the newest
	sqlSelectAccountByFingerprint = `SELECT ` + accountColumns + ` FROM accounts
		WHERE portable_key_fingerprint = ?
		ORDER BY is_active DESC, created_at DESC LIMIT 1`
	sqlDeactivateAccount = `UPDATE accounts SET is_active = 0, known_actor_uris = ?, updated_at = ? WHERE id = ?`
)

func scanAccount(row rowScanner) (*domain.Account, error) {
	var acc domain.Account
	err := row.Scan(&acc.Id, &acc.Username, &acc.Email, &acc.PasswordHash, &acc.DisplayName, &acc.Bio, &acc.Role,
		&acc.ActorURI, &acc.InboxURI, &acc.PublicKey, &acc.PrivateKey, &acc.PortablePublicKey,
		&acc.PortableKeyFingerprint, &acc.KnownActorURIs, &acc.IsActive, &acc.IsBanned, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func insertAccount(ctx context.Context, q querier, acc *domain.Account) error {
	now := time.Now().UTC()
	if acc.Id == uuid.Nil {
		acc.Id = uuid.New()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now
	if acc.Role == "" {
		acc.Role = domain.RoleUser
	}
	_, err := q.ExecContext(ctx, sqlInsertAccount,
		acc.Id, acc.Username, acc.Email, acc.PasswordHash, acc.DisplayName, acc.Bio, acc.Role,
		acc.ActorURI, acc.InboxURI, acc.PublicKey, acc.PrivateKey, acc.PortablePublicKey,
		acc.PortableKeyFingerprint, acc.KnownActorURIs, acc.IsActive, acc.IsBanned, acc.CreatedAt, acc.UpdatedAt)
	return err
}

// CreateAccount inserts a new account. A taken username, email or actor URI
// surfaces as a unique violation, see IsUniqueViolation.
func (db *DB) CreateAccount(ctx context.Context, acc *domain.Account) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return insertAccount(ctx, tx, acc)
	})
}

func (db *DB) ReadAccById(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return scanAccount(db.db.QueryRowContext(ctx, sqlSelectAccountById, id))
}

func (db *DB) ReadAccByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return scanAccount(db.db.QueryRowContext(ctx, sqlSelectAccountByUsername, username))
}

func (db *DB) ReadAccByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return scanAccount(db.db.QueryRowContext(ctx, sqlSelectAccountByEmail, email))
}

func (db *DB) ReadAccByActorURI(ctx context.Context, actorURI string) (*domain.Account, error) {
	return scanAccount(db.db.QueryRowContext(ctx, sqlSelectAccountByActorURI, actorURI))
}

func (db *DB) ReadAccByFingerprint(ctx context.Context, fingerprint string) (*domain.Account, error) {
	return scanAccount(db.db.QueryRowContext(ctx, sqlSelectAccountByFingerprint, fingerprint))
}

func (t *Tx) InsertAccount(ctx context.Context, acc *domain.Account) error {
	return insertAccount(ctx, t.tx, acc)
}

func (t *Tx) ReadAccByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, sqlSelectAccountByUsername, username))
}

func (t *Tx) ReadAccByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, sqlSelectAccountByEmail, email))
}

func (t *Tx) ReadAccByFingerprint(ctx context.Context, fingerprint string) (*domain.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, sqlSelectAccountByFingerprint, fingerprint))
}

// DeactivateAccount marks the account inactive and stores its extended lineage.
func (t *Tx) DeactivateAccount(ctx context.Context, id uuid.UUID, lineage domain.Lineage) error {
	_, err := t.tx.ExecContext(ctx, sqlDeactivateAccount, lineage, time.Now().UTC(), id)
	return err
}
