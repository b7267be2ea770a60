// Package identity implements the portable identity protocols: registering an
// account bound to a recovery mnemonic, recovering an account on this instance
// from that mnemonic, and claiming a series whose portable key it derives.
//
// Possession of the mnemonic is the only proof of ownership. None of the
// protocols contact the instance an identity came from.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"

	"github.com/deemkeen/mangafedi/activitypub"
	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"golang.org/x/crypto/bcrypt"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt rejects longer input
)

type Options struct {
	KeyBits      int
	Registration bool
	BcryptCost   int
}

// Engine runs the identity protocols against the local store.
type Engine struct {
	db     *db.DB
	secret keys.SecretSource
	urls   activitypub.URLs
	opts   Options
}

func NewEngine(database *db.DB, secret keys.SecretSource, urls activitypub.URLs, opts Options) *Engine {
	if opts.KeyBits < keys.DefaultKeyBits {
		opts.KeyBits = keys.DefaultKeyBits
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Engine{db: database, secret: secret, urls: urls, opts: opts}
}

// Credentials are the local login details of a new account.
type Credentials struct {
	Username string
	Email    string
	Password string
}

func (c Credentials) validate() error {
	if !usernamePattern.MatchString(c.Username) {
		return domain.ValidationError("username must be 3-30 letters, digits, '_' or '-'")
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return domain.ValidationError("invalid email address")
	}
	if len(c.Password) < minPasswordLength || len(c.Password) > maxPasswordLength {
		return domain.ValidationError(fmt.Sprintf("password must be %d-%d characters", minPasswordLength, maxPasswordLength))
	}
	return nil
}

type accountReader interface {
	ReadAccByUsername(ctx context.Context, username string) (*domain.Account, error)
	ReadAccByEmail(ctx context.Context, email string) (*domain.Account, error)
}

// ensureAvailable fails with a validation error when the username or email is
// already taken. It is checked before the expensive key generation and again
// inside the transaction.
func ensureAvailable(ctx context.Context, r accountReader, c Credentials) error {
	if _, err := r.ReadAccByUsername(ctx, c.Username); err == nil {
		return domain.ValidationError("username already taken")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return domain.InternalError(err)
	}
	if _, err := r.ReadAccByEmail(ctx, c.Email); err == nil {
		return domain.ValidationError("email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return domain.InternalError(err)
	}
	return nil
}

// sealedKeypair is a fresh signing keypair with the private half encrypted.
type sealedKeypair struct {
	public  string
	private string
}

func (e *Engine) newSigningKeypair(ctx context.Context) (*sealedKeypair, error) {
	pair, err := keys.GenerateSigningKeypair(ctx, e.opts.KeyBits)
	if err != nil {
		return nil, domain.InternalError(fmt.Errorf("generating keypair: %w", err))
	}
	sealed, err := keys.EncryptPrivateKey(e.secret, pair.Private)
	if err != nil {
		return nil, domain.InternalError(fmt.Errorf("sealing private key: %w", err))
	}
	return &sealedKeypair{public: pair.Public, private: sealed}, nil
}

// newAccount assembles an account record for c, ready to insert.
func (e *Engine) newAccount(ctx context.Context, c Credentials, portable *keys.PortableKeypair) (*domain.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), e.opts.BcryptCost)
	if err != nil {
		return nil, domain.InternalError(fmt.Errorf("hashing password: %w", err))
	}
	pair, err := e.newSigningKeypair(ctx)
	if err != nil {
		return nil, err
	}
	actor := e.urls.User(c.Username)
	return &domain.Account{
		Username:               c.Username,
		Email:                  c.Email,
		PasswordHash:           string(hash),
		DisplayName:            c.Username,
		Role:                   domain.RoleUser,
		ActorURI:               actor,
		InboxURI:               activitypub.Inbox(actor),
		PublicKey:              pair.public,
		PrivateKey:             pair.private,
		PortablePublicKey:      portable.PublicKey,
		PortableKeyFingerprint: portable.Fingerprint,
		KnownActorURIs:         domain.Lineage{},
		IsActive:               true,
	}, nil
}

// storageError keeps AppErrors as they are and maps unique violations that
// slipped past the availability checks to validation errors.
func storageError(err error) error {
	var appErr *domain.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case db.IsUniqueViolation(err):
		return domain.ValidationError("username or email already taken")
	default:
		return domain.InternalError(err)
	}
}
