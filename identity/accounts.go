package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"github.com/deemkeen/mangafedi/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type RegistrationRequest struct {
	Credentials
	DisplayName string
}

// RegistrationResult carries the mnemonic exactly once; it is not stored.
type RegistrationResult struct {
	Account  *domain.Account
	Mnemonic string
}

// RegisterAccount creates a local account bound to a freshly generated
// recovery mnemonic.
func (e *Engine) RegisterAccount(ctx context.Context, req RegistrationRequest) (*RegistrationResult, error) {
	if !e.opts.Registration {
		return nil, domain.ForbiddenError("registration is closed on this instance")
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := ensureAvailable(ctx, e.db, req.Credentials); err != nil {
		return nil, err
	}

	mnemonic, err := keys.NewMnemonic()
	if err != nil {
		return nil, domain.InternalError(err)
	}
	portable, err := keys.DerivePortableKeypair(mnemonic)
	if err != nil {
		return nil, domain.InternalError(err)
	}

	acc, err := e.newAccount(ctx, req.Credentials, portable)
	if err != nil {
		return nil, err
	}
	if name := util.NormalizeInput(req.DisplayName); name != "" {
		acc.DisplayName = name
	}

	err = e.db.WithTx(ctx, func(tx *db.Tx) error {
		if err := ensureAvailable(ctx, tx, req.Credentials); err != nil {
			return err
		}
		return tx.InsertAccount(ctx, acc)
	})
	if err != nil {
		return nil, storageError(err)
	}

	log.WithField("username", acc.Username).Printf("Identity: Registered account %s", acc.ActorURI)
	return &RegistrationResult{Account: acc, Mnemonic: mnemonic}, nil
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (e *Engine) Authenticate(ctx context.Context, username, password string) (*domain.Account, error) {
	acc, err := e.db.ReadAccByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ForbiddenError("invalid credentials")
	}
	if err != nil {
		return nil, domain.InternalError(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ForbiddenError("invalid credentials")
	}
	if !acc.IsActive || acc.IsBanned {
		return nil, domain.ForbiddenError("account is not active")
	}
	return acc, nil
}
