package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	log "github.com/sirupsen/logrus"
)

type RecoveryRequest struct {
	Mnemonic string
	Username string
	Email    string
	Password string
}

type RecoveryResult struct {
	Account *domain.Account
	// IsNewAccount is true when no earlier account was bound to the mnemonic.
	IsNewAccount      bool
	PreviousActorURIs []string
}

// RecoverAccount creates a new local account for the holder of a mnemonic.
// An earlier account bound to the same fingerprint is deactivated and the two
// are linked through their lineages, all in one transaction. Existing
// accounts are never overwritten.
func (e *Engine) RecoverAccount(ctx context.Context, req RecoveryRequest) (*RecoveryResult, error) {
	if err := keys.ValidateMnemonic(req.Mnemonic); err != nil {
		return nil, err
	}
	creds := Credentials{Username: req.Username, Email: req.Email, Password: req.Password}
	if err := creds.validate(); err != nil {
		return nil, err
	}
	portable, err := keys.DerivePortableKeypair(req.Mnemonic)
	if err != nil {
		return nil, err
	}
	if err := ensureAvailable(ctx, e.db, creds); err != nil {
		return nil, err
	}

	acc, err := e.newAccount(ctx, creds, portable)
	if err != nil {
		return nil, err
	}

	var prior *domain.Account
	err = e.db.WithTx(ctx, func(tx *db.Tx) error {
		prior = nil
		acc.KnownActorURIs = domain.Lineage{}

		if err := ensureAvailable(ctx, tx, creds); err != nil {
			return err
		}
		found, err := tx.ReadAccByFingerprint(ctx, portable.Fingerprint)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		default:
			prior = found
			acc.KnownActorURIs = acc.KnownActorURIs.Append(prior.ActorURI).Append(prior.KnownActorURIs...)
		}

		if err := tx.InsertAccount(ctx, acc); err != nil {
			return err
		}
		if prior == nil {
			return nil
		}
		prior.KnownActorURIs = prior.KnownActorURIs.Append(acc.ActorURI)
		prior.IsActive = false
		return tx.DeactivateAccount(ctx, prior.Id, prior.KnownActorURIs)
	})
	if err != nil {
		return nil, storageError(err)
	}

	result := &RecoveryResult{
		Account:           acc,
		IsNewAccount:      prior == nil,
		PreviousActorURIs: []string(acc.KnownActorURIs),
	}
	logger := log.WithFields(log.Fields{"username": acc.Username, "fingerprint": portable.Fingerprint})
	if prior != nil {
		logger.Printf("Identity: Recovered %s as %s", prior.ActorURI, acc.ActorURI)
	} else {
		logger.Printf("Identity: No earlier account for mnemonic, created %s", acc.ActorURI)
	}
	return result, nil
}
