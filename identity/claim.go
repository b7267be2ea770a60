package identity

import (
	"context"
	"fmt"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"github.com/deemkeen/mangafedi/util"
	log "github.com/sirupsen/logrus"
)

type SeriesClaimResult struct {
	Series            *domain.Series
	PreviousActorURIs []string
	// IsNewActor is true when the series was migrated onto this instance
	// under a freshly minted identifier.
	IsNewActor bool
}

// ClaimSeries hands the series bound to the mnemonic's fingerprint to the
// claimant. When several series share the fingerprint, live ones win, then the
// one with the most followers, then the most recently updated.
//
// A series that lives on another instance is migrated: it gets a local slug,
// identifier and signing keys, and its old identifier is pushed onto the
// lineage. A local series only changes owner and portable binding.
func (e *Engine) ClaimSeries(ctx context.Context, mnemonic string, claimant *domain.Account) (*SeriesClaimResult, error) {
	if err := keys.ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}
	if claimant == nil || !claimant.IsActive || claimant.IsBanned {
		return nil, domain.ForbiddenError("claimant account is not active")
	}
	portable, err := keys.DerivePortableKeypair(mnemonic)
	if err != nil {
		return nil, err
	}

	// Peek outside the transaction so keys for a migration are generated
	// before the write lock is taken.
	candidates, err := e.db.ReadSeriesByFingerprint(ctx, portable.Fingerprint)
	if err != nil {
		return nil, domain.InternalError(err)
	}
	var fresh *sealedKeypair
	if len(candidates) > 0 && !candidates[0].IsDeleted && !e.urls.IsLocal(candidates[0].ActorURI) {
		if fresh, err = e.newSigningKeypair(ctx); err != nil {
			return nil, err
		}
	}

	var result *SeriesClaimResult
	err = e.db.WithTx(ctx, func(tx *db.Tx) error {
		candidates, err := tx.ReadSeriesByFingerprint(ctx, portable.Fingerprint)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return domain.NotFoundError("series for this mnemonic")
		}
		s := candidates[0]
		if s.IsDeleted {
			return domain.GoneError("series has been deleted and cannot be claimed")
		}

		result = &SeriesClaimResult{Series: &s}
		s.UploaderId = claimant.Id
		s.PortablePublicKey = portable.PublicKey
		s.PortableKeyFingerprint = portable.Fingerprint

		if e.urls.IsLocal(s.ActorURI) {
			result.PreviousActorURIs = append([]string{}, s.KnownActorURIs...)
			return tx.UpdateSeriesClaim(ctx, &s)
		}

		if fresh == nil {
			// the candidate changed since the peek
			if fresh, err = e.newSigningKeypair(ctx); err != nil {
				return err
			}
		}
		slug, err := uniqueSlug(ctx, tx, util.Slugify(s.Title))
		if err != nil {
			return err
		}
		s.KnownActorURIs = domain.Lineage{}.Append(s.ActorURI).Append(s.KnownActorURIs...)
		s.Slug = slug
		s.ActorURI = e.urls.Series(slug)
		s.PublicKey = fresh.public
		s.PrivateKey = fresh.private
		result.PreviousActorURIs = []string(s.KnownActorURIs)
		result.IsNewActor = true
		return tx.UpdateSeriesClaim(ctx, &s)
	})
	if err != nil {
		return nil, storageError(err)
	}

	log.WithFields(log.Fields{
		"series":   result.Series.Slug,
		"claimant": claimant.Username,
		"migrated": result.IsNewActor,
	}).Printf("Identity: Series claimed as %s", result.Series.ActorURI)
	return result, nil
}

type slugChecker interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
}

// uniqueSlug returns base, or base with the first free numeric suffix.
func uniqueSlug(ctx context.Context, c slugChecker, base string) (string, error) {
	slug := base
	for i := 1; ; i++ {
		exists, err := c.SlugExists(ctx, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
