package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"github.com/deemkeen/mangafedi/util"
	log "github.com/sirupsen/logrus"
)

const maxTitleLength = 200

var contentTypes = map[string]bool{
	"manga":  true,
	"manhwa": true,
	"manhua": true,
	"comic":  true,
}

type SeriesRequest struct {
	Title       string
	Description string
	ContentType string
	// Mnemonic optionally binds a portable identity at creation time.
	Mnemonic string
}

func canManage(acc *domain.Account) bool {
	return acc != nil && acc.IsActive && !acc.IsBanned
}

// CreateSeries creates a series actor owned by owner, with a slug derived
// from the title.
func (e *Engine) CreateSeries(ctx context.Context, owner *domain.Account, req SeriesRequest) (*domain.Series, error) {
	if !canManage(owner) {
		return nil, domain.ForbiddenError("account is not active")
	}
	title := util.NormalizeInput(req.Title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return nil, domain.ValidationError("title must be 1-200 characters")
	}
	contentType := strings.ToLower(req.ContentType)
	if contentType == "" {
		contentType = "manga"
	}
	if !contentTypes[contentType] {
		return nil, domain.ValidationError("content type '" + req.ContentType + "' not allowed")
	}

	var portable *keys.PortableKeypair
	if req.Mnemonic != "" {
		if err := keys.ValidateMnemonic(req.Mnemonic); err != nil {
			return nil, err
		}
		p, err := keys.DerivePortableKeypair(req.Mnemonic)
		if err != nil {
			return nil, err
		}
		if err := e.ensureUnbound(ctx, p.Fingerprint); err != nil {
			return nil, err
		}
		portable = p
	}

	pair, err := e.newSigningKeypair(ctx)
	if err != nil {
		return nil, err
	}

	s := &domain.Series{
		Title:          title,
		Description:    req.Description,
		ContentType:    contentType,
		UploaderId:     owner.Id,
		KnownActorURIs: domain.Lineage{},
		PublicKey:      pair.public,
		PrivateKey:     pair.private,
	}
	if portable != nil {
		s.PortablePublicKey = portable.PublicKey
		s.PortableKeyFingerprint = portable.Fingerprint
	}

	err = e.db.WithTx(ctx, func(tx *db.Tx) error {
		slug, err := uniqueSlug(ctx, tx, util.Slugify(title))
		if err != nil {
			return err
		}
		s.Slug = slug
		s.ActorURI = e.urls.Series(slug)
		return tx.InsertSeries(ctx, s)
	})
	if err != nil {
		return nil, storageError(err)
	}

	log.WithField("owner", owner.Username).Printf("Identity: Created series %s", s.ActorURI)
	return s, nil
}

// BindSeries attaches a portable identity to a live series owned by owner.
// Admins may bind any series.
func (e *Engine) BindSeries(ctx context.Context, owner *domain.Account, slug, mnemonic string) (*domain.Series, error) {
	if err := keys.ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}
	if !canManage(owner) {
		return nil, domain.ForbiddenError("account is not active")
	}

	s, err := e.db.ReadSeriesBySlug(ctx, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError("series")
	}
	if err != nil {
		return nil, domain.InternalError(err)
	}
	if s.IsDeleted {
		return nil, domain.GoneError("series has been deleted")
	}
	if s.UploaderId != owner.Id && owner.Role != domain.RoleAdmin {
		return nil, domain.ForbiddenError("only the owner can bind a series")
	}

	portable, err := keys.DerivePortableKeypair(mnemonic)
	if err != nil {
		return nil, err
	}
	if s.PortableKeyFingerprint != portable.Fingerprint {
		if err := e.ensureUnbound(ctx, portable.Fingerprint); err != nil {
			return nil, err
		}
	}

	updated, err := e.db.BindSeriesPortableKey(ctx, s.Id, portable.PublicKey, portable.Fingerprint)
	if err != nil {
		return nil, domain.InternalError(err)
	}
	if !updated {
		return nil, domain.GoneError("series has been deleted")
	}
	s.PortablePublicKey = portable.PublicKey
	s.PortableKeyFingerprint = portable.Fingerprint

	log.WithField("series", s.Slug).Printf("Identity: Bound portable key %s", portable.Fingerprint)
	return s, nil
}

// ensureUnbound rejects a fingerprint that already identifies a live series,
// which would make later claims ambiguous.
func (e *Engine) ensureUnbound(ctx context.Context, fingerprint string) error {
	existing, err := e.db.ReadSeriesByFingerprint(ctx, fingerprint)
	if err != nil {
		return domain.InternalError(err)
	}
	for _, s := range existing {
		if !s.IsDeleted {
			return domain.ValidationError("mnemonic is already bound to series " + s.Slug)
		}
	}
	return nil
}
