package activitypub

import (
	"context"
	"fmt"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TrustGate is the instance-wide domain blocklist. Matching is exact on the
// lower-cased hostname; subdomains are separate entries.
type TrustGate struct {
	db *db.DB
}

func NewTrustGate(database *db.DB) *TrustGate {
	return &TrustGate{db: database}
}

func (g *TrustGate) IsBlocked(ctx context.Context, host string) (bool, error) {
	normalized, _ := util.NormalizeDomain(host)
	if normalized == "" {
		return false, nil
	}
	return g.db.IsDomainBlocked(ctx, normalized)
}

// IsActorBlocked checks the domain of an actor identifier.
func (g *TrustGate) IsActorBlocked(ctx context.Context, actorURI string) (bool, error) {
	return g.IsBlocked(ctx, util.DomainFromURI(actorURI))
}

func (g *TrustGate) AddBlock(ctx context.Context, host, reason string, blockedBy *uuid.UUID) (*domain.DomainBlock, error) {
	normalized, ok := util.NormalizeDomain(host)
	if !ok {
		return nil, domain.ValidationError(fmt.Sprintf("invalid domain %q", host))
	}
	block, err := g.db.CreateDomainBlock(ctx, &domain.DomainBlock{
		Domain:      normalized,
		Reason:      reason,
		BlockedById: blockedBy,
	})
	if err != nil {
		return nil, domain.InternalError(err)
	}
	log.WithField("domain", normalized).Printf("TrustGate: Blocked domain (reason: %s)", reason)
	return block, nil
}

// RemoveBlock lifts a block. Removing a domain that is not blocked is not an
// error; the returned bool says whether anything changed.
func (g *TrustGate) RemoveBlock(ctx context.Context, host string) (bool, error) {
	normalized, ok := util.NormalizeDomain(host)
	if !ok {
		return false, domain.ValidationError(fmt.Sprintf("invalid domain %q", host))
	}
	removed, err := g.db.DeleteDomainBlock(ctx, normalized)
	if err != nil {
		return false, domain.InternalError(err)
	}
	if removed {
		log.WithField("domain", normalized).Printf("TrustGate: Unblocked domain")
	}
	return removed, nil
}

func (g *TrustGate) ListBlocks(ctx context.Context) ([]domain.DomainBlock, error) {
	blocks, err := g.db.ReadDomainBlocks(ctx)
	if err != nil {
		return nil, domain.InternalError(err)
	}
	return blocks, nil
}
