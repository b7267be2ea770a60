package activitypub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"github.com/deemkeen/mangafedi/util"
)

var actorContext = []any{
	"https://www.w3.org/ns/activitystreams",
	"https://w3id.org/security/v1",
	map[string]any{
		"PropertyValue": "schema:PropertyValue",
		"schema":        "http://schema.org#",
		"value":         "schema:value",
		"alsoKnownAs": map[string]string{
			"@id":   "as:alsoKnownAs",
			"@type": "@id",
		},
	},
}

type PublicKey struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

type PropertyValue struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Endpoints struct {
	SharedInbox string `json:"sharedInbox"`
}

// ActorDocument is the JSON-LD representation served for a local actor.
type ActorDocument struct {
	Context                   []any           `json:"@context"`
	ID                        string          `json:"id"`
	Type                      string          `json:"type"`
	PreferredUsername         string          `json:"preferredUsername"`
	Name                      string          `json:"name"`
	Summary                   string          `json:"summary"`
	URL                       string          `json:"url"`
	Inbox                     string          `json:"inbox"`
	Outbox                    string          `json:"outbox"`
	Followers                 string          `json:"followers"`
	ManuallyApprovesFollowers bool            `json:"manuallyApprovesFollowers"`
	Discoverable              bool            `json:"discoverable"`
	Published                 string          `json:"published"`
	Endpoints                 Endpoints       `json:"endpoints"`
	PublicKey                 PublicKey       `json:"publicKey"`
	AlsoKnownAs               []string        `json:"alsoKnownAs,omitempty"`
	Attachment                []PropertyValue `json:"attachment,omitempty"`
}

// OrderedCollection is served unpaged; totalItems always matches the edge rows.
type OrderedCollection struct {
	Context      string   `json:"@context"`
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	TotalItems   int      `json:"totalItems"`
	OrderedItems []string `json:"orderedItems"`
}

// Directory answers "who is this actor" for local users and series.
type Directory struct {
	db     *db.DB
	secret keys.SecretSource
	urls   URLs
}

func NewDirectory(database *db.DB, secret keys.SecretSource, urls URLs) *Directory {
	return &Directory{db: database, secret: secret, urls: urls}
}

func (d *Directory) instanceAttachment() []PropertyValue {
	return []PropertyValue{{
		Type:  "PropertyValue",
		Name:  "Instance",
		Value: util.DomainFromURI(d.urls.Base),
	}}
}

func (d *Directory) userDocument(acc *domain.Account) *ActorDocument {
	name := acc.DisplayName
	if name == "" {
		name = acc.Username
	}
	return &ActorDocument{
		Context:           actorContext,
		ID:                acc.ActorURI,
		Type:              "Person",
		PreferredUsername: acc.Username,
		Name:              name,
		Summary:           acc.Bio,
		URL:               acc.ActorURI,
		Inbox:             acc.InboxURI,
		Outbox:            OutboxURI(acc.ActorURI),
		Followers:         Followers(acc.ActorURI),
		Discoverable:      true,
		Published:         acc.CreatedAt.UTC().Format(time.RFC3339),
		Endpoints:         Endpoints{SharedInbox: d.urls.SharedInbox()},
		PublicKey: PublicKey{
			ID:           KeyID(acc.ActorURI),
			Owner:        acc.ActorURI,
			PublicKeyPem: acc.PublicKey,
		},
		AlsoKnownAs: []string(acc.KnownActorURIs),
		Attachment:  d.instanceAttachment(),
	}
}

func (d *Directory) seriesDocument(s *domain.Series) *ActorDocument {
	return &ActorDocument{
		Context:           actorContext,
		ID:                s.ActorURI,
		Type:              "Application",
		PreferredUsername: s.Slug,
		Name:              s.Title,
		Summary:           s.Description,
		URL:               s.ActorURI,
		Inbox:             Inbox(s.ActorURI),
		Outbox:            OutboxURI(s.ActorURI),
		Followers:         Followers(s.ActorURI),
		Discoverable:      true,
		Published:         s.CreatedAt.UTC().Format(time.RFC3339),
		Endpoints:         Endpoints{SharedInbox: d.urls.SharedInbox()},
		PublicKey: PublicKey{
			ID:           KeyID(s.ActorURI),
			Owner:        s.ActorURI,
			PublicKeyPem: s.PublicKey,
		},
		AlsoKnownAs: []string(s.KnownActorURIs),
		Attachment:  d.instanceAttachment(),
	}
}

func liveAccount(acc *domain.Account, err error) (*domain.Account, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !acc.IsActive || acc.IsBanned {
		return nil, nil
	}
	return acc, nil
}

func liveSeries(s *domain.Series, err error) (*domain.Series, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.IsDeleted {
		return nil, nil
	}
	return s, nil
}

// ResolveUser returns nil, nil for unknown, deactivated or banned users.
func (d *Directory) ResolveUser(ctx context.Context, username string) (*ActorDocument, error) {
	acc, err := liveAccount(d.db.ReadAccByUsername(ctx, username))
	if err != nil || acc == nil {
		return nil, err
	}
	return d.userDocument(acc), nil
}

// ResolveSeries returns nil, nil for unknown or tombstoned series.
func (d *Directory) ResolveSeries(ctx context.Context, slug string) (*ActorDocument, error) {
	s, err := liveSeries(d.db.ReadSeriesBySlug(ctx, slug))
	if err != nil || s == nil {
		return nil, err
	}
	return d.seriesDocument(s), nil
}

// ResolveActor looks an identifier up among users first, then series.
func (d *Directory) ResolveActor(ctx context.Context, actorURI string) (*ActorDocument, error) {
	acc, err := liveAccount(d.db.ReadAccByActorURI(ctx, actorURI))
	if err != nil {
		return nil, err
	}
	if acc != nil {
		return d.userDocument(acc), nil
	}
	s, err := liveSeries(d.db.ReadSeriesByActorURI(ctx, actorURI))
	if err != nil || s == nil {
		return nil, err
	}
	return d.seriesDocument(s), nil
}

// GetSigningKeypair returns the actor's keypair with the private half
// decrypted. Nothing is cached; every call decrypts again.
func (d *Directory) GetSigningKeypair(ctx context.Context, actorURI string) (*keys.SigningKeypair, error) {
	var public, sealed string

	acc, err := liveAccount(d.db.ReadAccByActorURI(ctx, actorURI))
	if err != nil {
		return nil, domain.InternalError(err)
	}
	if acc != nil {
		public, sealed = acc.PublicKey, acc.PrivateKey
	} else {
		s, err := liveSeries(d.db.ReadSeriesByActorURI(ctx, actorURI))
		if err != nil {
			return nil, domain.InternalError(err)
		}
		if s == nil {
			return nil, domain.NotFoundError("actor")
		}
		public, sealed = s.PublicKey, s.PrivateKey
	}

	private, err := keys.DecryptPrivateKey(d.secret, sealed)
	if err != nil {
		return nil, err
	}
	return &keys.SigningKeypair{Public: public, Private: private}, nil
}

// FollowersCollection lists the followers of a live series.
func (d *Directory) FollowersCollection(ctx context.Context, slug string) (*OrderedCollection, error) {
	s, err := liveSeries(d.db.ReadSeriesBySlug(ctx, slug))
	if err != nil || s == nil {
		return nil, err
	}
	edges, err := d.db.ReadFollowersBySeries(ctx, s.Id)
	if err != nil {
		return nil, fmt.Errorf("reading followers of %s: %w", slug, err)
	}
	items := make([]string, 0, len(edges))
	for _, e := range edges {
		items = append(items, e.FollowerActorURI)
	}
	return &OrderedCollection{
		Context:      "https://www.w3.org/ns/activitystreams",
		ID:           Followers(s.ActorURI),
		Type:         "OrderedCollection",
		TotalItems:   len(items),
		OrderedItems: items,
	}, nil
}
