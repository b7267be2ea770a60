package activitypub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/util"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Outbox turns local decisions into queued deliveries.
type Outbox struct {
	db   *db.DB
	urls URLs
}

func NewOutbox(database *db.DB, urls URLs) *Outbox {
	return &Outbox{db: database, urls: urls}
}

// Enqueue queues a signed delivery of activity from actorURI to inboxURI.
func (o *Outbox) Enqueue(ctx context.Context, actorURI, inboxURI string, activity any) error {
	host := util.DomainFromURI(inboxURI)
	if host == "" {
		return fmt.Errorf("inbox %q has no host", inboxURI)
	}
	payload, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}
	return o.db.EnqueueDelivery(ctx, &domain.DeliveryQueueItem{
		ActorURI:     actorURI,
		InboxURI:     inboxURI,
		Domain:       host,
		ActivityJSON: string(payload),
	})
}

// EnqueueAccept answers a Follow of a series.
func (o *Outbox) EnqueueAccept(ctx context.Context, series *domain.Series, follow *Follow, inboxURI string) error {
	object := map[string]any{
		"type":   "Follow",
		"actor":  follow.Actor,
		"object": series.ActorURI,
	}
	if follow.ID != "" {
		object["id"] = follow.ID
	}

	accept := map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       o.urls.Activity(uuid.New()),
		"type":     "Accept",
		"actor":    series.ActorURI,
		"object":   object,
	}

	if err := o.Enqueue(ctx, series.ActorURI, inboxURI, accept); err != nil {
		return err
	}
	log.Printf("Outbox: Queued Accept of %s for %s", series.Slug, follow.Actor)
	return nil
}
