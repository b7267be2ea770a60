package domain

import (
	"time"

	"github.com/google/uuid"
)

// SeriesFollow is a follow edge from an actor to a local series.
// Unique per (SeriesId, FollowerActorURI).
type SeriesFollow struct {
	Id               uuid.UUID
	SeriesId         uuid.UUID
	FollowerActorURI string
	FollowerInboxURI string
	FollowURI        string // Follow activity id, empty for local follows
	IsLocal          bool
	LocalUserId      *uuid.UUID
	CreatedAt        time.Time
}

// DomainBlock drops all inbound activities from Domain and suppresses
// deliveries to it.
type DomainBlock struct {
	Id          uuid.UUID
	Domain      string
	Reason      string
	BlockedById *uuid.UUID
	CreatedAt   time.Time
}

// RemoteDomainHealth tracks outbound delivery failures per remote domain.
type RemoteDomainHealth struct {
	Domain              string
	ConsecutiveFailures int
	LastSuccessAt       *time.Time
	LastAttemptAt       *time.Time
	BackoffUntil        *time.Time
}

// DeliveryQueueItem represents an item in the delivery queue
type DeliveryQueueItem struct {
	Id           uuid.UUID
	ActorURI     string // local actor whose key signs the delivery
	InboxURI     string
	Domain       string
	ActivityJSON string // The complete activity to deliver
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
