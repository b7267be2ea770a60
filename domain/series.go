package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Series is a content series and the Application actor that represents it.
type Series struct {
	Id          uuid.UUID
	Slug        string
	Title       string
	Description string
	ContentType string
	UploaderId  uuid.UUID

	// ActivityPub
	ActorURI       string
	KnownActorURIs Lineage
	PublicKey      string
	PrivateKey     string

	// Portable identity, empty until the owner binds a mnemonic
	PortablePublicKey      string
	PortableKeyFingerprint string

	FollowerCount int
	IsDeleted     bool
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (s *Series) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tSlug: %s \n\tActorURI: %s \n\tDeleted: %t)", s.Id, s.Slug, s.ActorURI, s.IsDeleted)
}

// Chapter belongs to a series. Its public URI embeds the chapter id, which is
// how inbound replies find their way back to it.
type Chapter struct {
	Id            uuid.UUID
	SeriesId      uuid.UUID
	ChapterNumber string
	Title         string
	UploaderId    uuid.UUID
	IsDeleted     bool
	PublishedAt   time.Time
	CreatedAt     time.Time
}

// Comment is a reply on a chapter, authored locally or ingested from a remote
// Create(Note).
type Comment struct {
	Id                uuid.UUID
	ChapterId         uuid.UUID
	AuthorId          *uuid.UUID // nil for remote authors
	AuthorActorURI    string
	AuthorUsername    string
	AuthorDisplayName string
	Content           string
	ActivityURI       string // origin object id, empty for local comments
	IsLocal           bool
	IsDeleted         bool
	DeletedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
