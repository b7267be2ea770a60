package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleUploader  = "uploader"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Account is a local user and the Person actor that represents it.
type Account struct {
	Id           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	DisplayName  string
	Bio          string
	Role         string

	// ActivityPub
	ActorURI   string
	InboxURI   string
	PublicKey  string // SPKI PEM, published
	PrivateKey string // encrypted PKCS#8 PEM, see keys.EncryptPrivateKey

	// Portable identity
	PortablePublicKey      string
	PortableKeyFingerprint string
	KnownActorURIs         Lineage

	IsActive  bool
	IsBanned  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tActorURI: %s \n\tActive: %t \n\tCREATED_AT: %s)", acc.Id, acc.Username, acc.ActorURI, acc.IsActive, acc.CreatedAt)
}
