package activitypub

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// URLs builds the public identifiers of local objects.
type URLs struct {
	Base string // scheme and host, no trailing slash
}

func NewURLs(base string) URLs {
	return URLs{Base: strings.TrimRight(base, "/")}
}

func (u URLs) User(username string) string { return fmt.Sprintf("%s/users/%s", u.Base, username) }
func (u URLs) Series(slug string) string   { return fmt.Sprintf("%s/series/%s", u.Base, slug) }
func (u URLs) SharedInbox() string         { return u.Base + "/inbox" }
func (u URLs) Activity(id uuid.UUID) string {
	return fmt.Sprintf("%s/activities/%s", u.Base, id)
}
func (u URLs) Chapter(slug string, id uuid.UUID) string {
	return fmt.Sprintf("%s/series/%s/chapters/%s", u.Base, slug, id)
}

// IsLocal reports whether uri points at this instance.
func (u URLs) IsLocal(uri string) bool {
	return strings.HasPrefix(uri, u.Base+"/")
}

func Inbox(actorURI string) string     { return actorURI + "/inbox" }
func OutboxURI(actorURI string) string { return actorURI + "/outbox" }
func Followers(actorURI string) string { return actorURI + "/followers" }
func KeyID(actorURI string) string     { return actorURI + "#main-key" }
