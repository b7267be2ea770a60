package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deemkeen/mangafedi/util"
	log "github.com/sirupsen/logrus"
)

const maxActorDocumentBytes = 1 << 20

// ActorResponse is the part of a remote actor document we read.
type ActorResponse struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Inbox             string `json:"inbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// InboxResolver finds where activities for a remote actor should be posted.
type InboxResolver interface {
	ResolveInbox(ctx context.Context, actorURI string) string
}

// RemoteResolver fetches remote actor documents over HTTP.
type RemoteResolver struct {
	client    *http.Client
	userAgent string
}

func NewRemoteResolver(timeout time.Duration) *RemoteResolver {
	return &RemoteResolver{
		client:    &http.Client{Timeout: timeout},
		userAgent: fmt.Sprintf("%s ActivityPub", util.GetNameAndVersion()),
	}
}

// FetchRemoteActor retrieves and minimally validates an actor document.
func (r *RemoteResolver) FetchRemoteActor(ctx context.Context, actorURI string) (*ActorResponse, error) {
	u, err := url.Parse(actorURI)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("invalid actor URI %q", actorURI)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("actor fetch failed with status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxActorDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var actor ActorResponse
	if err := json.Unmarshal(body, &actor); err != nil {
		return nil, fmt.Errorf("failed to parse actor JSON: %w", err)
	}
	if actor.ID == "" || actor.Inbox == "" {
		return nil, fmt.Errorf("actor missing required fields")
	}
	return &actor, nil
}

// ResolveInbox returns the actor's personal inbox, falling back to
// <actor>/inbox when the document cannot be fetched or describes another
// actor.
func (r *RemoteResolver) ResolveInbox(ctx context.Context, actorURI string) string {
	logger := log.WithField("actor", actorURI)
	actor, err := r.FetchRemoteActor(ctx, actorURI)
	if err != nil {
		logger.Debugf("Resolver: Falling back to default inbox: %v", err)
		return Inbox(actorURI)
	}
	if actor.ID != actorURI {
		logger.Printf("Resolver: Document id %s does not match, falling back to default inbox", actor.ID)
		return Inbox(actorURI)
	}
	return actor.Inbox
}

// extractUsername extracts username from various URI formats
// Examples:
// - "https://example.com/users/alice" -> "alice"
// - "https://example.com/@alice" -> "alice"
func extractUsername(uri string) string {
	trimmed := strings.TrimRight(uri, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) > 0 {
		username := parts[len(parts)-1]
		// Remove @ prefix if present
		return strings.TrimPrefix(username, "@")
	}
	return ""
}
