package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const activityContentType = "application/activity+json; charset=utf-8"

// abortWithError writes an AppError as {"error": code, "message": ...}.
// Anything else is logged and answered with a bare internal error.
func abortWithError(c *gin.Context, err error) {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		log.WithField("path", c.FullPath()).Errorf("Unhandled error: %v", err)
		appErr = domain.ErrInternal
	}
	if appErr.Status >= http.StatusInternalServerError {
		log.WithField("path", c.FullPath()).Errorf("Request failed: %v", err)
		c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr.Code, "message": domain.ErrInternal.Message})
		return
	}
	c.AbortWithStatusJSON(appErr.Status, gin.H{"error": appErr.Code, "message": appErr.Message})
}

func notFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
}

// activityJSON renders v with the ActivityPub media type.
func activityJSON(c *gin.Context, status int, v any) {
	c.Header("Content-Type", activityContentType)
	c.JSON(status, v)
}

// accountView is the public face of an account; keys and the password hash
// never leave the server.
type accountView struct {
	Id                     string   `json:"id"`
	Username               string   `json:"username"`
	DisplayName            string   `json:"displayName"`
	Role                   string   `json:"role"`
	ActorURI               string   `json:"actorUri"`
	PortableKeyFingerprint string   `json:"portableKeyFingerprint,omitempty"`
	KnownActorURIs         []string `json:"knownActorUris"`
	IsActive               bool     `json:"isActive"`
	CreatedAt              string   `json:"createdAt"`
}

func newAccountView(acc *domain.Account) accountView {
	return accountView{
		Id:                     acc.Id.String(),
		Username:               acc.Username,
		DisplayName:            acc.DisplayName,
		Role:                   acc.Role,
		ActorURI:               acc.ActorURI,
		PortableKeyFingerprint: acc.PortableKeyFingerprint,
		KnownActorURIs:         nonNil(acc.KnownActorURIs),
		IsActive:               acc.IsActive,
		CreatedAt:              acc.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type seriesView struct {
	Id                     string   `json:"id"`
	Slug                   string   `json:"slug"`
	Title                  string   `json:"title"`
	Description            string   `json:"description"`
	ContentType            string   `json:"contentType"`
	ActorURI               string   `json:"actorUri"`
	PortableKeyFingerprint string   `json:"portableKeyFingerprint,omitempty"`
	KnownActorURIs         []string `json:"knownActorUris"`
	FollowerCount          int      `json:"followerCount"`
}

func newSeriesView(s *domain.Series) seriesView {
	return seriesView{
		Id:                     s.Id.String(),
		Slug:                   s.Slug,
		Title:                  s.Title,
		Description:            s.Description,
		ContentType:            s.ContentType,
		ActorURI:               s.ActorURI,
		PortableKeyFingerprint: s.PortableKeyFingerprint,
		KnownActorURIs:         nonNil(s.KnownActorURIs),
		FollowerCount:          s.FollowerCount,
	}
}

func nonNil(l domain.Lineage) []string {
	if l == nil {
		return []string{}
	}
	return l
}
