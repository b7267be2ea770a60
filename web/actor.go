package web

import (
	"net/http"

	"github.com/deemkeen/mangafedi/activitypub"
	"github.com/gin-gonic/gin"
)

func (h *handlers) userActor(c *gin.Context) {
	doc, err := h.Directory.ResolveUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if doc == nil {
		notFound(c)
		return
	}
	activityJSON(c, http.StatusOK, doc)
}

func (h *handlers) seriesActor(c *gin.Context) {
	doc, err := h.Directory.ResolveSeries(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if doc == nil {
		notFound(c)
		return
	}
	activityJSON(c, http.StatusOK, doc)
}

func (h *handlers) seriesFollowers(c *gin.Context) {
	collection, err := h.Directory.FollowersCollection(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if collection == nil {
		notFound(c)
		return
	}
	activityJSON(c, http.StatusOK, collection)
}

// Users cannot be followed over federation, their collection is always empty.
func (h *handlers) userFollowers(c *gin.Context) {
	doc, err := h.Directory.ResolveUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if doc == nil {
		notFound(c)
		return
	}
	activityJSON(c, http.StatusOK, emptyCollection(doc.Followers))
}

func emptyCollection(id string) *activitypub.OrderedCollection {
	return &activitypub.OrderedCollection{
		Context:      "https://www.w3.org/ns/activitystreams",
		ID:           id,
		Type:         "OrderedCollection",
		TotalItems:   0,
		OrderedItems: []string{},
	}
}
