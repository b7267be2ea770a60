package web

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/mangafedi/activitypub"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/gin-gonic/gin"
)

const outboxLimit = 20

// outboxCollection carries full activities rather than bare identifiers.
type outboxCollection struct {
	Context      string `json:"@context"`
	ID           string `json:"id"`
	Type         string `json:"type"`
	TotalItems   int    `json:"totalItems"`
	OrderedItems []any  `json:"orderedItems"`
}

func (h *handlers) userOutbox(c *gin.Context) {
	doc, err := h.Directory.ResolveUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if doc == nil {
		notFound(c)
		return
	}
	activityJSON(c, http.StatusOK, emptyCollection(doc.Outbox))
}

// seriesOutbox publishes the latest chapters as Create activities.
func (h *handlers) seriesOutbox(c *gin.Context) {
	s, chapters, ok := h.liveSeriesWithChapters(c)
	if !ok {
		return
	}

	items := make([]any, 0, len(chapters))
	for _, ch := range chapters {
		items = append(items, h.chapterCreate(s, &ch))
	}
	activityJSON(c, http.StatusOK, &outboxCollection{
		Context:      "https://www.w3.org/ns/activitystreams",
		ID:           activitypub.OutboxURI(s.ActorURI),
		Type:         "OrderedCollection",
		TotalItems:   len(items),
		OrderedItems: items,
	})
}

// liveSeriesWithChapters writes a response itself and returns ok=false when
// the series is missing or tombstoned.
func (h *handlers) liveSeriesWithChapters(c *gin.Context) (*domain.Series, []domain.Chapter, bool) {
	ctx := c.Request.Context()
	s, err := h.DB.ReadSeriesBySlug(ctx, c.Param("slug"))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && s.IsDeleted) {
		notFound(c)
		return nil, nil, false
	}
	if err != nil {
		abortWithError(c, domain.InternalError(err))
		return nil, nil, false
	}
	chapters, err := h.DB.ReadChaptersBySeries(ctx, s.Id, outboxLimit)
	if err != nil {
		abortWithError(c, domain.InternalError(err))
		return nil, nil, false
	}
	return s, chapters, true
}

func chapterName(ch *domain.Chapter) string {
	if ch.Title == "" {
		return fmt.Sprintf("Chapter %s", ch.ChapterNumber)
	}
	return fmt.Sprintf("Chapter %s: %s", ch.ChapterNumber, ch.Title)
}

func (h *handlers) chapterCreate(s *domain.Series, ch *domain.Chapter) map[string]any {
	uri := h.URLs.Chapter(s.Slug, ch.Id)
	published := ch.PublishedAt.UTC().Format(time.RFC3339)
	to := []string{"https://www.w3.org/ns/activitystreams#Public"}
	cc := []string{activitypub.Followers(s.ActorURI)}

	return map[string]any{
		"id":        uri + "/activity",
		"type":      "Create",
		"actor":     s.ActorURI,
		"published": published,
		"to":        to,
		"cc":        cc,
		"object": map[string]any{
			"id":           uri,
			"type":         "Article",
			"name":         chapterName(ch),
			"url":          uri,
			"attributedTo": s.ActorURI,
			"published":    published,
			"to":           to,
			"cc":           cc,
		},
	}
}
