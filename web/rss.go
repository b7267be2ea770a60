package web

import (
	"net/http"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	log "github.com/sirupsen/logrus"
)

func (h *handlers) seriesFeed(c *gin.Context) {
	s, chapters, ok := h.liveSeriesWithChapters(c)
	if !ok {
		return
	}

	rss, err := h.chapterFeed(s, chapters).ToRss()
	if err != nil {
		log.Printf("Could not render feed for %s: %v", s.Slug, err)
		abortWithError(c, domain.InternalError(err))
		return
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rss))
}

func (h *handlers) chapterFeed(s *domain.Series, chapters []domain.Chapter) *feeds.Feed {
	feed := &feeds.Feed{
		Title:       s.Title,
		Link:        &feeds.Link{Href: s.ActorURI},
		Description: s.Description,
		Created:     s.CreatedAt,
		Updated:     s.UpdatedAt,
	}
	if feed.Description == "" {
		feed.Description = "New chapters of " + s.Title
	}

	for _, ch := range chapters {
		uri := h.URLs.Chapter(s.Slug, ch.Id)
		feed.Items = append(feed.Items, &feeds.Item{
			Id:      uri,
			Title:   chapterName(&ch),
			Link:    &feeds.Link{Href: uri},
			Created: ch.PublishedAt,
		})
	}
	if len(chapters) > 0 {
		feed.Updated = chapters[0].PublishedAt
	} else if feed.Updated.IsZero() {
		feed.Updated = time.Now()
	}
	return feed
}
