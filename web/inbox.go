package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/deemkeen/mangafedi/activitypub"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func (h *handlers) sharedInbox(c *gin.Context) {
	h.acceptActivity(c)
}

func (h *handlers) userInbox(c *gin.Context) {
	doc, err := h.Directory.ResolveUser(c.Request.Context(), c.Param("username"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if doc == nil {
		notFound(c)
		return
	}
	h.acceptActivity(c)
}

func (h *handlers) seriesInbox(c *gin.Context) {
	doc, err := h.Directory.ResolveSeries(c.Request.Context(), c.Param("slug"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if doc == nil {
		notFound(c)
		return
	}
	h.acceptActivity(c)
}

// acceptActivity hands the body to the processor. Policy rejections are
// absorbed there, so anything other than a parse or storage failure is 202.
func (h *handlers) acceptActivity(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		log.Printf("Inbox: Failed to read body: %v", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Could not read body"})
		return
	}

	if err := h.Processor.HandleInboundActivity(c.Request.Context(), body); err != nil {
		if errors.Is(err, activitypub.ErrMalformedActivity) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "MALFORMED_ACTIVITY", "message": err.Error()})
			return
		}
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
