package web

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type webfingerResponse struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases"`
	Links   []webfingerLink `json:"links"`
}

// parseAcct splits "acct:name@domain" (the scheme is optional).
func parseAcct(resource string) (name, host string, ok bool) {
	resource = strings.TrimPrefix(resource, "acct:")
	name, host, ok = strings.Cut(resource, "@")
	if !ok || name == "" || host == "" {
		return "", "", false
	}
	return name, host, true
}

// webfinger resolves local users first, then series under the same name.
func (h *handlers) webfinger(c *gin.Context) {
	name, host, ok := parseAcct(c.Query("resource"))
	if !ok || !strings.EqualFold(host, h.conf.Conf.SslDomain) {
		notFound(c)
		return
	}

	ctx := c.Request.Context()
	doc, err := h.Directory.ResolveUser(ctx, name)
	if err == nil && doc == nil {
		doc, err = h.Directory.ResolveSeries(ctx, name)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	if doc == nil {
		notFound(c)
		return
	}

	c.Header("Content-Type", "application/jrd+json; charset=utf-8")
	c.JSON(http.StatusOK, &webfingerResponse{
		Subject: "acct:" + name + "@" + h.conf.Conf.SslDomain,
		Aliases: []string{doc.ID},
		Links: []webfingerLink{{
			Rel:  "self",
			Type: "application/activity+json",
			Href: doc.ID,
		}},
	})
}
