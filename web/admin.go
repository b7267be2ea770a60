package web

import (
	"net/http"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/gin-gonic/gin"
)

type blockView struct {
	Domain    string `json:"domain"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"createdAt"`
}

type healthView struct {
	Domain              string     `json:"domain"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt"`
	LastAttemptAt       *time.Time `json:"lastAttemptAt"`
	BackoffUntil        *time.Time `json:"backoffUntil"`
}

func newBlockView(b *domain.DomainBlock) blockView {
	return blockView{Domain: b.Domain, Reason: b.Reason, CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339)}
}

func (h *handlers) listBlocks(c *gin.Context) {
	blocks, err := h.Gate.ListBlocks(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	views := make([]blockView, 0, len(blocks))
	for i := range blocks {
		views = append(views, newBlockView(&blocks[i]))
	}
	c.JSON(http.StatusOK, gin.H{"blocks": views})
}

type addBlockRequest struct {
	Domain string `json:"domain"`
	Reason string `json:"reason"`
}

func (h *handlers) addBlock(c *gin.Context) {
	var req addBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, domain.ValidationError("invalid request body"))
		return
	}
	block, err := h.Gate.AddBlock(c.Request.Context(), req.Domain, req.Reason, nil)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBlockView(block))
}

// removeBlock is idempotent; "removed" says whether a block existed.
func (h *handlers) removeBlock(c *gin.Context) {
	removed, err := h.Gate.RemoveBlock(c.Request.Context(), c.Param("domain"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *handlers) listHealth(c *gin.Context) {
	rows, err := h.Health.List(c.Request.Context())
	if err != nil {
		abortWithError(c, domain.InternalError(err))
		return
	}
	views := make([]healthView, 0, len(rows))
	for _, r := range rows {
		views = append(views, healthView{
			Domain:              r.Domain,
			ConsecutiveFailures: r.ConsecutiveFailures,
			LastSuccessAt:       r.LastSuccessAt,
			LastAttemptAt:       r.LastAttemptAt,
			BackoffUntil:        r.BackoffUntil,
		})
	}
	c.JSON(http.StatusOK, gin.H{"domains": views})
}
