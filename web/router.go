package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deemkeen/mangafedi/activitypub"
	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/identity"
	"github.com/deemkeen/mangafedi/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const maxActivityBytes = 1 * 1024 * 1024

// Services are the collaborators the HTTP layer delegates to.
type Services struct {
	DB        *db.DB
	URLs      activitypub.URLs
	Directory *activitypub.Directory
	Processor *activitypub.Processor
	Gate      *activitypub.TrustGate
	Health    *activitypub.HealthTracker
	Identity  *identity.Engine
}

type handlers struct {
	conf *util.AppConfig
	Services
}

// NewRouter wires every route. Rate limiter maintenance stops with ctx.
func NewRouter(ctx context.Context, conf *util.AppConfig, s Services) *gin.Engine {
	h := &handlers{conf: conf, Services: s}

	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	go globalLimiter.RunCleanup(ctx, 10*time.Minute)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
	g.GET("/healthz", h.healthz)
	g.GET("/.well-known/webfinger", h.webfinger)

	g.GET("/users/:username", h.userActor)
	g.GET("/users/:username/outbox", h.userOutbox)
	g.GET("/users/:username/followers", h.userFollowers)
	g.GET("/series/:slug", h.seriesActor)
	g.GET("/series/:slug/outbox", h.seriesOutbox)
	g.GET("/series/:slug/followers", h.seriesFollowers)
	g.GET("/series/:slug/feed", h.seriesFeed)

	if conf.Conf.WithAp {
		// Stricter rate limit for inbound activities: 5 req/sec per IP
		apLimiter := NewRateLimiter(rate.Limit(5), 10)
		go apLimiter.RunCleanup(ctx, 10*time.Minute)

		inbox := g.Group("", RateLimitMiddleware(apLimiter), MaxBytesMiddleware(maxActivityBytes))
		inbox.POST("/inbox", h.sharedInbox)
		inbox.POST("/users/:username/inbox", h.userInbox)
		inbox.POST("/series/:slug/inbox", h.seriesInbox)
	}

	api := g.Group("/api/v1", MaxBytesMiddleware(64*1024))
	api.POST("/auth/register", h.register)
	api.POST("/identity/recover", h.recoverAccount)

	authed := api.Group("", BasicAuthMiddleware(s.Identity))
	authed.POST("/identity/claim-series", h.claimSeries)
	authed.POST("/series", h.createSeries)
	authed.POST("/series/:slug/bind", h.bindSeries)

	admin := api.Group("/admin/federation", AdminTokenMiddleware(conf.Conf.AdminToken))
	admin.GET("/blocks", h.listBlocks)
	admin.POST("/blocks", h.addBlock)
	admin.DELETE("/blocks/:domain", h.removeBlock)
	admin.GET("/health", h.listHealth)

	return g
}

func (h *handlers) healthz(c *gin.Context) {
	if err := h.DB.Ping(c.Request.Context()); err != nil {
		log.Printf("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Serve runs handler until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, conf *util.AppConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
