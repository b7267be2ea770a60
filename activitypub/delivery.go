package activitypub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	"github.com/deemkeen/mangafedi/keys"
	"github.com/deemkeen/mangafedi/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Deliverer performs a single delivery attempt.
type Deliverer interface {
	Deliver(ctx context.Context, item *domain.DeliveryQueueItem) error
}

// KeySource hands out decrypted signing keys for local actors.
type KeySource interface {
	GetSigningKeypair(ctx context.Context, actorURI string) (*keys.SigningKeypair, error)
}

// RejectedError is a 4xx answer other than 408 and 429: the remote is up but
// will never take this item.
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("remote server rejected delivery with status: %d", e.Status)
}

// LocalError is a failure before anything was sent. It says nothing about
// the remote domain.
type LocalError struct {
	Err error
}

func (e *LocalError) Error() string { return e.Err.Error() }
func (e *LocalError) Unwrap() error { return e.Err }

func localError(format string, err error) error {
	return &LocalError{Err: fmt.Errorf(format, err)}
}

// HTTPDeliverer posts signed activities.
type HTTPDeliverer struct {
	client    *http.Client
	keys      KeySource
	userAgent string
}

func NewHTTPDeliverer(keySource KeySource) *HTTPDeliverer {
	return &HTTPDeliverer{
		client:    &http.Client{},
		keys:      keySource,
		userAgent: fmt.Sprintf("%s ActivityPub", util.GetNameAndVersion()),
	}
}

func (d *HTTPDeliverer) Deliver(ctx context.Context, item *domain.DeliveryQueueItem) error {
	pair, err := d.keys.GetSigningKeypair(ctx, item.ActorURI)
	if err != nil {
		return localError("failed to load signing key: %w", err)
	}
	privateKey, err := keys.ParsePrivateKey(pair.Private)
	if err != nil {
		return localError("failed to parse private key: %w", err)
	}

	body := []byte(item.ActivityJSON)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, item.InboxURI, bytes.NewReader(body))
	if err != nil {
		return localError("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	if err := SignRequest(req, privateKey, KeyID(item.ActorURI), body); err != nil {
		return localError("failed to sign request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 &&
		resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests:
		return &RejectedError{Status: resp.StatusCode}
	default:
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}
}

type DeliveryOptions struct {
	Concurrency           int
	MaxPerDomainPerMinute int
	Timeout               time.Duration
	MaxAttempts           int
	BatchSize             int
	Interval              time.Duration
	// Undo and Delete markers older than this are pruned
	MarkerTTL             time.Duration
}

func (o DeliveryOptions) withDefaults() DeliveryOptions {
	if o.Concurrency < 1 {
		o.Concurrency = 4
	}
	if o.MaxPerDomainPerMinute < 1 {
		o.MaxPerDomainPerMinute = 60
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 10
	}
	if o.BatchSize < 1 {
		o.BatchSize = 200
	}
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.MarkerTTL <= 0 {
		o.MarkerTTL = 7 * 24 * time.Hour
	}
	return o
}

// DeliveryWorker drains the delivery queue. Each tick groups due items by
// domain; domains run in parallel up to Concurrency, items of one domain run
// one after another behind that domain's rate limiter.
type DeliveryWorker struct {
	db        *db.DB
	gate      *TrustGate
	health    *HealthTracker
	deliverer Deliverer
	opts      DeliveryOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewDeliveryWorker(database *db.DB, gate *TrustGate, health *HealthTracker, deliverer Deliverer, opts DeliveryOptions) *DeliveryWorker {
	return &DeliveryWorker{
		db:        database,
		gate:      gate,
		health:    health,
		deliverer: deliverer,
		opts:      opts.withDefaults(),
		limiters:  make(map[string]*rate.Limiter),
	}
}

const markerPruneInterval = time.Hour

// Run processes the queue every interval until ctx is cancelled. Expired
// reorder markers are pruned on start and then hourly.
func (w *DeliveryWorker) Run(ctx context.Context) {
	log.Println("Starting ActivityPub delivery worker...")

	w.PruneMarkers(ctx, time.Now())

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	pruneTicker := time.NewTicker(markerPruneInterval)
	defer pruneTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("DeliveryWorker: Stopped")
			return
		case now := <-pruneTicker.C:
			w.PruneMarkers(ctx, now)
		case <-ticker.C:
			if err := w.ProcessQueue(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("DeliveryWorker: %v", err)
			}
		}
	}
}

// PruneMarkers removes Undo and Delete markers older than MarkerTTL as of now.
func (w *DeliveryWorker) PruneMarkers(ctx context.Context, now time.Time) int64 {
	n, err := w.db.PruneReorderMarkers(ctx, now.Add(-w.opts.MarkerTTL))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("DeliveryWorker: Failed to prune markers: %v", err)
		}
		return 0
	}
	if n > 0 {
		log.Debugf("DeliveryWorker: Pruned %d expired markers", n)
	}
	return n
}

func (w *DeliveryWorker) limiter(host string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(w.opts.MaxPerDomainPerMinute)), 1)
		w.limiters[host] = l
	}
	return l
}

// ProcessQueue runs one pass over the items that are due now.
func (w *DeliveryWorker) ProcessQueue(ctx context.Context) error {
	items, err := w.db.ReadPendingDeliveries(ctx, time.Now(), w.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	byDomain := make(map[string][]domain.DeliveryQueueItem)
	var order []string
	for _, item := range items {
		if _, seen := byDomain[item.Domain]; !seen {
			order = append(order, item.Domain)
		}
		byDomain[item.Domain] = append(byDomain[item.Domain], item)
	}

	log.Debugf("DeliveryWorker: Processing %d deliveries for %d domains", len(items), len(order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, host := range order {
		g.Go(func() error {
			w.deliverDomain(gctx, host, byDomain[host])
			return nil
		})
	}
	return g.Wait()
}

func (w *DeliveryWorker) deliverDomain(ctx context.Context, host string, items []domain.DeliveryQueueItem) {
	logger := log.WithField("domain", host)

	blocked, err := w.gate.IsBlocked(ctx, host)
	if err != nil {
		logger.Printf("DeliveryWorker: Block check failed: %v", err)
		return
	}
	if blocked {
		for _, item := range items {
			w.drop(ctx, &item, outcomeDropped)
		}
		logger.Printf("DeliveryWorker: Dropped %d deliveries to blocked domain", len(items))
		return
	}

	for i := range items {
		item := &items[i]

		ok, err := w.health.ShouldAttemptDelivery(ctx, host)
		if err != nil {
			logger.Printf("DeliveryWorker: Health check failed: %v", err)
			return
		}
		if !ok {
			w.deferRemaining(ctx, host, items[i:])
			return
		}

		if err := w.limiter(host).Wait(ctx); err != nil {
			return
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
		err = w.deliverer.Deliver(attemptCtx, item)
		cancel()
		deliveryDuration.Observe(time.Since(start).Seconds())

		if ctx.Err() != nil {
			// shutting down, leave the item for the next run
			return
		}

		var rejected *RejectedError
		var local *LocalError
		switch {
		case err == nil:
			deliveries.WithLabelValues(outcomeDelivered).Inc()
			w.recordHealth(ctx, host, true)
			if err := w.db.DeleteDelivery(ctx, item.Id); err != nil {
				logger.Printf("DeliveryWorker: Failed to remove delivered item: %v", err)
			}
			logger.Debugf("DeliveryWorker: Successfully delivered to %s", item.InboxURI)

		case errors.As(err, &rejected):
			// the remote answered, so the domain itself is healthy
			w.recordHealth(ctx, host, true)
			logger.Printf("DeliveryWorker: %s rejected delivery: %v", item.InboxURI, err)
			w.drop(ctx, item, outcomeRejected)

		case errors.As(err, &local):
			// nothing reached the remote, its health is untouched
			deliveries.WithLabelValues(outcomeLocal).Inc()
			if errors.Is(err, domain.ErrNotFound) {
				logger.Printf("DeliveryWorker: Sending actor %s is gone, dropping delivery to %s", item.ActorURI, item.InboxURI)
				w.drop(ctx, item, outcomeDropped)
				continue
			}
			w.retryOrDrop(ctx, item, err)

		default:
			deliveries.WithLabelValues(outcomeFailed).Inc()
			w.recordHealth(ctx, host, false)
			w.retryOrDrop(ctx, item, err)
		}
	}
}

func (w *DeliveryWorker) recordHealth(ctx context.Context, host string, success bool) {
	if err := w.health.RecordDeliveryResult(ctx, host, success); err != nil {
		log.WithField("domain", host).Printf("DeliveryWorker: Failed to record health: %v", err)
	}
}

func (w *DeliveryWorker) retryOrDrop(ctx context.Context, item *domain.DeliveryQueueItem, cause error) {
	item.Attempts++
	if item.Attempts >= w.opts.MaxAttempts {
		log.Printf("DeliveryWorker: Giving up on delivery to %s after %d attempts: %v", item.InboxURI, item.Attempts, cause)
		w.drop(ctx, item, outcomeDropped)
		return
	}
	next := time.Now().Add(w.health.BackoffFor(item.Attempts))
	log.Printf("DeliveryWorker: Delivery to %s failed (attempt %d), retry at %s: %v",
		item.InboxURI, item.Attempts, next.Format(time.RFC3339), cause)
	if err := w.db.UpdateDeliveryAttempt(ctx, item.Id, item.Attempts, next); err != nil {
		log.Printf("DeliveryWorker: Failed to reschedule %s: %v", item.Id, err)
	}
}

// deferRemaining pushes items of a backed-off domain to its backoff deadline
// without counting an attempt.
func (w *DeliveryWorker) deferRemaining(ctx context.Context, host string, items []domain.DeliveryQueueItem) {
	status, err := w.health.Status(ctx, host)
	if err != nil || status == nil || status.BackoffUntil == nil {
		return
	}
	for _, item := range items {
		deliveries.WithLabelValues(outcomeDeferred).Inc()
		if err := w.db.UpdateDeliveryAttempt(ctx, item.Id, item.Attempts, *status.BackoffUntil); err != nil {
			log.Printf("DeliveryWorker: Failed to defer %s: %v", item.Id, err)
		}
	}
}

func (w *DeliveryWorker) drop(ctx context.Context, item *domain.DeliveryQueueItem, outcome string) {
	deliveries.WithLabelValues(outcome).Inc()
	if err := w.db.DeleteDelivery(ctx, item.Id); err != nil {
		log.Printf("DeliveryWorker: Failed to drop %s: %v", item.Id, err)
	}
}
