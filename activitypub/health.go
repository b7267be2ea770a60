package activitypub

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/deemkeen/mangafedi/db"
	"github.com/deemkeen/mangafedi/domain"
	log "github.com/sirupsen/logrus"
)

// DefaultBackoff is used when no schedule is configured.
var DefaultBackoff = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	24 * time.Hour,
}

// HealthTracker keeps per-domain failure streaks and decides whether a domain
// is currently worth delivering to.
type HealthTracker struct {
	db       *db.DB
	schedule []time.Duration
	now      func() time.Time
}

func NewHealthTracker(database *db.DB, schedule []time.Duration) *HealthTracker {
	if len(schedule) == 0 {
		schedule = DefaultBackoff
	}
	return &HealthTracker{db: database, schedule: schedule, now: time.Now}
}

// BackoffFor returns the wait after the given number of consecutive failures.
// The last step of the schedule repeats.
func (h *HealthTracker) BackoffFor(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	idx := failures - 1
	if idx >= len(h.schedule) {
		idx = len(h.schedule) - 1
	}
	return h.schedule[idx]
}

// Status returns the stored health row, or nil for a domain never attempted.
func (h *HealthTracker) Status(ctx context.Context, host string) (*domain.RemoteDomainHealth, error) {
	health, err := h.db.ReadDomainHealth(ctx, strings.ToLower(host))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return health, err
}

func (h *HealthTracker) ShouldAttemptDelivery(ctx context.Context, host string) (bool, error) {
	health, err := h.Status(ctx, host)
	if err != nil {
		return true, err
	}
	if health == nil || health.BackoffUntil == nil {
		return true, nil
	}
	return !health.BackoffUntil.After(h.now()), nil
}

func (h *HealthTracker) RecordDeliveryResult(ctx context.Context, host string, success bool) error {
	host = strings.ToLower(host)
	if success {
		return h.db.RecordDeliverySuccess(ctx, host, h.now())
	}
	failures, err := h.db.RecordDeliveryFailure(ctx, host, h.now(), h.BackoffFor)
	if err != nil {
		return err
	}
	log.WithField("domain", host).Printf("DeliveryHealth: %d consecutive failures, backing off %s", failures, h.BackoffFor(failures))
	return nil
}

func (h *HealthTracker) List(ctx context.Context) ([]domain.RemoteDomainHealth, error) {
	return h.db.ReadAllDomainHealth(ctx)
}
