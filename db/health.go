package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/mangafedi/domain"
)

const (
	healthColumns = `domain, consecutive_failures, last_success_at, last_attempt_at, backoff_until`

	sqlSelectDomainHealth = `SELECT ` + healthColumns + ` FROM remote_domain_health WHERE domain = ?`
	sqlSelectAllHealth    = `SELECT ` + healthColumns + ` FROM remote_domain_health
		ORDER BY consecutive_failures DESC, domain ASC`
	sqlRecordSuccess = `INSERT INTO remote_domain_health(domain, consecutive_failures, last_success_at, last_attempt_at, backoff_until)
		VALUES (?, 0, ?, ?, NULL)
		ON CONFLICT(domain) DO UPDATE SET
			consecutive_failures = 0,
			last_success_at = excluded.last_success_at,
			last_attempt_at = excluded.last_attempt_at,
			backoff_until = NULL`
	sqlRecordFailure = `INSERT INTO remote_domain_health(domain, consecutive_failures, last_attempt_at)
		VALUES (?, 1, ?)
		ON CONFLICT(domain) DO UPDATE SET
			consecutive_failures = consecutive_failures + 1,
			last_attempt_at = excluded.last_attempt_at
		RETURNING consecutive_failures`
	sqlSetBackoff = `UPDATE remote_domain_health SET backoff_until = ? WHERE domain = ?`
)

func scanHealth(row rowScanner) (*domain.RemoteDomainHealth, error) {
	var h domain.RemoteDomainHealth
	var lastSuccess, lastAttempt, backoff sql.NullTime
	if err := row.Scan(&h.Domain, &h.ConsecutiveFailures, &lastSuccess, &lastAttempt, &backoff); err != nil {
		return nil, err
	}
	h.LastSuccessAt = timePtr(lastSuccess)
	h.LastAttemptAt = timePtr(lastAttempt)
	h.BackoffUntil = timePtr(backoff)
	return &h, nil
}

func (db *DB) ReadDomainHealth(ctx context.Context, domainName string) (*domain.RemoteDomainHealth, error) {
	return scanHealth(db.db.QueryRowContext(ctx, sqlSelectDomainHealth, domainName))
}

func (db *DB) ReadAllDomainHealth(ctx context.Context) ([]domain.RemoteDomainHealth, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectAllHealth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all := []domain.RemoteDomainHealth{}
	for rows.Next() {
		h, err := scanHealth(rows)
		if err != nil {
			return all, err
		}
		all = append(all, *h)
	}
	return all, rows.Err()
}

// RecordDeliverySuccess resets the failure streak of a domain.
func (db *DB) RecordDeliverySuccess(ctx context.Context, domainName string, at time.Time) error {
	at = at.UTC()
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlRecordSuccess, domainName, at, at)
		return err
	})
}

// RecordDeliveryFailure increments the failure streak and sets the backoff
// deadline from the new streak length, both in one transaction so concurrent
// failures each see their own count.
func (db *DB) RecordDeliveryFailure(ctx context.Context, domainName string, at time.Time, backoff func(failures int) time.Duration) (int, error) {
	at = at.UTC()
	failures := 0
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, sqlRecordFailure, domainName, at).Scan(&failures); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, sqlSetBackoff, at.Add(backoff(failures)), domainName)
		return err
	})
	return failures, err
}
