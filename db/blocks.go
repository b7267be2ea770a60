package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertDomainBlock = `INSERT INTO domain_blocks(id, domain, reason, blocked_by_id, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET reason = excluded.reason`
	sqlSelectDomainBlock    = `SELECT id, domain, reason, blocked_by_id, created_at FROM domain_blocks WHERE domain = ?`
	sqlDeleteDomainBlock    = `DELETE FROM domain_blocks WHERE domain = ?`
	sqlSelectDomainBlocked  = `SELECT EXISTS(SELECT 1 FROM domain_blocks WHERE domain = ?)`
	sqlSelectDomainBlocks   = `SELECT id, domain, reason, blocked_by_id, created_at FROM domain_blocks ORDER BY created_at DESC`
	sqlDeleteQueuedForBlock = `DELETE FROM delivery_queue WHERE domain = ?`
)

func scanDomainBlock(row rowScanner) (*domain.DomainBlock, error) {
	var b domain.DomainBlock
	var blockedBy uuid.NullUUID
	if err := row.Scan(&b.Id, &b.Domain, &b.Reason, &blockedBy, &b.CreatedAt); err != nil {
		return nil, err
	}
	if blockedBy.Valid {
		id := blockedBy.UUID
		b.BlockedById = &id
	}
	return &b, nil
}

// CreateDomainBlock blocks a domain and drops anything still queued for it.
// Blocking an already blocked domain updates the reason and returns the
// existing row.
func (db *DB) CreateDomainBlock(ctx context.Context, block *domain.DomainBlock) (*domain.DomainBlock, error) {
	if block.Id == uuid.Nil {
		block.Id = uuid.New()
	}
	if block.CreatedAt.IsZero() {
		block.CreatedAt = time.Now().UTC()
	}
	var blockedBy uuid.NullUUID
	if block.BlockedById != nil {
		blockedBy = uuid.NullUUID{UUID: *block.BlockedById, Valid: true}
	}

	var stored *domain.DomainBlock
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sqlInsertDomainBlock, block.Id, block.Domain, block.Reason, blockedBy,
			block.CreatedAt); err != nil {
			return err
		}
		var err error
		stored, err = scanDomainBlock(tx.QueryRowContext(ctx, sqlSelectDomainBlock, block.Domain))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, sqlDeleteQueuedForBlock, block.Domain)
		return err
	})
	return stored, err
}

func (db *DB) DeleteDomainBlock(ctx context.Context, domainName string) (bool, error) {
	removed := false
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlDeleteDomainBlock, domainName)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		removed = n > 0
		return err
	})
	return removed, err
}

func (db *DB) IsDomainBlocked(ctx context.Context, domainName string) (bool, error) {
	var blocked bool
	err := db.db.QueryRowContext(ctx, sqlSelectDomainBlocked, domainName).Scan(&blocked)
	return blocked, err
}

func (db *DB) ReadDomainBlocks(ctx context.Context) ([]domain.DomainBlock, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectDomainBlocks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks := []domain.DomainBlock{}
	for rows.Next() {
		b, err := scanDomainBlock(rows)
		if err != nil {
			return blocks, err
		}
		blocks = append(blocks, *b)
	}
	return blocks, rows.Err()
}
