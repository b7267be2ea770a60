package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/google/uuid"
)

const (
	commentColumns = `id, chapter_id, author_id, author_actor_uri, author_username, author_display_name, content,
		activity_uri, is_local, is_deleted, deleted_at, created_at, updated_at`

	sqlSelectObjectDeleted = `SELECT EXISTS(SELECT 1 FROM deleted_objects WHERE object_uri = ? AND actor_uri = ?)`
	sqlInsertComment       = `INSERT INTO comments(` + commentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(activity_uri) WHERE activity_uri IS NOT NULL DO NOTHING`
	sqlInsertDeletedObject = `INSERT INTO deleted_objects(object_uri, actor_uri, created_at) VALUES (?, ?, ?)
		ON CONFLICT(object_uri, actor_uri) DO NOTHING`
	sqlSoftDeleteCommentByActivity = `UPDATE comments SET is_deleted = 1, deleted_at = ?, updated_at = ?
		WHERE activity_uri = ? AND author_actor_uri = ? AND is_deleted = 0`
	sqlSoftDeleteCommentsByAuthor = `UPDATE comments SET is_deleted = 1, deleted_at = ?, updated_at = ?
		WHERE author_actor_uri = ? AND is_local = 0 AND is_deleted = 0`
	sqlSelectCommentByActivity = `SELECT ` + commentColumns + ` FROM comments WHERE activity_uri = ?`
	sqlSelectCommentsByChapter = `SELECT ` + commentColumns + ` FROM comments
		WHERE chapter_id = ? AND is_deleted = 0 ORDER BY created_at ASC`
)

// CreateComment inserts a comment. Remote comments are keyed by their origin
// activity id: a redelivery, or a Create for an object its author already
// deleted, is absorbed and reported as false.
func (db *DB) CreateComment(ctx context.Context, c *domain.Comment) (bool, error) {
	now := time.Now().UTC()
	if c.Id == uuid.Nil {
		c.Id = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	var author uuid.NullUUID
	if c.AuthorId != nil {
		author = uuid.NullUUID{UUID: *c.AuthorId, Valid: true}
	}

	inserted := false
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if c.ActivityURI != "" {
			var deleted bool
			if err := tx.QueryRowContext(ctx, sqlSelectObjectDeleted, c.ActivityURI, c.AuthorActorURI).Scan(&deleted); err != nil {
				return err
			}
			if deleted {
				return nil
			}
		}
		res, err := tx.ExecContext(ctx, sqlInsertComment, c.Id, c.ChapterId, author, c.AuthorActorURI,
			c.AuthorUsername, c.AuthorDisplayName, c.Content, nullString(c.ActivityURI), c.IsLocal,
			c.IsDeleted, nullTime(c.DeletedAt), c.CreatedAt, c.UpdatedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		inserted = n > 0
		return err
	})
	return inserted, err
}

// SoftDeleteRemoteComment flags the comment created by activityURI as deleted
// if actorURI authored it, and leaves a marker so a late Create for the same
// object stays deleted.
func (db *DB) SoftDeleteRemoteComment(ctx context.Context, activityURI, actorURI string) (bool, error) {
	deleted := false
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, sqlInsertDeletedObject, activityURI, actorURI, now); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, sqlSoftDeleteCommentByActivity, now, now, activityURI, actorURI)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	return deleted, err
}

// SoftDeleteCommentsByAuthor flags every remote comment of actorURI as deleted.
func (db *DB) SoftDeleteCommentsByAuthor(ctx context.Context, actorURI string) (int64, error) {
	var n int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, sqlSoftDeleteCommentsByAuthor, now, now, actorURI)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func scanComment(row rowScanner) (*domain.Comment, error) {
	var c domain.Comment
	var author uuid.NullUUID
	var activityURI sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&c.Id, &c.ChapterId, &author, &c.AuthorActorURI, &c.AuthorUsername, &c.AuthorDisplayName,
		&c.Content, &activityURI, &c.IsLocal, &c.IsDeleted, &deletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if author.Valid {
		id := author.UUID
		c.AuthorId = &id
	}
	c.ActivityURI = activityURI.String
	c.DeletedAt = timePtr(deletedAt)
	return &c, nil
}

func (db *DB) ReadCommentByActivityURI(ctx context.Context, activityURI string) (*domain.Comment, error) {
	return scanComment(db.db.QueryRowContext(ctx, sqlSelectCommentByActivity, activityURI))
}

func (db *DB) ReadCommentsByChapter(ctx context.Context, chapterId uuid.UUID) ([]domain.Comment, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectCommentsByChapter, chapterId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return comments, err
		}
		comments = append(comments, *c)
	}
	return comments, rows.Err()
}
