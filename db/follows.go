package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/google/uuid"
)

const (
	sqlSelectFollowUndone = `SELECT EXISTS(SELECT 1 FROM follow_undos WHERE follow_activity_id = ? AND follower_actor_uri = ?)`
	sqlUpsertFollow       = `INSERT INTO series_follows(id, series_id, follower_actor_uri, follower_inbox_uri, follow_uri, is_local, local_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(series_id, follower_actor_uri) DO UPDATE SET
			follower_inbox_uri = excluded.follower_inbox_uri,
			follow_uri = excluded.follow_uri`
	sqlInsertFollowUndo = `INSERT INTO follow_undos(follow_activity_id, follower_actor_uri, series_id, created_at)
		VALUES (?, ?, ?, ?) ON CONFLICT(follow_activity_id, follower_actor_uri) DO NOTHING`
	// an empty id on either side matches, so an Undo that only names the
	// series still removes the edge
	sqlDeleteFollowForSeries = `DELETE FROM series_follows
		WHERE series_id = ? AND follower_actor_uri = ? AND (? = '' OR follow_uri = '' OR follow_uri = ?)
		RETURNING series_id`
	sqlDeleteFollowByURI = `DELETE FROM series_follows WHERE follower_actor_uri = ? AND follow_uri = ?
		RETURNING series_id`
	sqlPruneFollowUndos     = `DELETE FROM follow_undos WHERE created_at < ?`
	sqlPruneDeletedObjects  = `DELETE FROM deleted_objects WHERE created_at < ?`
	sqlDeleteFollowsByActor = `DELETE FROM series_follows WHERE follower_actor_uri = ? RETURNING series_id`
	sqlSelectFollowers      = `SELECT id, series_id, follower_actor_uri, follower_inbox_uri, follow_uri, is_local, local_user_id, created_at
		FROM series_follows WHERE series_id = ? ORDER BY created_at ASC`
	sqlSelectFollow = `SELECT id, series_id, follower_actor_uri, follower_inbox_uri, follow_uri, is_local, local_user_id, created_at
		FROM series_follows WHERE series_id = ? AND follower_actor_uri = ?`
)

// UpsertFollow stores or refreshes the edge for (series, follower). It returns
// false without writing when the follow id was already undone, which happens
// when an Undo overtakes its Follow.
func (db *DB) UpsertFollow(ctx context.Context, f *domain.SeriesFollow) (bool, error) {
	if f.Id == uuid.Nil {
		f.Id = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	applied := false
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if f.FollowURI != "" {
			var undone bool
			if err := tx.QueryRowContext(ctx, sqlSelectFollowUndone, f.FollowURI, f.FollowerActorURI).Scan(&undone); err != nil {
				return err
			}
			if undone {
				return nil
			}
		}

		var localUser uuid.NullUUID
		if f.LocalUserId != nil {
			localUser = uuid.NullUUID{UUID: *f.LocalUserId, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, sqlUpsertFollow, f.Id, f.SeriesId, f.FollowerActorURI, f.FollowerInboxURI,
			f.FollowURI, f.IsLocal, localUser, f.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlRefreshFollowerCount, f.SeriesId); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// UndoFollow removes the edge created by followURI. With seriesId set, the
// edge for (series, follower) is removed when its follow id matches or either
// id is unknown. The undone id is remembered so a late Follow is dropped.
func (db *DB) UndoFollow(ctx context.Context, followerActorURI, followURI string, seriesId *uuid.UUID) (int, error) {
	removed := 0
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		removed = 0
		if followURI != "" {
			var series uuid.NullUUID
			if seriesId != nil {
				series = uuid.NullUUID{UUID: *seriesId, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, sqlInsertFollowUndo, followURI, followerActorURI, series, time.Now().UTC()); err != nil {
				return err
			}
		}

		var rows *sql.Rows
		var err error
		switch {
		case seriesId != nil:
			rows, err = tx.QueryContext(ctx, sqlDeleteFollowForSeries, *seriesId, followerActorURI, followURI, followURI)
		case followURI != "":
			rows, err = tx.QueryContext(ctx, sqlDeleteFollowByURI, followerActorURI, followURI)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		n, err := refreshCounts(ctx, tx, rows)
		removed = n
		return err
	})
	return removed, err
}

// PruneReorderMarkers drops Undo and Delete markers recorded before the
// cutoff. A Follow or Create arriving after that is treated as new.
func (db *DB) PruneReorderMarkers(ctx context.Context, before time.Time) (int64, error) {
	var pruned int64
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		pruned = 0
		for _, q := range []string{sqlPruneFollowUndos, sqlPruneDeletedObjects} {
			res, err := tx.ExecContext(ctx, q, before.UTC())
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			pruned += n
		}
		return nil
	})
	return pruned, err
}

// DeleteFollowsByActor removes every edge of a remote actor.
func (db *DB) DeleteFollowsByActor(ctx context.Context, followerActorURI string) (int, error) {
	removed := 0
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, sqlDeleteFollowsByActor, followerActorURI)
		if err != nil {
			return err
		}
		removed, err = refreshCounts(ctx, tx, rows)
		return err
	})
	return removed, err
}

// refreshCounts drains the series ids returned by a DELETE ... RETURNING and
// recomputes the cached follower count of each.
func refreshCounts(ctx context.Context, tx *sql.Tx, rows *sql.Rows) (int, error) {
	seen := map[uuid.UUID]bool{}
	n := 0
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return n, err
		}
		seen[id] = true
		n++
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return n, err
	}
	rows.Close()

	for id := range seen {
		if _, err := tx.ExecContext(ctx, sqlRefreshFollowerCount, id); err != nil {
			return n, err
		}
	}
	return n, nil
}

func scanFollow(row rowScanner) (*domain.SeriesFollow, error) {
	var f domain.SeriesFollow
	var localUser uuid.NullUUID
	if err := row.Scan(&f.Id, &f.SeriesId, &f.FollowerActorURI, &f.FollowerInboxURI, &f.FollowURI, &f.IsLocal,
		&localUser, &f.CreatedAt); err != nil {
		return nil, err
	}
	if localUser.Valid {
		id := localUser.UUID
		f.LocalUserId = &id
	}
	return &f, nil
}

func (db *DB) ReadFollow(ctx context.Context, seriesId uuid.UUID, followerActorURI string) (*domain.SeriesFollow, error) {
	return scanFollow(db.db.QueryRowContext(ctx, sqlSelectFollow, seriesId, followerActorURI))
}

func (db *DB) ReadFollowersBySeries(ctx context.Context, seriesId uuid.UUID) ([]domain.SeriesFollow, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectFollowers, seriesId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []domain.SeriesFollow
	for rows.Next() {
		f, err := scanFollow(rows)
		if err != nil {
			return followers, err
		}
		followers = append(followers, *f)
	}
	return followers, rows.Err()
}
