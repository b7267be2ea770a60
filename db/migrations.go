package db

import (
	"context"
	"database/sql"

	log "github.com/sirupsen/logrus"
)

const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		actor_uri TEXT UNIQUE NOT NULL,
		inbox_uri TEXT NOT NULL,
		public_key TEXT NOT NULL,
		private_key TEXT NOT NULL,
		portable_public_key TEXT NOT NULL DEFAULT '',
		portable_key_fingerprint TEXT NOT NULL DEFAULT '',
		known_actor_uris TEXT NOT NULL DEFAULT '[]',
		is_active INTEGER NOT NULL DEFAULT 1,
		is_banned INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	// not unique: a recovered identity leaves the deactivated account behind
	sqlCreateAccountsIndices = `
		CREATE INDEX IF NOT EXISTS idx_accounts_fingerprint ON accounts(portable_key_fingerprint);
	`

	sqlCreateSeriesTable = `CREATE TABLE IF NOT EXISTS series (
		id TEXT NOT NULL PRIMARY KEY,
		slug TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT 'manga',
		uploader_id TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		known_actor_uris TEXT NOT NULL DEFAULT '[]',
		public_key TEXT NOT NULL,
		private_key TEXT NOT NULL,
		portable_public_key TEXT NOT NULL DEFAULT '',
		portable_key_fingerprint TEXT NOT NULL DEFAULT '',
		follower_count INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateSeriesIndices = `
		CREATE INDEX IF NOT EXISTS idx_series_fingerprint ON series(portable_key_fingerprint);
		CREATE INDEX IF NOT EXISTS idx_series_uploader ON series(uploader_id);
	`

	sqlCreateChaptersTable = `CREATE TABLE IF NOT EXISTS chapters (
		id TEXT NOT NULL PRIMARY KEY,
		series_id TEXT NOT NULL REFERENCES series(id),
		chapter_number TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		uploader_id TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		published_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateChaptersIndices = `
		CREATE INDEX IF NOT EXISTS idx_chapters_series ON chapters(series_id, published_at DESC);
	`

	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments (
		id TEXT NOT NULL PRIMARY KEY,
		chapter_id TEXT NOT NULL REFERENCES chapters(id),
		author_id TEXT,
		author_actor_uri TEXT NOT NULL,
		author_username TEXT NOT NULL DEFAULT '',
		author_display_name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		activity_uri TEXT,
		is_local INTEGER NOT NULL DEFAULT 1,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateCommentsIndices = `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_comments_activity_uri ON comments(activity_uri) WHERE activity_uri IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_comments_chapter ON comments(chapter_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_comments_author ON comments(author_actor_uri);
	`

	// Follow edges into local series
	sqlCreateSeriesFollowsTable = `CREATE TABLE IF NOT EXISTS series_follows (
		id TEXT NOT NULL PRIMARY KEY,
		series_id TEXT NOT NULL REFERENCES series(id),
		follower_actor_uri TEXT NOT NULL,
		follower_inbox_uri TEXT NOT NULL,
		follow_uri TEXT NOT NULL DEFAULT '',
		is_local INTEGER NOT NULL DEFAULT 0,
		local_user_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(series_id, follower_actor_uri)
	)`

	sqlCreateSeriesFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_series_follows_actor ON series_follows(follower_actor_uri);
		CREATE INDEX IF NOT EXISTS idx_series_follows_uri ON series_follows(follow_uri);
	`

	// Undo ids seen before (or without) their Follow
	sqlCreateFollowUndosTable = `CREATE TABLE IF NOT EXISTS follow_undos (
		follow_activity_id TEXT NOT NULL,
		follower_actor_uri TEXT NOT NULL,
		series_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(follow_activity_id, follower_actor_uri)
	)`

	sqlCreateFollowUndosIndices = `
		CREATE INDEX IF NOT EXISTS idx_follow_undos_created ON follow_undos(created_at);
	`

	// Delete markers for objects whose Create may still be in flight
	sqlCreateDeletedObjectsTable = `CREATE TABLE IF NOT EXISTS deleted_objects (
		object_uri TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(object_uri, actor_uri)
	)`

	sqlCreateDeletedObjectsIndices = `
		CREATE INDEX IF NOT EXISTS idx_deleted_objects_created ON deleted_objects(created_at);
	`

	sqlCreateDomainBlocksTable = `CREATE TABLE IF NOT EXISTS domain_blocks (
		id TEXT NOT NULL PRIMARY KEY,
		domain TEXT UNIQUE NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		blocked_by_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDomainHealthTable = `CREATE TABLE IF NOT EXISTS remote_domain_health (
		domain TEXT NOT NULL PRIMARY KEY,
		consecutive_failures INTEGER NOT NULL DEFAULT 0,
		last_success_at TIMESTAMP,
		last_attempt_at TIMESTAMP,
		backoff_until TIMESTAMP
	)`

	// Delivery queue table
	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		domain TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_domain ON delivery_queue(domain);
	`
)

type migrationTable struct {
	name    string
	create  string
	indices string
}

var migrationTables = []migrationTable{
	{"accounts", sqlCreateAccountsTable, sqlCreateAccountsIndices},
	{"series", sqlCreateSeriesTable, sqlCreateSeriesIndices},
	{"chapters", sqlCreateChaptersTable, sqlCreateChaptersIndices},
	{"comments", sqlCreateCommentsTable, sqlCreateCommentsIndices},
	{"series_follows", sqlCreateSeriesFollowsTable, sqlCreateSeriesFollowsIndices},
	{"follow_undos", sqlCreateFollowUndosTable, sqlCreateFollowUndosIndices},
	{"deleted_objects", sqlCreateDeletedObjectsTable, sqlCreateDeletedObjectsIndices},
	{"domain_blocks", sqlCreateDomainBlocksTable, ""},
	{"remote_domain_health", sqlCreateDomainHealthTable, ""},
	{"delivery_queue", sqlCreateDeliveryQueueTable, sqlCreateDeliveryQueueIndices},
}

// RunMigrations executes all database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		for _, t := range migrationTables {
			if err := db.createTableIfNotExists(ctx, tx, t.create, t.name); err != nil {
				return err
			}
			if t.indices == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, t.indices); err != nil {
				log.Printf("Warning: Failed to create %s indices: %v", t.name, err)
			}
		}
		return nil
	})
}

func (db *DB) createTableIfNotExists(ctx context.Context, tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.ExecContext(ctx, createSQL)
	if err != nil {
		log.Printf("Error creating table %s: %v", tableName, err)
		return err
	}
	log.Debugf("Table %s created or already exists", tableName)
	return nil
}
