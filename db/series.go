package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/mangafedi/domain"
	"github.com/google/uuid"
)

const (
	seriesColumns = `id, slug, title, description, content_type, uploader_id, actor_uri, known_actor_uris,
		public_key, private_key, portable_public_key, portable_key_fingerprint, follower_count,
		is_deleted, deleted_at, created_at, updated_at`

	sqlInsertSeries = `INSERT INTO series(` + seriesColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectSeriesById       = `SELECT ` + seriesColumns + ` FROM series WHERE id = ?`
	sqlSelectSeriesBySlug     = `SELECT ` + seriesColumns + ` FROM series WHERE slug = ?`
	sqlSelectSeriesByActorURI = `SELECT ` + seriesColumns + ` FROM series WHERE actor_uri = ?`
	// tombstoned rows are included so a claim can answer "gone" instead of
	// "not found"
	sqlSelectSeriesByFingerprint = `SELECT ` + seriesColumns + ` FROM series
		WHERE portable_key_fingerprint = ?
		ORDER BY is_deleted ASC, follower_count DESC, updated_at DESC`
	sqlSelectSlugExists  = `SELECT EXISTS(SELECT 1 FROM series WHERE slug = ?)`
	sqlUpdateSeriesClaim = `UPDATE series SET slug = ?, actor_uri = ?, known_actor_uris = ?, uploader_id = ?,
		public_key = ?, private_key = ?, portable_public_key = ?, portable_key_fingerprint = ?, updated_at = ?
		WHERE id = ?`
	sqlUpdateSeriesPortableKey = `UPDATE series SET portable_public_key = ?, portable_key_fingerprint = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0`
	sqlTombstoneSeries = `UPDATE series SET is_deleted = 1, deleted_at = ?, known_actor_uris = '[]', updated_at = ?
		WHERE id = ? AND is_deleted = 0`
	sqlRefreshFollowerCount = `UPDATE series SET follower_count =
		(SELECT COUNT(*) FROM series_follows WHERE series_id = series.id) WHERE id = ?`

	sqlInsertChapter = `INSERT INTO chapters(id, series_id, chapter_number, title, uploader_id, is_deleted, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectChapterById = `SELECT id, series_id, chapter_number, title, uploader_id, is_deleted, published_at, created_at
		FROM chapters WHERE id = ?`
	sqlSelectChaptersBySeries = `SELECT id, series_id, chapter_number, title, uploader_id, is_deleted, published_at, created_at
		FROM chapters WHERE series_id = ? AND is_deleted = 0 ORDER BY published_at DESC LIMIT ?`
)

func scanSeries(row rowScanner) (*domain.Series, error) {
	var s domain.Series
	var deletedAt sql.NullTime
	err := row.Scan(&s.Id, &s.Slug, &s.Title, &s.Description, &s.ContentType, &s.UploaderId, &s.ActorURI,
		&s.KnownActorURIs, &s.PublicKey, &s.PrivateKey, &s.PortablePublicKey, &s.PortableKeyFingerprint,
		&s.FollowerCount, &s.IsDeleted, &deletedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.DeletedAt = timePtr(deletedAt)
	return &s, nil
}

func insertSeries(ctx context.Context, q querier, s *domain.Series) error {
	now := time.Now().UTC()
	if s.Id == uuid.Nil {
		s.Id = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.ContentType == "" {
		s.ContentType = "manga"
	}
	_, err := q.ExecContext(ctx, sqlInsertSeries,
		s.Id, s.Slug, s.Title, s.Description, s.ContentType, s.UploaderId, s.ActorURI, s.KnownActorURIs,
		s.PublicKey, s.PrivateKey, s.PortablePublicKey, s.PortableKeyFingerprint, s.FollowerCount,
		s.IsDeleted, nullTime(s.DeletedAt), s.CreatedAt, s.UpdatedAt)
	return err
}

func slugExists(ctx context.Context, q querier, slug string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, sqlSelectSlugExists, slug).Scan(&exists)
	return exists, err
}

func (db *DB) CreateSeries(ctx context.Context, s *domain.Series) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return insertSeries(ctx, tx, s)
	})
}

func (db *DB) ReadSeriesById(ctx context.Context, id uuid.UUID) (*domain.Series, error) {
	return scanSeries(db.db.QueryRowContext(ctx, sqlSelectSeriesById, id))
}

func (db *DB) ReadSeriesBySlug(ctx context.Context, slug string) (*domain.Series, error) {
	return scanSeries(db.db.QueryRowContext(ctx, sqlSelectSeriesBySlug, slug))
}

func (db *DB) ReadSeriesByActorURI(ctx context.Context, actorURI string) (*domain.Series, error) {
	return scanSeries(db.db.QueryRowContext(ctx, sqlSelectSeriesByActorURI, actorURI))
}

// BindSeriesPortableKey attaches a portable identity to a live series.
// Returns false when the series does not exist or is tombstoned.
func (db *DB) BindSeriesPortableKey(ctx context.Context, id uuid.UUID, publicKey, fingerprint string) (bool, error) {
	var updated bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, sqlUpdateSeriesPortableKey, publicKey, fingerprint, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		updated = n > 0
		return err
	})
	return updated, err
}

// TombstoneSeries soft deletes a series and clears its lineage. Returns false
// if the series was already tombstoned or does not exist.
func (db *DB) TombstoneSeries(ctx context.Context, id uuid.UUID) (bool, error) {
	var updated bool
	err := db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx, sqlTombstoneSeries, now, now, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		updated = n > 0
		return err
	})
	return updated, err
}

func (db *DB) CreateChapter(ctx context.Context, ch *domain.Chapter) error {
	now := time.Now().UTC()
	if ch.Id == uuid.Nil {
		ch.Id = uuid.New()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = now
	}
	if ch.PublishedAt.IsZero() {
		ch.PublishedAt = now
	}
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlInsertChapter, ch.Id, ch.SeriesId, ch.ChapterNumber, ch.Title,
			ch.UploaderId, ch.IsDeleted, ch.PublishedAt, ch.CreatedAt)
		return err
	})
}

func scanChapter(row rowScanner) (*domain.Chapter, error) {
	var ch domain.Chapter
	err := row.Scan(&ch.Id, &ch.SeriesId, &ch.ChapterNumber, &ch.Title, &ch.UploaderId, &ch.IsDeleted,
		&ch.PublishedAt, &ch.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (db *DB) ReadChapterById(ctx context.Context, id uuid.UUID) (*domain.Chapter, error) {
	return scanChapter(db.db.QueryRowContext(ctx, sqlSelectChapterById, id))
}

func (db *DB) ReadChaptersBySeries(ctx context.Context, seriesId uuid.UUID, limit int) ([]domain.Chapter, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectChaptersBySeries, seriesId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chapters []domain.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return chapters, err
		}
		chapters = append(chapters, *ch)
	}
	return chapters, rows.Err()
}

func (t *Tx) InsertSeries(ctx context.Context, s *domain.Series) error {
	return insertSeries(ctx, t.tx, s)
}

func (t *Tx) SlugExists(ctx context.Context, slug string) (bool, error) {
	return slugExists(ctx, t.tx, slug)
}

func (t *Tx) ReadSeriesByFingerprint(ctx context.Context, fingerprint string) ([]domain.Series, error) {
	return readSeriesByFingerprint(ctx, t.tx, fingerprint)
}

func (db *DB) ReadSeriesByFingerprint(ctx context.Context, fingerprint string) ([]domain.Series, error) {
	return readSeriesByFingerprint(ctx, db.db, fingerprint)
}

func readSeriesByFingerprint(ctx context.Context, q querier, fingerprint string) ([]domain.Series, error) {
	rows, err := q.QueryContext(ctx, sqlSelectSeriesByFingerprint, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var series []domain.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return series, err
		}
		series = append(series, *s)
	}
	return series, rows.Err()
}

// UpdateSeriesClaim persists a claimed series: new owner, portable binding
// and, for a migration, the freshly minted slug, identifier, keys and lineage.
func (t *Tx) UpdateSeriesClaim(ctx context.Context, s *domain.Series) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := t.tx.ExecContext(ctx, sqlUpdateSeriesClaim, s.Slug, s.ActorURI, s.KnownActorURIs, s.UploaderId,
		s.PublicKey, s.PrivateKey, s.PortablePublicKey, s.PortableKeyFingerprint, s.UpdatedAt, s.Id)
	return err
}
