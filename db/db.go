package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

// Tx is a write transaction handed to WithTx callbacks. Its methods mirror the
// DB read methods so multi-step protocols can read and write atomically.
type Tx struct {
	tx *sql.Tx
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const maxBusyRetries = 5

// busy_timeout and journal_mode go into the DSN so every pooled connection
// gets them; _txlock=immediate takes the write lock at BEGIN. Times are
// written in SQLite's own layout so UTC values compare correctly as text.
const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate&_time_format=sqlite"

// Open opens (creating if needed) the SQLite database at path and runs all
// migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	var journalMode string
	if err := sqlDB.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	log.Printf("Database %s opened, journal mode: %s", path, journalMode)

	d := &DB{db: sqlDB}
	if err := d.RunMigrations(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// WithTx runs fn inside one write transaction. The transaction is retried
// from the start when SQLite reports the database as busy.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(ctx context.Context, f func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxBusyRetries; attempt++ {
		err = db.runTransaction(ctx, f)
		if err == nil || !isBusy(err) {
			return err
		}
		log.Debugf("Database busy, retrying transaction (attempt %d)", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 20 * time.Millisecond):
		}
	}
	return err
}

func (db *DB) runTransaction(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		if !isBusy(err) {
			log.Debugf("error in transaction: %s", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		log.Printf("error committing transaction: %s", err)
		return err
	}
	return nil
}

func sqliteCode(err error) (int, bool) {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code(), true
	}
	return 0, false
}

func isBusy(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code&0xff == sqlitelib.SQLITE_BUSY || code&0xff == sqlitelib.SQLITE_LOCKED)
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func IsUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && (code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
