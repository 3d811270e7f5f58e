package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/cache"
	"ledger/internal/model"
)

const (
	categoryCacheSize = 256
	categoryCacheTTL  = 10 * time.Minute
)

// Store is the on-device source of truth. All writes go through a single
// connection, so SQLite transactions are exclusive and the last commit wins.
type Store struct {
	db         *sql.DB
	queries    *Queries
	categories *cache.LRUCache[model.Category]
	hub        *observerHub
	now        func() time.Time
}

func NewSQLiteStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:         db,
		queries:    New(db),
		categories: cache.NewLRUCache[model.Category](categoryCacheSize, categoryCacheTTL),
		now:        time.Now,
	}
	s.hub = newObserverHub(s.QueryTransactions)
	return s, nil
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
}

func (s *Store) Close() error {
	if s.hub != nil {
		s.hub.closeAll()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return wrap("ping", err)
	}
	return nil
}

// CleanExpired drops expired category lookups; it lets a cache.Manager sweep the store.
func (s *Store) CleanExpired() int {
	return s.categories.CleanExpired()
}

// InTx runs fn inside one exclusive transaction. fn must only use q; the
// store's own methods would wait for the single connection.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	if err := fn(s.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		// lookups cached inside the aborted transaction may name rows that no longer exist
		s.categories.Clear()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return model.NormalizeTime(s.now())
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, classify(err))
}

// classify maps driver errors onto the model error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, model.ErrConstraintViolation),
		errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrStorageFatal),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return model.ErrNotFound
	}

	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return fmt.Errorf("%w: %s", model.ErrConstraintViolation, se.Error())
	}
	return fmt.Errorf("%w: %v", model.ErrStorageFatal, err)
}
