// Package sqlite provides a SQLite-backed persistent store. Every transaction
// loads the snapshot buckets from the state table, applies the mutation with
// the in-memory semantics and writes the buckets back before committing.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/errs"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"labcatalog/internal/infra/persistence/memory"
	"labcatalog/internal/infra/persistence/statetable"
	"labcatalog/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Error is the error class for the SQLite store.
var Error = errs.Class("sqlite store")

const (
	defaultPath = "labcatalog.db"

	selectState = `SELECT bucket, payload FROM state`
	upsertState = `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`
)

// Store persists catalog state to a single SQLite table as JSON blobs.
type Store struct {
	db     *sql.DB
	engine *domain.RulesEngine
	nowFn  func() time.Time
	path   string

	// writers are serialised in-process; SQLite allows one writer anyway.
	mu sync.Mutex
}

// NewStore opens (or creates) the database at path.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, Error.New("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, Error.New("open sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		return nil, errs.Combine(Error.New("busy timeout: %w", err), db.Close())
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, errs.Combine(Error.New("create state table: %w", err), db.Close())
	}
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		db:     db,
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		path:   path,
	}, nil
}

// RunInTransaction loads the current state, applies fn and persists the
// result in one database transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (_ domain.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, Error.New("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			err = errs.Combine(err, ignoreDone(tx.Rollback()))
		}
	}()

	current, err := statetable.Load(ctx, tx, selectState)
	if err != nil {
		return domain.Result{}, err
	}
	next, res, err := memory.Apply(ctx, s.engine, current, s.nowFn(), fn)
	if err != nil {
		return res, err
	}
	if err := statetable.Save(ctx, tx, upsertState, next); err != nil {
		return res, err
	}
	if err := tx.Commit(); err != nil {
		return res, Error.New("commit: %w", err)
	}
	committed = true
	return res, nil
}

// View loads the current state and exposes it read-only.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	snapshot, err := statetable.Load(ctx, s.db, selectState)
	if err != nil {
		return err
	}
	return memory.ViewSnapshot(snapshot, fn)
}

// RulesEngine exposes the engine evaluated on every transaction.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func ignoreDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
