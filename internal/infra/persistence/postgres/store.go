// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics. Each transaction takes a transaction-scoped advisory
// lock, loads the state buckets, applies the mutation and writes them back.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/zeebo/errs"

	"labcatalog/internal/infra/persistence/memory"
	"labcatalog/internal/infra/persistence/statetable"
	"labcatalog/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Error is the error class for the Postgres store.
var Error = errs.Class("postgres store")

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/labcatalog?sslmode=disable"

	// stateLockKey identifies the advisory lock serialising catalog writers.
	stateLockKey = 0x6c6162636174

	selectState = `SELECT bucket, payload FROM state`
	upsertState = `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists catalog state to Postgres.
type Store struct {
	db     *sql.DB
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN)
// and ensures the snapshot table exists.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, Error.New("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, errs.Combine(Error.New("ping postgres: %w", err), db.Close())
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, errs.Combine(err, db.Close())
	}
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		db:     db,
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return Error.New("ensure state table: %w", err)
	}
	return nil
}

// RunInTransaction applies fn to the state loaded inside a locked database
// transaction and commits the result.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (_ domain.Result, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, Error.New("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errs.Combine(err, rbErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(stateLockKey)); err != nil {
		return domain.Result{}, Error.New("lock state: %w", err)
	}
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

// View loads the state inside a read-only transaction and exposes it to fn.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Error.New("begin tx: %w", err)
	}
	snapshot, err := statetable.Load(ctx, tx, selectState)
	if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
		err = errs.Combine(err, rbErr)
	}
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

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
