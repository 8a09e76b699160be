package core

import (
	"github.com/zeebo/errs"

	"labcatalog/internal/infra/persistence/memory"
	"labcatalog/internal/infra/persistence/postgres"
	"labcatalog/internal/infra/persistence/sqlite"
	"labcatalog/pkg/domain"
)

// Error is the error class for service wiring failures.
var Error = errs.Class("core")

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / demo)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures the persistent store.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenPersistentStore opens the backend named by opts.Driver, defaulting to
// sqlite. The returned closer releases database handles and is never nil.
func OpenPersistentStore(opts StorageOptions, engine *domain.RulesEngine) (domain.PersistentStore, func() error, error) {
	noop := func() error { return nil }
	switch opts.Driver {
	case StorageMemory:
		return memory.NewStore(engine), noop, nil
	case "", StorageSQLite:
		st, err := sqlite.NewStore(opts.SQLitePath, engine)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	case StoragePostgres:
		st, err := postgres.NewStore(opts.PostgresDSN, engine)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	default:
		return nil, noop, Error.New("unknown storage driver %q", opts.Driver)
	}
}
