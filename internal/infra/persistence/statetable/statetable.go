// Package statetable reads and writes memory snapshots to the single
// `state(bucket, payload)` table shared by the SQL backends. Each bucket holds
// the JSON encoding of one entity map.
package statetable

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/zeebo/errs"

	"labcatalog/internal/infra/persistence/memory"
)

// Error is the error class for state table failures.
var Error = errs.Class("state table")

// Queryer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execer is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Load runs query, which must return (bucket, payload) rows, and decodes the
// known buckets into a snapshot. Unknown buckets are ignored.
func Load(ctx context.Context, q Queryer, query string) (_ memory.Snapshot, err error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return memory.Snapshot{}, Error.New("select state: %w", err)
	}
	defer func() { err = errs.Combine(err, rows.Close()) }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, Error.New("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		target := snapshot.Bucket(bucket)
		if target == nil {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return memory.Snapshot{}, Error.New("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, Error.New("iterate state: %w", err)
	}
	return snapshot, nil
}

// Save writes every bucket of snapshot with upsert, a two-placeholder
// statement taking (bucket, payload).
func Save(ctx context.Context, e Execer, upsert string, snapshot memory.Snapshot) error {
	for _, bucket := range memory.Buckets {
		data, err := json.Marshal(snapshot.Bucket(bucket))
		if err != nil {
			return Error.New("encode %s: %w", bucket, err)
		}
		if _, err := e.ExecContext(ctx, upsert, bucket, data); err != nil {
			return Error.New("upsert %s: %w", bucket, err)
		}
	}
	return nil
}
