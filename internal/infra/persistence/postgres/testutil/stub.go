// Package testutil provides a database/sql driver that imitates the one
// Postgres table the snapshot store uses: state(bucket, payload). Writes made
// inside a transaction become visible on commit.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Int64

// StateDB is the fake server side of the connection.
type StateDB struct {
	mu sync.Mutex
	// Statements lists every statement executed, in order.
	Statements []string
	// State holds committed payloads by bucket.
	State map[string][]byte

	FailBegin  bool
	FailCommit bool
	FailExec   bool
}

// NewStateDB opens a *sql.DB served by a fresh StateDB.
func NewStateDB() (*sql.DB, *StateDB) {
	state := &StateDB{State: map[string][]byte{}}
	name := fmt.Sprintf("statepg-%d", driverSeq.Add(1))
	sql.Register(name, stateDriver{state: state})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, state
}

// Executed reports whether any executed statement contains fragment,
// ignoring case.
func (s *StateDB) Executed(fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	fragment = strings.ToLower(fragment)
	for _, stmt := range s.Statements {
		if strings.Contains(strings.ToLower(stmt), fragment) {
			return true
		}
	}
	return false
}

// Buckets returns the committed bucket names, sorted.
func (s *StateDB) Buckets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.State))
	for b := range s.State {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

type stateDriver struct{ state *StateDB }

func (d stateDriver) Open(string) (driver.Conn, error) {
	return &conn{state: d.state}, nil
}

type conn struct {
	state   *StateDB
	pending map[string][]byte
}

var errUnsupported = errors.New("statement not supported by state stub")

func (c *conn) Prepare(string) (driver.Stmt, error) { return nil, errUnsupported }
func (c *conn) Close() error                        { return nil }
func (c *conn) Begin() (driver.Tx, error)           { return c.BeginTx(context.Background(), driver.TxOptions{}) }

func (c *conn) Ping(context.Context) error {
	if c.state.FailExec {
		return errors.New("ping failed")
	}
	return nil
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.state.FailBegin {
		return nil, errors.New("begin failed")
	}
	c.pending = map[string][]byte{}
	return c, nil
}

func (c *conn) Commit() error {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := c.pending
	c.pending = nil
	if s.FailCommit {
		return errors.New("commit failed")
	}
	for b, p := range pending {
		s.State[b] = p
	}
	return nil
}

func (c *conn) Rollback() error {
	c.pending = nil
	return nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	s := c.state
	s.mu.Lock()
	s.Statements = append(s.Statements, query)
	fail := s.FailExec
	s.mu.Unlock()
	if fail {
		return nil, errors.New("exec failed")
	}

	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "INSERT INTO STATE") {
		return driver.RowsAffected(0), nil
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("state upsert takes 2 arguments, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return nil, fmt.Errorf("bucket must be a string, got %T", args[0].Value)
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return nil, fmt.Errorf("payload must be bytes, got %T", args[1].Value)
	}
	payload = append([]byte(nil), payload...)
	if c.pending != nil {
		c.pending[bucket] = payload
		return driver.RowsAffected(1), nil
	}
	s.mu.Lock()
	s.State[bucket] = payload
	s.mu.Unlock()
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	s := c.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Statements = append(s.Statements, query)
	if !strings.Contains(strings.ToLower(query), "from state") {
		return nil, errUnsupported
	}
	out := &rows{}
	for b, p := range s.State {
		out.values = append(out.values, [2]driver.Value{b, append([]byte(nil), p...)})
	}
	sort.Slice(out.values, func(i, j int) bool { return out.values[i][0].(string) < out.values[j][0].(string) })
	return out, nil
}

type rows struct {
	values [][2]driver.Value
	next   int
}

func (r *rows) Columns() []string { return []string{"bucket", "payload"} }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	dest[0], dest[1] = r.values[r.next][0], r.values[r.next][1]
	r.next++
	return nil
}
