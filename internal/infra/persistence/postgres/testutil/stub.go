// Package testutil provides an in-memory database/sql driver that understands
// the handful of statements the postgres record store issues. Every sql.DB
// returned for the same StubConn shares its rows, standing in for several
// processes on one database.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Uint64

// Row is one stored records row.
type Row struct {
	ID        string
	OwnerID   string
	Text      string
	Completed bool
	CreatedAt int64
}

// StubConn records executed statements and keeps records rows by id.
type StubConn struct {
	mu        sync.Mutex
	Execs     []string
	Rows      map[string]Row
	FailPing  bool
	FailExec  bool
	FailQuery bool
}

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Rows: make(map[string]Row)}
	return conn.OpenDB(), conn
}

// OpenDB returns another sql.DB over the same rows.
func (c *StubConn) OpenDB() *sql.DB {
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: c})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db
}

// Seed inserts rows directly.
func (c *StubConn) Seed(rows ...Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range rows {
		c.Rows[r.ID] = r
	}
}

// Snapshot returns the stored rows sorted by id.
func (c *StubConn) Snapshot() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Row, 0, len(c.Rows))
	for _, r := range c.Rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetFailExec toggles failure of every Exec.
func (c *StubConn) SetFailExec(fail bool) {
	c.mu.Lock()
	c.FailExec = fail
	c.mu.Unlock()
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) { return stubTx{}, nil }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "INSERT INTO RECORDS"):
		if len(args) != 5 {
			return nil, fmt.Errorf("insert expects 5 args, got %d", len(args))
		}
		row := Row{
			ID:        asString(args[0].Value),
			OwnerID:   asString(args[1].Value),
			Text:      asString(args[2].Value),
			Completed: args[3].Value == true,
			CreatedAt: asInt(args[4].Value),
		}
		if _, ok := c.Rows[row.ID]; ok {
			return nil, fmt.Errorf("duplicate key value violates unique constraint \"records_pkey\"")
		}
		c.Rows[row.ID] = row
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(upper, "DELETE FROM RECORDS"):
		if len(args) != 2 {
			return nil, fmt.Errorf("delete expects 2 args, got %d", len(args))
		}
		id, owner := asString(args[0].Value), asString(args[1].Value)
		if r, ok := c.Rows[id]; !ok || r.OwnerID != owner {
			return driver.RowsAffected(0), nil
		}
		delete(c.Rows, id)
		return driver.RowsAffected(1), nil
	}
	return driver.RowsAffected(0), nil
}

var rowColumns = []string{"id", "owner_id", "text", "completed", "created_at"}

func (r Row) values() []driver.Value {
	return []driver.Value{r.ID, r.OwnerID, r.Text, r.Completed, r.CreatedAt}
}

// QueryContext implements driver.QueryerContext. It serves the owner-scoped
// SELECT ordered newest first and UPDATE ... RETURNING.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	upper := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(upper, "SELECT") && strings.Contains(upper, "FROM RECORDS"):
		if len(args) != 1 {
			return nil, fmt.Errorf("select expects 1 arg, got %d", len(args))
		}
		owner := asString(args[0].Value)
		matched := make([]Row, 0, len(c.Rows))
		for _, r := range c.Rows {
			if r.OwnerID == owner {
				matched = append(matched, r)
			}
		}
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].CreatedAt != matched[j].CreatedAt {
				return matched[i].CreatedAt > matched[j].CreatedAt
			}
			return matched[i].ID > matched[j].ID
		})
		values := make([][]driver.Value, 0, len(matched))
		for _, r := range matched {
			values = append(values, r.values())
		}
		return &stubRows{cols: rowColumns, rows: values}, nil
	case strings.HasPrefix(upper, "UPDATE RECORDS"):
		c.Execs = append(c.Execs, query)
		if c.FailExec {
			return nil, fmt.Errorf("exec fail")
		}
		if len(args) != 4 {
			return nil, fmt.Errorf("update expects 4 args, got %d", len(args))
		}
		id, owner := asString(args[2].Value), asString(args[3].Value)
		r, ok := c.Rows[id]
		if !ok || r.OwnerID != owner {
			return &stubRows{cols: rowColumns}, nil
		}
		if args[0].Value != nil {
			r.Text = asString(args[0].Value)
		}
		if args[1].Value != nil {
			r.Completed = args[1].Value == true
		}
		c.Rows[id] = r
		return &stubRows{cols: rowColumns, rows: [][]driver.Value{r.values()}}, nil
	}
	return nil, fmt.Errorf("unsupported query: %s", query)
}

func asString(v driver.Value) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

func asInt(v driver.Value) int64 {
	if n, ok := v.(int64); ok {
		return n
	}
	return 0
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
