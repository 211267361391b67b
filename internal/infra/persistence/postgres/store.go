// Package postgres provides a record store backed by a PostgreSQL records
// table, reached through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"tasklist/internal/infra/persistence/memory"
	"tasklist/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.RecordStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/tasklist?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const recordColumns = `id, owner_id, text, completed, created_at`

// Store reads and writes the records table directly. Each operation is a
// single statement, so concurrent writers and other processes sharing the
// table never observe a stale copy.
type Store struct {
	db    *sql.DB
	nowFn func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc overrides the clock used for created_at stamps.
func WithNowFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.nowFn = fn
		}
	}
}

// WithIDFunc overrides the id generator.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the records table exists.
func NewStore(dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureRecordsTable(ctx, db); err != nil {
		return nil, err
	}
	s := &Store{
		db:    db,
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: memory.NewRecordID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureRecordsTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		text TEXT NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure records table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS records_owner_idx ON records (owner_id, created_at DESC)`); err != nil {
		return fmt.Errorf("ensure records index: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.Record, error) {
	var (
		r       domain.Record
		created int64
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Text, &r.Completed, &created); err != nil {
		return domain.Record{}, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

// List returns the principal's records, newest first.
func (s *Store) List(ctx context.Context, p domain.Principal) ([]domain.Record, error) {
	if !p.Authenticated() {
		return nil, domain.ErrUnauthorized
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records
		WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, p.ID)
	if err != nil {
		return nil, domain.Unavailable("postgres select", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, domain.Unavailable("postgres scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("postgres select", err)
	}
	return out, nil
}

// Create inserts a new incomplete record owned by the principal.
func (s *Store) Create(ctx context.Context, p domain.Principal, text string) (domain.Record, error) {
	if !p.Authenticated() {
		return domain.Record{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(text) == "" {
		return domain.Record{}, domain.Validationf("text is required")
	}
	r := domain.Record{ID: s.newID(), Text: text, CreatedAt: s.nowFn(), OwnerID: p.ID}
	_, err := s.db.ExecContext(ctx, `INSERT INTO records(`+recordColumns+`) VALUES($1,$2,$3,$4,$5)`,
		r.ID, r.OwnerID, r.Text, false, r.CreatedAt.UnixNano())
	if err != nil {
		return domain.Record{}, domain.Unavailable("postgres insert", err)
	}
	return r, nil
}

// UpdateFields merges fields into the principal's row and returns the row as
// stored. Unset fields keep their column value.
func (s *Store) UpdateFields(ctx context.Context, p domain.Principal, id string, fields domain.Fields) (domain.Record, error) {
	if !p.Authenticated() {
		return domain.Record{}, domain.ErrUnauthorized
	}
	if id == "" {
		return domain.Record{}, domain.Validationf("id is required")
	}
	if err := fields.Validate(); err != nil {
		return domain.Record{}, err
	}
	var text, completed any
	if fields.Text != nil {
		text = *fields.Text
	}
	if fields.Completed != nil {
		completed = *fields.Completed
	}
	row := s.db.QueryRowContext(ctx, `UPDATE records
		SET text = COALESCE($1::text, text), completed = COALESCE($2::boolean, completed)
		WHERE id = $3 AND owner_id = $4
		RETURNING `+recordColumns, text, completed, id, p.ID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, domain.RecordNotFound(id)
	}
	if err != nil {
		return domain.Record{}, domain.Unavailable("postgres update", err)
	}
	return r, nil
}

// Delete removes the principal's row. Zero affected rows reports not found.
func (s *Store) Delete(ctx context.Context, p domain.Principal, id string) error {
	if !p.Authenticated() {
		return domain.ErrUnauthorized
	}
	if id == "" {
		return domain.Validationf("id is required")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = $1 AND owner_id = $2`, id, p.ID)
	if err != nil {
		return domain.Unavailable("postgres delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Unavailable("postgres delete", err)
	}
	if n == 0 {
		return domain.RecordNotFound(id)
	}
	return nil
}

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
