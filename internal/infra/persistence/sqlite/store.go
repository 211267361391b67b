// Package sqlite provides a record store persisted to an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"tasklist/internal/infra/persistence/memory"
	"tasklist/pkg/domain"
)

var _ domain.RecordStore = (*Store)(nil)

const schema = `CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	text TEXT NOT NULL,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
)`

const recordColumns = `id, owner_id, text, completed, created_at`

// Several processes may share one file; writers wait for the lock instead of
// failing with SQLITE_BUSY.
const pragmas = `?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)`

// Store reads and writes the records table directly, so every handle on the
// same file observes the same rows.
type Store struct {
	db    *sql.DB
	path  string
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

// NewStore opens (or creates) the database at path. An empty path uses
// tasklist.db in the working directory.
func NewStore(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "tasklist.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+pragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	s := &Store{
		db:    db,
		path:  path,
		nowFn: func() time.Time { return time.Now().UTC() },
		newID: memory.NewRecordID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (domain.Record, error) {
	var (
		r         domain.Record
		completed int64
		created   int64
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Text, &completed, &created); err != nil {
		return domain.Record{}, err
	}
	r.Completed = completed != 0
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// List returns the principal's records, newest first.
func (s *Store) List(ctx context.Context, p domain.Principal) ([]domain.Record, error) {
	if !p.Authenticated() {
		return nil, domain.ErrUnauthorized
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records
		WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, p.ID)
	if err != nil {
		return nil, domain.Unavailable("sqlite select", err)
	}
	defer func() { _ = rows.Close() }()
	out := make([]domain.Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, domain.Unavailable("sqlite scan", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("sqlite select", err)
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
	_, err := s.db.ExecContext(ctx, `INSERT INTO records(`+recordColumns+`) VALUES(?,?,?,?,?)`,
		r.ID, r.OwnerID, r.Text, 0, r.CreatedAt.UnixNano())
	if err != nil {
		return domain.Record{}, domain.Unavailable("sqlite insert", err)
	}
	return r, nil
}

// UpdateFields merges fields into the principal's row in one statement and
// returns the row as stored.
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
		completed = boolInt(*fields.Completed)
	}
	row := s.db.QueryRowContext(ctx, `UPDATE records
		SET text = COALESCE(?, text), completed = COALESCE(?, completed)
		WHERE id = ? AND owner_id = ?
		RETURNING `+recordColumns, text, completed, id, p.ID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, domain.RecordNotFound(id)
	}
	if err != nil {
		return domain.Record{}, domain.Unavailable("sqlite update", err)
	}
	return r, nil
}

// Delete removes the principal's row. A row that is already gone, or owned by
// someone else, reports not found.
func (s *Store) Delete(ctx context.Context, p domain.Principal, id string) error {
	if !p.Authenticated() {
		return domain.ErrUnauthorized
	}
	if id == "" {
		return domain.Validationf("id is required")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND owner_id = ?`, id, p.ID)
	if err != nil {
		return domain.Unavailable("sqlite delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Unavailable("sqlite delete", err)
	}
	if n == 0 {
		return domain.RecordNotFound(id)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
