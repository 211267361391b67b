// Package memory provides an in-memory record store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tasklist/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.RecordStore = (*Store)(nil)

// Store keeps every principal's records in one map keyed by id.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.Record
	nowFn   func() time.Time
	newID   func() string
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

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		records: make(map[string]domain.Record),
		nowFn:   func() time.Time { return time.Now().UTC() },
		newID:   NewRecordID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRecordID returns a time-ordered UUIDv7, falling back to a random UUID.
// Every record store uses it as its default id generator.
func NewRecordID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// List returns the principal's records, newest first.
func (s *Store) List(_ context.Context, p domain.Principal) ([]domain.Record, error) {
	if !p.Authenticated() {
		return nil, domain.ErrUnauthorized
	}
	s.mu.RLock()
	out := make([]domain.Record, 0)
	for _, r := range s.records {
		if r.OwnerID == p.ID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	SortNewestFirst(out)
	return out, nil
}

// Create stores a new incomplete record owned by the principal.
func (s *Store) Create(_ context.Context, p domain.Principal, text string) (domain.Record, error) {
	if !p.Authenticated() {
		return domain.Record{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(text) == "" {
		return domain.Record{}, domain.Validationf("text is required")
	}
	r := domain.Record{
		ID:        s.newID(),
		Text:      text,
		CreatedAt: s.nowFn(),
		OwnerID:   p.ID,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[r.ID]; exists {
		return domain.Record{}, fmt.Errorf("record %s already exists", r.ID)
	}
	s.records[r.ID] = r
	return r, nil
}

// UpdateFields merges fields into the principal's record.
func (s *Store) UpdateFields(_ context.Context, p domain.Principal, id string, fields domain.Fields) (domain.Record, error) {
	if !p.Authenticated() {
		return domain.Record{}, domain.ErrUnauthorized
	}
	if id == "" {
		return domain.Record{}, domain.Validationf("id is required")
	}
	if err := fields.Validate(); err != nil {
		return domain.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[id]
	if !ok || current.OwnerID != p.ID {
		return domain.Record{}, domain.RecordNotFound(id)
	}
	updated := fields.Apply(current)
	s.records[id] = updated
	return updated, nil
}

// Delete removes the principal's record.
func (s *Store) Delete(_ context.Context, p domain.Principal, id string) error {
	if !p.Authenticated() {
		return domain.ErrUnauthorized
	}
	if id == "" {
		return domain.Validationf("id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[id]
	if !ok || current.OwnerID != p.ID {
		return domain.RecordNotFound(id)
	}
	delete(s.records, id)
	return nil
}

// Get returns the principal's record with id.
func (s *Store) Get(p domain.Principal, id string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok || r.OwnerID != p.ID {
		return domain.Record{}, false
	}
	return r, true
}

// SortNewestFirst orders records by created_at descending, breaking ties by id
// descending so time-ordered ids stay newest first.
func SortNewestFirst(records []domain.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
