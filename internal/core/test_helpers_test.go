package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tasklist/internal/cache"
	"tasklist/internal/infra/persistence/memory"
	"tasklist/pkg/domain"
)

var (
	alice    = domain.Principal{ID: "alice", Username: "alice"}
	errStore = errors.New("connection reset")
)

func steppingClock() ClockFunc {
	var (
		mu   sync.Mutex
		tick int
	)
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
}

func sequentialTempIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s%03d", domain.TempIDPrefix, n)
	}
}

// faultyStore wraps a memory store with per-operation failures and an
// optional gate that holds an update after it has been applied.
type faultyStore struct {
	*memory.Store

	mu         sync.Mutex
	failList   error
	failCreate error
	failUpdate error
	failDelete error
	calls      []string

	updateApplied chan struct{}
	releaseUpdate chan struct{}
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.NewStore(memory.WithNowFunc(steppingClock()))}
}

func (s *faultyStore) record(op string) {
	s.mu.Lock()
	s.calls = append(s.calls, op)
	s.mu.Unlock()
}

func (s *faultyStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *faultyStore) List(ctx context.Context, p domain.Principal) ([]domain.Record, error) {
	s.record("list")
	if s.failList != nil {
		return nil, s.failList
	}
	return s.Store.List(ctx, p)
}

func (s *faultyStore) Create(ctx context.Context, p domain.Principal, text string) (domain.Record, error) {
	s.record("create")
	if s.failCreate != nil {
		return domain.Record{}, s.failCreate
	}
	return s.Store.Create(ctx, p, text)
}

func (s *faultyStore) UpdateFields(ctx context.Context, p domain.Principal, id string, f domain.Fields) (domain.Record, error) {
	s.record("update")
	if s.failUpdate != nil {
		return domain.Record{}, s.failUpdate
	}
	r, err := s.Store.UpdateFields(ctx, p, id, f)
	if s.updateApplied != nil {
		close(s.updateApplied)
		<-s.releaseUpdate
	}
	return r, err
}

func (s *faultyStore) Delete(ctx context.Context, p domain.Principal, id string) error {
	s.record("delete")
	if s.failDelete != nil {
		return s.failDelete
	}
	return s.Store.Delete(ctx, p, id)
}

type eventLog struct {
	mu     sync.Mutex
	events []cache.Event
}

func (l *eventLog) add(ev cache.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) ofType(typ cache.EventType) []cache.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []cache.Event
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) all() []cache.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]cache.Event(nil), l.events...)
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recordingAudit) Record(_ context.Context, e AuditEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *recordingAudit) Entries() []AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEntry(nil), r.entries...)
}

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) log(level, msg string) {
	l.mu.Lock()
	l.lines = append(l.lines, level+": "+msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.log("debug", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.log("info", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.log("warn", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.log("error", msg) }

func (l *recordingLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

type fixture struct {
	store *faultyStore
	cache *cache.Cache
	coord *Coordinator
	audit *recordingAudit
	log   *recordingLogger
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: newFaultyStore(),
		cache: cache.New(),
		audit: &recordingAudit{},
		log:   &recordingLogger{},
	}
	base := []Option{
		WithClock(steppingClock()),
		WithTempIDs(sequentialTempIDs()),
		WithAuditRecorder(f.audit),
		WithLogger(f.log),
	}
	f.coord = NewCoordinator(f.cache, f.store, append(base, opts...)...)
	return f
}

// seed writes records straight to the store and loads them into the cache.
func (f *fixture) seed(t *testing.T, texts ...string) cache.Snapshot {
	t.Helper()
	ctx := context.Background()
	for _, text := range texts {
		if _, err := f.store.Store.Create(ctx, alice, text); err != nil {
			t.Fatalf("seed %q: %v", text, err)
		}
	}
	s, err := f.coord.Refresh(ctx, alice)
	if err != nil {
		t.Fatalf("seed load: %v", err)
	}
	return s
}

func (f *fixture) snapshot(t *testing.T) cache.Snapshot {
	t.Helper()
	s, ok := f.cache.Get(cache.KeyFor(alice.ID))
	if !ok {
		t.Fatalf("expected a cached snapshot")
	}
	return s
}

func (f *fixture) subscribe(t *testing.T) *eventLog {
	t.Helper()
	log := &eventLog{}
	_, _, dispose := f.coord.Subscribe(alice, log.add)
	t.Cleanup(dispose)
	return log
}

func texts(s cache.Snapshot) []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = r.Text
	}
	return out
}

func equalRecords(a, b []domain.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text || a[i].Completed != b[i].Completed ||
			a[i].OwnerID != b[i].OwnerID || !a[i].CreatedAt.Equal(b[i].CreatedAt) {
			return false
		}
	}
	return true
}
