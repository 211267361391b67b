package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tasklist/internal/cache"
	"tasklist/pkg/domain"
)

// errRejected signals that a precondition failed inside a cache swap.
var errRejected = errors.New("mutation rejected")

// Coordinator runs optimistic mutations against a Snapshot cache and the
// record store behind it. Each mutation captures the visible snapshot,
// installs a speculative one, issues the durable write, and then either
// reconciles or restores the captured snapshot.
type Coordinator struct {
	cache *cache.Cache
	store domain.RecordStore

	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	tempIDs func() string

	mu         sync.Mutex
	principals map[cache.Key]domain.Principal
	inflight   map[cache.Key]int
	epochs     map[cache.Key]uint64
}

// NewCoordinator constructs a coordinator over a shared cache and a store.
func NewCoordinator(c *cache.Cache, store domain.RecordStore, opts ...Option) *Coordinator {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if c == nil {
		c = cache.New(cache.WithLogger(options.logger))
	}
	return &Coordinator{
		cache:      c,
		store:      store,
		clock:      options.clock,
		logger:     options.logger,
		audit:      options.audit,
		metrics:    options.metrics,
		tracer:     options.tracer,
		tempIDs:    options.tempIDs,
		principals: make(map[cache.Key]domain.Principal),
		inflight:   make(map[cache.Key]int),
		epochs:     make(map[cache.Key]uint64),
	}
}

// Cache returns the shared snapshot cache.
func (c *Coordinator) Cache() *cache.Cache {
	return c.cache
}

// Subscribe registers an observer on the principal's collection and returns
// the collection's current snapshot, if loaded, with the disposer.
func (c *Coordinator) Subscribe(p domain.Principal, fn cache.Callback) (cache.Snapshot, bool, func()) {
	return c.cache.Subscribe(cache.KeyFor(p.ID), fn)
}

// InFlight reports the number of unsettled mutations for the principal's key.
func (c *Coordinator) InFlight(p domain.Principal) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[cache.KeyFor(p.ID)]
}

func (c *Coordinator) remember(key cache.Key, p domain.Principal) {
	c.mu.Lock()
	c.principals[key] = p
	c.mu.Unlock()
}

func (c *Coordinator) principalFor(key cache.Key) (domain.Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.principals[key]
	return p, ok
}

// Load returns the cached snapshot for the principal, fetching from the store
// when the key is absent or stale. A fetch that races with a mutation issued
// after it started is not installed; the key stays stale instead.
func (c *Coordinator) Load(ctx context.Context, p domain.Principal) (cache.Snapshot, error) {
	if !p.Authenticated() {
		return nil, fmt.Errorf("load: %w", domain.ErrUnauthorized)
	}
	key := cache.KeyFor(p.ID)
	c.remember(key, p)
	if s, ok := c.cache.Get(key); ok && !c.cache.Stale(key) {
		return s, nil
	}

	c.mu.Lock()
	epoch := c.epochs[key]
	c.mu.Unlock()

	var records []domain.Record
	err := c.run(ctx, "load", func(ctx context.Context) error {
		var err error
		records, err = c.store.List(ctx, p)
		return err
	})
	if err != nil {
		c.logger.Error("load failed", "key", string(key), "error", err)
		c.cache.Report(key, err)
		return nil, err
	}

	c.mu.Lock()
	raced := c.inflight[key] > 0 || c.epochs[key] != epoch
	c.mu.Unlock()
	if raced {
		c.cache.MarkStale(key)
		s, _ := c.cache.Get(key)
		c.logger.Debug("load superseded by mutation", "key", string(key))
		return s, nil
	}

	snapshot := cache.Snapshot(records)
	c.cache.Reset(key, snapshot)
	return snapshot, nil
}

// Refresh invalidates the principal's key and loads it again.
func (c *Coordinator) Refresh(ctx context.Context, p domain.Principal) (cache.Snapshot, error) {
	if p.Authenticated() {
		c.cache.Invalidate(cache.KeyFor(p.ID))
	}
	return c.Load(ctx, p)
}

// Insert prepends a speculative record with a temporary id, then asks the
// store to create it. On success the key is invalidated so the next load
// picks up the canonical record; the temporary id is never spliced in place.
func (c *Coordinator) Insert(ctx context.Context, p domain.Principal, text string) (domain.Record, error) {
	if !p.Authenticated() {
		return domain.Record{}, fmt.Errorf("insert: %w", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Record{}, fmt.Errorf("insert: %w", domain.Validationf("text is required"))
	}
	mc := &MutationContext{
		Kind:      KindInsert,
		Key:       cache.KeyFor(p.ID),
		Principal: p,
		Text:      text,
		State:     StateIdle,
	}
	speculative := domain.Record{
		ID:        c.tempIDs(),
		Text:      text,
		CreatedAt: c.clock.Now(),
		OwnerID:   p.ID,
	}
	mc.Target = speculative.ID
	if err := c.speculate(mc, func(current cache.Snapshot) (cache.Snapshot, error) {
		return current.Prepend(speculative), nil
	}); err != nil {
		return domain.Record{}, err
	}

	var created domain.Record
	start := c.clock.Now()
	err := c.run(ctx, mc.operation(), func(ctx context.Context) error {
		var err error
		created, err = c.store.Create(ctx, p, text)
		return err
	})
	if err != nil {
		return domain.Record{}, c.rollback(ctx, mc, err, start)
	}
	c.cache.Invalidate(mc.Key)
	c.settle(ctx, mc, StateReconciled, nil, start)
	return created, nil
}

// UpdateField merges fields into the record with id. On success the
// speculative snapshot is kept as final and the key is quietly marked for
// background revalidation.
func (c *Coordinator) UpdateField(ctx context.Context, p domain.Principal, id string, fields domain.Fields) (domain.Record, error) {
	if !p.Authenticated() {
		return domain.Record{}, fmt.Errorf("update: %w", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(id) == "" {
		return domain.Record{}, fmt.Errorf("update: %w", domain.Validationf("id is required"))
	}
	if err := fields.Validate(); err != nil {
		return domain.Record{}, fmt.Errorf("update: %w", err)
	}
	mc := &MutationContext{
		Kind:      KindUpdateField,
		Key:       cache.KeyFor(p.ID),
		Principal: p,
		Target:    id,
		Fields:    fields,
		State:     StateIdle,
	}
	if err := c.speculate(mc, func(current cache.Snapshot) (cache.Snapshot, error) {
		if !current.Contains(id) {
			return nil, errRejected
		}
		return current.Update(id, fields), nil
	}); err != nil {
		return domain.Record{}, err
	}

	var updated domain.Record
	start := c.clock.Now()
	err := c.run(ctx, mc.operation(), func(ctx context.Context) error {
		var err error
		updated, err = c.store.UpdateFields(ctx, p, id, fields)
		return err
	})
	if err != nil {
		return domain.Record{}, c.rollback(ctx, mc, err, start)
	}
	c.cache.MarkStale(mc.Key)
	c.settle(ctx, mc, StateReconciled, nil, start)
	return updated, nil
}

// Delete removes the record with id. On success the speculative snapshot is
// kept as final.
func (c *Coordinator) Delete(ctx context.Context, p domain.Principal, id string) error {
	if !p.Authenticated() {
		return fmt.Errorf("delete: %w", domain.ErrUnauthorized)
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("delete: %w", domain.Validationf("id is required"))
	}
	mc := &MutationContext{
		Kind:      KindDelete,
		Key:       cache.KeyFor(p.ID),
		Principal: p,
		Target:    id,
		State:     StateIdle,
	}
	if err := c.speculate(mc, func(current cache.Snapshot) (cache.Snapshot, error) {
		if !current.Contains(id) {
			return nil, errRejected
		}
		return current.Without(id), nil
	}); err != nil {
		return err
	}

	start := c.clock.Now()
	err := c.run(ctx, mc.operation(), func(ctx context.Context) error {
		return c.store.Delete(ctx, p, id)
	})
	if err != nil {
		return c.rollback(ctx, mc, err, start)
	}
	c.settle(ctx, mc, StateReconciled, nil, start)
	return nil
}

// speculate captures the visible snapshot into mc and installs next(current)
// in the same cache step, so the rollback basis exists before the speculative
// snapshot can be observed.
func (c *Coordinator) speculate(mc *MutationContext, next func(cache.Snapshot) (cache.Snapshot, error)) error {
	c.remember(mc.Key, mc.Principal)
	_, _, err := c.cache.Swap(mc.Key, func(current cache.Snapshot, loaded bool) (cache.Snapshot, error) {
		s, err := next(current)
		if err != nil {
			return nil, err
		}
		mc.Previous = current
		mc.HadPrevious = loaded
		return s, nil
	})
	if errors.Is(err, errRejected) {
		return fmt.Errorf("%s: %w", mc.operation(), domain.Validationf("record %q is not in the current snapshot", mc.Target))
	}
	if err != nil {
		return err
	}
	mc.State = StateSpeculativeApplied

	c.mu.Lock()
	c.inflight[mc.Key]++
	c.epochs[mc.Key]++
	c.mu.Unlock()
	c.logger.Debug("speculative change applied", "kind", string(mc.Kind), "key", string(mc.Key), "target", mc.Target)
	return nil
}

// rollback restores the captured snapshot, reports the failure to observers
// and returns the typed error.
func (c *Coordinator) rollback(ctx context.Context, mc *MutationContext, cause error, start time.Time) error {
	if mc.HadPrevious {
		c.cache.Set(mc.Key, mc.Previous)
	} else {
		c.cache.Set(mc.Key, cache.Snapshot{})
		c.cache.MarkStale(mc.Key)
	}
	merr := &MutationError{Kind: mc.Kind, RecordID: mc.Target, Err: cause}
	if mc.Kind == KindUpdateField {
		merr.Fields = mc.Fields.Group()
	}
	c.cache.Report(mc.Key, merr)
	c.logger.Warn("mutation rolled back", "kind", string(mc.Kind), "key", string(mc.Key), "target", mc.Target, "error", cause)
	c.settle(ctx, mc, StateRolledBack, merr, start)
	return merr
}

// settle moves mc into a terminal state, records the audit entry and drops
// the rollback basis.
func (c *Coordinator) settle(ctx context.Context, mc *MutationContext, state MutationState, err error, start time.Time) {
	mc.State = state
	c.mu.Lock()
	if c.inflight[mc.Key] > 0 {
		c.inflight[mc.Key]--
	}
	if c.inflight[mc.Key] == 0 {
		delete(c.inflight, mc.Key)
	}
	c.mu.Unlock()

	entry := AuditEntry{
		Operation: mc.operation(),
		Kind:      mc.Kind,
		State:     state,
		Key:       mc.Key,
		RecordID:  mc.Target,
		Status:    AuditStatusSuccess,
		Timestamp: c.clock.Now(),
	}
	entry.Duration = entry.Timestamp.Sub(start)
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	} else {
		c.logger.Debug("mutation reconciled", "kind", string(mc.Kind), "key", string(mc.Key), "target", mc.Target)
	}
	c.audit.Record(ctx, entry)

	mc.Previous = nil
	mc.HadPrevious = false
}

// run wraps a store call with tracing and metrics.
func (c *Coordinator) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := c.clock.Now()
	ctx, span := c.tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	c.metrics.Observe(ctx, operation, err == nil, c.clock.Now().Sub(start))
	return err
}
