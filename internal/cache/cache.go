// Package cache holds the last known snapshot of each collection, tracks
// whether it is stale, and fans change notifications out to observers.
//
// A Cache is constructed once per process and shared by handle. Mutations for a
// key are expected to be driven from a single logical caller; the internal lock
// only guarantees that no observer sees a partially replaced snapshot.
package cache

import (
	"fmt"
	"sort"
	"sync"
)

// Key partitions one cached collection from another.
type Key string

// KeyFor returns the collection key for an owner's task list.
func KeyFor(ownerID string) Key {
	return Key("todos:" + ownerID)
}

// EventType classifies a notification.
type EventType string

const (
	// EventUpdated follows every Set.
	EventUpdated EventType = "updated"
	// EventInvalidated follows Invalidate.
	EventInvalidated EventType = "invalidated"
	// EventFailed reports a failed mutation or load for the key.
	EventFailed EventType = "failed"
)

// Event is delivered to observers of a key.
type Event struct {
	Key      Key
	Type     EventType
	Snapshot Snapshot
	Err      error
}

// Callback receives notifications. Callbacks run on the goroutine that changed
// the cache and must not block.
type Callback func(Event)

// Logger receives reports about misbehaving observers.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used to report observer panics.
func WithLogger(l Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

type observer struct {
	id uint64
	fn Callback
}

type entry struct {
	snapshot  Snapshot
	loaded    bool
	stale     bool
	observers []observer
}

// Cache maps collection keys to their current snapshot.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	nextID  uint64
	logger  Logger
}

// New constructs an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]*entry),
		logger:  noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Get returns the current snapshot, or false if the key was never loaded.
func (c *Cache) Get(key Key) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.loaded {
		return nil, false
	}
	return e.snapshot, true
}

// Set replaces the snapshot for key in one step and notifies observers. The
// stale mark is left as it was.
func (c *Cache) Set(key Key, s Snapshot) {
	c.replace(key, s, false)
}

// Reset replaces the snapshot and clears the stale mark. It is used when the
// snapshot comes straight from the record store.
func (c *Cache) Reset(key Key, s Snapshot) {
	c.replace(key, s, true)
}

func (c *Cache) replace(key Key, s Snapshot, fresh bool) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.snapshot = s
	e.loaded = true
	if fresh {
		e.stale = false
	}
	targets := append([]observer(nil), e.observers...)
	c.mu.Unlock()
	c.deliver(targets, Event{Key: key, Type: EventUpdated, Snapshot: s})
}

// Swap computes the next snapshot from the current one under the cache lock,
// installs it and notifies observers. fn receives the current snapshot and
// whether the key was loaded; returning an error leaves the cache untouched.
// The returned values are the snapshot fn saw and whether it was loaded.
func (c *Cache) Swap(key Key, fn func(current Snapshot, loaded bool) (Snapshot, error)) (Snapshot, bool, error) {
	c.mu.Lock()
	var (
		current Snapshot
		loaded  bool
	)
	if e, ok := c.entries[key]; ok && e.loaded {
		current, loaded = e.snapshot, true
	}
	next, err := fn(current, loaded)
	if err != nil {
		c.mu.Unlock()
		return current, loaded, err
	}
	e := c.entryLocked(key)
	e.snapshot = next
	e.loaded = true
	targets := append([]observer(nil), e.observers...)
	c.mu.Unlock()
	c.deliver(targets, Event{Key: key, Type: EventUpdated, Snapshot: next})
	return current, loaded, nil
}

// Invalidate marks the key stale so the next load re-fetches, and notifies
// observers. Unknown keys are ignored.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.stale = true
	snapshot := e.snapshot
	targets := append([]observer(nil), e.observers...)
	c.mu.Unlock()
	c.deliver(targets, Event{Key: key, Type: EventInvalidated, Snapshot: snapshot})
}

// MarkStale flags the key for revalidation without notifying observers.
func (c *Cache) MarkStale(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
}

// Stale reports whether the key is marked for re-fetch. Keys never loaded
// count as stale.
func (c *Cache) Stale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.loaded {
		return true
	}
	return e.stale
}

// Report notifies observers of a failure affecting key.
func (c *Cache) Report(key Key, err error) {
	c.mu.Lock()
	var (
		targets  []observer
		snapshot Snapshot
	)
	if e, ok := c.entries[key]; ok {
		targets = append(targets, e.observers...)
		snapshot = e.snapshot
	}
	c.mu.Unlock()
	c.deliver(targets, Event{Key: key, Type: EventFailed, Snapshot: snapshot, Err: err})
}

// Subscribe registers fn for notifications on key. It returns the snapshot
// held at registration (ok is false when key has not been loaded) and the
// disposer. No earlier notification is replayed. Observers are notified in
// subscription order. The disposer may be called any number of times; once
// the last observer of a key leaves, the entry is torn down.
func (c *Cache) Subscribe(key Key, fn Callback) (current Snapshot, ok bool, dispose func()) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	e := c.entryLocked(key)
	e.observers = append(e.observers, observer{id: id, fn: fn})
	if e.loaded {
		current, ok = e.snapshot, true
	}
	c.mu.Unlock()

	var once sync.Once
	return current, ok, func() {
		once.Do(func() { c.unsubscribe(key, id) })
	}
}

func (c *Cache) unsubscribe(key Key, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return
	}
	for i, o := range e.observers {
		if o.id != id {
			continue
		}
		e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
		if len(e.observers) == 0 {
			delete(c.entries, key)
		}
		return
	}
}

// Observers returns the number of active observers for key.
func (c *Cache) Observers(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return len(e.observers)
	}
	return 0
}

// Remove tears down the entry for key. Observers are dropped without notice.
func (c *Cache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// StaleKeys lists observed keys that are stale, sorted.
func (c *Cache) StaleKeys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keys []Key
	for k, e := range c.entries {
		if len(e.observers) > 0 && (e.stale || !e.loaded) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (c *Cache) deliver(targets []observer, ev Event) {
	for _, o := range targets {
		c.invoke(o, ev)
	}
}

func (c *Cache) invoke(o observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("cache observer panicked", "key", string(ev.Key), "event", string(ev.Type), "panic", fmt.Sprint(r))
		}
	}()
	o.fn(ev)
}
