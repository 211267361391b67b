// Package events fans record store change notices out to watchers. A change
// is a staleness signal for the owner's collection, not a state transfer.
package events

import (
	"context"
	"errors"
	"sync"

	"tasklist/pkg/domain"
)

// Broker publishes changes and delivers them to subscribers of the same
// owner. Subscribe returns a channel closed when ctx ends or the returned
// cancel func is called.
type Broker interface {
	Publish(ctx context.Context, change domain.Change) error
	Subscribe(ctx context.Context, ownerID string) (<-chan domain.Change, func(), error)
	Close() error
}

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

var errBrokerClosed = errors.New("events: broker closed")

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// changes are dropped for it.
const subscriberBuffer = 32

// MemoryBroker delivers changes within one process.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[uint64]chan domain.Change
	nextID uint64
	closed bool
	logger Logger
}

// NewMemoryBroker constructs an in-process broker. logger may be nil.
func NewMemoryBroker(logger Logger) *MemoryBroker {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MemoryBroker{subs: make(map[string]map[uint64]chan domain.Change), logger: logger}
}

// Publish delivers change to current subscribers without blocking.
func (b *MemoryBroker) Publish(_ context.Context, change domain.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[change.OwnerID] {
		select {
		case ch <- change:
		default:
			b.logger.Warn("dropping change for slow subscriber", "owner", change.OwnerID, "record", change.RecordID)
		}
	}
	return nil
}

// Subscribe registers a subscriber for ownerID. The subscription ends when ctx
// is done or cancel is called, whichever comes first.
func (b *MemoryBroker) Subscribe(ctx context.Context, ownerID string) (<-chan domain.Change, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, errBrokerClosed
	}
	b.nextID++
	id := b.nextID
	ch := make(chan domain.Change, subscriberBuffer)
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[uint64]chan domain.Change)
	}
	b.subs[ownerID][id] = ch
	b.mu.Unlock()

	ctx, stopWatch := context.WithCancel(ctx)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stopWatch()
			b.mu.Lock()
			defer b.mu.Unlock()
			if owner, ok := b.subs[ownerID]; ok {
				if _, ok := owner[id]; ok {
					delete(owner, id)
					close(ch)
				}
				if len(owner) == 0 {
					delete(b.subs, ownerID)
				}
			}
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Subscribers reports the number of live subscriptions for ownerID.
func (b *MemoryBroker) Subscribers(ownerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[ownerID])
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for owner, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subs, owner)
	}
	return nil
}
