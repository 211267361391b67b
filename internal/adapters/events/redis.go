package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"tasklist/pkg/domain"
)

// ChannelPrefix namespaces per-owner pub/sub channels.
const ChannelPrefix = "tasklist:changes:"

// RedisBroker relays changes through Redis pub/sub so that every server
// process sharing the instance sees every write.
type RedisBroker struct {
	client *redis.Client
	logger Logger
}

// NewRedisBroker connects to addr and verifies the connection.
func NewRedisBroker(ctx context.Context, addr string, logger Logger) (*RedisBroker, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	if logger == nil {
		logger = noopLogger{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisBroker{client: client, logger: logger}, nil
}

// Channel returns the pub/sub channel for ownerID.
func Channel(ownerID string) string {
	return ChannelPrefix + ownerID
}

// Publish encodes change as JSON on the owner's channel.
func (b *RedisBroker) Publish(ctx context.Context, change domain.Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(change.OwnerID), payload).Err(); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe relays the owner's channel until ctx ends or cancel is called.
func (b *RedisBroker) Subscribe(ctx context.Context, ownerID string) (<-chan domain.Change, func(), error) {
	ctx, stop := context.WithCancel(ctx)
	pubsub := b.client.Subscribe(ctx, Channel(ownerID))
	if _, err := pubsub.Receive(ctx); err != nil {
		stop()
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", Channel(ownerID), err)
	}
	out := make(chan domain.Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change domain.Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					b.logger.Warn("discarding malformed change", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, stop, nil
}

// Close releases the Redis client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
